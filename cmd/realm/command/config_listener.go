package command

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-service"

	"github.com/pixil98/go-realm/internal/transport/rpc"
	"github.com/pixil98/go-realm/internal/transport/ws"
	"github.com/pixil98/go-realm/internal/world"
)

type ListenerType int

const (
	ListenerTypeGRPC ListenerType = iota
	ListenerTypeWebSocket
)

func (lt *ListenerType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "grpc":
		*lt = ListenerTypeGRPC
	case "websocket", "ws":
		*lt = ListenerTypeWebSocket
	default:
		return fmt.Errorf("unknown listener type: %s", text)
	}
	return nil
}

func (lt ListenerType) String() string {
	if lt == ListenerTypeWebSocket {
		return "websocket"
	}
	return "grpc"
}

type ListenerConfig struct {
	Protocol ListenerType `json:"protocol"`
	Host     string       `json:"host,omitempty"`
	Port     uint16       `json:"port"`
	// AllowedOrigins lists the origins websocket spectators may connect from.
	// "*" allows any origin. Empty means same origin only.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

func (cl *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if cl.Port == 0 {
		el.Add(fmt.Errorf("port must be set to a positive integer"))
	}
	if cl.Protocol != ListenerTypeWebSocket && len(cl.AllowedOrigins) > 0 {
		el.Add(fmt.Errorf("allowed_origins only applies to websocket listeners"))
	}

	return el.Err()
}

func (cl *ListenerConfig) addr() string {
	return net.JoinHostPort(cl.Host, strconv.Itoa(int(cl.Port)))
}

func (cl *ListenerConfig) BuildListener(w *world.Service) (service.Worker, error) {
	switch cl.Protocol {
	case ListenerTypeGRPC:
		return rpc.NewServer(cl.addr(), w), nil
	case ListenerTypeWebSocket:
		var opts []ws.HandlerOpt
		if len(cl.AllowedOrigins) > 0 {
			opts = append(opts, ws.WithCheckOrigin(originChecker(cl.AllowedOrigins)))
		}
		return ws.NewServer(cl.addr(), ws.NewHandler(w, opts...)), nil
	default:
		return nil, fmt.Errorf("unknown listener type: %v", cl.Protocol)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

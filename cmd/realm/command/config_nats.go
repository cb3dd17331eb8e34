package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-realm/internal/messaging"
)

const defaultNatsStartTimeout = 10 * time.Second

// NatsConfig configures the embedded NATS server that mirrors world updates.
// The mirror is off unless Enabled is set.
type NatsConfig struct {
	Enabled      bool   `json:"enabled" env:"ENABLED"`
	Host         string `json:"host" env:"HOST"`
	Port         int    `json:"port" env:"PORT"`
	StartTimeout string `json:"start_timeout" env:"START_TIMEOUT"`
	Subject      string `json:"subject" env:"SUBJECT"`
}

func (n *NatsConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := parseDuration(n.StartTimeout, defaultNatsStartTimeout); err != nil {
		el.Add(fmt.Errorf("parsing nats start_timeout: %w", err))
	}
	if n.Port < -1 || n.Port > 65535 {
		el.Add(fmt.Errorf("nats port %d is out of range", n.Port))
	}
	// Batches are published, so the subject has to be a literal one.
	if strings.ContainsAny(n.Subject, "*> \t") {
		el.Add(fmt.Errorf("nats subject %q must not contain wildcards or whitespace", n.Subject))
	}

	return el.Err()
}

func (n *NatsConfig) serverOpts() []messaging.NatsServerOpt {
	return []messaging.NatsServerOpt{
		messaging.WithStartTimeout(mustDuration(n.StartTimeout, defaultNatsStartTimeout)),
		messaging.WithListen(n.Host, n.Port),
	}
}

func (n *NatsConfig) buildNatsServer() (*messaging.NatsServer, error) {
	return messaging.NewNatsServer(n.serverOpts()...)
}

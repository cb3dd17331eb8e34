package messaging

import "time"

// NatsServerOpt configures a NatsServer before the embedded server is built.
type NatsServerOpt func(*NatsServer)

// WithStartTimeout bounds how long Start waits for the server to accept
// connections. Non-positive values keep the default.
func WithStartTimeout(d time.Duration) NatsServerOpt {
	return func(n *NatsServer) {
		if d > 0 {
			n.startupTimeout = d
		}
	}
}

// WithListen sets the client listen address. An empty host keeps the
// loopback default, port 0 keeps the NATS default and -1 picks a free port.
func WithListen(host string, port int) NatsServerOpt {
	return func(n *NatsServer) {
		if host != "" {
			n.host = host
		}
		n.port = port
	}
}

// WithClientName names the in-process publishing connection.
func WithClientName(name string) NatsServerOpt {
	return func(n *NatsServer) {
		if name != "" {
			n.clientName = name
		}
	}
}

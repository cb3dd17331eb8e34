package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pixil98/go-realm/internal/broadcast"
)

// DefaultSubject is where world update batches are published.
const DefaultSubject = "world.updates"

// Publisher is the subset of NatsServer the batch publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// BatchPublisher mirrors broadcast batches onto a NATS subject as JSON.
type BatchPublisher struct {
	pub     Publisher
	subject string
}

// NewBatchPublisher publishes to subject, or DefaultSubject when it is empty.
func NewBatchPublisher(pub Publisher, subject string) *BatchPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &BatchPublisher{pub: pub, subject: subject}
}

func (p *BatchPublisher) Publish(_ context.Context, b broadcast.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshalling batch %d: %w", b.Seq, err)
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publishing batch %d: %w", b.Seq, err)
	}
	return nil
}

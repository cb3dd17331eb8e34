package broadcast

import (
	"context"
	"errors"
	"time"
)

// DefaultKeepAlive is how long a stream may go without a batch before an
// empty heartbeat is sent.
const DefaultKeepAlive = 15 * time.Second

// ErrDropped is returned by Stream when the subscriber fell behind.
var ErrDropped = errors.New("subscriber fell behind and was dropped")

// Stream subscribes and passes every batch to send until ctx is done or send
// fails. A heartbeat is sent after keepAlive without a batch. The
// subscription is always released on return.
func (b *Broadcaster) Stream(ctx context.Context, keepAlive time.Duration, send func(Batch) error) error {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	idle := time.NewTimer(keepAlive)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-sub.C():
			if !ok {
				return ErrDropped
			}
			if err := send(batch); err != nil {
				return err
			}
		case <-idle.C:
			if err := send(b.Heartbeat()); err != nil {
				return err
			}
		}
		idle.Reset(keepAlive)
	}
}

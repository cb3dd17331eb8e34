package broadcast

import "sync"

// Subscription is one subscriber's bounded queue of batches. The channel is
// closed when the subscription is closed or dropped for falling behind.
type Subscription struct {
	id uint64
	ch chan Batch

	mu     sync.Mutex
	closed bool
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uint64 {
	return s.id
}

// C returns the channel batches are delivered on.
func (s *Subscription) C() <-chan Batch {
	return s.ch
}

// close closes the channel. It is safe to call more than once. Only the
// broadcaster closes a subscription, after removing it from its set.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Closed reports whether the subscription has been closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// offerResult is the outcome of one offer.
type offerResult int

const (
	offerQueued offerResult = iota
	offerFull
	offerClosed
)

// offer queues b without blocking.
func (s *Subscription) offer(b Batch) offerResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return offerClosed
	}
	select {
	case s.ch <- b:
		return offerQueued
	default:
		return offerFull
	}
}

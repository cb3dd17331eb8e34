package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-testutil"
)

func TestBroadcaster_Stream(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Batch, 4)
	done := make(chan error, 1)
	go func() {
		done <- b.Stream(ctx, time.Hour, func(batch Batch) error {
			got <- batch
			return nil
		})
	}()

	waitFor(t, func() bool { return b.Count() == 1 })

	b.EntityChanged(game.Entity{ID: "m1"})
	_ = b.Tick(ctx)

	select {
	case batch := <-got:
		testutil.AssertEqual(t, "entities", len(batch.Entities), 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch streamed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "unsubscribed", b.Count(), 0)
}

func TestBroadcaster_StreamHeartbeat(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Batch, 1)
	go func() {
		_ = b.Stream(ctx, 10*time.Millisecond, func(batch Batch) error {
			select {
			case got <- batch:
			default:
			}
			return nil
		})
	}()

	select {
	case batch := <-got:
		testutil.AssertEqual(t, "empty", batch.Empty(), true)
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat")
	}
}

func TestBroadcaster_StreamSendError(t *testing.T) {
	b := NewBroadcaster()
	boom := errors.New("broken pipe")

	err := b.Stream(context.Background(), time.Millisecond, func(Batch) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	testutil.AssertEqual(t, "unsubscribed", b.Count(), 0)
}

func TestBroadcaster_StreamDropped(t *testing.T) {
	b := NewBroadcaster(WithBuffer(1))
	ctx := context.Background()
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- b.Stream(ctx, time.Hour, func(Batch) error {
			<-release
			return nil
		})
	}()
	waitFor(t, func() bool { return b.Count() == 1 })

	// The first batch blocks in send, the second fills the buffer and the
	// third overflows it.
	for i := range 3 {
		b.EntityChanged(game.Entity{ID: "m1", HP: i})
		_ = b.Tick(ctx)
		if i == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}
	close(release)

	select {
	case err := <-done:
		// The buffered batch may be delivered before the closed channel is seen.
		if !errors.Is(err, ErrDropped) {
			t.Fatalf("err = %v, want ErrDropped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-testutil"
)

var tickTime = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func newTestBroadcaster(opts ...BroadcasterOpt) *Broadcaster {
	opts = append([]BroadcasterOpt{WithClock(func() time.Time { return tickTime })}, opts...)
	return NewBroadcaster(opts...)
}

func receive(t *testing.T, sub *Subscription) Batch {
	t.Helper()
	select {
	case b, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return b
	default:
		t.Fatalf("no batch delivered")
	}
	return Batch{}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case b, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected batch %d", b.Seq)
		}
	default:
	}
}

func TestBroadcaster_Coalesce(t *testing.T) {
	tests := map[string]struct {
		record     func(b *Broadcaster)
		expIDs     []string
		expRemoved []string
		expHP      int
	}{
		"latest update wins": {
			record: func(b *Broadcaster) {
				b.EntityChanged(game.Entity{ID: "m1", HP: 40, Version: 2})
				b.EntityChanged(game.Entity{ID: "m1", HP: 31, Version: 3})
			},
			expIDs:     []string{"m1"},
			expRemoved: []string{},
			expHP:      31,
		},
		"removal supersedes update": {
			record: func(b *Broadcaster) {
				b.EntityChanged(game.Entity{ID: "i1", Version: 2})
				b.EntityRemoved("i1")
			},
			expIDs:     []string{},
			expRemoved: []string{"i1"},
		},
		"update after removal": {
			record: func(b *Broadcaster) {
				b.EntityRemoved("i1")
				b.EntityChanged(game.Entity{ID: "i1", HP: 0, Version: 4})
			},
			expIDs:     []string{"i1"},
			expRemoved: []string{},
		},
		"ordered by id": {
			record: func(b *Broadcaster) {
				b.EntityChanged(game.Entity{ID: "b"})
				b.EntityChanged(game.Entity{ID: "a"})
				b.EntityRemoved("c")
			},
			expIDs:     []string{"a", "b"},
			expRemoved: []string{"c"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b := newTestBroadcaster()
			sub := b.Subscribe()
			tt.record(b)

			if err := b.Tick(context.Background()); err != nil {
				t.Fatalf("Tick() error: %v", err)
			}
			batch := receive(t, sub)

			ids := []string{}
			for _, e := range batch.Entities {
				ids = append(ids, e.ID)
			}
			testutil.AssertEqual(t, "entities", strings.Join(ids, ","), strings.Join(tt.expIDs, ","))
			testutil.AssertEqual(t, "removed", strings.Join(batch.RemovedEntities, ","), strings.Join(tt.expRemoved, ","))
			if len(batch.Entities) == 1 {
				testutil.AssertEqual(t, "hp", batch.Entities[0].HP, tt.expHP)
			}
			testutil.AssertEqual(t, "seq", batch.Seq, uint64(1))
			testutil.AssertEqual(t, "at", batch.At, tickTime)
		})
	}
}

func TestBroadcaster_EmptyTickSendsNothing(t *testing.T) {
	b := newTestBroadcaster()
	sub := b.Subscribe()

	_ = b.Tick(context.Background())

	assertNothing(t, sub)
}

func TestBroadcaster_Players(t *testing.T) {
	b := newTestBroadcaster()
	sub := b.Subscribe()

	b.PlayerChanged(game.Player{ID: "p1", Name: "Aria"})
	b.PlayerChanged(game.Player{ID: "p2", Name: "Bran"})
	b.PlayerRemoved("p2")
	_ = b.Tick(context.Background())

	batch := receive(t, sub)
	testutil.AssertEqual(t, "players", len(batch.Players), 1)
	testutil.AssertEqual(t, "player", batch.Players[0].ID, "p1")
	testutil.AssertEqual(t, "removed", strings.Join(batch.RemovedPlayers, ","), "p2")
}

func TestBroadcaster_LateSubscriberGetsNoBacklog(t *testing.T) {
	b := newTestBroadcaster()
	early := b.Subscribe()

	b.EntityChanged(game.Entity{ID: "m1"})
	_ = b.Tick(context.Background())

	late := b.Subscribe()
	_ = receive(t, early)
	assertNothing(t, late)

	b.EntityChanged(game.Entity{ID: "m2"})
	_ = b.Tick(context.Background())
	testutil.AssertEqual(t, "late seq", receive(t, late).Seq, uint64(2))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := newTestBroadcaster()
	keep := b.Subscribe()
	gone := b.Subscribe()
	testutil.AssertEqual(t, "count", b.Count(), 2)

	b.Unsubscribe(gone)
	b.Unsubscribe(gone)
	testutil.AssertEqual(t, "count after", b.Count(), 1)

	b.EntityChanged(game.Entity{ID: "m1"})
	_ = b.Tick(context.Background())

	_ = receive(t, keep)
	_, ok := <-gone.C()
	testutil.AssertEqual(t, "gone open", ok, false)
}

func TestBroadcaster_DropsSlowSubscriber(t *testing.T) {
	b := newTestBroadcaster(WithBuffer(2))
	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := range 3 {
		b.EntityChanged(game.Entity{ID: "m1", HP: i})
		_ = b.Tick(context.Background())
		_ = receive(t, fast)
	}

	testutil.AssertEqual(t, "count", b.Count(), 1)
	testutil.AssertEqual(t, "closed", slow.Closed(), true)

	var got int
	for range slow.C() {
		got++
	}
	testutil.AssertEqual(t, "buffered before drop", got, 2)
}

func TestBroadcaster_ForgetsClosedSubscriber(t *testing.T) {
	b := newTestBroadcaster()
	closed := b.Subscribe()
	live := b.Subscribe()
	closed.close()
	testutil.AssertEqual(t, "count before tick", b.Count(), 2)

	b.EntityChanged(game.Entity{ID: "m1"})
	_ = b.Tick(context.Background())

	testutil.AssertEqual(t, "count after tick", b.Count(), 1)
	got := receive(t, live)
	testutil.AssertEqual(t, "live received", got.Entities[0].ID, "m1")

	// Unsubscribing an already forgotten subscription is harmless.
	b.Unsubscribe(closed)
	testutil.AssertEqual(t, "count after unsubscribe", b.Count(), 1)
}

type recordingMirror struct {
	batches []Batch
	err     error
}

func (m *recordingMirror) Publish(_ context.Context, b Batch) error {
	m.batches = append(m.batches, b)
	return m.err
}

func TestBroadcaster_Mirror(t *testing.T) {
	tests := map[string]struct {
		err error
	}{
		"mirror ok":     {},
		"mirror failed": {err: errors.New("nats down")},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := &recordingMirror{err: tt.err}
			b := newTestBroadcaster(WithMirror(m))
			sub := b.Subscribe()

			_ = b.Tick(context.Background())
			b.EntityChanged(game.Entity{ID: "m1"})
			err := b.Tick(context.Background())

			if err != nil {
				t.Fatalf("Tick() error: %v", err)
			}
			testutil.AssertEqual(t, "mirrored", len(m.batches), 1)
			_ = receive(t, sub)
		})
	}
}

func TestBroadcaster_Heartbeat(t *testing.T) {
	b := newTestBroadcaster()
	b.EntityChanged(game.Entity{ID: "m1"})
	_ = b.Tick(context.Background())

	hb := b.Heartbeat()
	testutil.AssertEqual(t, "empty", hb.Empty(), true)
	testutil.AssertEqual(t, "seq", hb.Seq, uint64(1))
}

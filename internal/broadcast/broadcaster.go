// Package broadcast batches world changes and fans them out to subscribers.
package broadcast

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pixil98/go-realm/internal/game"
)

const (
	// DefaultInterval is how often pending changes are sent.
	DefaultInterval = time.Second
	// DefaultBuffer is the number of batches a subscriber may fall behind by.
	DefaultBuffer = 8
)

// Batch is one tick's worth of changes.
type Batch struct {
	Seq             uint64        `json:"seq"`
	At              time.Time     `json:"at"`
	Entities        []game.Entity `json:"entities"`
	RemovedEntities []string      `json:"removed_entities"`
	Players         []game.Player `json:"players"`
	RemovedPlayers  []string      `json:"removed_players"`
}

// Empty reports whether the batch carries no changes. Heartbeats are empty.
func (b Batch) Empty() bool {
	return len(b.Entities) == 0 && len(b.RemovedEntities) == 0 &&
		len(b.Players) == 0 && len(b.RemovedPlayers) == 0
}

// Mirror receives a copy of every batch sent, for delivery outside the process.
type Mirror interface {
	Publish(ctx context.Context, b Batch) error
}

// change is the latest known state of one id. A nil value is a removal.
type change[T any] struct {
	value *T
}

// Broadcaster implements game.ChangeRecorder. Changes are coalesced per id
// until the next Tick, which sends one batch to every subscriber.
type Broadcaster struct {
	buffer int
	mirror Mirror
	now    func() time.Time

	mu       sync.Mutex
	entities map[string]change[game.Entity]
	players  map[string]change[game.Player]

	subMu  sync.Mutex
	subs   map[*Subscription]struct{}
	seq    uint64
	nextID uint64
}

// BroadcasterOpt configures a Broadcaster.
type BroadcasterOpt func(*Broadcaster)

// WithBuffer sets the subscriber channel capacity.
func WithBuffer(n int) BroadcasterOpt {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithMirror sends every non-empty batch to m as well.
func WithMirror(m Mirror) BroadcasterOpt {
	return func(b *Broadcaster) {
		b.mirror = m
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BroadcasterOpt {
	return func(b *Broadcaster) {
		b.now = now
	}
}

func NewBroadcaster(opts ...BroadcasterOpt) *Broadcaster {
	b := &Broadcaster{
		buffer:   DefaultBuffer,
		now:      time.Now,
		entities: map[string]change[game.Entity]{},
		players:  map[string]change[game.Player]{},
		subs:     map[*Subscription]struct{}{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broadcaster) EntityChanged(e game.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[e.ID] = change[game.Entity]{value: &e}
}

func (b *Broadcaster) EntityRemoved(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities[id] = change[game.Entity]{}
}

func (b *Broadcaster) PlayerChanged(p game.Player) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.players[p.ID] = change[game.Player]{value: &p}
}

func (b *Broadcaster) PlayerRemoved(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.players[id] = change[game.Player]{}
}

// Subscribe registers a new subscriber. It only receives batches sent after this call.
func (b *Broadcaster) Subscribe() *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan Batch, b.buffer)}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes the subscription. It is safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.subMu.Lock()
	delete(b.subs, sub)
	b.subMu.Unlock()
	sub.close()
}

// Count returns the number of live subscriptions.
func (b *Broadcaster) Count() int {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return len(b.subs)
}

// Tick drains pending changes and sends them as one batch. Nothing is sent
// when nothing changed. A subscriber whose buffer is full is dropped, and a
// closed one is forgotten.
func (b *Broadcaster) Tick(ctx context.Context) error {
	batch, ok := b.drain()
	if !ok {
		return nil
	}

	b.subMu.Lock()
	b.seq++
	batch.Seq = b.seq
	var dropped []*Subscription
	for sub := range b.subs {
		switch sub.offer(batch) {
		case offerFull:
			dropped = append(dropped, sub)
			delete(b.subs, sub)
		case offerClosed:
			delete(b.subs, sub)
		}
	}
	b.subMu.Unlock()

	for _, sub := range dropped {
		slog.WarnContext(ctx, "dropping slow subscriber", "subscription", sub.id)
		sub.close()
	}

	if b.mirror != nil {
		if err := b.mirror.Publish(ctx, batch); err != nil {
			slog.WarnContext(ctx, "mirroring world update", "seq", batch.Seq, "error", err)
		}
	}
	return nil
}

func (b *Broadcaster) drain() (Batch, bool) {
	b.mu.Lock()
	entities, players := b.entities, b.players
	if len(entities) == 0 && len(players) == 0 {
		b.mu.Unlock()
		return Batch{}, false
	}
	b.entities = map[string]change[game.Entity]{}
	b.players = map[string]change[game.Player]{}
	b.mu.Unlock()

	batch := Batch{
		At:              b.now(),
		Entities:        []game.Entity{},
		RemovedEntities: []string{},
		Players:         []game.Player{},
		RemovedPlayers:  []string{},
	}
	for _, id := range slices.Sorted(maps.Keys(entities)) {
		if c := entities[id]; c.value != nil {
			batch.Entities = append(batch.Entities, *c.value)
		} else {
			batch.RemovedEntities = append(batch.RemovedEntities, id)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(players)) {
		if c := players[id]; c.value != nil {
			batch.Players = append(batch.Players, *c.value)
		} else {
			batch.RemovedPlayers = append(batch.RemovedPlayers, id)
		}
	}
	return batch, true
}

// Heartbeat is an empty batch stamped with the current time.
func (b *Broadcaster) Heartbeat() Batch {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	return Batch{
		Seq:             b.seq,
		At:              b.now(),
		Entities:        []game.Entity{},
		RemovedEntities: []string{},
		Players:         []game.Player{},
		RemovedPlayers:  []string{},
	}
}

// Package persist writes dirty in-memory state to durable storage in batches.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixil98/go-realm/internal/game"
)

// DefaultInterval is how often dirty state is flushed.
const DefaultInterval = time.Second

// Store is the part of durable storage the synchronizer writes to.
type Store interface {
	SaveEntities(ctx context.Context, entities []game.Entity) error
	DeleteEntities(ctx context.Context, ids []string) error
	SavePlayers(ctx context.Context, players []game.Player) error
}

// Entities is a source of dirty entities.
type Entities interface {
	DrainDirty() game.DirtyEntities
	RestoreDirty(d game.DirtyEntities)
}

// Players is a source of dirty players.
type Players interface {
	DrainDirty() []game.Player
	RestoreDirty(players []game.Player)
}

// Synchronizer flushes dirty entities and players once per tick. A failed
// write puts the drained state back so the next tick retries it.
type Synchronizer struct {
	store    Store
	entities Entities
	players  Players

	// mu keeps a shutdown flush from interleaving with a tick.
	mu sync.Mutex
}

func NewSynchronizer(store Store, entities Entities, players Players) *Synchronizer {
	return &Synchronizer{
		store:    store,
		entities: entities,
		players:  players,
	}
}

// Tick writes everything that changed since the previous tick.
func (s *Synchronizer) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entErr := s.flushEntities(ctx)
	plErr := s.flushPlayers(ctx)
	if entErr != nil {
		return entErr
	}
	return plErr
}

func (s *Synchronizer) flushEntities(ctx context.Context) error {
	d := s.entities.DrainDirty()
	if d.Empty() {
		return nil
	}

	if len(d.Save) > 0 {
		if err := s.store.SaveEntities(ctx, d.Save); err != nil {
			s.entities.RestoreDirty(d)
			return fmt.Errorf("saving %d entities: %w", len(d.Save), err)
		}
	}
	if len(d.Delete) > 0 {
		if err := s.store.DeleteEntities(ctx, d.Delete); err != nil {
			s.entities.RestoreDirty(game.DirtyEntities{Delete: d.Delete})
			return fmt.Errorf("deleting %d entities: %w", len(d.Delete), err)
		}
	}

	slog.DebugContext(ctx, "entities flushed", "saved", len(d.Save), "deleted", len(d.Delete))
	return nil
}

func (s *Synchronizer) flushPlayers(ctx context.Context) error {
	players := s.players.DrainDirty()
	if len(players) == 0 {
		return nil
	}

	if err := s.store.SavePlayers(ctx, players); err != nil {
		s.players.RestoreDirty(players)
		return fmt.Errorf("saving %d players: %w", len(players), err)
	}

	slog.DebugContext(ctx, "players flushed", "saved", len(players))
	return nil
}

// Package respawn brings dead monsters back after their respawn delay.
package respawn

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultInterval is how often the scheduler sweeps.
const DefaultInterval = 30 * time.Second

var (
	errNotDue  = errors.New("respawn not due")
	errNotDead = errors.New("entity is not a dead monster")
)

// Entities is the part of the entity store the scheduler needs.
type Entities interface {
	Update(id string, fn func(*game.Entity) error) (game.Entity, error)
}

// Scheduler tracks dead monsters and resurrects them when their delay has passed.
type Scheduler struct {
	entities Entities
	now      func() time.Time
	// pending maps a monster id to the generation it was scheduled at.
	pending *xsync.MapOf[string, uint64]
	gen     atomic.Uint64
}

// SchedulerOpt configures a Scheduler.
type SchedulerOpt func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOpt {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(entities Entities, opts ...SchedulerOpt) *Scheduler {
	s := &Scheduler{
		entities: entities,
		now:      time.Now,
		pending:  xsync.NewMapOf[string, uint64](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule marks a monster as waiting to respawn. Scheduling the same id
// twice is harmless.
func (s *Scheduler) Schedule(entityID string) {
	s.pending.Store(entityID, s.gen.Add(1))
}

// Pending returns the number of monsters waiting to respawn.
func (s *Scheduler) Pending() int {
	return s.pending.Size()
}

// Tick resurrects every scheduled monster whose delay has elapsed. The
// check and the reset run in one store update, so a monster comes back once
// no matter how many sweeps race.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()
	s.pending.Range(func(id string, gen uint64) bool {
		e, err := s.entities.Update(id, func(e *game.Entity) error {
			if e.Kind != game.KindMonster || e.Alive {
				return errNotDead
			}
			if now.Sub(e.DiedAt) < e.RespawnDelay() {
				return errNotDue
			}
			e.HP = e.MaxHP
			e.MP = e.MaxMP
			e.Position = e.Spawn
			e.DiedAt = time.Time{}
			e.Alive = true
			e.State = game.StateIdle
			return nil
		})
		switch {
		case errors.Is(err, errNotDue):
		case err != nil:
			// Gone, already alive or not a monster. Nothing to wait for.
			s.done(id, gen)
		default:
			s.done(id, gen)
			slog.DebugContext(ctx, "monster respawned", "entity", e.ID, "name", e.Name)
		}
		return true
	})
	return nil
}

// done drops id unless it was scheduled again while the sweep ran.
func (s *Scheduler) done(id string, gen uint64) {
	s.pending.Compute(id, func(cur uint64, loaded bool) (uint64, bool) {
		return cur, !loaded || cur == gen
	})
}

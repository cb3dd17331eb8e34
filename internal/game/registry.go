package game

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// PlayerStore is the part of durable storage the registry needs.
type PlayerStore interface {
	LoadPlayer(ctx context.Context, id string) (Player, bool, error)
	SavePlayers(ctx context.Context, players []Player) error
}

// PlayerRegistry holds the characters that are currently in the world.
// Membership is the authoritative "is this player live" check; the Online
// flag is its persisted reflection.
type PlayerRegistry struct {
	store    PlayerStore
	recorder ChangeRecorder
	now      func() time.Time

	players *xsync.MapOf[string, *Player]
	// accounts maps an account id to its single online character.
	accounts *xsync.MapOf[string, string]

	dirty *xsync.MapOf[string, struct{}]
	// offline holds final snapshots of players who left but could not be saved.
	offline *xsync.MapOf[string, Player]
}

// RegistryOpt configures a PlayerRegistry.
type RegistryOpt func(*PlayerRegistry)

// WithRegistryClock replaces time.Now, for tests.
func WithRegistryClock(now func() time.Time) RegistryOpt {
	return func(r *PlayerRegistry) {
		r.now = now
	}
}

// NewPlayerRegistry creates an empty registry backed by store.
func NewPlayerRegistry(store PlayerStore, rec ChangeRecorder, opts ...RegistryOpt) *PlayerRegistry {
	if rec == nil {
		rec = nopRecorder{}
	}
	r := &PlayerRegistry{
		store:    store,
		recorder: rec,
		now:      time.Now,
		players:  xsync.NewMapOf[string, *Player](),
		accounts: xsync.NewMapOf[string, string](),
		dirty:    xsync.NewMapOf[string, struct{}](),
		offline:  xsync.NewMapOf[string, Player](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join brings a character into the world. The character is loaded from
// storage unless it is already online, marked online and the flag is written
// through immediately. An account may have one character online at a time;
// joining the same character again is a no-op.
func (r *PlayerRegistry) Join(ctx context.Context, accountID, playerID string) (Player, error) {
	if p, ok := r.players.Load(playerID); ok {
		if p.AccountID != accountID {
			return Player{}, PermissionDeniedf("character %s belongs to another account", playerID)
		}
		return p.Clone(), nil
	}
	if active, ok := r.accounts.Load(accountID); ok && active != playerID {
		return Player{}, Conflictf("account already has character %s in the world", active)
	}

	p, err := r.load(ctx, playerID)
	if err != nil {
		return Player{}, err
	}
	if p.AccountID != accountID {
		return Player{}, PermissionDeniedf("character %s belongs to another account", playerID)
	}

	if active, loaded := r.accounts.LoadOrStore(accountID, playerID); loaded && active != playerID {
		return Player{}, Conflictf("account already has character %s in the world", active)
	}

	p.Online = true
	p.UpdatedAt = r.now()
	p.Version++
	if p.Inventory == nil {
		p.Inventory = []string{}
	}
	if err := r.store.SavePlayers(ctx, []Player{p}); err != nil {
		r.releaseAccount(accountID, playerID)
		return Player{}, fmt.Errorf("saving online flag for %s: %w", playerID, err)
	}

	var out Player
	r.players.Compute(playerID, func(old *Player, loaded bool) (*Player, bool) {
		if loaded {
			out = old.Clone()
			return old, false
		}
		next := p.Clone()
		r.recorder.PlayerChanged(next)
		out = next.Clone()
		return &next, false
	})
	r.offline.Delete(playerID)
	return out, nil
}

func (r *PlayerRegistry) load(ctx context.Context, playerID string) (Player, error) {
	// A snapshot left behind by a failed leave is newer than storage. It stays
	// in place until the join succeeds.
	if p, ok := r.offline.Load(playerID); ok {
		return p, nil
	}
	p, found, err := r.store.LoadPlayer(ctx, playerID)
	if err != nil {
		return Player{}, fmt.Errorf("loading player %s: %w", playerID, err)
	}
	if !found {
		return Player{}, NotFoundf("character %s not found", playerID)
	}
	return p, nil
}

// Leave takes a character out of the world and writes it back as offline.
// Leaving a character that is not online succeeds. If the write fails the
// character still leaves and its final state is retried by the next flush.
func (r *PlayerRegistry) Leave(ctx context.Context, playerID string) error {
	var (
		final Player
		found bool
	)
	r.players.Compute(playerID, func(old *Player, loaded bool) (*Player, bool) {
		if !loaded {
			return nil, true
		}
		found = true
		final = old.Clone()
		final.Online = false
		final.State = StateIdle
		final.UpdatedAt = r.now()
		final.Version++
		r.dirty.Delete(playerID)
		r.recorder.PlayerRemoved(playerID)
		return nil, true
	})
	if !found {
		return nil
	}
	r.releaseAccount(final.AccountID, playerID)

	if err := r.store.SavePlayers(ctx, []Player{final}); err != nil {
		r.offline.Store(playerID, final)
		r.dirty.Store(playerID, struct{}{})
		return fmt.Errorf("saving offline flag for %s: %w", playerID, err)
	}
	return nil
}

func (r *PlayerRegistry) releaseAccount(accountID, playerID string) {
	r.accounts.Compute(accountID, func(old string, loaded bool) (string, bool) {
		return old, !loaded || old == playerID
	})
}

// Get returns the online player with the given id.
func (r *PlayerRegistry) Get(playerID string) (Player, bool) {
	p, ok := r.players.Load(playerID)
	if !ok {
		return Player{}, false
	}
	return p.Clone(), true
}

// ActiveFor returns the character the account has online.
func (r *PlayerRegistry) ActiveFor(accountID string) (Player, bool) {
	id, ok := r.accounts.Load(accountID)
	if !ok {
		return Player{}, false
	}
	return r.Get(id)
}

// ListOnline returns every online player ordered by name.
func (r *PlayerRegistry) ListOnline() []Player {
	out := make([]Player, 0, r.players.Size())
	r.players.Range(func(_ string, p *Player) bool {
		out = append(out, p.Clone())
		return true
	})
	slices.SortFunc(out, func(a, b Player) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Count returns the number of online players.
func (r *PlayerRegistry) Count() int {
	return r.players.Size()
}

// Update atomically applies fn to a copy of the online player and stores it.
// The durable write is deferred to the persistence flush.
func (r *PlayerRegistry) Update(playerID string, fn func(*Player) error) (Player, error) {
	var (
		out   Player
		err   error
		found bool
	)
	r.players.Compute(playerID, func(old *Player, loaded bool) (*Player, bool) {
		if !loaded {
			return nil, true
		}
		found = true

		next := old.Clone()
		if err = fn(&next); err != nil {
			return old, false
		}
		next.ID = old.ID
		next.AccountID = old.AccountID
		next.Online = true
		next.UpdatedAt = r.now()
		next.Version = old.Version + 1

		r.dirty.Store(playerID, struct{}{})
		r.recorder.PlayerChanged(next)
		out = next.Clone()
		return &next, false
	})
	if !found {
		return Player{}, NotFoundf("character %s is not in the world", playerID)
	}
	if err != nil {
		return Player{}, err
	}
	return out, nil
}

// UpdatePosition sets the cached position, facing and movement state.
func (r *PlayerRegistry) UpdatePosition(playerID string, pos Position, facing Facing, state MovementState) (Player, error) {
	return r.Update(playerID, func(p *Player) error {
		p.Position = pos
		p.Facing = facing
		p.State = state
		return nil
	})
}

// UpdateVitals sets the cached HP and MP, clamped to [0, max].
func (r *PlayerRegistry) UpdateVitals(playerID string, hp, mp int) (Player, error) {
	return r.Update(playerID, func(p *Player) error {
		p.HP = min(max(hp, 0), p.MaxHP)
		p.MP = min(max(mp, 0), p.MaxMP)
		return nil
	})
}

// DrainDirty returns and clears the players changed since the last drain.
func (r *PlayerRegistry) DrainDirty() []Player {
	var out []Player
	r.dirty.Range(func(id string, _ struct{}) bool {
		r.dirty.Delete(id)
		if p, ok := r.players.Load(id); ok {
			out = append(out, p.Clone())
			return true
		}
		if p, ok := r.offline.LoadAndDelete(id); ok {
			out = append(out, p)
		}
		return true
	})
	return out
}

// RestoreDirty marks drained players dirty again after a failed write.
func (r *PlayerRegistry) RestoreDirty(players []Player) {
	for _, p := range players {
		if _, online := r.players.Load(p.ID); !online {
			r.offline.LoadOrStore(p.ID, p)
		}
		r.dirty.Store(p.ID, struct{}{})
	}
}

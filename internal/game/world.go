package game

import (
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// EntityStore is the in-memory source of truth for world entities.
//
// It is a sharded concurrent map of immutable snapshots: readers load a
// pointer and copy it, writers build a new snapshot and swap it in under the
// per-key lock of the map. No operation blocks on I/O and there is no
// store-wide lock.
type EntityStore struct {
	entities *xsync.MapOf[string, *Entity]
	recorder ChangeRecorder

	// dirty holds ids written since the last persistence drain.
	dirty *xsync.MapOf[string, struct{}]
	// removed holds the last snapshot of entities removed since the last drain.
	removed *xsync.MapOf[string, Entity]
}

// NewEntityStore creates an empty store. A nil recorder discards change records.
func NewEntityStore(rec ChangeRecorder) *EntityStore {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &EntityStore{
		entities: xsync.NewMapOf[string, *Entity](),
		recorder: rec,
		dirty:    xsync.NewMapOf[string, struct{}](),
		removed:  xsync.NewMapOf[string, Entity](),
	}
}

// Load inserts entities read from storage. It records no changes and marks
// nothing dirty.
func (s *EntityStore) Load(entities []Entity) {
	for _, e := range entities {
		c := e.Clone()
		s.entities.Store(c.ID, &c)
	}
}

// Get returns a copy of the entity with the given id.
func (s *EntityStore) Get(id string) (Entity, error) {
	e, ok := s.entities.Load(id)
	if !ok {
		return Entity{}, NotFoundf("entity %s not found", id)
	}
	return e.Clone(), nil
}

// List returns every visible entity ordered by id. Dead monsters are left out.
func (s *EntityStore) List() []Entity {
	return s.collect(Entity.Visible)
}

// All returns every entity including dead monsters, ordered by id.
func (s *EntityStore) All() []Entity {
	return s.collect(func(Entity) bool { return true })
}

func (s *EntityStore) collect(keep func(Entity) bool) []Entity {
	out := make([]Entity, 0, s.entities.Size())
	s.entities.Range(func(_ string, e *Entity) bool {
		if keep(*e) {
			out = append(out, e.Clone())
		}
		return true
	})
	slices.SortFunc(out, func(a, b Entity) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of entities in the store.
func (s *EntityStore) Len() int {
	return s.entities.Size()
}

// Put inserts or fully replaces an entity.
func (s *EntityStore) Put(e Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.entities.Compute(e.ID, func(old *Entity, loaded bool) (*Entity, bool) {
		next := e.Clone()
		if loaded {
			next.Version = old.Version + 1
		} else {
			next.Version = max(next.Version, 1)
		}
		s.removed.Delete(next.ID)
		s.touch(next.ID)
		s.recorder.EntityChanged(next)
		return &next, false
	})
	return nil
}

// Update atomically applies fn to a copy of the entity and stores the result.
// If fn returns an error nothing is written and the error is returned. fn runs
// under the entity's lock: concurrent updates of one id are serialized, so
// each sees the result of the previous one.
func (s *EntityStore) Update(id string, fn func(*Entity) error) (Entity, error) {
	var (
		out   Entity
		err   error
		found bool
	)
	s.entities.Compute(id, func(old *Entity, loaded bool) (*Entity, bool) {
		if !loaded {
			return nil, true
		}
		found = true

		next := old.Clone()
		if err = fn(&next); err != nil {
			return old, false
		}
		next.ID = old.ID
		next.Version = old.Version + 1

		s.touch(id)
		s.recorder.EntityChanged(next)
		out = next.Clone()
		return &next, false
	})
	if !found {
		return Entity{}, NotFoundf("entity %s not found", id)
	}
	if err != nil {
		return Entity{}, err
	}
	return out, nil
}

// Take atomically applies fn to a copy of the entity and, if fn succeeds,
// removes the entity from the world. The modified copy is what gets persisted.
// Exactly one of several concurrent Takes of the same id can succeed.
func (s *EntityStore) Take(id string, fn func(*Entity) error) (Entity, error) {
	var (
		out   Entity
		err   error
		found bool
	)
	s.entities.Compute(id, func(old *Entity, loaded bool) (*Entity, bool) {
		if !loaded {
			return nil, true
		}
		found = true

		next := old.Clone()
		if err = fn(&next); err != nil {
			return old, false
		}
		next.ID = old.ID
		next.Version = old.Version + 1

		s.removed.Store(id, next)
		s.touch(id)
		s.recorder.EntityRemoved(id)
		out = next.Clone()
		return nil, true
	})
	if !found {
		return Entity{}, NotFoundf("entity %s not found", id)
	}
	if err != nil {
		return Entity{}, err
	}
	return out, nil
}

// Remove deletes the entity. It reports whether the entity existed.
func (s *EntityStore) Remove(id string) bool {
	_, err := s.Take(id, func(*Entity) error { return nil })
	return err == nil
}

func (s *EntityStore) touch(id string) {
	s.dirty.Store(id, struct{}{})
}

// DirtyEntities is the set of changes waiting to be written to storage.
type DirtyEntities struct {
	// Save holds entities to upsert, including removed items that now have an owner.
	Save []Entity
	// Delete holds ids of entities removed from the world without an owner.
	Delete []string
}

// Empty reports whether there is nothing to write.
func (d DirtyEntities) Empty() bool {
	return len(d.Save) == 0 && len(d.Delete) == 0
}

// DrainDirty returns and clears the pending changes.
func (s *EntityStore) DrainDirty() DirtyEntities {
	var d DirtyEntities
	s.dirty.Range(func(id string, _ struct{}) bool {
		s.dirty.Delete(id)
		if e, ok := s.entities.Load(id); ok {
			d.Save = append(d.Save, e.Clone())
			return true
		}
		if e, ok := s.removed.LoadAndDelete(id); ok {
			if e.OwnerID != "" {
				d.Save = append(d.Save, e)
			} else {
				d.Delete = append(d.Delete, id)
			}
		}
		return true
	})
	return d
}

// RestoreDirty puts a drained change set back so the next drain retries it.
func (s *EntityStore) RestoreDirty(d DirtyEntities) {
	for _, e := range d.Save {
		if _, live := s.entities.Load(e.ID); !live {
			s.removed.LoadOrStore(e.ID, e)
		}
		s.touch(e.ID)
	}
	for _, id := range d.Delete {
		if _, live := s.entities.Load(id); !live {
			s.removed.LoadOrStore(id, Entity{ID: id})
		}
		s.touch(id)
	}
}

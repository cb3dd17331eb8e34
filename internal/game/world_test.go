package game

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pixil98/go-testutil"
)

type recorder struct {
	mu      sync.Mutex
	changed []string
	removed []string
}

func (r *recorder) EntityChanged(e Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, e.ID)
}

func (r *recorder) EntityRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recorder) PlayerChanged(p Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, p.ID)
}

func (r *recorder) PlayerRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func monster(id string, hp int) Entity {
	return Entity{ID: id, Kind: KindMonster, Name: id, HP: hp, MaxHP: hp, Alive: true, State: StateIdle}
}

func TestEntityStore_LoadAndList(t *testing.T) {
	rec := &recorder{}
	s := NewEntityStore(rec)

	dead := monster("m2", 10)
	dead.HP = 0
	dead.Alive = false
	owned := Entity{ID: "i1", Kind: KindItem, OwnerID: "p1"}
	s.Load([]Entity{monster("m3", 10), dead, monster("m1", 10), {ID: "n1", Kind: KindNPC}, owned})

	var ids []string
	for _, e := range s.List() {
		ids = append(ids, e.ID)
	}
	testutil.AssertEqual(t, "visible ids", strings.Join(ids, ","), "m1,m3,n1")
	testutil.AssertEqual(t, "all", len(s.All()), 5)
	testutil.AssertEqual(t, "len", s.Len(), 5)
	testutil.AssertEqual(t, "load records nothing", len(rec.changed), 0)
	testutil.AssertEqual(t, "load dirties nothing", s.DrainDirty().Empty(), true)
}

func TestEntityStore_GetReturnsCopy(t *testing.T) {
	s := NewEntityStore(nil)
	e := monster("m1", 10)
	e.Properties = map[string]string{"dialog": "hi"}
	s.Load([]Entity{e})

	got, err := s.Get("m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.HP = 1
	got.Properties["dialog"] = "changed"

	again, _ := s.Get("m1")
	testutil.AssertEqual(t, "hp", again.HP, 10)
	testutil.AssertEqual(t, "dialog", again.Property("dialog", ""), "hi")

	_, err = s.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestEntityStore_Update(t *testing.T) {
	tests := map[string]struct {
		id      string
		fn      func(*Entity) error
		expHP   int
		expCode Code
	}{
		"applies change": {
			id:    "m1",
			fn:    func(e *Entity) error { e.HP = 4; return nil },
			expHP: 4,
		},
		"id cannot change": {
			id:    "m1",
			fn:    func(e *Entity) error { e.ID = "other"; e.HP = 3; return nil },
			expHP: 3,
		},
		"error leaves entity alone": {
			id:      "m1",
			fn:      func(e *Entity) error { e.HP = 0; return InvalidArgumentf("nope") },
			expHP:   10,
			expCode: CodeInvalidArgument,
		},
		"missing entity": {
			id:      "m9",
			fn:      func(*Entity) error { return nil },
			expHP:   10,
			expCode: CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			s := NewEntityStore(rec)
			s.Load([]Entity{monster("m1", 10)})

			out, err := s.Update(tt.id, tt.fn)
			if tt.expCode != "" {
				testutil.AssertEqual(t, "code", CodeOf(err), tt.expCode)
				testutil.AssertEqual(t, "recorded", len(rec.changed), 0)
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				testutil.AssertEqual(t, "returned id", out.ID, "m1")
				testutil.AssertEqual(t, "version", out.Version, uint64(1))
				testutil.AssertEqual(t, "recorded", strings.Join(rec.changed, ","), "m1")
			}

			got, _ := s.Get("m1")
			testutil.AssertEqual(t, "hp", got.HP, tt.expHP)
		})
	}
}

func TestEntityStore_ConcurrentUpdatesSerialize(t *testing.T) {
	s := NewEntityStore(nil)
	s.Load([]Entity{monster("m1", 1000)})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update("m1", func(e *Entity) error {
				e.HP -= 3
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get("m1")
	testutil.AssertEqual(t, "hp", got.HP, 700)
	testutil.AssertEqual(t, "version", got.Version, uint64(100))
}

func TestEntityStore_Put(t *testing.T) {
	s := NewEntityStore(nil)

	if err := s.Put(Entity{ID: "x", Kind: "dragon"}); err == nil {
		t.Fatal("expected invalid kind error")
	}
	if err := s.Put(monster("m1", 10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.Get("m1")
	testutil.AssertEqual(t, "first version", got.Version, uint64(1))

	if err := s.Put(monster("m1", 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.Get("m1")
	testutil.AssertEqual(t, "replaced hp", got.HP, 20)
	testutil.AssertEqual(t, "second version", got.Version, uint64(2))
}

func TestEntityStore_TakeOnce(t *testing.T) {
	rec := &recorder{}
	s := NewEntityStore(rec)
	s.Load([]Entity{{ID: "i1", Kind: KindItem, Alive: true}})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take("i1", func(e *Entity) error { e.OwnerID = "p1"; return nil }); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, "wins", wins, 1)
	testutil.AssertEqual(t, "removed", strings.Join(rec.removed, ","), "i1")
	testutil.AssertEqual(t, "len", s.Len(), 0)

	d := s.DrainDirty()
	testutil.AssertEqual(t, "owned item saved", len(d.Save), 1)
	testutil.AssertEqual(t, "owner", d.Save[0].OwnerID, "p1")
	testutil.AssertEqual(t, "nothing deleted", len(d.Delete), 0)
}

func TestEntityStore_Remove(t *testing.T) {
	s := NewEntityStore(nil)
	s.Load([]Entity{{ID: "n1", Kind: KindNPC}})

	testutil.AssertEqual(t, "first remove", s.Remove("n1"), true)
	testutil.AssertEqual(t, "second remove", s.Remove("n1"), false)

	d := s.DrainDirty()
	testutil.AssertEqual(t, "deleted", strings.Join(d.Delete, ","), "n1")
	testutil.AssertEqual(t, "drained", s.DrainDirty().Empty(), true)
}

func TestEntityStore_RestoreDirty(t *testing.T) {
	s := NewEntityStore(nil)
	s.Load([]Entity{monster("m1", 10), {ID: "n1", Kind: KindNPC}})

	_, _ = s.Update("m1", func(e *Entity) error { e.HP = 5; return nil })
	s.Remove("n1")

	d := s.DrainDirty()
	testutil.AssertEqual(t, "save", len(d.Save), 1)
	testutil.AssertEqual(t, "delete", len(d.Delete), 1)

	s.RestoreDirty(d)
	again := s.DrainDirty()
	testutil.AssertEqual(t, "save retried", len(again.Save), 1)
	testutil.AssertEqual(t, "saved hp", again.Save[0].HP, 5)
	testutil.AssertEqual(t, "delete retried", strings.Join(again.Delete, ","), "n1")
}

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/storage"
	"github.com/pixil98/go-testutil"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "realm.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenTwiceAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realm.db")
	first, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = first.Close()

	second, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = second.Close() }()

	var n int
	if err := second.sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	testutil.AssertEqual(t, "migrations", n, 1)
}

func TestEntitiesRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	died := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	in := []game.Entity{
		{
			ID: "m1", Kind: game.KindMonster, Name: "goblin",
			Position: game.Position{X: 12.5, Y: 40}, Spawn: game.Position{X: 10, Y: 40},
			HP: 0, MaxHP: 50, MP: 1, MaxMP: 5, Attack: 6, Defense: 3, Speed: 80,
			State: game.StateIdle, Facing: game.FacingLeft,
			Alive: false, DiedAt: died, RespawnSeconds: 30, Version: 7,
		},
		{
			ID: "n1", Kind: game.KindNPC, Name: "elder", State: game.StateIdle,
			Properties: map[string]string{"dialog": "Welcome."}, Alive: true,
		},
		{ID: "i1", Kind: game.KindItem, Name: "sword", ItemDefID: "def-1", OwnerID: "p1", Alive: true},
	}
	if err := store.SaveEntities(ctx, in); err != nil {
		t.Fatalf("save entities: %v", err)
	}

	got, err := store.LoadAllEntities(ctx)
	if err != nil {
		t.Fatalf("load entities: %v", err)
	}
	testutil.AssertEqual(t, "count without owned items", len(got), 2)

	m := got[0]
	testutil.AssertEqual(t, "id", m.ID, "m1")
	testutil.AssertEqual(t, "position", m.Position, game.Position{X: 12.5, Y: 40})
	testutil.AssertEqual(t, "alive", m.Alive, false)
	testutil.AssertEqual(t, "died at", m.DiedAt.Equal(died), true)
	testutil.AssertEqual(t, "facing", m.Facing, game.FacingLeft)
	testutil.AssertEqual(t, "version", m.Version, uint64(7))
	testutil.AssertEqual(t, "dialog", got[1].Property("dialog", ""), "Welcome.")
	testutil.AssertEqual(t, "npc died at", got[1].DiedAt.IsZero(), true)

	in[0].HP = 50
	in[0].Alive = true
	in[0].DiedAt = time.Time{}
	if err := store.SaveEntities(ctx, in[:1]); err != nil {
		t.Fatalf("update entity: %v", err)
	}
	if err := store.DeleteEntities(ctx, []string{"n1", "missing"}); err != nil {
		t.Fatalf("delete entities: %v", err)
	}

	got, _ = store.LoadAllEntities(ctx)
	testutil.AssertEqual(t, "count after delete", len(got), 1)
	testutil.AssertEqual(t, "hp after update", got[0].HP, 50)
	testutil.AssertEqual(t, "alive after update", got[0].Alive, true)
}

func TestPlayers(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	aria := game.NewPlayer("p1", "acct-1", "Aria", game.VocationKnight, game.Position{X: 500, Y: 500})
	bran := game.NewPlayer("p2", "acct-1", "Bran", game.VocationMage, game.Position{X: 500, Y: 500})
	cora := game.NewPlayer("p3", "acct-2", "Cora", game.VocationAssassin, game.Position{X: 500, Y: 500})
	for _, p := range []game.Player{aria, bran, cora} {
		if err := store.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
	}

	dup := game.NewPlayer("p4", "acct-3", "aria", game.VocationPaladin, game.Position{})
	err := store.CreatePlayer(ctx, dup)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate name error = %v, want ErrAlreadyExists", err)
	}

	list, err := store.ListPlayersByAccount(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	testutil.AssertEqual(t, "account players", len(list), 2)
	testutil.AssertEqual(t, "first", list[0].Name, "Aria")

	aria.Online = true
	aria.Inventory = []string{"i2", "i1"}
	aria.Position = game.Position{X: 510, Y: 490}
	aria.Experience = 150
	aria.Level = 2
	aria.Version = 1
	cora.Online = true
	cora.Version = 1
	if err := store.SavePlayers(ctx, []game.Player{aria, cora}); err != nil {
		t.Fatalf("save players: %v", err)
	}

	got, found, err := store.LoadPlayer(ctx, "p1")
	if err != nil || !found {
		t.Fatalf("load player: found=%v err=%v", found, err)
	}
	testutil.AssertEqual(t, "online", got.Online, true)
	testutil.AssertEqual(t, "level", got.Level, 2)
	testutil.AssertEqual(t, "position", got.Position, game.Position{X: 510, Y: 490})
	testutil.AssertEqual(t, "inventory size", len(got.Inventory), 2)
	testutil.AssertEqual(t, "inventory order", got.Inventory[0], "i2")
	testutil.AssertEqual(t, "vocation", got.Vocation, game.VocationKnight)

	aria.Inventory = []string{"i1"}
	aria.Version = 2
	if err := store.SavePlayers(ctx, []game.Player{aria}); err != nil {
		t.Fatalf("save players: %v", err)
	}
	got, _, _ = store.LoadPlayer(ctx, "p1")
	testutil.AssertEqual(t, "inventory replaced", len(got.Inventory), 1)

	online, err := store.QueryOnlinePlayers(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("query online: %v", err)
	}
	testutil.AssertEqual(t, "online others", len(online), 1)
	testutil.AssertEqual(t, "online other", online[0].ID, "p3")

	n, err := store.ResetOnline(ctx)
	if err != nil {
		t.Fatalf("reset online: %v", err)
	}
	testutil.AssertEqual(t, "reset", n, 2)
	online, _ = store.QueryOnlinePlayers(ctx, "", 10)
	testutil.AssertEqual(t, "online after reset", len(online), 0)

	_, found, err = store.LoadPlayer(ctx, "nobody")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	testutil.AssertEqual(t, "missing found", found, false)
}

func TestSavePlayersKeepsNewerVersion(t *testing.T) {
	tests := map[string]struct {
		storedVersion uint64
		savedVersion  uint64
		expOnline     bool
		expInventory  int
		expWho        int
	}{
		"newer snapshot wins":     {storedVersion: 2, savedVersion: 3, expOnline: true, expInventory: 1, expWho: 1},
		"stale snapshot kept out": {storedVersion: 3, savedVersion: 2, expOnline: false, expInventory: 0},
		"same version ignored":    {storedVersion: 3, savedVersion: 3, expOnline: false, expInventory: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := openTempStore(t)
			ctx := context.Background()

			p := game.NewPlayer("p1", "acct-1", "Aria", game.VocationKnight, game.Position{X: 500, Y: 500})
			if err := store.CreatePlayer(ctx, p); err != nil {
				t.Fatalf("create player: %v", err)
			}
			left := p
			left.Version = tt.storedVersion
			if err := store.SavePlayers(ctx, []game.Player{left}); err != nil {
				t.Fatalf("save offline: %v", err)
			}

			flushed := p
			flushed.Online = true
			flushed.Position = game.Position{X: 700, Y: 700}
			flushed.Inventory = []string{"i1"}
			flushed.Version = tt.savedVersion
			if err := store.SavePlayers(ctx, []game.Player{flushed}); err != nil {
				t.Fatalf("save flushed: %v", err)
			}

			got, _, err := store.LoadPlayer(ctx, "p1")
			if err != nil {
				t.Fatalf("load player: %v", err)
			}
			testutil.AssertEqual(t, "online", got.Online, tt.expOnline)
			testutil.AssertEqual(t, "inventory", len(got.Inventory), tt.expInventory)
			testutil.AssertEqual(t, "version", got.Version, max(tt.storedVersion, tt.savedVersion))

			online, _ := store.QueryOnlinePlayers(ctx, "", 10)
			testutil.AssertEqual(t, "who-list", len(online), tt.expWho)
		})
	}
}

func TestItemDefinitions(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	defs := []game.ItemDefinition{
		{ID: "b", Name: "Shield"},
		{ID: "a", Name: "Sword", Description: "Sharp", Sprite: "sword.png"},
	}
	if err := store.SaveItemDefinitions(ctx, defs); err != nil {
		t.Fatalf("save defs: %v", err)
	}
	defs[1].Name = "Long Sword"
	if err := store.SaveItemDefinitions(ctx, defs[1:]); err != nil {
		t.Fatalf("update defs: %v", err)
	}

	got, err := store.LoadItemDefinitions(ctx)
	if err != nil {
		t.Fatalf("load defs: %v", err)
	}
	testutil.AssertEqual(t, "count", len(got), 2)
	testutil.AssertEqual(t, "first", got[0], game.ItemDefinition{ID: "a", Name: "Long Sword", Description: "Sharp", Sprite: "sword.png"})
}

func TestCanceledContext(t *testing.T) {
	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.SaveEntities(ctx, []game.Entity{{ID: "m1", Kind: game.KindNPC}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

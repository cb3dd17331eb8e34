// Package sqlite provides the SQLite-backed world storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-realm/internal/storage"
	"github.com/pixil98/go-realm/internal/storage/sqlite/migrations"
)

// Store persists world state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open opens a SQLite world store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

const entityColumns = `id, kind, name, x, y, spawn_x, spawn_y, hp, max_hp, mp, max_mp,
	attack, defense, speed, movement_state, facing, properties, alive, died_at,
	respawn_seconds, item_def_id, owner_id, version`

func scanEntity(row scanner) (game.Entity, error) {
	var (
		e      game.Entity
		props  string
		alive  int
		diedAt int64
	)
	err := row.Scan(
		&e.ID, &e.Kind, &e.Name, &e.Position.X, &e.Position.Y, &e.Spawn.X, &e.Spawn.Y,
		&e.HP, &e.MaxHP, &e.MP, &e.MaxMP, &e.Attack, &e.Defense, &e.Speed,
		&e.State, &e.Facing, &props, &alive, &diedAt,
		&e.RespawnSeconds, &e.ItemDefID, &e.OwnerID, &e.Version,
	)
	if err != nil {
		return game.Entity{}, err
	}
	if props != "" && props != "{}" {
		if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
			return game.Entity{}, fmt.Errorf("decode properties of %s: %w", e.ID, err)
		}
	}
	e.Alive = alive != 0
	e.DiedAt = fromMillis(diedAt)
	return e, nil
}

// LoadAllEntities returns every entity that is still part of the world.
// Items picked up by a player are left out.
func (s *Store) LoadAllEntities(ctx context.Context) ([]game.Entity, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE owner_id = '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []game.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// SaveEntities upserts the batch in one transaction.
func (s *Store) SaveEntities(ctx context.Context, entities []game.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO entities (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  kind = excluded.kind,
			  name = excluded.name,
			  x = excluded.x,
			  y = excluded.y,
			  spawn_x = excluded.spawn_x,
			  spawn_y = excluded.spawn_y,
			  hp = excluded.hp,
			  max_hp = excluded.max_hp,
			  mp = excluded.mp,
			  max_mp = excluded.max_mp,
			  attack = excluded.attack,
			  defense = excluded.defense,
			  speed = excluded.speed,
			  movement_state = excluded.movement_state,
			  facing = excluded.facing,
			  properties = excluded.properties,
			  alive = excluded.alive,
			  died_at = excluded.died_at,
			  respawn_seconds = excluded.respawn_seconds,
			  item_def_id = excluded.item_def_id,
			  owner_id = excluded.owner_id,
			  version = excluded.version`)
		if err != nil {
			return fmt.Errorf("prepare entity upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entities {
			props := "{}"
			if len(e.Properties) > 0 {
				b, err := json.Marshal(e.Properties)
				if err != nil {
					return fmt.Errorf("encode properties of %s: %w", e.ID, err)
				}
				props = string(b)
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID, string(e.Kind), e.Name, e.Position.X, e.Position.Y, e.Spawn.X, e.Spawn.Y,
				e.HP, e.MaxHP, e.MP, e.MaxMP, e.Attack, e.Defense, e.Speed,
				string(e.State), int(e.Facing), props, boolInt(e.Alive), toMillis(e.DiedAt),
				e.RespawnSeconds, e.ItemDefID, e.OwnerID, e.Version,
			); err != nil {
				return fmt.Errorf("upsert entity %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// DeleteEntities removes the given ids. Missing ids are ignored.
func (s *Store) DeleteEntities(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete entity %s: %w", id, err)
			}
		}
		return nil
	})
}

const playerColumns = `id, account_id, name, vocation, level, experience, x, y,
	spawn_x, spawn_y, facing, movement_state, hp, max_hp, mp, max_mp,
	attack, defense, speed, online, updated_at, version`

func scanPlayer(row scanner) (game.Player, error) {
	var (
		p         game.Player
		online    int
		updatedAt int64
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &p.Name, &p.Vocation, &p.Level, &p.Experience,
		&p.Position.X, &p.Position.Y, &p.Spawn.X, &p.Spawn.Y, &p.Facing, &p.State,
		&p.HP, &p.MaxHP, &p.MP, &p.MaxMP, &p.Attack, &p.Defense, &p.Speed,
		&online, &updatedAt, &p.Version,
	)
	if err != nil {
		return game.Player{}, err
	}
	p.Online = online != 0
	p.UpdatedAt = fromMillis(updatedAt)
	p.Inventory = []string{}
	return p, nil
}

func (s *Store) queryPlayers(ctx context.Context, query string, args ...any) ([]game.Player, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []game.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}
	return out, nil
}

func (s *Store) loadInventory(ctx context.Context, p *game.Player) error {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT item_id FROM player_inventory WHERE player_id = ? ORDER BY slot`, p.ID)
	if err != nil {
		return fmt.Errorf("query inventory of %s: %w", p.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan inventory of %s: %w", p.ID, err)
		}
		p.Inventory = append(p.Inventory, id)
	}
	return rows.Err()
}

// LoadPlayer returns one player with its inventory.
func (s *Store) LoadPlayer(ctx context.Context, id string) (game.Player, bool, error) {
	p, err := scanPlayer(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return game.Player{}, false, nil
	}
	if err != nil {
		return game.Player{}, false, fmt.Errorf("load player %s: %w", id, err)
	}
	if err := s.loadInventory(ctx, &p); err != nil {
		return game.Player{}, false, err
	}
	return p, true, nil
}

// ListPlayersByAccount returns the account's characters ordered by name.
func (s *Store) ListPlayersByAccount(ctx context.Context, accountID string) ([]game.Player, error) {
	players, err := s.queryPlayers(ctx,
		`SELECT `+playerColumns+` FROM players WHERE account_id = ? ORDER BY name`, accountID)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if err := s.loadInventory(ctx, &players[i]); err != nil {
			return nil, err
		}
	}
	return players, nil
}

// QueryOnlinePlayers returns players flagged online ordered by name, without inventories.
func (s *Store) QueryOnlinePlayers(ctx context.Context, excludeID string, limit int) ([]game.Player, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryPlayers(ctx,
		`SELECT `+playerColumns+` FROM players WHERE online = 1 AND id <> ? ORDER BY name LIMIT ?`,
		excludeID, limit)
}

// CreatePlayer inserts a new character. A taken name, compared without case,
// returns storage.ErrAlreadyExists.
func (s *Store) CreatePlayer(ctx context.Context, p game.Player) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("player id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO players (`+playerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			playerArgs(p)...)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("create player: %w", err)
		}
		return writeInventory(ctx, tx, p)
	})
}

// SavePlayers upserts the batch, replacing each player's inventory. A row is
// only overwritten by a snapshot with a higher version, so a flush that
// raced a leave cannot write back a stale online flag.
func (s *Store) SavePlayers(ctx context.Context, players []game.Player) error {
	if len(players) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range players {
			res, err := tx.ExecContext(ctx, `INSERT INTO players (`+playerColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
				  level = excluded.level,
				  experience = excluded.experience,
				  x = excluded.x,
				  y = excluded.y,
				  facing = excluded.facing,
				  movement_state = excluded.movement_state,
				  hp = excluded.hp,
				  max_hp = excluded.max_hp,
				  mp = excluded.mp,
				  max_mp = excluded.max_mp,
				  attack = excluded.attack,
				  defense = excluded.defense,
				  speed = excluded.speed,
				  online = excluded.online,
				  updated_at = excluded.updated_at,
				  version = excluded.version
				WHERE excluded.version > players.version`,
				playerArgs(p)...)
			if err != nil {
				return fmt.Errorf("upsert player %s: %w", p.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("upsert player %s: %w", p.ID, err)
			}
			if n == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM player_inventory WHERE player_id = ?`, p.ID); err != nil {
				return fmt.Errorf("clear inventory of %s: %w", p.ID, err)
			}
			if err := writeInventory(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetOnline clears the online flag of every player. It runs at boot, when no
// player can be in the world yet.
func (s *Store) ResetOnline(ctx context.Context) (int, error) {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE players SET online = 0 WHERE online = 1`)
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset online flags: %w", err)
	}
	return int(n), nil
}

func playerArgs(p game.Player) []any {
	return []any{
		p.ID, p.AccountID, p.Name, string(p.Vocation), p.Level, p.Experience,
		p.Position.X, p.Position.Y, p.Spawn.X, p.Spawn.Y, int(p.Facing), string(p.State),
		p.HP, p.MaxHP, p.MP, p.MaxMP, p.Attack, p.Defense, p.Speed,
		boolInt(p.Online), toMillis(p.UpdatedAt), p.Version,
	}
}

func writeInventory(ctx context.Context, tx *sql.Tx, p game.Player) error {
	for slot, itemID := range p.Inventory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_inventory (player_id, slot, item_id) VALUES (?, ?, ?)`,
			p.ID, slot, itemID,
		); err != nil {
			return fmt.Errorf("write inventory of %s: %w", p.ID, err)
		}
	}
	return nil
}

// LoadItemDefinitions returns every item definition ordered by id.
func (s *Store) LoadItemDefinitions(ctx context.Context) ([]game.ItemDefinition, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, description, sprite FROM item_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query item definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []game.ItemDefinition
	for rows.Next() {
		var d game.ItemDefinition
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Sprite); err != nil {
			return nil, fmt.Errorf("scan item definition: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item definitions: %w", err)
	}
	return out, nil
}

// SaveItemDefinitions upserts the definitions in one transaction.
func (s *Store) SaveItemDefinitions(ctx context.Context, defs []game.ItemDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, d := range defs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO item_definitions (id, name, description, sprite) VALUES (?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET
				   name = excluded.name,
				   description = excluded.description,
				   sprite = excluded.sprite`,
				d.ID, d.Name, d.Description, d.Sprite,
			); err != nil {
				return fmt.Errorf("upsert item definition %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Package storage defines the durable storage contract for world state and
// loads world seed assets from disk.
package storage

import (
	"context"
	"errors"

	"github.com/pixil98/go-realm/internal/game"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Store persists entities, players and item definitions.
type Store interface {
	LoadAllEntities(ctx context.Context) ([]game.Entity, error)
	SaveEntities(ctx context.Context, entities []game.Entity) error
	DeleteEntities(ctx context.Context, ids []string) error

	// LoadPlayer reports false when no player has the id.
	LoadPlayer(ctx context.Context, id string) (game.Player, bool, error)
	// SavePlayers skips any player whose stored version is not lower than the
	// snapshot's, so a late write never replaces a newer record.
	SavePlayers(ctx context.Context, players []game.Player) error
	// CreatePlayer returns ErrAlreadyExists when the name is taken.
	CreatePlayer(ctx context.Context, p game.Player) error
	ListPlayersByAccount(ctx context.Context, accountID string) ([]game.Player, error)
	// QueryOnlinePlayers returns up to limit players flagged online, skipping excludeID.
	QueryOnlinePlayers(ctx context.Context, excludeID string, limit int) ([]game.Player, error)
	// ResetOnline clears stale online flags left by an unclean shutdown.
	ResetOnline(ctx context.Context) (int, error)

	LoadItemDefinitions(ctx context.Context) ([]game.ItemDefinition, error)
	SaveItemDefinitions(ctx context.Context, defs []game.ItemDefinition) error

	Close() error
}

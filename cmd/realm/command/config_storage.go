package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-realm/internal/storage/sqlite"
)

type StorageConfig struct {
	// Path is the SQLite database file. Its directory is created if missing.
	Path string `json:"path" env:"PATH"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("storage path is required"))
	}

	return el.Err()
}

func (c *StorageConfig) open(ctx context.Context) (*sqlite.Store, error) {
	if dir := filepath.Dir(c.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(ctx, c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	return store, nil
}

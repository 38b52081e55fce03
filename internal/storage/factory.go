package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quakeview/server/internal/config"
	"github.com/quakeview/server/internal/database"
	gormstorage "github.com/quakeview/server/internal/storage/gorm"
	"github.com/quakeview/server/internal/storage/memory"
)

// NewBackend creates a storage backend based on configuration. The
// backend still needs Init.
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres", "sqlite":
		return gormstorage.New(database.NewManager(log), cfg), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

package kv

import (
	"fmt"

	"github.com/andrewblevins/space-sub000/internal/config"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite store requires path to be set")
		}
		return OpenSQLite(cfg.Path, cfg.MaxValueBytes)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

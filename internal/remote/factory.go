package remote

import (
	"fmt"

	"github.com/andrewblevins/space-sub000/internal/config"
	"github.com/andrewblevins/space-sub000/internal/space"
)

// NewRepositoryFromConfig creates a RemoteRepository implementation based on
// the remote config type.
func NewRepositoryFromConfig(cfg config.RemoteConfig, tokens space.TokenSource, logger space.Logger, clock space.Clock) (space.RemoteRepository, error) {
	switch cfg.Type {
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http remote requires base_url to be set")
		}
		return NewClient(cfg.BaseURL, tokens, logger), nil
	case "memory":
		return NewMemoryRepository(tokens, clock, &space.UUIDGenerator{}, logger), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}

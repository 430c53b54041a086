package secrets

import (
	"fmt"

	"github.com/andrewblevins/space-sub000/internal/config"
	"github.com/andrewblevins/space-sub000/internal/space"
)

// NewEncryptorFromConfig creates an Encryptor implementation based on the
// secrets config type.
func NewEncryptorFromConfig(cfg config.SecretsConfig, store space.KeyValue) (Encryptor, error) {
	switch cfg.Type {
	case "age":
		return NewAgeEncryptor(store), nil
	case "test":
		return NewTestEncryptor(store), nil
	default:
		return nil, fmt.Errorf("unknown secrets type: %s", cfg.Type)
	}
}

package encryption

import (
	"fmt"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. It returns nil for "none": snapshots are then uploaded as plain
// JSON.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (gt.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(""), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}

package staging

import (
	"fmt"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// DefaultMaxSize is the default maximum staging area size (64MB).
const DefaultMaxSize int64 = 64 * 1024 * 1024

// NewStagingAreaFromConfig creates a MediaStager implementation based on the config type.
func NewStagingAreaFromConfig(cfg config.StagingConfig, idgen gt.IDGenerator) (gt.MediaStager, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStagingArea(maxSize, idgen), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemStagingArea(cfg.StagingDir, maxSize, idgen)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}

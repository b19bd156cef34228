package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "GOALTRACK_CONFIG_PATH"
	EnvHome       = "GOALTRACK_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - GOALTRACK_CONFIG_PATH: config file location (default: ~/.config/goaltrack/config.toml)
//   - GOALTRACK_HOME: base directory for goaltrack data (default: ~/.local/share/goaltrack)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "goaltrack", "config.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome(EnvHome, ".local", "share", "goaltrack")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}

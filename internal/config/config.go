package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for goaltrack.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Log        LogConfig        `toml:"log"`
	Store      StoreConfig      `toml:"store"`
	Staging    StagingConfig    `toml:"staging"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Encryption EncryptionConfig `toml:"encryption"`
	Sync       SyncConfig       `toml:"sync"`
	Daemon     DaemonConfig     `toml:"daemon"`
}

// LogConfig controls the application log.
type LogConfig struct {
	Level      string `toml:"level"`        // debug, info, warn, error
	MaxSizeMB  int    `toml:"max_size_mb"`  // rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"`  // rotated files to keep
	Stderr     bool   `toml:"stderr"`       // also write warnings and errors to stderr
}

// StoreConfig represents configuration for the local record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type         string `toml:"type"`               // "sqlite" or "memory"
	DataDir      string `toml:"data_dir,omitempty"` // only used for type=sqlite
	SeedDemoData bool   `toml:"seed_demo_data"`
}

// StagingConfig represents configuration for media staging.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total staged bytes; must be positive
}

// GatewayConfig represents configuration for the cloud backup gateway.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type GatewayConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "gcs"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// GCS-specific fields (only used when Type == "gcs")
	GCSBucket          string `toml:"gcs_bucket,omitempty"`
	GCSPrefix          string `toml:"gcs_prefix,omitempty"`
	GCSCredentialsFile string `toml:"gcs_credentials_file,omitempty"`
}

// EncryptionConfig holds the key pair used to encrypt the remote snapshot.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// SyncConfig tunes the synchronization controller.
type SyncConfig struct {
	Debounce           Duration `toml:"debounce"`
	StalenessTolerance Duration `toml:"staleness_tolerance"`
	SavedDisplay       Duration `toml:"saved_display"`
	PollInterval       Duration `toml:"poll_interval"`
	// NetworkTimeout of zero leaves timeouts to the transport.
	NetworkTimeout Duration `toml:"network_timeout"`
	CheckOnStart   bool     `toml:"check_on_start"`
}

// DaemonConfig configures `goaltrack daemon`.
type DaemonConfig struct {
	MetricsAddr string `toml:"metrics_addr,omitempty"` // empty disables the metrics endpoint
}

// Duration is a time.Duration written as a string such as "2s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Log:     LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3, Stderr: true},
		Store: StoreConfig{
			Type:         "sqlite",
			DataDir:      filepath.Join(baseDir, "db"),
			SeedDemoData: true,
		},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
			MaxSize:    512 * 1024 * 1024,
		},
		Gateway: GatewayConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "remote"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "goaltrack.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "goaltrack.key"),
		},
		Sync: SyncConfig{
			Debounce:           Duration{2 * time.Second},
			StalenessTolerance: Duration{10 * time.Second},
			SavedDisplay:       Duration{2 * time.Second},
			PollInterval:       Duration{time.Minute},
			CheckOnStart:       true,
		},
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Type {
	case "sqlite":
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.data_dir required for sqlite store"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.type: unknown store type %q", c.Store.Type))
	}
	switch c.Staging.Type {
	case "filesystem":
		if c.Staging.StagingDir == "" {
			errs = append(errs, errors.New("staging.staging_dir required for filesystem staging"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("staging.type: unknown staging type %q", c.Staging.Type))
	}
	if c.Staging.MaxSize <= 0 {
		errs = append(errs, errors.New("staging.max_size must be positive"))
	}
	switch c.Gateway.Type {
	case "memory":
	case "filesystem":
		if c.Gateway.FSRoot == "" {
			errs = append(errs, errors.New("gateway.fs_root required for filesystem gateway"))
		}
	case "s3":
		if c.Gateway.S3Bucket == "" {
			errs = append(errs, errors.New("gateway.s3_bucket required for s3 gateway"))
		}
	case "gcs":
		if c.Gateway.GCSBucket == "" {
			errs = append(errs, errors.New("gateway.gcs_bucket required for gcs gateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.type: unknown gateway type %q", c.Gateway.Type))
	}
	switch c.Encryption.Type {
	case "", "none", "test":
	case "age":
		if c.Encryption.PublicKeyPath == "" || c.Encryption.PrivateKeyPath == "" {
			errs = append(errs, errors.New("encryption key paths required for age encryption"))
		}
	default:
		errs = append(errs, fmt.Errorf("encryption.type: unknown encryption type %q", c.Encryption.Type))
	}
	if c.Sync.Debounce.Duration <= 0 {
		errs = append(errs, errors.New("sync.debounce must be positive"))
	}
	if c.Sync.StalenessTolerance.Duration < 0 || c.Sync.NetworkTimeout.Duration < 0 {
		errs = append(errs, errors.New("sync durations must not be negative"))
	}
	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

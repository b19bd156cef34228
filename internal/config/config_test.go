package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/jrivera/.local/share/goaltrack")
	original.Gateway = GatewayConfig{Type: "s3", S3Bucket: "class-backups", S3Prefix: "room12", S3Region: "us-east-2"}
	original.Staging.MaxSize = 2048
	original.Sync.Debounce = Duration{1500 * time.Millisecond}
	original.Daemon.MetricsAddr = "127.0.0.1:9464"

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Gateway.Type != "s3" || got.Gateway.S3Bucket != "class-backups" || got.Gateway.S3Prefix != "room12" {
		t.Errorf("Gateway = %+v", got.Gateway)
	}
	if got.Staging.MaxSize != 2048 {
		t.Errorf("Staging.MaxSize = %d, want 2048", got.Staging.MaxSize)
	}
	if got.Sync.Debounce.Duration != 1500*time.Millisecond {
		t.Errorf("Sync.Debounce = %v, want 1.5s", got.Sync.Debounce.Duration)
	}
	if got.Sync.StalenessTolerance.Duration != 10*time.Second {
		t.Errorf("Sync.StalenessTolerance = %v, want 10s", got.Sync.StalenessTolerance.Duration)
	}
	if got.Daemon.MetricsAddr != "127.0.0.1:9464" {
		t.Errorf("Daemon.MetricsAddr = %q", got.Daemon.MetricsAddr)
	}
	if !got.Store.SeedDemoData {
		t.Error("Store.SeedDemoData = false, want true")
	}
}

func TestManager_Read_Durations(t *testing.T) {
	m := &Manager{}

	t.Run("parses duration strings", func(t *testing.T) {
		cfg, err := m.Read(strings.NewReader("[sync]\ndebounce = \"3s\"\nnetwork_timeout = \"0s\"\n"))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if cfg.Sync.Debounce.Duration != 3*time.Second {
			t.Errorf("Debounce = %v, want 3s", cfg.Sync.Debounce.Duration)
		}
		if cfg.Sync.NetworkTimeout.Duration != 0 {
			t.Errorf("NetworkTimeout = %v, want 0", cfg.Sync.NetworkTimeout.Duration)
		}
	})

	t.Run("rejects malformed duration", func(t *testing.T) {
		if _, err := m.Read(strings.NewReader("[sync]\ndebounce = \"soon\"\n")); err == nil {
			t.Fatal("Read() expected error for malformed duration")
		}
	})
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/goaltrack")

	if cfg.BaseDir != "/data/goaltrack" {
		t.Errorf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.LogDir != "/data/goaltrack/log" {
		t.Errorf("LogDir = %q, want /data/goaltrack/log", cfg.LogDir)
	}
	if cfg.Store.DataDir != "/data/goaltrack/db" {
		t.Errorf("Store.DataDir = %q", cfg.Store.DataDir)
	}
	if cfg.Encryption.PublicKeyPath != "/data/goaltrack/keys/goaltrack.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Sync.Debounce.Duration != 2*time.Second {
		t.Errorf("Sync.Debounce = %v, want 2s", cfg.Sync.Debounce.Duration)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown gateway", func(c *Config) { c.Gateway.Type = "ftp" }, "unknown gateway type"},
		{"s3 without bucket", func(c *Config) { c.Gateway = GatewayConfig{Type: "s3"} }, "s3_bucket"},
		{"gcs without bucket", func(c *Config) { c.Gateway = GatewayConfig{Type: "gcs"} }, "gcs_bucket"},
		{"sqlite without data dir", func(c *Config) { c.Store.DataDir = "" }, "data_dir"},
		{"zero staging size", func(c *Config) { c.Staging.MaxSize = 0 }, "max_size"},
		{"zero debounce", func(c *Config) { c.Sync.Debounce = Duration{} }, "debounce"},
		{"unknown encryption", func(c *Config) { c.Encryption.Type = "rot13" }, "unknown encryption type"},
		{"memory everything", func(c *Config) {
			c.Store = StoreConfig{Type: "memory"}
			c.Staging.Type = "memory"
			c.Gateway = GatewayConfig{Type: "memory"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("refuses invalid config", func(t *testing.T) {
		dir := t.TempDir()
		cfg := NewConfig(dir)
		cfg.Gateway.Type = "carrier-pigeon"
		if err := Init(filepath.Join(dir, "config.toml"), cfg); err == nil {
			t.Fatal("Init() expected validation error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		cfg := NewConfig(dir)
		cfg.Store = StoreConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Store.Type != "memory" {
			t.Errorf("Store.Type = %q, want memory", got.Store.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/config.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

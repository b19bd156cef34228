package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

type counterIDs struct{ n int }

func (c *counterIDs) New() string {
	c.n++
	return fmt.Sprintf("id-%d", c.n)
}

// helpers

func readAll(t *testing.T, s gt.MediaStager, ref string) string {
	t.Helper()
	rc, size, err := s.Open(ref)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", ref, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s: %v", ref, err)
	}
	if int64(len(data)) != size {
		t.Errorf("Open(%s) size = %d, read %d bytes", ref, size, len(data))
	}
	return string(data)
}

func stagers(t *testing.T, maxSize int64) map[string]gt.MediaStager {
	t.Helper()
	fsArea, err := NewFileSystemStagingArea(t.TempDir(), maxSize, &counterIDs{})
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	return map[string]gt.MediaStager{
		"memory":     NewMemoryStagingArea(maxSize, &counterIDs{}),
		"filesystem": fsArea,
	}
}

func TestStage(t *testing.T) {
	ctx := context.Background()

	for name, s := range stagers(t, 1024) {
		t.Run(name, func(t *testing.T) {
			m, err := s.Stage(ctx, "Snack Time.MP4", "video/mp4", strings.NewReader("frames"))
			if err != nil {
				t.Fatalf("Stage() error = %v", err)
			}
			if m.Filename != "Snack Time.MP4" || m.MimeType != "video/mp4" || m.Kind != gt.MediaVideo {
				t.Errorf("Stage() media = %+v", m)
			}
			if !m.Pending() {
				t.Errorf("staged media State = %q, want pending", m.State)
			}
			if got := readAll(t, s, m.Reference); got != "frames" {
				t.Errorf("Open() content = %q, want frames", got)
			}

			other, err := s.Stage(ctx, "Snack Time.MP4", "video/mp4", strings.NewReader("frames"))
			if err != nil {
				t.Fatalf("second Stage() error = %v", err)
			}
			if other.Reference == m.Reference {
				t.Error("identical content got the same reference")
			}
		})
	}
}

func TestStage_States(t *testing.T) {
	ctx := context.Background()
	s := stagers(t, 1024)

	mem, _ := s["memory"].Stage(ctx, "a.jpg", "image/jpeg", strings.NewReader("x"))
	if mem.State != gt.MediaEphemeral || !strings.HasPrefix(mem.Reference, "mem:") {
		t.Errorf("memory media = %+v, want ephemeral mem: reference", mem)
	}
	disk, _ := s["filesystem"].Stage(ctx, "a.jpg", "image/jpeg", strings.NewReader("x"))
	if disk.State != gt.MediaLocal || !filepath.IsAbs(disk.Reference) || filepath.Ext(disk.Reference) != ".jpg" {
		t.Errorf("filesystem media = %+v, want local absolute .jpg path", disk)
	}
}

func TestStage_SizeLimit(t *testing.T) {
	ctx := context.Background()

	for name, s := range stagers(t, 10) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Stage(ctx, "big.jpg", "image/jpeg", strings.NewReader("0123456789A")); !errors.Is(err, gt.ErrStorage) {
				t.Fatalf("Stage() oversized error = %v, want ErrStorage", err)
			}

			m, err := s.Stage(ctx, "fits.jpg", "image/jpeg", strings.NewReader("0123456789"))
			if err != nil {
				t.Fatalf("Stage() exact fit error = %v", err)
			}
			if _, err := s.Stage(ctx, "one.jpg", "image/jpeg", strings.NewReader("1")); err == nil {
				t.Fatal("Stage() into full area expected error")
			}
			if err := s.Release(m.Reference); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if _, err := s.Stage(ctx, "one.jpg", "image/jpeg", strings.NewReader("1")); err != nil {
				t.Fatalf("Stage() after release error = %v", err)
			}
		})
	}
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	for name, s := range stagers(t, 1024) {
		t.Run(name, func(t *testing.T) {
			m, err := s.Stage(ctx, "a.png", "image/png", strings.NewReader("px"))
			if err != nil {
				t.Fatalf("Stage() error = %v", err)
			}
			if err := s.Release(m.Reference); err != nil {
				t.Fatalf("Release() error = %v", err)
			}
			if err := s.Release(m.Reference); !errors.Is(err, gt.ErrNotFound) {
				t.Errorf("second Release() error = %v, want ErrNotFound", err)
			}
			if _, _, err := s.Open(m.Reference); !errors.Is(err, gt.ErrMediaMissing) {
				t.Errorf("Open() after Release error = %v, want ErrMediaMissing", err)
			}
		})
	}
}

func TestOpen_ForeignReference(t *testing.T) {
	for name, s := range stagers(t, 1024) {
		t.Run(name, func(t *testing.T) {
			for _, ref := range []string{"blob:http://localhost/1", "https://cdn.example.com/a.jpg", "/etc/passwd", "mem"} {
				if _, _, err := s.Open(ref); !errors.Is(err, gt.ErrMediaMissing) {
					t.Errorf("Open(%q) error = %v, want ErrMediaMissing", ref, err)
				}
			}
		})
	}
}

func TestFileSystemStagingArea_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileSystemStagingArea(dir, 1024, &counterIDs{})
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	m, err := first.Stage(ctx, "a.jpg", "image/jpeg", strings.NewReader("kept"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	second, err := NewFileSystemStagingArea(dir, 1024, &counterIDs{n: 100})
	if err != nil {
		t.Fatalf("NewFileSystemStagingArea() error = %v", err)
	}
	if got := readAll(t, second, m.Reference); got != "kept" {
		t.Errorf("content after restart = %q, want kept", got)
	}
	if err := second.Release(m.Reference); err != nil {
		t.Fatalf("Release() after restart error = %v", err)
	}
	if _, err := os.Stat(m.Reference); !os.IsNotExist(err) {
		t.Errorf("staged file still present after Release: %v", err)
	}
}

func TestNewStagingAreaFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StagingConfig
		wantErr bool
	}{
		{"memory", config.StagingConfig{Type: "memory"}, false},
		{"filesystem", config.StagingConfig{Type: "filesystem", StagingDir: t.TempDir(), MaxSize: 10}, false},
		{"filesystem without dir", config.StagingConfig{Type: "filesystem"}, true},
		{"unknown", config.StagingConfig{Type: "tape"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStagingAreaFromConfig(tt.cfg, &counterIDs{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStagingAreaFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewStagingAreaFromConfig() returned nil")
			}
		})
	}
}

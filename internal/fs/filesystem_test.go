package fs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadAttachment(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads file with mime from extension", func(t *testing.T) {
		path := filepath.Join(dir, "Snack.png")
		if err := os.WriteFile(path, []byte("not really a png"), 0o644); err != nil {
			t.Fatal(err)
		}

		att, err := ReadAttachment(path, 1024)
		if err != nil {
			t.Fatalf("ReadAttachment() error = %v", err)
		}
		if att.Name != "Snack.png" || att.MimeType != "image/png" {
			t.Errorf("attachment = %q %q", att.Name, att.MimeType)
		}
		body, _ := io.ReadAll(att.Body)
		if string(body) != "not really a png" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("sniffs when extension unknown", func(t *testing.T) {
		path := filepath.Join(dir, "clip")
		if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n0000"), 0o644); err != nil {
			t.Fatal(err)
		}
		att, err := ReadAttachment(path, 1024)
		if err != nil {
			t.Fatalf("ReadAttachment() error = %v", err)
		}
		if att.MimeType != "image/png" {
			t.Errorf("MimeType = %q, want image/png", att.MimeType)
		}
	})

	t.Run("rejects oversized file", func(t *testing.T) {
		path := filepath.Join(dir, "big.jpg")
		if err := os.WriteFile(path, []byte(strings.Repeat("x", 20)), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadAttachment(path, 10); err == nil {
			t.Fatal("ReadAttachment() expected size error")
		}
	})

	t.Run("rejects directory", func(t *testing.T) {
		if _, err := ReadAttachment(dir, 1024); err == nil {
			t.Fatal("ReadAttachment() expected error for directory")
		}
	})

	t.Run("rejects symlink", func(t *testing.T) {
		target := filepath.Join(dir, "target.jpg")
		link := filepath.Join(dir, "link.jpg")
		if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
		if _, err := ReadAttachment(link, 1024); err == nil {
			t.Fatal("ReadAttachment() expected error for symlink")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ReadAttachment(filepath.Join(dir, "nope.jpg"), 1024); err == nil {
			t.Fatal("ReadAttachment() expected error for missing file")
		}
	})
}

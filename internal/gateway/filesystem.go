package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"goaltrack/internal/gt"
)

const fileScheme = "file://"

// FileSystemGateway stores the backup in a directory, such as a synced
// cloud-drive folder:
//
//	<root>/
//	  backup/
//	    goaltrack-backup.json
//	  media/      (created on first upload)
//	    <name>
//	  trash/
//	    <name>
type FileSystemGateway struct {
	root     string
	mediaDir string
	trashDir string
}

// NewFileSystemGateway creates a filesystem gateway rooted at the given path.
func NewFileSystemGateway(root string) (*FileSystemGateway, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving gateway root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Join(root, gt.SnapshotObjectName)), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &FileSystemGateway{
		root:     root,
		mediaDir: filepath.Join(root, strings.TrimSuffix(gt.MediaPrefix, "/")),
		trashDir: filepath.Join(root, strings.TrimSuffix(gt.TrashPrefix, "/")),
	}, nil
}

func (g *FileSystemGateway) snapshotPath() string {
	return filepath.Join(g.root, filepath.FromSlash(gt.SnapshotObjectName))
}

// IsAuthenticated reports whether the root is reachable. There is no
// session to lose, so an unmounted drive is the only way to be signed out.
func (g *FileSystemGateway) IsAuthenticated(_ context.Context) bool {
	info, err := os.Stat(g.root)
	return err == nil && info.IsDir()
}

func (g *FileSystemGateway) SnapshotMetadata(_ context.Context) (*gt.SnapshotMetadata, error) {
	info, err := os.Stat(g.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classify("snapshot metadata", err)
	}
	return &gt.SnapshotMetadata{
		RemoteID:     fileScheme + g.snapshotPath(),
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}, nil
}

func (g *FileSystemGateway) UploadSnapshot(_ context.Context, r io.Reader, size int64) error {
	if err := writeFileAtomic(g.snapshotPath(), r, size); err != nil {
		return classify("upload snapshot", err)
	}
	return nil
}

func (g *FileSystemGateway) DownloadSnapshot(_ context.Context, w io.Writer) (bool, error) {
	f, err := os.Open(g.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, classify("download snapshot", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return false, classify("download snapshot", fmt.Errorf("failed to read file: %w", err))
	}
	return true, nil
}

func (g *FileSystemGateway) UploadMedia(_ context.Context, r io.Reader, size int64, name, _ string) (string, error) {
	const op = "upload media"
	// Folder is created on first use.
	if err := os.MkdirAll(g.mediaDir, 0o700); err != nil {
		return "", classify(op, fmt.Errorf("failed to create media directory: %w", err))
	}
	object := uniqueName(filepath.Base(name), func(n string) bool {
		_, err := os.Stat(filepath.Join(g.mediaDir, n))
		return err == nil
	})
	dest := filepath.Join(g.mediaDir, object)
	if err := writeFileAtomic(dest, r, size); err != nil {
		return "", classify(op, err)
	}
	return fileScheme + dest, nil
}

func (g *FileSystemGateway) mediaPath(ref string) (string, bool) {
	p, ok := strings.CutPrefix(ref, fileScheme)
	if !ok || filepath.Dir(p) != g.mediaDir {
		return "", false
	}
	return p, true
}

func (g *FileSystemGateway) DeleteMedia(_ context.Context, ref string) error {
	const op = "delete media"
	src, ok := g.mediaPath(ref)
	if !ok {
		return gt.Errorf(gt.KindRemote, op, "not a media reference: %s", ref)
	}
	if err := os.MkdirAll(g.trashDir, 0o700); err != nil {
		return classify(op, fmt.Errorf("failed to create trash directory: %w", err))
	}
	object := uniqueName(filepath.Base(src), func(n string) bool {
		_, err := os.Stat(filepath.Join(g.trashDir, n))
		return err == nil
	})
	if err := os.Rename(src, filepath.Join(g.trashDir, object)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return gt.E(gt.KindNotFound, op, err)
		}
		return classify(op, err)
	}
	return nil
}

func (g *FileSystemGateway) MediaURL(_ context.Context, ref string) (string, error) {
	if _, ok := g.mediaPath(ref); !ok {
		return "", gt.Errorf(gt.KindRemote, "media url", "not a media reference: %s", ref)
	}
	return ref, nil
}

func (g *FileSystemGateway) IsRemoteReference(ref string) bool {
	_, ok := g.mediaPath(ref)
	return ok
}

// ValidateSetup verifies that the gateway root is a writable directory.
func (g *FileSystemGateway) ValidateSetup(_ context.Context) error {
	info, err := os.Stat(g.root)
	if err != nil {
		return classify("validate setup", fmt.Errorf("gateway root not accessible: %w", err))
	}
	if !info.IsDir() {
		return gt.Errorf(gt.KindRemote, "validate setup", "gateway root is not a directory: %s", g.root)
	}
	f, err := os.CreateTemp(g.root, ".writable-*")
	if err != nil {
		return classify("validate setup", fmt.Errorf("gateway root not writable: %w", err))
	}
	f.Close()
	return os.Remove(f.Name())
}

// writeFileAtomic writes data from r to the specified path using atomic write (temp file + rename).
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return gt.Errorf(gt.KindRemote, "write", "size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemGateway implements gt.Gateway interface
var _ gt.Gateway = (*FileSystemGateway)(nil)

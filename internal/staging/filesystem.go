package staging

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"goaltrack/internal/gt"
)

// NewFileSystemStagingArea creates a staging area that copies attachments
// into a directory. References are absolute file paths and survive a
// restart, so staged media is reported as gt.MediaLocal.
//
// Directory structure:
//
//	<staging_dir>/
//	  files/
//	    <id><ext>    (staged attachment)
//
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(stagingDir string, maxSize int64, idgen gt.IDGenerator) (gt.MediaStager, error) {
	filesDir, err := filepath.Abs(filepath.Join(stagingDir, "files"))
	if err != nil {
		return nil, fmt.Errorf("resolving staging directory: %w", err)
	}

	// Create directory structure
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &stagingArea{
		store:   &fileSystemStore{filesDir: filesDir},
		state:   gt.MediaLocal,
		idgen:   idgen,
		maxSize: maxSize,
	}, nil
}

type fileSystemStore struct {
	filesDir string
}

func (f *fileSystemStore) path(key string) string {
	return filepath.Join(f.filesDir, key)
}

func (f *fileSystemStore) StoreContent(key string, r io.Reader, limit int64) (int64, error) {
	tmp, err := os.CreateTemp(f.filesDir, ".incoming-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing content: %w", err)
	}
	if err := os.Rename(tmpPath, f.path(key)); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("moving content into place: %w", err)
	}
	return size, nil
}

func (f *fileSystemStore) RemoveContent(key string) error {
	return os.Remove(f.path(key))
}

func (f *fileSystemStore) OpenContent(key string) (io.ReadCloser, int64, error) {
	file, err := os.Open(f.path(key))
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

func (f *fileSystemStore) ContentSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(f.filesDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring staging directory: %w", err)
	}
	return total, nil
}

func (f *fileSystemStore) Reference(key string) string {
	return f.path(key)
}

func (f *fileSystemStore) Key(ref string) (string, bool) {
	if !filepath.IsAbs(ref) || filepath.Dir(ref) != f.filesDir {
		return "", false
	}
	return filepath.Base(ref), true
}

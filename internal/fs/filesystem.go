package fs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"goaltrack/internal/gt"
)

// Resolve validates a raw path to an attachment on disk and returns its
// absolute path and file info. Only regular files are accepted.
func Resolve(rawPath string) (string, fs.FileInfo, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	switch {
	case info.IsDir():
		return "", nil, fmt.Errorf("cannot attach a directory: %s", absPath)
	case mode&os.ModeSymlink != 0:
		return "", nil, fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return "", nil, fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return "", nil, fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return "", nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return absPath, info, nil
}

// ReadAttachment loads a photo or video from disk into memory. The file is
// stat'ed before and after reading and rejected if it changed in between,
// so a recording still being written is never attached half-done.
// Files larger than maxSize are rejected.
func ReadAttachment(rawPath string, maxSize int64) (*gt.Attachment, error) {
	path, info1, err := Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	if info1.Size() > maxSize {
		return nil, fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info1.Size(), maxSize)
	}
	stat1, err := extractStatData(info1)
	if err != nil {
		return nil, fmt.Errorf("extracting stat data: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	// Re-stat to validate file hasn't changed
	info2, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("re-stat file: %w", err)
	}
	stat2, err := extractStatData(info2)
	if err != nil {
		return nil, fmt.Errorf("extracting re-stat data: %w", err)
	}
	if err := validateStatUnchanged(info1, info2, stat1, stat2); err != nil {
		return nil, fmt.Errorf("file changed while reading: %w", err)
	}
	if int64(len(data)) != info2.Size() {
		return nil, fmt.Errorf("file changed while reading: read %d of %d bytes", len(data), info2.Size())
	}

	return &gt.Attachment{
		Name:     filepath.Base(path),
		MimeType: DetectMimeType(path, data),
		Body:     bytes.NewReader(data),
	}, nil
}

// DetectMimeType prefers the extension and falls back to sniffing content.
func DetectMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

// validateStatUnchanged checks that file metadata hasn't changed.
// We ignore access time as it may change from our read.
func validateStatUnchanged(info1, info2 fs.FileInfo, stat1, stat2 *statData) error {
	if info1.Size() != info2.Size() {
		return fmt.Errorf("size changed: %d -> %d", info1.Size(), info2.Size())
	}
	if info1.Mode() != info2.Mode() {
		return fmt.Errorf("mode changed: %v -> %v", info1.Mode(), info2.Mode())
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		return fmt.Errorf("mtime changed: %v -> %v", info1.ModTime(), info2.ModTime())
	}
	if !stat1.Ctime.Equal(stat2.Ctime) {
		return fmt.Errorf("ctime changed: %v -> %v", stat1.Ctime, stat2.Ctime)
	}
	return nil
}

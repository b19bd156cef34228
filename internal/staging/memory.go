package staging

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"goaltrack/internal/gt"
)

// memoryPrefix marks references issued by the memory store.
const memoryPrefix = "mem:"

// NewMemoryStagingArea creates a staging area that keeps attachments in
// memory. Its references do not survive a restart, so staged media is
// reported as gt.MediaEphemeral.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryStagingArea(maxSize int64, idgen gt.IDGenerator) gt.MediaStager {
	return &stagingArea{
		store:   &memoryStore{content: make(map[string][]byte)},
		state:   gt.MediaEphemeral,
		idgen:   idgen,
		maxSize: maxSize,
	}
}

type memoryStore struct {
	content map[string][]byte
	size    int64
}

func (m *memoryStore) StoreContent(key string, r io.Reader, limit int64) (int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return 0, fmt.Errorf("reading content: %w", err)
	}
	m.content[key] = data
	m.size += int64(len(data))
	return int64(len(data)), nil
}

func (m *memoryStore) RemoveContent(key string) error {
	data, ok := m.content[key]
	if !ok {
		return fs.ErrNotExist
	}
	delete(m.content, key)
	m.size -= int64(len(data))
	return nil
}

func (m *memoryStore) OpenContent(key string) (io.ReadCloser, int64, error) {
	data, ok := m.content[key]
	if !ok {
		return nil, 0, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (m *memoryStore) ContentSize() (int64, error) {
	return m.size, nil
}

func (m *memoryStore) Reference(key string) string {
	return memoryPrefix + key
}

func (m *memoryStore) Key(ref string) (string, bool) {
	if !strings.HasPrefix(ref, memoryPrefix) {
		return "", false
	}
	return strings.TrimPrefix(ref, memoryPrefix), true
}

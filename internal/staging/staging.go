package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"goaltrack/internal/gt"
)

// stagingArea implements gt.MediaStager using a pluggable stagingStore
// for the storage mechanics. All shared logic lives here.
type stagingArea struct {
	store   stagingStore
	state   gt.MediaState
	idgen   gt.IDGenerator
	maxSize int64
	mu      sync.Mutex
}

var _ gt.MediaStager = (*stagingArea)(nil)

// Stage stores an attachment and returns media that can be opened at once.
func (s *stagingArea) Stage(ctx context.Context, name, mimeType string, r io.Reader) (*gt.Media, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := s.idgen.New() + strings.ToLower(filepath.Ext(filepath.Base(name)))

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.ContentSize()
	if err != nil {
		return nil, fmt.Errorf("getting current size: %w", err)
	}
	room := s.maxSize - current
	if room <= 0 {
		return nil, gt.Errorf(gt.KindStorage, "stage media", "staging area full: max size is %d bytes", s.maxSize)
	}

	size, err := s.store.StoreContent(key, r, room)
	if err != nil {
		_ = s.store.RemoveContent(key)
		return nil, gt.E(gt.KindStorage, "stage media", err)
	}
	if size > room {
		_ = s.store.RemoveContent(key)
		return nil, gt.Errorf(gt.KindStorage, "stage media", "staging area full: would exceed max size of %d bytes", s.maxSize)
	}

	return &gt.Media{
		Reference: s.store.Reference(key),
		Filename:  name,
		MimeType:  mimeType,
		Kind:      gt.MediaKindFor(mimeType),
		State:     s.state,
	}, nil
}

// Open resolves a staged reference back to its bytes.
func (s *stagingArea) Open(ref string) (io.ReadCloser, int64, error) {
	key, ok := s.store.Key(ref)
	if !ok {
		return nil, 0, gt.Errorf(gt.KindMediaMissing, "open staged media", "not a staged reference: %s", ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rc, size, err := s.store.OpenContent(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, gt.Errorf(gt.KindMediaMissing, "open staged media", "%s is no longer staged", ref)
		}
		return nil, 0, gt.E(gt.KindStorage, "open staged media", err)
	}
	return rc, size, nil
}

// Release frees a staged reference.
func (s *stagingArea) Release(ref string) error {
	key, ok := s.store.Key(ref)
	if !ok {
		return gt.Errorf(gt.KindNotFound, "release staged media", "not a staged reference: %s", ref)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.RemoveContent(key); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return gt.Errorf(gt.KindNotFound, "release staged media", "%s already released", ref)
		}
		return gt.E(gt.KindStorage, "release staged media", err)
	}
	return nil
}

// Size returns the total size of staged content in bytes.
func (s *stagingArea) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ContentSize()
}

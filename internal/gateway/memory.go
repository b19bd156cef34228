package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"goaltrack/internal/gt"
)

const memoryScheme = "mem://"

// MemoryGateway is an in-memory implementation of the Gateway interface.
// It stores the snapshot and media in memory, making it useful for testing.
// Faults, sign-out and slow uploads can be injected.
// This implementation is safe for concurrent use.
type MemoryGateway struct {
	clock gt.Clock

	mu            sync.Mutex
	authenticated bool
	snapshot      []byte
	snapshotMod   time.Time
	hasSnapshot   bool
	media         map[string][]byte // object name -> content
	trash         map[string][]byte
	failures      []error
	gate          chan struct{}
	waiting       int

	snapshotUploads int
	mediaUploads    int
}

// NewMemoryGateway creates a signed-in, empty in-memory gateway.
func NewMemoryGateway(clock gt.Clock) *MemoryGateway {
	return &MemoryGateway{
		clock:         clock,
		authenticated: true,
		media:         make(map[string][]byte),
		trash:         make(map[string][]byte),
	}
}

// SetAuthenticated simulates signing in or out.
func (m *MemoryGateway) SetAuthenticated(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = ok
}

// FailNext makes the next len(errs) operations fail with the given errors,
// in order.
func (m *MemoryGateway) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Hold blocks uploads until the returned release func is called.
func (m *MemoryGateway) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Waiting returns how many uploads are blocked by Hold.
func (m *MemoryGateway) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

// PutRemoteSnapshot replaces the snapshot as another device would.
func (m *MemoryGateway) PutRemoteSnapshot(data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = append([]byte(nil), data...)
	m.snapshotMod = modified
	m.hasSnapshot = true
}

// Snapshot returns the stored snapshot bytes, or nil.
func (m *MemoryGateway) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.snapshot...)
}

// SnapshotUploads returns how many snapshot uploads succeeded.
func (m *MemoryGateway) SnapshotUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotUploads
}

// MediaUploads returns how many media uploads succeeded.
func (m *MemoryGateway) MediaUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mediaUploads
}

// MediaObjects returns the names of stored media objects.
func (m *MemoryGateway) MediaObjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.media))
	for name := range m.media {
		names = append(names, name)
	}
	return names
}

// Trashed reports whether a media object was moved to the trash.
func (m *MemoryGateway) Trashed(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.trash[name]
	return ok
}

// begin waits on the gate, then checks auth and pending failures. It
// returns with m.mu held on success.
func (m *MemoryGateway) begin(ctx context.Context, op string, upload bool) error {
	if upload {
		m.mu.Lock()
		gate := m.gate
		m.mu.Unlock()
		if gate != nil {
			m.mu.Lock()
			m.waiting++
			m.mu.Unlock()
			var err error
			select {
			case <-gate:
			case <-ctx.Done():
				err = gt.E(gt.KindNetwork, op, ctx.Err())
			}
			m.mu.Lock()
			m.waiting--
			m.mu.Unlock()
			if err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	if !m.authenticated {
		m.mu.Unlock()
		return gt.Errorf(gt.KindAuth, op, "not signed in")
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return classify(op, err)
	}
	return nil
}

func (m *MemoryGateway) IsAuthenticated(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

func (m *MemoryGateway) SnapshotMetadata(ctx context.Context) (*gt.SnapshotMetadata, error) {
	if err := m.begin(ctx, "snapshot metadata", false); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	if !m.hasSnapshot {
		return nil, nil
	}
	return &gt.SnapshotMetadata{
		RemoteID:     memoryScheme + gt.SnapshotObjectName,
		LastModified: m.snapshotMod,
		Size:         int64(len(m.snapshot)),
	}, nil
}

func (m *MemoryGateway) UploadSnapshot(ctx context.Context, r io.Reader, size int64) error {
	data, err := readSized(r, size)
	if err != nil {
		return gt.E(gt.KindRemote, "upload snapshot", err)
	}
	if err := m.begin(ctx, "upload snapshot", true); err != nil {
		return err
	}
	defer m.mu.Unlock()
	m.snapshot = data
	m.snapshotMod = m.clock.Now()
	m.hasSnapshot = true
	m.snapshotUploads++
	return nil
}

func (m *MemoryGateway) DownloadSnapshot(ctx context.Context, w io.Writer) (bool, error) {
	if err := m.begin(ctx, "download snapshot", false); err != nil {
		return false, err
	}
	data, ok := m.snapshot, m.hasSnapshot
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return false, gt.E(gt.KindRemote, "download snapshot", err)
	}
	return true, nil
}

func (m *MemoryGateway) UploadMedia(ctx context.Context, r io.Reader, size int64, name, _ string) (string, error) {
	data, err := readSized(r, size)
	if err != nil {
		return "", gt.E(gt.KindRemote, "upload media", err)
	}
	if err := m.begin(ctx, "upload media", true); err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	object := uniqueName(name, func(n string) bool { _, ok := m.media[n]; return ok })
	m.media[object] = data
	m.mediaUploads++
	return memoryScheme + gt.MediaPrefix + object, nil
}

func (m *MemoryGateway) DeleteMedia(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, memoryScheme+gt.MediaPrefix)
	if !ok {
		return gt.Errorf(gt.KindRemote, "delete media", "not a media reference: %s", ref)
	}
	if err := m.begin(ctx, "delete media", false); err != nil {
		return err
	}
	defer m.mu.Unlock()
	data, ok := m.media[name]
	if !ok {
		return gt.Errorf(gt.KindNotFound, "delete media", "%s", ref)
	}
	delete(m.media, name)
	m.trash[name] = data
	return nil
}

func (m *MemoryGateway) MediaURL(_ context.Context, ref string) (string, error) {
	if !m.IsRemoteReference(ref) {
		return "", gt.Errorf(gt.KindRemote, "media url", "not a media reference: %s", ref)
	}
	return ref, nil
}

func (m *MemoryGateway) IsRemoteReference(ref string) bool {
	return strings.HasPrefix(ref, memoryScheme)
}

// ValidateSetup always succeeds for in-memory gateway.
func (m *MemoryGateway) ValidateSetup(_ context.Context) error {
	return nil
}

// readSized reads r fully and checks it produced size bytes.
func readSized(r io.Reader, size int64) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

// uniqueName appends -2, -3, ... before the extension until taken reports
// false.
func uniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// Compile-time check that MemoryGateway implements gt.Gateway interface
var _ gt.Gateway = (*MemoryGateway)(nil)

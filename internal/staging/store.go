package staging

import "io"

// stagingStore abstracts where staged bytes live. Implementations handle
// content storage and reference naming. Concurrency is managed by the
// caller (stagingArea.mu), so stores do not need to be safe for concurrent
// use.
type stagingStore interface {
	// StoreContent reads r to EOF and stores it under key. It reads at most
	// limit+1 bytes so the caller can detect oversized content.
	StoreContent(key string, r io.Reader, limit int64) (size int64, err error)

	// RemoveContent removes stored content. It returns fs.ErrNotExist
	// (wrapped or bare) if key is not stored.
	RemoveContent(key string) error

	// OpenContent returns a reader and the size for stored content.
	OpenContent(key string) (io.ReadCloser, int64, error)

	// ContentSize returns total bytes of all stored content.
	ContentSize() (int64, error)

	// Reference turns a key into the reference handed to callers.
	Reference(key string) string

	// Key reverses Reference. ok is false for references this store never
	// issues.
	Key(ref string) (key string, ok bool)
}

package gt

import (
	"context"
	"io"
	"time"
)

// Well-known remote names shared by every gateway backend.
const (
	SnapshotObjectName = "backup/goaltrack-backup.json"
	MediaPrefix        = "media/"
	TrashPrefix        = "trash/"
)

// SnapshotMetadata describes the remote backup object.
type SnapshotMetadata struct {
	RemoteID     string
	LastModified time.Time
	Size         int64
}

// Gateway is the cloud backup capability: one snapshot object plus a media
// folder in the user's personal storage.
//
// Every method fails with an error matching ErrAuth (prompt re-login),
// ErrNetwork (retry on the next natural trigger) or ErrRemote (surface, do
// not retry).
type Gateway interface {
	// IsAuthenticated reports whether a usable session is present.
	IsAuthenticated(ctx context.Context) bool

	// SnapshotMetadata locates the backup object. Returns (nil, nil) when no
	// backup exists yet.
	SnapshotMetadata(ctx context.Context) (*SnapshotMetadata, error)

	// UploadSnapshot creates or replaces the single backup object.
	UploadSnapshot(ctx context.Context, r io.Reader, size int64) error

	// DownloadSnapshot writes the backup object to w. Returns false if no
	// backup exists.
	DownloadSnapshot(ctx context.Context, w io.Writer) (bool, error)

	// UploadMedia stores a file in the media folder, creating the folder on
	// first use, and returns a remote reference. Retrying after a failure
	// may leave an orphaned copy behind.
	UploadMedia(ctx context.Context, r io.Reader, size int64, name, mimeType string) (string, error)

	// DeleteMedia moves a media file to the trash. It is never purged.
	DeleteMedia(ctx context.Context, ref string) error

	// MediaURL resolves a remote reference to a viewable URL.
	MediaURL(ctx context.Context, ref string) (string, error)

	// IsRemoteReference reports whether ref has this gateway's remote shape.
	IsRemoteReference(ref string) bool

	// ValidateSetup verifies that the backend is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

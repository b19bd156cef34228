package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"goaltrack/internal/gt"
)

const gcsScheme = "gs://"

// GCSOptions configures a GCSGateway.
type GCSOptions struct {
	Bucket string
	Prefix string
	// CredentialsFile is a service account or authorized user JSON file.
	// When empty, Application Default Credentials are used.
	CredentialsFile string
}

// GCSGateway stores the backup in a Google Cloud Storage bucket.
type GCSGateway struct {
	client     *storage.Client
	bucket     string
	prefix     string
	authFailed atomic.Bool
}

// NewGCSGateway creates a GCS client and gateway.
func NewGCSGateway(ctx context.Context, opts GCSOptions) (*GCSGateway, error) {
	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSGateway{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}, nil
}

// Close releases the underlying client.
func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func (g *GCSGateway) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(g.key(name))
}

func (g *GCSGateway) key(name string) string {
	return objectKey(g.prefix, name)
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// fail classifies err and remembers auth failures until the next success.
func (g *GCSGateway) fail(op string, err error) error {
	err = classify(op, err)
	if errors.Is(err, gt.ErrAuth) {
		g.authFailed.Store(true)
	}
	return err
}

func (g *GCSGateway) ok() {
	g.authFailed.Store(false)
}

// IsAuthenticated is false after the backend rejected our credentials.
func (g *GCSGateway) IsAuthenticated(_ context.Context) bool {
	return !g.authFailed.Load()
}

func (g *GCSGateway) SnapshotMetadata(ctx context.Context) (*gt.SnapshotMetadata, error) {
	attrs, err := g.object(gt.SnapshotObjectName).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			g.ok()
			return nil, nil
		}
		return nil, g.fail("snapshot metadata", err)
	}
	g.ok()
	return &gt.SnapshotMetadata{
		RemoteID:     gcsScheme + g.bucket + "/" + attrs.Name,
		LastModified: attrs.Updated,
		Size:         attrs.Size,
	}, nil
}

func (g *GCSGateway) write(ctx context.Context, op, name, contentType string, r io.Reader, size int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.object(name).NewWriter(ctx)
	w.ContentType = contentType
	written, err := io.Copy(w, r)
	if err != nil {
		// cancel before Close so the partial upload is abandoned
		cancel()
		_ = w.Close()
		return g.fail(op, fmt.Errorf("failed to write data to GCS: %w", err))
	}
	if written != size {
		cancel()
		_ = w.Close()
		return gt.Errorf(gt.KindRemote, op, "size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := w.Close(); err != nil {
		return g.fail(op, fmt.Errorf("failed to close GCS writer: %w", err))
	}
	g.ok()
	return nil
}

func (g *GCSGateway) UploadSnapshot(ctx context.Context, r io.Reader, size int64) error {
	return g.write(ctx, "upload snapshot", gt.SnapshotObjectName, "application/json", r, size)
}

func (g *GCSGateway) DownloadSnapshot(ctx context.Context, w io.Writer) (bool, error) {
	r, err := g.object(gt.SnapshotObjectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			g.ok()
			return false, nil
		}
		return false, g.fail("download snapshot", err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return false, g.fail("download snapshot", err)
	}
	g.ok()
	return true, nil
}

func (g *GCSGateway) UploadMedia(ctx context.Context, r io.Reader, size int64, name, mimeType string) (string, error) {
	object := gt.MediaPrefix + path.Base(name)
	if err := g.write(ctx, "upload media", object, mimeType, r, size); err != nil {
		return "", err
	}
	return gcsScheme + g.bucket + "/" + g.key(object), nil
}

func (g *GCSGateway) mediaKey(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, gcsScheme+g.bucket+"/")
	if !ok || !strings.HasPrefix(key, g.key(gt.MediaPrefix)) {
		return "", false
	}
	return key, true
}

// DeleteMedia copies the object into the trash prefix, then deletes it.
func (g *GCSGateway) DeleteMedia(ctx context.Context, ref string) error {
	const op = "delete media"
	key, ok := g.mediaKey(ref)
	if !ok {
		return gt.Errorf(gt.KindRemote, op, "not a media reference: %s", ref)
	}
	bucket := g.client.Bucket(g.bucket)
	src := bucket.Object(key)
	dst := bucket.Object(g.key(gt.TrashPrefix + path.Base(key)))
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return gt.E(gt.KindNotFound, op, err)
		}
		return g.fail(op, fmt.Errorf("copy %s->%s: %w", key, dst.ObjectName(), err))
	}
	if err := src.Delete(ctx); err != nil {
		return g.fail(op, err)
	}
	g.ok()
	return nil
}

// MediaURL returns a signed URL. Signing needs credentials that carry a
// private key or the IAM signBlob permission.
func (g *GCSGateway) MediaURL(_ context.Context, ref string) (string, error) {
	key, ok := g.mediaKey(ref)
	if !ok {
		return "", gt.Errorf(gt.KindRemote, "media url", "not a media reference: %s", ref)
	}
	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(presignExpiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", g.fail("media url", err)
	}
	return u, nil
}

func (g *GCSGateway) IsRemoteReference(ref string) bool {
	_, ok := g.mediaKey(ref)
	return ok
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (g *GCSGateway) ValidateSetup(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return g.fail("validate setup", fmt.Errorf("bucket %s: %w", g.bucket, err))
	}
	g.ok()
	return nil
}

// Compile-time check that GCSGateway implements gt.Gateway interface
var _ gt.Gateway = (*GCSGateway)(nil)

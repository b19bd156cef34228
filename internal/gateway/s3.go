package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"goaltrack/internal/gt"
)

const s3Scheme = "s3://"

// presignExpiry bounds how long a MediaURL stays valid.
const presignExpiry = time.Hour

// s3API is the subset of the S3 client the gateway uses.
type s3API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an S3Gateway.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // for S3-compatible services; enables path-style addressing
	// Static credentials. When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Gateway stores the backup in an S3 bucket under an optional prefix.
type S3Gateway struct {
	bucket   string
	prefix   string
	client   s3API
	uploader *manager.Uploader
	presign  s3Presigner
	creds    aws.CredentialsProvider

	authFailed atomic.Bool
}

// NewS3Gateway loads AWS configuration and creates an S3 gateway.
func NewS3Gateway(ctx context.Context, opts S3Options) (*S3Gateway, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	g := newS3Gateway(client, s3.NewPresignClient(client), opts.Bucket, opts.Prefix)
	g.creds = cfg.Credentials
	return g, nil
}

func newS3Gateway(client s3API, presign s3Presigner, bucket, prefix string) *S3Gateway {
	return &S3Gateway{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  presign,
	}
}

func (g *S3Gateway) key(name string) string {
	if g.prefix == "" {
		return name
	}
	return path.Join(g.prefix, name)
}

func (g *S3Gateway) ref(key string) string {
	return s3Scheme + g.bucket + "/" + key
}

// mediaKey reverses ref for objects in this gateway's media folder.
func (g *S3Gateway) mediaKey(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, s3Scheme+g.bucket+"/")
	if !ok || !strings.HasPrefix(key, g.key(gt.MediaPrefix)) {
		return "", false
	}
	return key, true
}

// fail classifies err and remembers auth failures until the next success.
func (g *S3Gateway) fail(op string, err error) error {
	err = classify(op, err)
	if errors.Is(err, gt.ErrAuth) {
		g.authFailed.Store(true)
	}
	return err
}

func (g *S3Gateway) ok() {
	g.authFailed.Store(false)
}

// IsAuthenticated reports whether credentials can be retrieved and S3 has not
// rejected them since the last successful call.
func (g *S3Gateway) IsAuthenticated(ctx context.Context) bool {
	if g.authFailed.Load() {
		return false
	}
	if g.creds == nil {
		return true
	}
	creds, err := g.creds.Retrieve(ctx)
	return err == nil && creds.HasKeys() && !creds.Expired()
}

func (g *S3Gateway) SnapshotMetadata(ctx context.Context) (*gt.SnapshotMetadata, error) {
	key := g.key(gt.SnapshotObjectName)
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			g.ok()
			return nil, nil
		}
		return nil, g.fail("snapshot metadata", err)
	}
	return &gt.SnapshotMetadata{
		RemoteID:     g.ref(key),
		LastModified: aws.ToTime(out.LastModified),
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}

func (g *S3Gateway) UploadSnapshot(ctx context.Context, r io.Reader, size int64) error {
	_, err := g.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(g.key(gt.SnapshotObjectName)),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return g.fail("upload snapshot", err)
	}
	g.ok()
	return nil
}

func (g *S3Gateway) DownloadSnapshot(ctx context.Context, w io.Writer) (bool, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.key(gt.SnapshotObjectName)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			g.ok()
			return false, nil
		}
		return false, g.fail("download snapshot", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return false, g.fail("download snapshot", err)
	}
	g.ok()
	return true, nil
}

func (g *S3Gateway) UploadMedia(ctx context.Context, r io.Reader, size int64, name, mimeType string) (string, error) {
	key := g.key(gt.MediaPrefix + path.Base(name))
	input := &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if _, err := g.uploader.Upload(ctx, input); err != nil {
		return "", g.fail("upload media", err)
	}
	g.ok()
	return g.ref(key), nil
}

// DeleteMedia copies the object into the trash prefix, then removes the
// original.
func (g *S3Gateway) DeleteMedia(ctx context.Context, ref string) error {
	const op = "delete media"
	key, ok := g.mediaKey(ref)
	if !ok {
		return gt.Errorf(gt.KindRemote, op, "not a media reference: %s", ref)
	}
	trashKey := g.key(gt.TrashPrefix + path.Base(key))
	_, err := g.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(trashKey),
		CopySource: aws.String(g.bucket + "/" + (&url.URL{Path: key}).EscapedPath()),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return gt.E(gt.KindNotFound, op, err)
		}
		return g.fail(op, fmt.Errorf("copying to trash: %w", err))
	}
	_, err = g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return g.fail(op, err)
	}
	g.ok()
	return nil
}

func (g *S3Gateway) MediaURL(ctx context.Context, ref string) (string, error) {
	key, ok := g.mediaKey(ref)
	if !ok {
		return "", gt.Errorf(gt.KindRemote, "media url", "not a media reference: %s", ref)
	}
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", g.fail("media url", err)
	}
	return req.URL, nil
}

func (g *S3Gateway) IsRemoteReference(ref string) bool {
	_, ok := g.mediaKey(ref)
	return ok
}

// ValidateSetup verifies that the bucket exists and is reachable.
func (g *S3Gateway) ValidateSetup(ctx context.Context) error {
	if _, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)}); err != nil {
		return g.fail("validate setup", fmt.Errorf("bucket %s: %w", g.bucket, err))
	}
	g.ok()
	return nil
}

// Compile-time check that S3Gateway implements gt.Gateway interface
var _ gt.Gateway = (*S3Gateway)(nil)

package gateway

import (
	"context"
	"fmt"
	"os"

	"goaltrack/internal/config"
	"goaltrack/internal/gt"
)

// Environment variables for static S3 credentials. Secrets stay out of the
// config file.
const (
	EnvS3AccessKeyID     = "GOALTRACK_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "GOALTRACK_S3_SECRET_ACCESS_KEY"
)

// NewGatewayFromConfig creates a Gateway implementation based on the gateway config type.
func NewGatewayFromConfig(ctx context.Context, cfg config.GatewayConfig, clock gt.Clock) (gt.Gateway, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryGateway(clock), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem gateway requires fs_root to be set")
		}
		return NewFileSystemGateway(cfg.FSRoot)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 gateway requires s3_bucket to be set")
		}
		return NewS3Gateway(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     os.Getenv(EnvS3AccessKeyID),
			SecretAccessKey: os.Getenv(EnvS3SecretAccessKey),
		})
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("gcs gateway requires gcs_bucket to be set")
		}
		return NewGCSGateway(ctx, GCSOptions{
			Bucket:          cfg.GCSBucket,
			Prefix:          cfg.GCSPrefix,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unknown gateway type: %s", cfg.Type)
	}
}

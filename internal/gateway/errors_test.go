package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"

	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"

	"goaltrack/internal/gt"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"s3 access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, gt.ErrAuth},
		{"s3 expired token", fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "ExpiredToken"}), gt.ErrAuth},
		{"s3 other api error", &smithy.GenericAPIError{Code: "InvalidBucketName"}, gt.ErrRemote},
		{"gcs unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, gt.ErrAuth},
		{"gcs forbidden", &googleapi.Error{Code: http.StatusForbidden}, gt.ErrAuth},
		{"gcs unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, gt.ErrNetwork},
		{"gcs rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, gt.ErrNetwork},
		{"gcs bad request", &googleapi.Error{Code: http.StatusBadRequest}, gt.ErrRemote},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "storage.example.com"}, gt.ErrNetwork},
		{"dial refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, gt.ErrNetwork},
		{"deadline", context.DeadlineExceeded, gt.ErrNetwork},
		{"permission", fmt.Errorf("open: %w", os.ErrPermission), gt.ErrAuth},
		{"unknown", errors.New("quota exceeded"), gt.ErrRemote},
		{"already classified", gt.E(gt.KindNotFound, "x", nil), gt.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want kind of %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the cause", tt.err)
			}
		})
	}

	if classify("op", nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

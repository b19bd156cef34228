package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"google.golang.org/api/googleapi"

	"goaltrack/internal/gt"
)

// authCodes are S3 error codes that mean the session is unusable.
var authCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"TokenRefreshRequired":  true,
}

// classify maps a backend failure onto the gateway error kinds. Errors that
// already carry a kind pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gtErr *gt.Error
	if errors.As(err, &gtErr) {
		return err
	}
	return gt.E(kindOf(err), op, err)
}

func kindOf(err error) gt.Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return gt.KindNetwork
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authCodes[apiErr.ErrorCode()] {
		return gt.KindAuth
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return kindForStatus(respErr.HTTPStatusCode())
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return kindForStatus(gErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return gt.KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return gt.KindNetwork
	}

	if errors.Is(err, os.ErrPermission) {
		return gt.KindAuth
	}
	return gt.KindRemote
}

func kindForStatus(code int) gt.Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return gt.KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return gt.KindNetwork
	default:
		return gt.KindRemote
	}
}

// ABOUTME: Maps internal errors to the wire-level error taxonomy.
// ABOUTME: Request-level errors go only to the requesting client, never broadcast.

package gateway

import (
	"context"
	"errors"

	"github.com/blueriver/tars-gateway/internal/dispatch"
	"github.com/blueriver/tars-gateway/internal/session"
)

// ErrAssetMissing indicates a referenced static asset could not be located
// before dispatch began.
var ErrAssetMissing = errors.New("asset missing")

// Wire-level error codes.
const (
	codeNotConnected = "SessionNotConnected"
	codeTimeout      = "SendTimeout"
	codeAssetMissing = "ResourceMissing"
	codeFailedPrefix = "SendFailed: "
)

// wireError converts an internal error into its wire-level code.
func wireError(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConnected):
		return codeNotConnected
	case errors.Is(err, dispatch.ErrTimeout):
		return codeTimeout
	case errors.Is(err, ErrAssetMissing):
		return codeAssetMissing
	case errors.Is(err, context.Canceled):
		return codeFailedPrefix + "request cancelled"
	default:
		return codeFailedPrefix + err.Error()
	}
}

// Package tileerr defines the abstract error kinds shared by the store
// backends, the read pipeline, and the bulk job engine.
package tileerr

import (
	"errors"
	"fmt"
)

// NotFound indicates a tile, asset, or metadata key has no record.
var NotFound = fmt.Errorf("tilecached: not found")

// LockTimeout indicates a scoped file lock could not be acquired before
// the caller's deadline elapsed.
var LockTimeout = fmt.Errorf("tilecached: lock timeout")

// OperationTimeout indicates a SQL statement or HTTP request exceeded its
// deadline.
var OperationTimeout = fmt.Errorf("tilecached: operation timeout")

// SchemaInvalid indicates a JSON document failed structural validation.
var SchemaInvalid = fmt.Errorf("tilecached: schema invalid")

// FormatInvalid indicates bytes did not match any recognized tile/image
// format's magic bytes.
var FormatInvalid = fmt.Errorf("tilecached: format invalid")

// StoreCorrupt indicates a store's schema is missing a required column
// and it could not be added.
var StoreCorrupt = fmt.Errorf("tilecached: store corrupt")

// RenderFailed indicates the native rasterizer could not complete a
// render request.
var RenderFailed = fmt.Errorf("tilecached: render failed")

// RemoteStatus wraps a non-200 HTTP response from an origin or upstream
// store. Status 204 and 404 are sentinel "absent at origin" outcomes and
// are never retried by callers; see Retryable.
type RemoteStatus struct {
	Code int
}

func (e *RemoteStatus) Error() string {
	return fmt.Sprintf("tilecached: remote status %d", e.Code)
}

// Retryable reports whether a RemoteStatus should be retried. 204 and 404
// are treated as a definitive absence at the origin.
func (e *RemoteStatus) Retryable() bool {
	return e.Code != 204 && e.Code != 404
}

// IsAbsent reports whether err represents a definitive "tile does not
// exist at the origin" outcome (204/404), as opposed to a transient
// failure worth retrying.
func IsAbsent(err error) bool {
	var rs *RemoteStatus
	if errors.As(err, &rs) {
		return !rs.Retryable()
	}
	return false
}

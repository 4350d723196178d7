package reconcile

import "errors"

var (
	// ErrNotConfigured means no provider or credential exists for the
	// requested integration. Fatal for that integration's run only.
	ErrNotConfigured = errors.New("integration not configured")
)

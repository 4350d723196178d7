package identities

import "errors"

// Domain errors for canonical identity operations.
var (
	ErrNotFound        = errors.New("identity not found")
	ErrDuplicate       = errors.New("identity already exists")
	ErrInvalidEmail    = errors.New("email required")
	ErrInvalidPlatform = errors.New("unknown platform")
)

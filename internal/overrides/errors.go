package overrides

import "errors"

// Domain errors for override operations.
var (
	ErrNotFound  = errors.New("override not found")
	ErrDuplicate = errors.New("override already exists")
	ErrInvalid   = errors.New("invalid override")
)

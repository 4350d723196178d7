package attempts

import "errors"

// Domain errors for audit log operations.
var (
	ErrNotFound  = errors.New("match attempt not found")
	ErrDuplicate = errors.New("match attempt already exists")
)

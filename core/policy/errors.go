package policy

import "errors"

// ErrInvalidInput is returned when a decision cannot be computed from the
// supplied snapshot.
var ErrInvalidInput = errors.New("policy: invalid input")

package ratelimit

import "errors"

// ErrInvalidConfig indicates a Config with a non-positive MaxRequests
// or WindowMS, or a negative LockoutSeconds.
var ErrInvalidConfig = errors.New("ratelimit: invalid config")

package wid

import "github.com/cockroachdb/errors"

var (
	ErrInvalidW           = errors.New("W must be between 1 and 18")
	ErrInvalidZ           = errors.New("Z must be >= 0")
	ErrInvalidTimeUnit    = errors.New("time unit must be sec or ms")
	ErrInvalidNode        = errors.New("node must be non-empty without whitespace or hyphens")
	ErrInvalidFormat      = errors.New("invalid identifier format")
	ErrInvalidTimestamp   = errors.New("invalid timestamp in identifier")
	ErrInvalidState       = errors.New("invalid generator state")
	ErrInvalidRemoteClock = errors.New("remote clock values must be non-negative")
	ErrInvalidCount       = errors.New("count must be >= 0")
	ErrStateNotFound      = errors.New("state not found")
	ErrNilStateStore      = errors.New("state store must not be nil")
)

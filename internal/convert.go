package internal

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotAnInteger  = errors.New("not an integer")
	ErrNegativeCount = errors.New("count must be >= 0")
)

// ParseInt64 parses a decimal wire argument.
func ParseInt64(b []byte) (int64, error) {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, errors.WithStack(ErrNotAnInteger)
	}
	return v, nil
}

// ParseCount parses a non-negative decimal wire argument that must fit in
// an int.
func ParseCount(b []byte) (int, error) {
	v, err := strconv.ParseInt(string(b), 10, 32)
	if err != nil {
		return 0, errors.WithStack(ErrNotAnInteger)
	}
	if v < 0 {
		return 0, errors.WithStack(ErrNegativeCount)
	}
	return int(v), nil
}

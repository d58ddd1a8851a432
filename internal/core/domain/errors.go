package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrProductExists    = errors.New("product already exists")
	ErrNoFulfillment    = errors.New("none of the requested products could be fulfilled")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDuplicateRequest = errors.New("duplicate request")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

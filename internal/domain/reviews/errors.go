package reviews

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
)

// DuplicateError is returned when an engagement already has a review. It
// matches ErrConflict and carries the existing id so callers can redirect.
type DuplicateError struct {
	EngagementRef string
	ExistingID    ReviewID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("analytical review already exists for engagement %s: %s", e.EngagementRef, e.ExistingID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrConflict }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

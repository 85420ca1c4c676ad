package errcode

import (
	"errors"

	appErr "github.com/xxxsen/mlibrary/internal/pkg/errors"
)

// FromError maps an engine error onto the stable code returned by every
// front-end.
func FromError(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, appErr.ErrMalformedDocument):
		return ErrMalformedDocument
	case errors.Is(err, appErr.ErrInvalidSection):
		return ErrInvalidSection
	case errors.Is(err, appErr.ErrPageOutOfRange):
		return ErrPageOutOfRange
	case errors.Is(err, appErr.ErrIndexDegraded):
		return ErrIndexDegraded
	case errors.Is(err, appErr.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, appErr.ErrInvalid):
		return ErrInvalid
	case errors.Is(err, appErr.ErrTooMany):
		return ErrTooMany
	default:
		return ErrInternal
	}
}

// Message returns the text shown to callers. Internal failures are not echoed.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if appErr.IsClientError(err) || errors.Is(err, appErr.ErrIndexDegraded) {
		return err.Error()
	}
	return "internal error"
}

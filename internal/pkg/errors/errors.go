package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrTooMany           = errors.New("too many requests")
	ErrMalformedDocument = errors.New("malformed document")
	ErrInvalidSection    = errors.New("invalid section")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrIndexDegraded     = errors.New("semantic index degraded")
)

// IsClientError reports whether err belongs to a category the caller caused
// and should see verbatim.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrMalformedDocument),
		errors.Is(err, ErrInvalidSection),
		errors.Is(err, ErrPageOutOfRange),
		errors.Is(err, ErrInvalid),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}

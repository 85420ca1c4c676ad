package errcode

// Codes are part of the wire contract of both front-ends. Append only.
const (
	ErrNotFound = 10000001 + iota
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrInvalidFile
	ErrMalformedDocument
	ErrInvalidSection
	ErrPageOutOfRange
	ErrIndexDegraded
)

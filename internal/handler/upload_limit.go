package handler

import (
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"
)

// uploadOverhead leaves room for the multipart framing around the file part.
const uploadOverhead = 1 << 20

func uploadTooLargeMessage(limit int64) string {
	if limit <= 0 {
		return "file too large"
	}
	return "file too large, max " + humanize.IBytes(uint64(limit))
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

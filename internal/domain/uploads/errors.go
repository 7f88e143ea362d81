package uploads

import "errors"

var (
	ErrFileNotFound     = errors.New("uploaded file not found")
	ErrLocationNotFound = errors.New("location not found")
	// ErrStorageFailed wraps object-storage write failures during upload.
	ErrStorageFailed = errors.New("object storage unavailable")
)

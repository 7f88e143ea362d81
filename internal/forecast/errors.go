package forecast

import "errors"

var (
	ErrJobNotFound     = errors.New("forecast job not found")
	ErrJobNotCompleted = errors.New("forecast job has not completed")
	ErrFileNotMapped   = errors.New("uploaded file has no confirmed column mapping")
	// ErrStatusRejected means the service answered a status poll with a client error.
	// Polling again will not change the answer.
	ErrStatusRejected = errors.New("status request rejected")
)

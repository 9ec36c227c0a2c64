package duplicate

import "errors"

var (
	// ErrFileNotFound is returned when an input path does not exist
	ErrFileNotFound = errors.New("file not found")

	// ErrUploadFailed is returned when the uploader produced no URL
	ErrUploadFailed = errors.New("upload failed")

	// ErrStoreWrite wraps persistence errors on insert or update
	ErrStoreWrite = errors.New("cache write failed")

	// ErrInvalidRecord is returned for records missing a filename or URL
	ErrInvalidRecord = errors.New("invalid upload record")
)

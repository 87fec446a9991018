package catalog

import "errors"

var (
	// ErrUnsupportedPathSegment is returned when a path segment matches none
	// of the recognized lexical shapes (drive, server, folder, media file).
	ErrUnsupportedPathSegment = errors.New("unsupported path segment")

	// ErrStorageIntegrity is returned when a freshly created entry cannot be
	// re-read with matching attributes.
	ErrStorageIntegrity = errors.New("catalog storage integrity check failed")

	// ErrNotFound is returned by lookups for paths with no catalog entry.
	ErrNotFound = errors.New("catalog entry not found")
)

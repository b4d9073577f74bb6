package database

import "errors"

var (
	// ErrShortKeyExists is returned when an attempt is made to create
	// a new link with a short key that already exists.
	ErrShortKeyExists = errors.New("short key exists")
	// ErrLinkNotFound is returned when an attempt is made to retrieve,
	// update or delete a link using a short key that doesn't exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrTrackingNotFound is returned when no tracking record exists
	// for the requested short key.
	ErrTrackingNotFound = errors.New("tracking record not found")
)

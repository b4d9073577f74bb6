package service

import "errors"

// ErrMaxRetriesExceeded is returned when the maximum number of retries for
// generating a unique short key is exceeded.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short key")

// ErrReservedKey is returned when a caller tries to claim a short key that
// collides with a service route.
var ErrReservedKey = errors.New("short key is reserved")

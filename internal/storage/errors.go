package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidTransition is returned when a discovery status update is not
// allowed from the current state.
var ErrInvalidTransition = errors.New("storage: invalid status transition")

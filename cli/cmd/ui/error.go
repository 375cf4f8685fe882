package ui

import "errors"

// Sentinel errors.
var (
	ErrOutOfBounds = errors.New("index out of range")
	ErrNoBackend   = errors.New("no backend")
)

package domain

import "errors"

// Sentinel errors for the two failure classes that cross package
// boundaries. Business-rule violations travel as structured validation
// results instead, never as errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

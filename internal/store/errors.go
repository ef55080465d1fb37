package store

import "errors"

var (
	// ErrNotFound is returned when a hash is not in the file index.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a caller's observed state no longer matches.
	ErrConflict = errors.New("conflict")
	// ErrInvalidRelationship is returned for contradictory relationship requests.
	ErrInvalidRelationship = errors.New("invalid relationship")
	// ErrCorrupt is returned when stored relationships violate an invariant.
	ErrCorrupt = errors.New("corrupt relationship store")
)

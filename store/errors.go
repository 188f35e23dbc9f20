package store

import "errors"

var (
	// ErrIndexOutOfRange is returned when an array index is outside [0, Len()).
	ErrIndexOutOfRange = errors.New("canopy: row index out of range")

	// ErrNotFound is returned when no row carries the requested primary key.
	ErrNotFound = errors.New("canopy: row not found")

	// ErrDuplicateKey is returned when an insert would store two rows with the same primary key.
	ErrDuplicateKey = errors.New("canopy: duplicate primary key")

	// ErrMissingPrimaryKey is returned when a row has no usable primary-key value.
	ErrMissingPrimaryKey = errors.New("canopy: row has no primary key")

	// ErrKeyMismatch is returned when an update would change a row's primary key.
	ErrKeyMismatch = errors.New("canopy: primary key cannot be reassigned")
)

package tree

import "errors"

var (
	// ErrUnknownKind is returned when Config.Kind names no adapter variant.
	ErrUnknownKind = errors.New("canopy: unknown tree adapter kind")

	// ErrCycle is returned when walking parents revisits a row.
	ErrCycle = errors.New("canopy: parent references form a cycle")
)

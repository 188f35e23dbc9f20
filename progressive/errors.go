package progressive

import (
	"errors"
	"fmt"

	"github.com/jacentio/canopy/store"
)

var (
	// ErrNotFolder is returned when expanding a row whose folder flag is false.
	ErrNotFolder = errors.New("canopy: row is not a folder")

	// ErrNoFetcher is returned when a fetch is needed but no Fetcher is configured.
	ErrNoFetcher = errors.New("canopy: no fetcher configured")

	// ErrUnstable is returned when the store kept mutating while an expansion
	// was reading it.
	ErrUnstable = errors.New("canopy: store changed during expand")

	// ErrClosed is returned by requests made after Close.
	ErrClosed = errors.New("canopy: loader is closed")
)

// FetchError wraps a failure to fetch or insert a node's children. The node
// stays in the needs-fetch state; a later request retries.
type FetchError struct {
	Key       store.Key // Parent whose children were requested
	RequestID string    // Correlates with log lines for this fetch
	Phase     string    // "fetch" or "insert"
	Cause     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s children of %q failed: %v", e.Phase, e.Key, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

package progressive

import "time"

// Config holds configuration for the Loader.
type Config struct {
	// FetchTimeout bounds a single fetch. Fetches run detached from the
	// requesting caller's context, so this is what stops a hung transport.
	// Default: 30s
	FetchTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FetchTimeout: 30 * time.Second,
	}
}

// validate fills defaults for unset values.
func (c *Config) validate() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

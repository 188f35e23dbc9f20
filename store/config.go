package store

// Config holds configuration for the Store.
type Config struct {
	// PrimaryKeyColumn is the column holding each row's stable identity.
	// Default: "primaryKey"
	PrimaryKeyColumn string

	// InitialCapacity pre-sizes the row slice and key index.
	// Default: 0
	InitialCapacity int
}

// DefaultConfig returns the conventional configuration.
func DefaultConfig() Config {
	return Config{
		PrimaryKeyColumn: "primaryKey",
	}
}

// validate fills defaults and clamps out-of-range values.
func (c *Config) validate() {
	if c.PrimaryKeyColumn == "" {
		c.PrimaryKeyColumn = "primaryKey"
	}
	if c.InitialCapacity < 0 {
		c.InitialCapacity = 0
	}
}

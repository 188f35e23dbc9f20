package stream

// Config holds configuration for the sync Handler.
type Config struct {
	// ParentColumn holds each row's parent key.
	// Default: "parent"
	ParentColumn string

	// RootSentinel is the parent value that marks a root row.
	// Default: "-1"
	RootSentinel string

	// PartitionAttr is the sharded parent index attribute, dropped from rows.
	// Default: "parent_pk"
	PartitionAttr string
}

// DefaultConfig returns the conventional configuration.
func DefaultConfig() Config {
	return Config{
		ParentColumn:  "parent",
		RootSentinel:  "-1",
		PartitionAttr: "parent_pk",
	}
}

// validate fills defaults for empty fields.
func (c *Config) validate() {
	if c.ParentColumn == "" {
		c.ParentColumn = "parent"
	}
	if c.RootSentinel == "" {
		c.RootSentinel = "-1"
	}
	if c.PartitionAttr == "" {
		c.PartitionAttr = "parent_pk"
	}
}

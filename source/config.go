package source

// Config holds configuration for a DynamoSource.
type Config struct {
	// TableName is the DynamoDB table holding tree rows.
	// Default: "canopy_nodes"
	TableName string

	// IndexName is the GSI keyed by PartitionAttr. Empty queries the base table.
	// Default: "by_parent"
	IndexName string

	// PartitionAttr holds the sharded parent partition key on every item.
	// Default: "parent_pk"
	PartitionAttr string

	// PrimaryKeyColumn and ParentColumn name the row columns used to compute
	// partition keys when writing rows.
	// Default: "primaryKey", "parent"
	PrimaryKeyColumn string
	ParentColumn     string

	// NumShards is the number of partitions a parent's children are spread
	// over. Must match the value used when the items were written.
	// Default: 1 (single query)
	// Max: 256
	NumShards int

	// PageSize limits items per Query page (0 = service default).
	PageSize int32
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		TableName:        "canopy_nodes",
		IndexName:        "by_parent",
		PartitionAttr:    "parent_pk",
		PrimaryKeyColumn: "primaryKey",
		ParentColumn:     "parent",
		NumShards:        1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "canopy_nodes"
	}
	if c.PartitionAttr == "" {
		c.PartitionAttr = "parent_pk"
	}
	if c.PrimaryKeyColumn == "" {
		c.PrimaryKeyColumn = "primaryKey"
	}
	if c.ParentColumn == "" {
		c.ParentColumn = "parent"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
}

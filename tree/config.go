package tree

import (
	"fmt"
	"strings"
)

// Kind selects a tree encoding.
type Kind int

const (
	// KindParentPointer reads a parent-key column and a folder column.
	KindParentPointer Kind = iota
	// KindNestedSet reads left/right interval columns.
	KindNestedSet
)

func (k Kind) String() string {
	switch k {
	case KindParentPointer:
		return "parent"
	case KindNestedSet:
		return "nestedset"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parent", "parentpointer":
		return KindParentPointer, nil
	case "nestedset", "nested":
		return KindNestedSet, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// Config holds configuration for an Adapter.
type Config struct {
	// Kind selects the encoding.
	// Default: KindParentPointer
	Kind Kind

	// ParentColumn holds the parent row's primary key (parent-pointer only).
	// Default: "parent"
	ParentColumn string

	// FolderColumn holds the declared "may have children" flag.
	// Default: "folder"
	FolderColumn string

	// RootSentinel is the parent value that marks a root. Compared after key
	// coercion, so "-1", -1 and -1.0 are all equivalent.
	// Default: "-1"
	RootSentinel string

	// LeftColumn and RightColumn hold the interval bounds (nested-set only).
	// Default: "lft", "rgt"
	LeftColumn  string
	RightColumn string
}

// DefaultConfig returns the parent-pointer configuration with conventional
// column names.
func DefaultConfig() Config {
	return Config{
		Kind:         KindParentPointer,
		ParentColumn: "parent",
		FolderColumn: "folder",
		RootSentinel: "-1",
		LeftColumn:   "lft",
		RightColumn:  "rgt",
	}
}

// validate fills defaults for empty fields.
func (c *Config) validate() {
	if c.ParentColumn == "" {
		c.ParentColumn = "parent"
	}
	if c.FolderColumn == "" {
		c.FolderColumn = "folder"
	}
	if strings.TrimSpace(c.RootSentinel) == "" {
		c.RootSentinel = "-1"
	}
	if c.LeftColumn == "" {
		c.LeftColumn = "lft"
	}
	if c.RightColumn == "" {
		c.RightColumn = "rgt"
	}
}

// Package store provides an ordered, in-memory row collection with both
// positional and primary-key addressing.
//
// A [Store] knows nothing about trees. It answers two kinds of questions:
// "what is in column C of the row at index i?" and "which index holds the row
// whose column C equals v?". Tree structure is layered on top by the tree
// package.
//
// # Index vs. Key
//
// Every row is addressable two ways:
//
//   - Array index: its current position. Volatile. Any insert or remove shifts
//     every later row, so a held index is stale the moment the Store mutates.
//   - Primary key: the value of the configured primary-key column. Stable and
//     unique for the lifetime of the row.
//
// Callers that need to remember a row across a mutation (for example, across
// an asynchronous fetch) must remember its [Key], never its index.
// [Store.Generation] increases on every mutation and can be used to detect
// that previously captured indices are stale.
//
// # Key Coercion
//
// Rows frequently arrive from serialized payloads, so the same key may show up
// as 7, 7.0, "7" or json.Number("7"). [KeyOf] canonicalizes all of these to the
// same [Key] so that joins across columns behave as expected.
//
// # Configuration
//
// Use [DefaultConfig] for the conventional "primaryKey" column:
//
//	s := store.New(store.DefaultConfig())
//	if err := s.Load(rows); err != nil {
//	    return err
//	}
//
// # Errors
//
//   - [ErrIndexOutOfRange] - caller passed an index outside [0, Len())
//   - [ErrNotFound] - no row with the given key
//   - [ErrDuplicateKey] - insert would violate primary-key uniqueness
//   - [ErrMissingPrimaryKey] - row lacks a usable primary-key value
package store

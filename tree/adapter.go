package tree

import (
	"fmt"

	"github.com/jacentio/canopy/store"
)

// Rows is the read-only view of a store that adapters query.
// *store.Store satisfies it.
type Rows interface {
	Len() int
	Get(column string, index int) (any, error)
	FindByColumn(column string, value any) (int, bool)
	FindAllByColumn(column string, value any) []int
	PrimaryKeyColumn() string
}

// Adapter answers structural queries by array index. All methods return an
// error wrapping store.ErrIndexOutOfRange for an invalid index.
//
// The set of implementations is closed: use New to obtain one.
type Adapter interface {
	// HasChildren reports whether the row may have descendants, whether or
	// not any are currently loaded.
	HasChildren(index int) (bool, error)

	// HasParent reports whether the row is not a root.
	HasParent(index int) (bool, error)

	// ParentIndex returns the parent's current index. ok is false when the
	// parent is not in the store.
	ParentIndex(index int) (parent int, ok bool, err error)

	// Children returns the current indices of the row's loaded children in
	// store order.
	Children(index int) ([]int, error)

	// Len returns the number of rows currently visible to the adapter.
	Len() int

	sealed()
}

// New builds the adapter variant selected by cfg.Kind.
func New(rows Rows, cfg Config) (Adapter, error) {
	cfg.validate()
	switch cfg.Kind {
	case KindParentPointer:
		return NewParentPointer(rows, cfg), nil
	case KindNestedSet:
		return NewNestedSet(rows, cfg), nil
	}
	return nil, fmt.Errorf("kind %v: %w", cfg.Kind, ErrUnknownKind)
}

// ScanChildren finds children by asking every row for its parent. It works
// for any encoding but costs one ParentIndex call per row.
func ScanChildren(a Adapter, index int) ([]int, error) {
	if index < 0 || index >= a.Len() {
		return nil, fmt.Errorf("index %d of %d: %w", index, a.Len(), store.ErrIndexOutOfRange)
	}
	var out []int
	for i := 0; i < a.Len(); i++ {
		if i == index {
			continue
		}
		p, ok, err := a.ParentIndex(i)
		if err != nil {
			return nil, err
		}
		if ok && p == index {
			out = append(out, i)
		}
	}
	return out, nil
}

// Roots returns the indices of rows that have no loaded parent: declared
// roots plus rows whose parent is outside the loaded window.
func Roots(a Adapter) ([]int, error) {
	var out []int
	for i := 0; i < a.Len(); i++ {
		_, ok, err := a.ParentIndex(i)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, i)
		}
	}
	return out, nil
}

// Ancestors returns the loaded ancestors of index, nearest first. The walk
// stops at the first parent that is not loaded.
func Ancestors(a Adapter, index int) ([]int, error) {
	var out []int
	seen := map[int]struct{}{index: {}}
	cur := index
	for {
		p, ok, err := a.ParentIndex(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("index %d: %w", index, ErrCycle)
		}
		seen[p] = struct{}{}
		out = append(out, p)
		cur = p
	}
}

// Depth returns the number of loaded ancestors of index.
func Depth(a Adapter, index int) (int, error) {
	anc, err := Ancestors(a, index)
	if err != nil {
		return 0, err
	}
	return len(anc), nil
}

package tree

import (
	"slices"

	"github.com/jacentio/canopy/store"
)

// ParentPointer adapts rows that carry their parent's primary key in a
// column, with a sentinel value for roots and a declared folder flag.
type ParentPointer struct {
	rows         Rows
	parentColumn string
	folderColumn string
	root         store.Key
}

// NewParentPointer creates a parent-pointer adapter over rows.
func NewParentPointer(rows Rows, cfg Config) *ParentPointer {
	cfg.validate()
	root, _ := store.KeyOf(cfg.RootSentinel)
	return &ParentPointer{
		rows:         rows,
		parentColumn: cfg.ParentColumn,
		folderColumn: cfg.FolderColumn,
		root:         root,
	}
}

func (p *ParentPointer) sealed() {}

// Len returns the number of rows in the underlying store.
func (p *ParentPointer) Len() int {
	return p.rows.Len()
}

// HasChildren returns the row's folder flag. A folder with no loaded
// children still reports true.
func (p *ParentPointer) HasChildren(index int) (bool, error) {
	v, err := p.rows.Get(p.folderColumn, index)
	if err != nil {
		return false, err
	}
	return store.Truthy(v), nil
}

// HasParent reports whether the row's parent value differs from the root
// sentinel. A parent that is declared but not loaded still counts.
func (p *ParentPointer) HasParent(index int) (bool, error) {
	_, ok, err := p.ParentKey(index)
	return ok, err
}

// ParentKey returns the row's declared parent key. ok is false for roots,
// including rows with an empty or missing parent value.
func (p *ParentPointer) ParentKey(index int) (store.Key, bool, error) {
	v, err := p.rows.Get(p.parentColumn, index)
	if err != nil {
		return "", false, err
	}
	k, ok := store.KeyOf(v)
	if !ok || k == p.root {
		return "", false, nil
	}
	return k, true, nil
}

// ParentIndex joins the parent key against the primary-key column to find
// the parent's current index.
func (p *ParentPointer) ParentIndex(index int) (int, bool, error) {
	k, ok, err := p.ParentKey(index)
	if err != nil || !ok {
		return -1, false, err
	}
	i, found := p.rows.FindByColumn(p.rows.PrimaryKeyColumn(), k)
	if !found {
		return -1, false, nil
	}
	return i, true, nil
}

// Children returns rows whose parent column names this row's key. A row that
// names itself as parent is not its own child.
func (p *ParentPointer) Children(index int) ([]int, error) {
	pk, err := p.rows.Get(p.rows.PrimaryKeyColumn(), index)
	if err != nil {
		return nil, err
	}
	k, ok := store.KeyOf(pk)
	if !ok {
		return nil, nil
	}
	return slices.DeleteFunc(p.rows.FindAllByColumn(p.parentColumn, k), func(i int) bool {
		return i == index
	}), nil
}

package tree

import (
	"strconv"

	"github.com/jacentio/canopy/store"
)

// NestedSet adapts rows that carry left/right interval bounds: a row's
// descendants are exactly the rows whose interval it strictly encloses.
//
// Parents are found by scanning for the tightest enclosing loaded interval,
// so ParentIndex is O(n). Nothing is cached between calls.
type NestedSet struct {
	rows         Rows
	leftColumn   string
	rightColumn  string
	folderColumn string
}

// NewNestedSet creates a nested-set adapter over rows.
func NewNestedSet(rows Rows, cfg Config) *NestedSet {
	cfg.validate()
	return &NestedSet{
		rows:         rows,
		leftColumn:   cfg.LeftColumn,
		rightColumn:  cfg.RightColumn,
		folderColumn: cfg.FolderColumn,
	}
}

func (n *NestedSet) sealed() {}

// Len returns the number of rows in the underlying store.
func (n *NestedSet) Len() int {
	return n.rows.Len()
}

// HasChildren uses the folder flag when the row carries one, and otherwise
// whether the interval has room for descendants (rgt - lft > 1).
func (n *NestedSet) HasChildren(index int) (bool, error) {
	v, err := n.rows.Get(n.folderColumn, index)
	if err != nil {
		return false, err
	}
	if v != nil {
		return store.Truthy(v), nil
	}
	l, r, ok, err := n.bounds(index)
	if err != nil || !ok {
		return false, err
	}
	return r-l > 1, nil
}

// HasParent reports whether some loaded row encloses this one.
func (n *NestedSet) HasParent(index int) (bool, error) {
	_, ok, err := n.ParentIndex(index)
	return ok, err
}

// ParentIndex returns the loaded row with the tightest interval enclosing
// this row's interval.
func (n *NestedSet) ParentIndex(index int) (int, bool, error) {
	l, r, ok, err := n.bounds(index)
	if err != nil || !ok {
		return -1, false, err
	}
	best, bestLeft := -1, int64(0)
	for i := 0; i < n.rows.Len(); i++ {
		if i == index {
			continue
		}
		pl, pr, ok, err := n.bounds(i)
		if err != nil {
			return -1, false, err
		}
		if !ok || pl >= l || pr <= r {
			continue
		}
		if best < 0 || pl > bestLeft {
			best, bestLeft = i, pl
		}
	}
	return best, best >= 0, nil
}

// Children scans every row for its parent.
func (n *NestedSet) Children(index int) ([]int, error) {
	return ScanChildren(n, index)
}

// bounds reads the interval of the row at index. ok is false when either
// bound is missing or not an integer.
func (n *NestedSet) bounds(index int) (int64, int64, bool, error) {
	lv, err := n.rows.Get(n.leftColumn, index)
	if err != nil {
		return 0, 0, false, err
	}
	rv, err := n.rows.Get(n.rightColumn, index)
	if err != nil {
		return 0, 0, false, err
	}
	l, okL := toInt(lv)
	r, okR := toInt(rv)
	return l, r, okL && okR, nil
}

func toInt(v any) (int64, bool) {
	k, ok := store.KeyOf(v)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(string(k), 10, 64)
	return i, err == nil
}

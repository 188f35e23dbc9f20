package store

import (
	"fmt"
	"slices"
	"sync"
)

// Store is an ordered row collection addressable by array index and by
// primary key. It is safe for concurrent use; every mutation is applied
// atomically, so readers never observe a partially inserted batch.
type Store struct {
	mu     sync.RWMutex
	config Config
	rows   []Row
	byKey  map[Key]int // primary key -> current index, rebuilt on mutation
	gen    uint64
}

// New creates a new empty Store.
func New(config Config) *Store {
	config.validate()
	return &Store{
		config: config,
		rows:   make([]Row, 0, config.InitialCapacity),
		byKey:  make(map[Key]int, config.InitialCapacity),
	}
}

// PrimaryKeyColumn returns the configured primary-key column name.
func (s *Store) PrimaryKeyColumn() string {
	return s.config.PrimaryKeyColumn
}

// Len returns the number of rows currently in the Store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Generation returns a counter that increases on every mutation. Two equal
// generations bracket a window in which captured indices stayed valid.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Get returns the value of column in the row at index. A missing column
// yields nil; an invalid index yields ErrIndexOutOfRange.
func (s *Store) Get(column string, index int) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	return s.rows[index][column], nil
}

// Row returns the row at index. The returned map is owned by the Store and
// must not be modified; use Update instead.
func (s *Store) Row(index int) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	return s.rows[index], nil
}

// KeyAt returns the primary key of the row at index.
func (s *Store) KeyAt(index int) (Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkIndex(index); err != nil {
		return "", err
	}
	k, _ := KeyOf(s.rows[index][s.config.PrimaryKeyColumn])
	return k, nil
}

// IndexOf returns the current index of the row with the given key.
func (s *Store) IndexOf(key Key) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[key]
	return i, ok
}

// Lookup returns the row with the given key.
func (s *Store) Lookup(key Key) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	return s.rows[i], true
}

// FindByColumn returns the index of the first row whose column equals value
// under key coercion. Lookups on the primary-key column use the key index;
// other columns are scanned.
func (s *Store) FindByColumn(column string, value any) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if column == s.config.PrimaryKeyColumn {
		k, ok := KeyOf(value)
		if !ok {
			return -1, false
		}
		i, ok := s.byKey[k]
		if !ok {
			return -1, false
		}
		return i, true
	}

	for i, row := range s.rows {
		if equalValues(row[column], value) {
			return i, true
		}
	}
	return -1, false
}

// FindAllByColumn returns the indices of every row whose column equals value.
func (s *Store) FindAllByColumn(column string, value any) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int
	for i, row := range s.rows {
		if equalValues(row[column], value) {
			out = append(out, i)
		}
	}
	return out
}

// Each calls fn for every row in order under a read lock. fn must not call
// back into the Store's mutating methods.
func (s *Store) Each(fn func(index int, row Row) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, row := range s.rows {
		if !fn(i, row) {
			return
		}
	}
}

// Load replaces the entire contents of the Store.
func (s *Store) Load(rows []Row) error {
	prepared, err := s.prepare(rows, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = prepared
	s.reindex(0)
	s.gen++
	return nil
}

// Append adds rows at the end of the Store.
func (s *Store) Append(rows ...Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(len(s.rows), rows)
}

// Insert adds rows starting at index, shifting later rows. index may equal
// Len() to append.
func (s *Store) Insert(index int, rows ...Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index > len(s.rows) {
		return fmt.Errorf("insert at %d of %d: %w", index, len(s.rows), ErrIndexOutOfRange)
	}
	return s.insertLocked(index, rows)
}

// InsertAfter adds rows directly after the row with the given key, resolving
// its position under the same lock as the insert. It returns the index of the
// first inserted row.
func (s *Store) InsertAfter(key Key, rows ...Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return -1, fmt.Errorf("insert after %q: %w", key, ErrNotFound)
	}
	if err := s.insertLocked(i+1, rows); err != nil {
		return -1, err
	}
	return i + 1, nil
}

// Update replaces the row with the given key. The replacement must carry the
// same primary key.
func (s *Store) Update(key Key, row Row) error {
	k, ok := KeyOf(row[s.config.PrimaryKeyColumn])
	if !ok {
		return ErrMissingPrimaryKey
	}
	if k != key {
		return fmt.Errorf("update %q to %q: %w", key, k, ErrKeyMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("update %q: %w", key, ErrNotFound)
	}
	s.rows[i] = row.Clone()
	s.gen++
	return nil
}

// Remove deletes the rows with the given keys. Unknown keys are ignored.
// It returns the number of rows removed.
func (s *Store) Remove(keys ...Key) int {
	if len(keys) == 0 {
		return 0
	}
	drop := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := -1
	kept := s.rows[:0]
	removed := 0
	for i, row := range s.rows {
		k, _ := KeyOf(row[s.config.PrimaryKeyColumn])
		if _, ok := drop[k]; ok {
			delete(s.byKey, k)
			removed++
			if first < 0 {
				first = i
			}
			continue
		}
		kept = append(kept, row)
	}
	if removed == 0 {
		return 0
	}
	clear(s.rows[len(kept):])
	s.rows = kept
	s.reindex(first)
	s.gen++
	return removed
}

// insertLocked validates and splices rows in at index. Nothing is applied
// when any row fails validation. Callers must hold s.mu.
func (s *Store) insertLocked(index int, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	prepared, err := s.prepare(rows, s.byKey)
	if err != nil {
		return err
	}
	s.rows = slices.Insert(s.rows, index, prepared...)
	s.reindex(index)
	s.gen++
	return nil
}

// prepare clones rows and checks that each has a primary key unique within
// the batch and, when existing is non-nil, against the existing key index.
func (s *Store) prepare(rows []Row, existing map[Key]int) ([]Row, error) {
	out := make([]Row, len(rows))
	seen := make(map[Key]struct{}, len(rows))
	for i, row := range rows {
		k, ok := KeyOf(row[s.config.PrimaryKeyColumn])
		if !ok {
			return nil, fmt.Errorf("row %d: %w", i, ErrMissingPrimaryKey)
		}
		if _, dup := seen[k]; dup {
			return nil, fmt.Errorf("row %d key %q: %w", i, k, ErrDuplicateKey)
		}
		if _, dup := existing[k]; dup {
			return nil, fmt.Errorf("row %d key %q: %w", i, k, ErrDuplicateKey)
		}
		seen[k] = struct{}{}
		out[i] = row.Clone()
	}
	return out, nil
}

// reindex refreshes byKey for every row from position from onward.
// Callers must hold s.mu.
func (s *Store) reindex(from int) {
	if from == 0 {
		clear(s.byKey)
	}
	for i := from; i < len(s.rows); i++ {
		k, _ := KeyOf(s.rows[i][s.config.PrimaryKeyColumn])
		s.byKey[k] = i
	}
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.rows) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.rows), ErrIndexOutOfRange)
	}
	return nil
}

// Package progressive loads a tree's subtrees on demand.
//
// A [Loader] sits between a tree adapter and a remote [Fetcher]. When a
// folder row is expanded and none of its children are in the store, the
// Loader fetches them, keyed by the folder's primary key, and inserts them
// into the store in one atomic batch directly after the folder's current
// position.
//
// Indices are only read before a fetch starts. Everything that happens after
// the fetch (positioning the insert, marking the node loaded) is resolved by
// primary key, since the store may have mutated while the fetch was in
// flight.
//
// At most one fetch per key is in flight. A second request for the same key
// joins the first and receives its result. Collapsing a node does not cancel
// its fetch: the rows are valid data and are inserted regardless.
package progressive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// Fetcher retrieves the direct children of a parent from a remote source.
type Fetcher interface {
	FetchChildren(ctx context.Context, parent store.Key) ([]store.Row, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, parent store.Key) ([]store.Row, error)

// FetchChildren calls f.
func (f FetcherFunc) FetchChildren(ctx context.Context, parent store.Key) ([]store.Row, error) {
	return f(ctx, parent)
}

// Result describes the outcome of an expansion or children request.
type Result struct {
	// Key is the primary key of the expanded node.
	Key store.Key

	// Fetched is true when the request was served by a remote fetch, either
	// one it issued or one already in flight.
	Fetched bool

	// Shared is true when the fetch was shared with other requests.
	Shared bool

	// Inserted is the number of rows the fetch added to the store.
	Inserted int
}

// Outcome pairs a Result with its error for asynchronous delivery.
type Outcome struct {
	Result Result
	Err    error
}

// Loader coordinates on-demand subtree fetches for one store.
type Loader struct {
	store   *store.Store
	adapter tree.Adapter
	fetcher Fetcher
	config  Config
	logger  *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	fetched  map[store.Key]struct{}
	inflight map[store.Key]string // key -> request ID
	expanded map[store.Key]struct{}

	// Fetches run under ctx rather than the caller's context.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Loader. adapter must be built over s.
func New(s *store.Store, adapter tree.Adapter, fetcher Fetcher, config Config, logger *slog.Logger) *Loader {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		store:    s,
		adapter:  adapter,
		fetcher:  fetcher,
		config:   config,
		logger:   logger,
		fetched:  make(map[store.Key]struct{}),
		inflight: make(map[store.Key]string),
		expanded: make(map[store.Key]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels every in-flight fetch. Further requests fail with ErrClosed.
func (l *Loader) Close() {
	l.cancel()
}

// Expand marks the folder at index as expanded and, if its children are not
// loaded, fetches them. It blocks until the fetch completes or ctx is done;
// an abandoned wait does not cancel the fetch.
func (l *Loader) Expand(ctx context.Context, index int) (Result, error) {
	key, need, err := l.prepareExpand(index)
	if err != nil || !need {
		return Result{Key: key}, err
	}
	return l.RequestChildren(ctx, key)
}

// ExpandAsync is Expand for callers that must not block. The returned
// channel receives exactly one Outcome and is then closed.
func (l *Loader) ExpandAsync(ctx context.Context, index int) <-chan Outcome {
	out := make(chan Outcome, 1)
	key, need, err := l.prepareExpand(index)
	if err != nil || !need {
		out <- Outcome{Result: Result{Key: key}, Err: err}
		close(out)
		return out
	}
	go func() {
		defer close(out)
		r, err := l.RequestChildren(ctx, key)
		out <- Outcome{Result: r, Err: err}
	}()
	return out
}

// maxResolveAttempts bounds how often prepareExpand re-reads the store when
// another mutator keeps changing it.
const maxResolveAttempts = 16

// prepareExpand does the synchronous part of Expand and reports whether a
// fetch is needed. index is only used to find the key; the folder flag and
// loaded children are read at the key's current index, and re-read if the
// store mutated in between.
func (l *Loader) prepareExpand(index int) (store.Key, bool, error) {
	key, err := l.store.KeyAt(index)
	if err != nil {
		return "", false, err
	}

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		gen := l.store.Generation()
		need, err := l.needsFetch(key)
		if l.store.Generation() != gen {
			continue
		}
		if err != nil {
			return key, false, err
		}
		if !need {
			// Children arrived with the initial load or from another mutator.
			l.markFetched(key)
		}
		return key, need, nil
	}
	return key, false, fmt.Errorf("expand %q: %w", key, ErrUnstable)
}

// needsFetch marks key as expanded and reports whether none of its children
// are loaded. Callers must check the store generation around it.
func (l *Loader) needsFetch(key store.Key) (bool, error) {
	i, ok := l.store.IndexOf(key)
	if !ok {
		return false, fmt.Errorf("expand %q: %w", key, store.ErrNotFound)
	}
	folder, err := l.adapter.HasChildren(i)
	if err != nil {
		return false, err
	}
	if !folder {
		return false, ErrNotFolder
	}

	l.mu.Lock()
	l.expanded[key] = struct{}{}
	_, done := l.fetched[key]
	l.mu.Unlock()
	if done {
		return false, nil
	}

	kids, err := l.adapter.Children(i)
	if err != nil {
		return false, err
	}
	return len(kids) == 0, nil
}

// RequestChildren fetches and inserts the children of key unless they were
// already fetched. Concurrent requests for the same key share one fetch.
func (l *Loader) RequestChildren(ctx context.Context, key store.Key) (Result, error) {
	if l.ctx.Err() != nil {
		return Result{Key: key}, ErrClosed
	}
	if l.fetcher == nil {
		return Result{Key: key}, ErrNoFetcher
	}
	if l.Fetched(key) {
		return Result{Key: key}, nil
	}

	ch := l.group.DoChan(string(key), func() (any, error) {
		return l.fetch(key)
	})

	select {
	case res := <-ch:
		r := Result{Key: key, Fetched: true, Shared: res.Shared}
		if n, ok := res.Val.(int); ok {
			r.Inserted = n
		}
		return r, res.Err
	case <-ctx.Done():
		l.logger.Debug("stopped waiting for children",
			"key", key,
			"error", ctx.Err(),
		)
		return Result{Key: key}, ctx.Err()
	}
}

// fetch runs one fetch-and-insert cycle for key. It is only ever executed
// by the singleflight group, so at most one runs per key.
func (l *Loader) fetch(key store.Key) (int, error) {
	requestID := uuid.NewString()

	l.mu.Lock()
	if _, done := l.fetched[key]; done {
		l.mu.Unlock()
		return 0, nil
	}
	l.inflight[key] = requestID
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.inflight, key)
		l.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(l.ctx, l.config.FetchTimeout)
	defer cancel()

	l.logger.Debug("fetching children",
		"key", key,
		"requestID", requestID,
	)

	rows, err := l.fetcher.FetchChildren(ctx, key)
	if err != nil {
		l.logger.Warn("failed to fetch children",
			"key", key,
			"requestID", requestID,
			"error", err,
		)
		return 0, &FetchError{Key: key, RequestID: requestID, Phase: "fetch", Cause: err}
	}

	rows = l.withoutLoaded(rows)
	at, err := l.insert(key, rows)
	if err != nil {
		l.logger.Warn("failed to insert children",
			"key", key,
			"requestID", requestID,
			"rowCount", len(rows),
			"error", err,
		)
		return 0, &FetchError{Key: key, RequestID: requestID, Phase: "insert", Cause: err}
	}

	l.markFetched(key)

	l.mu.Lock()
	_, stillExpanded := l.expanded[key]
	l.mu.Unlock()

	l.logger.Info("children inserted",
		"key", key,
		"requestID", requestID,
		"rowCount", len(rows),
		"index", at,
		"expanded", stillExpanded,
	)
	return len(rows), nil
}

// insert places rows directly after the parent's current position, or at
// the end when the parent has since been removed from the store.
func (l *Loader) insert(parent store.Key, rows []store.Row) (int, error) {
	if len(rows) == 0 {
		return -1, nil
	}
	at, err := l.store.InsertAfter(parent, rows...)
	if errors.Is(err, store.ErrNotFound) {
		at = l.store.Len()
		err = l.store.Append(rows...)
	}
	return at, err
}

// withoutLoaded drops rows whose key is already in the store, which happens
// when another mutator inserted them while the fetch was in flight.
func (l *Loader) withoutLoaded(rows []store.Row) []store.Row {
	pkCol := l.store.PrimaryKeyColumn()
	out := rows[:0:0]
	for _, r := range rows {
		if k, ok := store.KeyOf(r[pkCol]); ok {
			if _, exists := l.store.IndexOf(k); exists {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func (l *Loader) markFetched(key store.Key) {
	l.mu.Lock()
	l.fetched[key] = struct{}{}
	l.mu.Unlock()
}

// Collapse marks key as no longer expanded. An in-flight fetch for key
// continues and still inserts its rows.
func (l *Loader) Collapse(key store.Key) {
	l.mu.Lock()
	delete(l.expanded, key)
	l.mu.Unlock()
}

// Expanded reports whether key is currently expanded.
func (l *Loader) Expanded(key store.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.expanded[key]
	return ok
}

// Fetched reports whether key's children have been loaded.
func (l *Loader) Fetched(key store.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fetched[key]
	return ok
}

// InFlight reports whether a fetch for key is running.
func (l *Loader) InFlight(key store.Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[key]
	return ok
}

// Forget drops key's fetched and expanded state, for example after its rows
// were removed from the store. The next expansion fetches again.
func (l *Loader) Forget(key store.Key) {
	l.mu.Lock()
	delete(l.fetched, key)
	delete(l.expanded, key)
	l.mu.Unlock()
}

// ABOUTME: Reader/writer locks keyed by the base table at the root of a view tree
// ABOUTME: Work on one index never waits for schema changes or inserts on another
package core

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/harper/mediaindex/internal/models"
	"github.com/harper/mediaindex/internal/storage/sqlite"
)

type treeLock struct {
	sync.RWMutex
	refs int
}

// treeLocks hands out one RWMutex per root table, dropping entries nobody holds
type treeLocks struct {
	mu    sync.Mutex
	locks map[string]*treeLock
}

func newTreeLocks() *treeLocks {
	return &treeLocks{locks: map[string]*treeLock{}}
}

func (t *treeLocks) acquire(root string, exclusive bool) func() {
	t.mu.Lock()
	l, ok := t.locks[root]
	if !ok {
		l = &treeLock{}
		t.locks[root] = l
	}
	l.refs++
	t.mu.Unlock()

	if exclusive {
		l.Lock()
	} else {
		l.RLock()
	}
	return func() {
		if exclusive {
			l.Unlock()
		} else {
			l.RUnlock()
		}
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, root)
		}
		t.mu.Unlock()
	}
}

// rootOf follows view bases up to the base table. A name that is not in the
// catalog is its own root.
func rootOf(ctx context.Context, s *sqlite.Stores, name string) (string, error) {
	seen := map[string]bool{}
	for {
		info, err := s.Catalog.Get(ctx, name)
		if models.IsNotFound(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
		if info.Kind != models.KindView || info.Base == "" || seen[name] {
			return name, nil
		}
		seen[name] = true
		name = info.Base
	}
}

// lockTrees locks the trees containing names, exclusively or shared, in root
// name order. Roots are resolved again once the locks are held so a
// concurrent drop or replace cannot move a name to another tree underneath
// the caller.
func (e *Engine) lockTrees(ctx context.Context, exclusive bool, names ...string) (func(), error) {
	stores := e.db.Stores()
	resolve := func() ([]string, error) {
		set := map[string]bool{}
		for _, n := range names {
			root, err := rootOf(ctx, stores, n)
			if err != nil {
				return nil, err
			}
			set[root] = true
		}
		roots := make([]string, 0, len(set))
		for r := range set {
			roots = append(roots, r)
		}
		sort.Strings(roots)
		return roots, nil
	}

	for {
		roots, err := resolve()
		if err != nil {
			return nil, err
		}
		unlocks := make([]func(), len(roots))
		for i, r := range roots {
			unlocks[i] = e.locks.acquire(r, exclusive)
		}
		release := func() {
			for i := len(unlocks) - 1; i >= 0; i-- {
				unlocks[i]()
			}
		}
		again, err := resolve()
		if err != nil {
			release()
			return nil, err
		}
		if slices.Equal(roots, again) {
			return release, nil
		}
		release()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// ABOUTME: Per-name mutual exclusion for index setup and schema changes
// ABOUTME: Local in-process locks, optionally chained with a Redis lock across replicas
package lock

import (
	"context"
	"sync"
)

// Locker serializes work on a named resource. The returned function releases
// the lock and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// Local is an in-process lock keyed by name
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an empty local lock set
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock blocks until name is free or ctx is done
func (l *Local) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[name]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[name] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(name, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(name, e)
		})
	}, nil
}

// drop forgets an entry once nobody holds or waits on it
func (l *Local) drop(name string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, name)
	}
}

// Chain acquires each locker in order and releases in reverse
type Chain []Locker

func (c Chain) Lock(ctx context.Context, name string) (func(), error) {
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		if l == nil {
			continue
		}
		r, err := l.Lock(ctx, name)
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, r)
	}
	return release, nil
}

package reference

import (
	"context"
	"sync"
)

// Future hands a demographics Set from the task that builds it to the tasks that join against
// it. Resolve happens once; Wait is the only synchronization point.
type Future struct {
	once sync.Once
	done chan struct{}
	set  *Set
	err  error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(set *Set) *Future {
	f := NewFuture()
	f.Resolve(set, nil)
	return f
}

// Resolve completes the future. Later calls are ignored.
func (f *Future) Resolve(set *Set, err error) {
	f.once.Do(func() {
		f.set, f.err = set, err
		close(f.done)
	})
}

// Wait blocks until the set is resolved or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Set, error) {
	select {
	case <-f.done:
		return f.set, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready reports whether Resolve has been called.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

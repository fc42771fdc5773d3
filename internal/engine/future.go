package engine

import (
	"github.com/verveworks/verve/internal/value"
)

// future is the binding of a result name to an eager effect still in
// flight. The executor starts the effect's goroutine, binds the future, and
// moves on; the first Resolve of the name (or execution end) forces it.
type future struct {
	done chan struct{}
	val  value.Value
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// complete publishes the effect's outcome. Called exactly once, from the
// effect's goroutine.
func (f *future) complete(v value.Value, err error) {
	f.val = v
	f.err = err
	close(f.done)
}

// wait blocks until the effect finishes and returns its outcome.
func (f *future) wait() (value.Value, error) {
	<-f.done
	return f.val, f.err
}

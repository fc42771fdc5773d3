package engine

import (
	"sync"

	"github.com/verveworks/verve/internal/value"
)

// ActivityScope holds variables published within one business activity of a
// single triggering-event cascade. Handler executions spawned by the same
// cascade and tagged with the same activity share one scope; it is discarded
// with the cascade.
type ActivityScope struct {
	mu   sync.RWMutex
	vars map[string]value.Value
}

// NewActivityScope creates an empty activity scope.
func NewActivityScope() *ActivityScope {
	return &ActivityScope{vars: make(map[string]value.Value)}
}

func (s *ActivityScope) get(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *ActivityScope) put(name string, v value.Value) {
	s.mu.Lock()
	s.vars[name] = v
	s.mu.Unlock()
}

// ExecContext is the per-execution variable store. Locals are only touched
// from the execution's own goroutine, so they carry no lock; the activity
// scope is shared across the cascade and synchronizes internally.
type ExecContext struct {
	executionID string
	local       map[string]value.Value
	futures     map[string]*future
	activity    *ActivityScope
}

// NewExecContext creates a context with the given pre-bound inputs.
// inputs may be nil.
func NewExecContext(executionID string, activity *ActivityScope, inputs map[string]value.Value) *ExecContext {
	local := make(map[string]value.Value, len(inputs)+8)
	for k, v := range inputs {
		local[k] = v
	}
	return &ExecContext{
		executionID: executionID,
		local:       local,
		futures:     make(map[string]*future),
		activity:    activity,
	}
}

// ExecutionID returns this execution's id.
func (c *ExecContext) ExecutionID() string {
	return c.executionID
}

// Resolve looks a name up in local scope first, then the activity scope.
// A name bound to a pending eager effect blocks until the effect completes;
// a read always observes the completed value. Unknown names fail with
// UNDEFINED_VARIABLE.
func (c *ExecContext) Resolve(name string) (value.Value, error) {
	if v, ok := c.local[name]; ok {
		return v, nil
	}
	if f, ok := c.futures[name]; ok {
		v, err := f.wait()
		if err != nil {
			return nil, err
		}
		// Cache the forced value so later reads skip the future.
		c.local[name] = v
		delete(c.futures, name)
		return v, nil
	}
	if c.activity != nil {
		if v, ok := c.activity.get(name); ok {
			return v, nil
		}
	}
	return nil, newUndefinedVariable(name)
}

// Bind writes a local binding. Redefinition replaces the previous value
// (last writer wins); a pending future under the same name is abandoned.
func (c *ExecContext) Bind(name string, v value.Value) {
	delete(c.futures, name)
	c.local[name] = v
}

// bindFuture binds a name to an in-flight eager effect.
func (c *ExecContext) bindFuture(name string, f *future) {
	delete(c.local, name)
	c.futures[name] = f
}

// Publish copies the current value of a local binding into the activity
// scope under the alias, making it visible to other feature sets of the
// same activity within this cascade.
func (c *ExecContext) Publish(alias, localName string) error {
	v, err := c.Resolve(localName)
	if err != nil {
		return err
	}
	c.PublishValue(alias, v)
	return nil
}

// PublishValue places an already-resolved value into the activity scope.
func (c *ExecContext) PublishValue(alias string, v value.Value) {
	if c.activity == nil {
		return
	}
	c.activity.put(alias, v)
}

// settle forces every pending future, returning the first failure. Called
// at execution end so eager effects cannot outlive their execution, and
// before effect-class statements to preserve side-effect ordering.
func (c *ExecContext) settle() error {
	var firstErr error
	for name, f := range c.futures {
		v, err := f.wait()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			delete(c.futures, name)
			continue
		}
		c.local[name] = v
		delete(c.futures, name)
	}
	return firstErr
}

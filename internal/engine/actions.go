package engine

import (
	"context"
	"fmt"

	"github.com/verveworks/verve/internal/bus"
	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/state"
	"github.com/verveworks/verve/internal/value"
)

// registerBuiltins installs the built-in vocabulary. Pure verbs close over
// nothing; effect verbs close over the runtime for repository access and
// event emission.
func registerBuiltins(reg *Registry, rt *Runtime) error {
	actions := []Action{
		{
			Verb:         "put",
			Prepositions: []lang.Preposition{lang.PrepInto, lang.PrepAs},
			Class:        ClassCompute,
			Effect: func(_ context.Context, _ *ExecContext, _ lang.Statement, object value.Value) (value.Value, error) {
				return object, nil
			},
		},
		{
			Verb:         "filter",
			Prepositions: []lang.Preposition{lang.PrepFrom},
			Class:        ClassElementWise,
			Element:      filterElement,
		},
		{
			Verb:         "pick",
			Prepositions: []lang.Preposition{lang.PrepFrom},
			Class:        ClassElementWise,
			Element:      pickElement,
		},
		{
			Verb:         "sum",
			Prepositions: []lang.Preposition{lang.PrepOf, lang.PrepFrom},
			Class:        ClassAggregate,
			NewFold:      func(stmt lang.Statement) Fold { return &sumFold{stmt: stmt} },
		},
		{
			Verb:         "count",
			Prepositions: []lang.Preposition{lang.PrepOf, lang.PrepFrom},
			Class:        ClassAggregate,
			NewFold:      func(stmt lang.Statement) Fold { return &countFold{stmt: stmt} },
		},
		{
			Verb:         "average",
			Prepositions: []lang.Preposition{lang.PrepOf, lang.PrepFrom},
			Class:        ClassAggregate,
			NewFold:      func(stmt lang.Statement) Fold { return &averageFold{stmt: stmt} },
		},
		{
			Verb:         "min",
			Prepositions: []lang.Preposition{lang.PrepOf, lang.PrepFrom},
			Class:        ClassAggregate,
			NewFold:      func(stmt lang.Statement) Fold { return &extremumFold{stmt: stmt, keepLess: true} },
		},
		{
			Verb:         "max",
			Prepositions: []lang.Preposition{lang.PrepOf, lang.PrepFrom},
			Class:        ClassAggregate,
			NewFold:      func(stmt lang.Statement) Fold { return &extremumFold{stmt: stmt} },
		},
		{
			Verb:         "store",
			Prepositions: []lang.Preposition{lang.PrepInto, lang.PrepIn},
			Class:        ClassEffect,
			Effect:       rt.storeEffect,
		},
		{
			Verb:         "retrieve",
			Prepositions: []lang.Preposition{lang.PrepFrom},
			Class:        ClassEffect,
			Async:        true,
			ObjectIsName: true,
			Effect:       rt.retrieveEffect,
		},
		{
			Verb:         "remove",
			Prepositions: []lang.Preposition{lang.PrepFrom},
			Class:        ClassEffect,
			ObjectIsName: true,
			Effect:       rt.removeEffect,
		},
		{
			Verb:         "accept",
			Prepositions: []lang.Preposition{lang.PrepOf},
			Class:        ClassEffect,
			Effect:       rt.acceptEffect,
		},
		{
			Verb:         "publish",
			Prepositions: []lang.Preposition{lang.PrepAs},
			Class:        ClassCompute,
			Effect: func(_ context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
				if stmt.Target == "" {
					return nil, fmt.Errorf("publish needs an alias")
				}
				exec.PublishValue(stmt.Target, object)
				return object, nil
			},
		},
		{
			Verb:         "announce",
			Prepositions: []lang.Preposition{lang.PrepAs},
			Class:        ClassEffect,
			Effect:       rt.announceEffect,
		},
	}
	for _, a := range actions {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// filterElement keeps elements the statement predicate accepts. A missing
// predicate keeps everything; a predicate over a missing field drops the
// element without error.
func filterElement(stmt lang.Statement, elem value.Value) (value.Value, bool, error) {
	if stmt.Where == nil {
		return elem, true, nil
	}
	ok, err := stmt.Where.Eval(elem)
	if err != nil {
		return nil, false, err
	}
	return elem, ok, nil
}

// pickElement projects the statement's field path from each element.
// Elements without the field project to null, keeping positions aligned
// with the source.
func pickElement(stmt lang.Statement, elem value.Value) (value.Value, bool, error) {
	if stmt.Path == "" {
		return elem, true, nil
	}
	v, ok := value.At(elem, stmt.Path)
	if !ok {
		return value.Null{}, true, nil
	}
	return v, true, nil
}

// foldNumber extracts the numeric operand of one element, applying the
// statement's field path first when set.
func foldNumber(stmt lang.Statement, elem value.Value) (float64, error) {
	v := elem
	if stmt.Path != "" {
		field, ok := value.At(elem, stmt.Path)
		if !ok {
			return 0, fmt.Errorf("field %q missing from element", stmt.Path)
		}
		v = field
	}
	n, ok := v.(value.Number)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	return float64(n), nil
}

type sumFold struct {
	stmt  lang.Statement
	total float64
}

func (f *sumFold) Add(elem value.Value) error {
	n, err := foldNumber(f.stmt, elem)
	if err != nil {
		return err
	}
	f.total += n
	return nil
}

func (f *sumFold) Result() value.Value { return value.Num(f.total) }

// countFold counts elements. Path, when set, requires the field to be
// present for the element to count.
type countFold struct {
	stmt lang.Statement
	n    int
}

func (f *countFold) Add(elem value.Value) error {
	if f.stmt.Path != "" {
		if _, ok := value.At(elem, f.stmt.Path); !ok {
			return nil
		}
	}
	f.n++
	return nil
}

func (f *countFold) Result() value.Value { return value.Num(float64(f.n)) }

type averageFold struct {
	stmt  lang.Statement
	total float64
	n     int
}

func (f *averageFold) Add(elem value.Value) error {
	v, err := foldNumber(f.stmt, elem)
	if err != nil {
		return err
	}
	f.total += v
	f.n++
	return nil
}

// Result of an empty average is null, not a division error.
func (f *averageFold) Result() value.Value {
	if f.n == 0 {
		return value.Null{}
	}
	return value.Num(f.total / float64(f.n))
}

// extremumFold tracks min or max. Empty input folds to null.
type extremumFold struct {
	stmt     lang.Statement
	keepLess bool
	cur      float64
	seen     bool
}

func (f *extremumFold) Add(elem value.Value) error {
	v, err := foldNumber(f.stmt, elem)
	if err != nil {
		return err
	}
	if !f.seen || (f.keepLess && v < f.cur) || (!f.keepLess && v > f.cur) {
		f.cur = v
		f.seen = true
	}
	return nil
}

func (f *extremumFold) Result() value.Value {
	if !f.seen {
		return value.Null{}
	}
	return value.Num(f.cur)
}

// storeEffect persists the object into the statement's target repository,
// fans the change event out to repository observers, and binds the change
// description.
func (rt *Runtime) storeEffect(ctx context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
	if stmt.Target == "" {
		return nil, fmt.Errorf("store needs a target repository")
	}
	ev := rt.repos.Store(stmt.Target, object)
	rt.recordRepoChange(ctx, exec.ExecutionID(), ev)
	return changePayload(ev), nil
}

// retrieveEffect reads the named repository, optionally filtered. Marked
// Async: the read may start eagerly, the result forced at first use.
func (rt *Runtime) retrieveEffect(_ context.Context, _ *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
	name := string(object.(value.String))
	return rt.repos.Retrieve(name, stmt.Where)
}

// removeEffect deletes the most recent matching entry from the named
// repository, emitting the Deleted event. Binds the removed value, or null
// when nothing matched.
func (rt *Runtime) removeEffect(ctx context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
	name := string(object.(value.String))
	ev, found, err := rt.repos.Delete(name, stmt.Where)
	if err != nil {
		return nil, err
	}
	if !found {
		return value.Null{}, nil
	}
	rt.recordRepoChange(ctx, exec.ExecutionID(), ev)
	return ev.Old, nil
}

// acceptEffect validates and applies a state transition on the object. On
// success the object's binding is replaced with the updated snapshot and
// state observers are notified; a current-value mismatch fails the
// statement.
func (rt *Runtime) acceptEffect(ctx context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
	if stmt.Transition == nil {
		return nil, fmt.Errorf("accept needs a transition clause")
	}
	field := stmt.Path
	if field == "" {
		field = "state"
	}
	updated, rec, err := state.Accept(object, stmt.Object.Base, field, stmt.Transition.From, stmt.Transition.To, rt.now())
	if err != nil {
		return nil, err
	}
	if stmt.Object.Base != "" && !stmt.Object.IsLiteral() {
		exec.Bind(stmt.Object.Base, updated)
	}
	rt.recordTransition(ctx, exec.ExecutionID(), rec)
	return updated, nil
}

// announceEffect emits a domain event of the statement's target type,
// carrying the object as payload, within the current cascade.
func (rt *Runtime) announceEffect(ctx context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
	if stmt.Target == "" {
		return nil, fmt.Errorf("announce needs an event type")
	}
	rt.trace("announce", stmt.Target, map[string]string{"execution": exec.ExecutionID()})
	rt.emit(ctx, bus.DomainEvent, stmt.Target, object)
	return value.Null{}, nil
}

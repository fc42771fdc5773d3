package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// TriggerVar is the local name the triggering payload is pre-bound under
// before statement 1 executes. Statement guards evaluate against it.
const TriggerVar = "event"

// ActionClass drives pipeline classification: element-wise actions fuse into
// chains, aggregate actions fold into shared-traversal fan-outs, effects
// perform I/O and never fuse.
type ActionClass int

// Action classes.
const (
	// ClassCompute is a pure action over its object (bind, publish, ...).
	ClassCompute ActionClass = iota + 1
	// ClassElementWise maps a list to a list one element at a time.
	ClassElementWise
	// ClassAggregate folds a list into a scalar.
	ClassAggregate
	// ClassEffect performs I/O or observable side effects.
	ClassEffect
)

// EffectFunc is an action's effect: the object is already resolved (and the
// object's field-path specifiers applied); the statement is available for
// action-specific clauses (predicate, transition). The returned Value is
// bound to the statement's result name.
type EffectFunc func(ctx context.Context, exec *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error)

// Fold is a streaming accumulator for aggregate-class actions: one Add per
// element, Result after the single pass.
type Fold interface {
	Add(elem value.Value) error
	Result() value.Value
}

// Action is one registered verb.
type Action struct {
	Verb         string
	Prepositions []lang.Preposition
	Class        ActionClass
	// Async marks an I/O effect the executor may start eagerly, forcing the
	// wait only when a later statement reads the bound result.
	Async  bool
	Effect EffectFunc

	// ObjectIsName marks verbs whose object is a name, not data (retrieve's
	// and remove's repository). The dispatcher passes the base as a String
	// instead of resolving it, and the graph builder adds no edge for it.
	ObjectIsName bool

	// Element is the per-element op of an element-wise action: it returns
	// the (possibly transformed) element and whether to keep it. The fused
	// pipeline calls it directly; the materializing Effect is derived from
	// it when Effect is nil.
	Element func(stmt lang.Statement, elem value.Value) (value.Value, bool, error)

	// NewFold builds the accumulator of an aggregate action. Same derivation
	// rule as Element.
	NewFold func(stmt lang.Statement) Fold
}

func (a Action) allows(p lang.Preposition) bool {
	for _, allowed := range a.Prepositions {
		if allowed == p {
			return true
		}
	}
	return false
}

// Registry maps verbs to actions. Verb lookup is case-insensitive.
// Registration happens before the dispatch loop starts; lookups after that
// are read-only, so no lock is carried.
type Registry struct {
	actions map[string]Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action. Re-registering a verb replaces it, which is how
// hosts override built-ins with real I/O adapters. Element-wise and
// aggregate actions may omit Effect; the materializing form is derived.
func (r *Registry) Register(a Action) error {
	if a.Verb == "" {
		return fmt.Errorf("action verb must not be empty")
	}
	if len(a.Prepositions) == 0 {
		return fmt.Errorf("action %q allows no prepositions", a.Verb)
	}
	switch {
	case a.Effect != nil:
	case a.Class == ClassElementWise && a.Element != nil:
		a.Effect = materializeElementWise(a)
	case a.Class == ClassAggregate && a.NewFold != nil:
		a.Effect = materializeAggregate(a)
	default:
		return fmt.Errorf("action %q has no effect", a.Verb)
	}
	r.actions[strings.ToLower(a.Verb)] = a
	return nil
}

// materializeElementWise derives the naive whole-collection effect of an
// element-wise action: one pass, output list materialized.
func materializeElementWise(a Action) EffectFunc {
	return func(_ context.Context, _ *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
		list, ok := object.(value.List)
		if !ok {
			return nil, fmt.Errorf("%s expects a list, got %T", a.Verb, object)
		}
		out := make(value.List, 0, len(list))
		for _, elem := range list {
			mapped, keep, err := a.Element(stmt, elem)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, mapped)
			}
		}
		return out, nil
	}
}

// materializeAggregate derives the naive effect of an aggregate action.
func materializeAggregate(a Action) EffectFunc {
	return func(_ context.Context, _ *ExecContext, stmt lang.Statement, object value.Value) (value.Value, error) {
		list, ok := object.(value.List)
		if !ok {
			return nil, fmt.Errorf("%s expects a list, got %T", a.Verb, object)
		}
		acc := a.NewFold(stmt)
		for _, elem := range list {
			if err := acc.Add(elem); err != nil {
				return nil, err
			}
		}
		return acc.Result(), nil
	}
}

// Lookup finds the action for a verb, case-insensitively.
func (r *Registry) Lookup(verb string) (Action, bool) {
	a, ok := r.actions[strings.ToLower(verb)]
	return a, ok
}

// resolveObject resolves a statement's object: an inline literal is used as
// is; otherwise the base name resolves through the context, then the
// object's field-path specifiers are applied.
func resolveObject(exec *ExecContext, obj lang.ObjectRef) (value.Value, error) {
	if obj.IsLiteral() {
		return obj.Literal, nil
	}
	v, err := exec.Resolve(obj.Base)
	if err != nil {
		return nil, err
	}
	if len(obj.Specifiers) > 0 {
		field, ok := value.AtPath(v, obj.Specifiers)
		if !ok {
			return nil, newUndefinedVariable(obj.Base + "." + strings.Join(obj.Specifiers, "."))
		}
		return field, nil
	}
	return v, nil
}

// prepare performs everything preceding a statement's effect: verb lookup,
// preposition validation, guard gating, object resolution. skip=true means
// a false guard elided the statement.
func (r *Registry) prepare(exec *ExecContext, stmt lang.Statement) (Action, value.Value, bool, error) {
	action, ok := r.Lookup(stmt.Verb)
	if !ok {
		return Action{}, nil, false, newUnknownAction(stmt.Verb)
	}
	if !action.allows(stmt.Object.Preposition) {
		return Action{}, nil, false, newInvalidPreposition(stmt.Verb, string(stmt.Object.Preposition))
	}

	if stmt.Guard != "" {
		guard, err := lang.ParseGuard(stmt.Guard)
		if err != nil {
			return Action{}, nil, false, fmt.Errorf("statement guard: %w", err)
		}
		trigger, _ := exec.Resolve(TriggerVar)
		if trigger == nil {
			trigger = value.Null{}
		}
		if !guard.Match(trigger) {
			slog.Debug("statement skipped by guard",
				"execution", exec.ExecutionID(),
				"verb", stmt.Verb,
				"result", stmt.Result.Base,
			)
			return action, nil, true, nil
		}
	}

	var object value.Value
	var err error
	if action.ObjectIsName {
		object = value.Str(stmt.Object.Base)
	} else {
		object, err = resolveObject(exec, stmt.Object)
		if err != nil {
			return Action{}, nil, false, err
		}
	}
	return action, object, false, nil
}

// Dispatch executes one statement: verb lookup, preposition validation,
// guard gating, object resolution, effect, result binding. A false guard
// skips the statement (no-op); the result name stays unbound.
func (r *Registry) Dispatch(ctx context.Context, exec *ExecContext, stmt lang.Statement) error {
	action, object, skip, err := r.prepare(exec, stmt)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	result, err := action.Effect(ctx, exec, stmt, object)
	if err != nil {
		return err
	}
	if result == nil {
		result = value.Null{}
	}
	if stmt.Result.Base != "" {
		exec.Bind(stmt.Result.Base, result)
	}
	return nil
}

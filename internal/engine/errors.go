package engine

import (
	"errors"
	"fmt"

	"github.com/verveworks/verve/internal/state"
)

// Code categorizes runtime errors.
type Code string

// Runtime error codes.
const (
	// CodeUndefinedVariable means a statement read a name nothing wrote.
	CodeUndefinedVariable Code = "UNDEFINED_VARIABLE"

	// CodeUnknownAction means the verb is not in the registry.
	CodeUnknownAction Code = "UNKNOWN_ACTION"

	// CodeInvalidPreposition means the preposition is outside the verb's set.
	CodeInvalidPreposition Code = "INVALID_PREPOSITION"

	// CodeStateMismatch means an accept saw an unexpected current value.
	CodeStateMismatch Code = "STATE_MISMATCH"

	// CodeHandlerFailure wraps a failure caught at a handler task boundary.
	CodeHandlerFailure Code = "HANDLER_FAILURE"

	// CodePipelineCycle reports a cycle in the data-flow graph. Edges always
	// point to earlier statements, so a cycle indicates a builder bug, not
	// bad input.
	CodePipelineCycle Code = "PIPELINE_CYCLE"
)

// RuntimeError is a failure inside a feature-set execution. It carries the
// triggering statement and its resolved operands so an outer layer can
// render a precise message.
type RuntimeError struct {
	Code       Code
	Message    string
	FeatureSet string
	Statement  int // statement index, -1 when not statement-scoped
	Verb       string
	Operands   map[string]string
	Err        error // wrapped cause, if any
}

func (e *RuntimeError) Error() string {
	if e.FeatureSet != "" && e.Statement >= 0 {
		return fmt.Sprintf("%s: %s (feature_set=%s, statement=%d, verb=%s)",
			e.Code, e.Message, e.FeatureSet, e.Statement, e.Verb)
	}
	if e.FeatureSet != "" {
		return fmt.Sprintf("%s: %s (feature_set=%s)", e.Code, e.Message, e.FeatureSet)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// is reports whether err is a RuntimeError with the given code.
func is(err error, code Code) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUndefinedVariable reports an UNDEFINED_VARIABLE failure.
func IsUndefinedVariable(err error) bool { return is(err, CodeUndefinedVariable) }

// IsUnknownAction reports an UNKNOWN_ACTION failure.
func IsUnknownAction(err error) bool { return is(err, CodeUnknownAction) }

// IsInvalidPreposition reports an INVALID_PREPOSITION failure.
func IsInvalidPreposition(err error) bool { return is(err, CodeInvalidPreposition) }

// IsStateMismatch reports a STATE_MISMATCH failure, including the validator's
// own MismatchError before the dispatcher wraps it.
func IsStateMismatch(err error) bool {
	if is(err, CodeStateMismatch) {
		return true
	}
	var me *state.MismatchError
	return errors.As(err, &me)
}

// IsPipelineCycle reports a PIPELINE_CYCLE failure.
func IsPipelineCycle(err error) bool { return is(err, CodePipelineCycle) }

func newUndefinedVariable(name string) *RuntimeError {
	return &RuntimeError{
		Code:      CodeUndefinedVariable,
		Message:   fmt.Sprintf("variable %q is not defined", name),
		Statement: -1,
		Operands:  map[string]string{"name": name},
	}
}

func newUnknownAction(verb string) *RuntimeError {
	return &RuntimeError{
		Code:      CodeUnknownAction,
		Message:   fmt.Sprintf("no action registered for verb %q", verb),
		Statement: -1,
		Verb:      verb,
	}
}

func newInvalidPreposition(verb, given string) *RuntimeError {
	return &RuntimeError{
		Code:      CodeInvalidPreposition,
		Message:   fmt.Sprintf("verb %q does not accept preposition %q", verb, given),
		Statement: -1,
		Verb:      verb,
		Operands:  map[string]string{"preposition": given},
	}
}

// statementError attaches statement context to a failure, preserving an
// existing RuntimeError's code and operands.
func statementError(err error, featureSet string, index int, verb string, operands map[string]string) *RuntimeError {
	var re *RuntimeError
	if errors.As(err, &re) {
		out := *re
		out.FeatureSet = featureSet
		out.Statement = index
		if out.Verb == "" {
			out.Verb = verb
		}
		if out.Operands == nil {
			out.Operands = operands
		} else {
			for k, v := range operands {
				if _, exists := out.Operands[k]; !exists {
					out.Operands[k] = v
				}
			}
		}
		return &out
	}

	code := CodeHandlerFailure
	var me *state.MismatchError
	if errors.As(err, &me) {
		code = CodeStateMismatch
	}
	return &RuntimeError{
		Code:       code,
		Message:    err.Error(),
		FeatureSet: featureSet,
		Statement:  index,
		Verb:       verb,
		Operands:   operands,
		Err:        err,
	}
}

package lang

import (
	"fmt"

	"github.com/verveworks/verve/internal/value"
)

// Eval applies the predicate to one element. Missing fields fail the
// predicate silently (the element is filtered out, not an error), matching
// guard semantics. Ordering operators require numbers on both sides.
func (p *Predicate) Eval(elem value.Value) (bool, error) {
	field, ok := value.At(elem, p.Path)
	if !ok {
		return false, nil
	}

	switch p.Op {
	case OpEq:
		return value.Equal(field, p.Operand), nil
	case OpNe:
		return !value.Equal(field, p.Operand), nil
	case OpGt, OpGe, OpLt, OpLe:
		left, ok := field.(value.Number)
		if !ok {
			return false, nil
		}
		right, ok := p.Operand.(value.Number)
		if !ok {
			return false, fmt.Errorf("predicate operand for %q must be a number, got %T", p.Op, p.Operand)
		}
		switch p.Op {
		case OpGt:
			return left > right, nil
		case OpGe:
			return left >= right, nil
		case OpLt:
			return left < right, nil
		default:
			return left <= right, nil
		}
	default:
		return false, fmt.Errorf("unknown predicate operator %q", p.Op)
	}
}

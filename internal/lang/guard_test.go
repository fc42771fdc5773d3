package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/value"
)

func TestParseGuard(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		clauses int
		wantErr bool
	}{
		{"single clause single value", "status:paid", 1, false},
		{"or values", "status:paid,shipped", 1, false},
		{"and clauses", "status:paid;tier:premium", 2, false},
		{"whitespace tolerated", " status : paid , shipped ; tier : premium ", 2, false},
		{"empty", "", 0, true},
		{"missing separator", "status", 0, true},
		{"empty path", ":paid", 0, true},
		{"no values", "status:", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseGuard(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, g.Clauses, tt.clauses)
		})
	}
}

func TestGuardMatch(t *testing.T) {
	payload := value.MapOf(
		value.P("status", value.Str("Paid")),
		value.P("tier", value.Str("premium")),
		value.P("amount", value.Num(120)),
		value.P("shipping", value.MapOf(value.P("region", value.Str("EU")))),
	)

	tests := []struct {
		name  string
		guard string
		want  bool
	}{
		{"exact", "status:Paid", true},
		{"case-insensitive value", "status:paid", true},
		{"case-insensitive both ways", "status:PAID", true},
		{"or one matches", "status:shipped,paid", true},
		{"or none matches", "status:shipped,cancelled", false},
		{"and both match", "status:paid;tier:premium", true},
		{"and one fails", "status:paid;tier:basic", false},
		{"number text form", "amount:120", true},
		{"nested path", "shipping.region:eu", true},
		{"missing field is false", "missing:anything", false},
		{"missing nested field is false", "shipping.country:de", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ParseGuard(tt.guard)
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Match(payload))
		})
	}
}

func TestPredicateEval(t *testing.T) {
	elem := value.MapOf(
		value.P("status", value.Str("open")),
		value.P("qty", value.Num(5)),
	)

	tests := []struct {
		name    string
		pred    Predicate
		want    bool
		wantErr bool
	}{
		{"eq match", Predicate{Path: "status", Op: OpEq, Operand: value.Str("open")}, true, false},
		{"eq case-sensitive", Predicate{Path: "status", Op: OpEq, Operand: value.Str("Open")}, false, false},
		{"ne", Predicate{Path: "status", Op: OpNe, Operand: value.Str("closed")}, true, false},
		{"gt", Predicate{Path: "qty", Op: OpGt, Operand: value.Num(4)}, true, false},
		{"ge boundary", Predicate{Path: "qty", Op: OpGe, Operand: value.Num(5)}, true, false},
		{"lt false", Predicate{Path: "qty", Op: OpLt, Operand: value.Num(5)}, false, false},
		{"le boundary", Predicate{Path: "qty", Op: OpLe, Operand: value.Num(5)}, true, false},
		{"missing field is false", Predicate{Path: "nope", Op: OpEq, Operand: value.Str("x")}, false, false},
		{"ordering on non-number field is false", Predicate{Path: "status", Op: OpGt, Operand: value.Num(1)}, false, false},
		{"ordering needs numeric operand", Predicate{Path: "qty", Op: OpGt, Operand: value.Str("4")}, false, true},
		{"unknown op", Predicate{Path: "qty", Op: CompareOp("like"), Operand: value.Num(1)}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pred.Eval(elem)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatementReads(t *testing.T) {
	stmt := Statement{
		Verb:   "combine",
		Result: ResultRef{Base: "out"},
		Object: ObjectRef{Preposition: PrepFrom, Base: "left", Specifiers: []string{"items"}},
		With:   &ObjectRef{Preposition: PrepTo, Base: "right"},
	}
	assert.Equal(t, []string{"left", "right"}, stmt.Reads())

	lit := Statement{
		Verb:   "put",
		Result: ResultRef{Base: "x"},
		Object: ObjectRef{Preposition: PrepInto, Literal: value.Num(1)},
	}
	assert.Empty(t, lit.Reads())
}

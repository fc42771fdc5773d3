package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

func testExec(inputs map[string]value.Value) *ExecContext {
	return NewExecContext("exec-1", NewActivityScope(), inputs)
}

func TestDispatch_UnknownVerb(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(nil)

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "conjure",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepFrom, Literal: value.Num(1)},
	})
	assert.True(t, IsUnknownAction(err))
}

func TestDispatch_VerbCaseInsensitive(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(nil)

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "PUT",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepInto, Literal: value.Num(7)},
	})
	require.NoError(t, err)

	got, err := exec.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, value.Num(7), got)
}

func TestDispatch_InvalidPreposition(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(nil)

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepOf, Literal: value.Num(1)},
	})
	assert.True(t, IsInvalidPreposition(err))
}

func TestDispatch_UndefinedVariable(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(nil)

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepInto, Base: "ghost"},
	})
	assert.True(t, IsUndefinedVariable(err))
}

func TestDispatch_GuardSkipLeavesResultUnbound(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(map[string]value.Value{
		TriggerVar: value.MapOf(value.P("status", value.Str("open"))),
	})

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepInto, Literal: value.Num(1)},
		Guard:  "status:paid",
	})
	require.NoError(t, err)

	_, err = exec.Resolve("x")
	assert.True(t, IsUndefinedVariable(err))
}

func TestDispatch_GuardPasses(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(map[string]value.Value{
		TriggerVar: value.MapOf(value.P("status", value.Str("Paid"))),
	})

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepInto, Literal: value.Num(1)},
		Guard:  "status:paid", // matches case-insensitively
	})
	require.NoError(t, err)

	got, err := exec.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, value.Num(1), got)
}

func TestDispatch_ObjectSpecifiers(t *testing.T) {
	reg := testRegistry(t)
	exec := testExec(map[string]value.Value{
		"order": value.MapOf(
			value.P("customer", value.MapOf(value.P("name", value.Str("ada")))),
		),
	})

	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "name"},
		Object: lang.ObjectRef{
			Preposition: lang.PrepInto,
			Base:        "order",
			Specifiers:  []string{"customer", "name"},
		},
	})
	require.NoError(t, err)

	got, err := exec.Resolve("name")
	require.NoError(t, err)
	assert.Equal(t, value.Str("ada"), got)
}

func TestRegister_Validation(t *testing.T) {
	reg := NewRegistry()

	assert.Error(t, reg.Register(Action{Verb: "", Prepositions: []lang.Preposition{lang.PrepOf}}))
	assert.Error(t, reg.Register(Action{Verb: "x", Prepositions: nil}))
	assert.Error(t, reg.Register(Action{
		Verb:         "x",
		Prepositions: []lang.Preposition{lang.PrepOf},
		Class:        ClassCompute,
	}))
}

func TestRegister_OverrideReplaces(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(Action{
		Verb:         "put",
		Prepositions: []lang.Preposition{lang.PrepInto},
		Class:        ClassCompute,
		Effect: func(_ context.Context, _ *ExecContext, _ lang.Statement, _ value.Value) (value.Value, error) {
			return value.Str("overridden"), nil
		},
	}))

	exec := testExec(nil)
	err := reg.Dispatch(context.Background(), exec, lang.Statement{
		Verb:   "put",
		Result: lang.ResultRef{Base: "x"},
		Object: lang.ObjectRef{Preposition: lang.PrepInto, Literal: value.Num(1)},
	})
	require.NoError(t, err)
	got, _ := exec.Resolve("x")
	assert.Equal(t, value.Str("overridden"), got)
}

func TestResolve_LocalShadowsActivity(t *testing.T) {
	scope := NewActivityScope()
	scope.put("total", value.Num(1))

	exec := NewExecContext("exec-1", scope, map[string]value.Value{
		"total": value.Num(2),
	})
	got, err := exec.Resolve("total")
	require.NoError(t, err)
	assert.Equal(t, value.Num(2), got)
}

func TestPublish_VisibleAcrossContexts(t *testing.T) {
	scope := NewActivityScope()

	a := NewExecContext("exec-a", scope, map[string]value.Value{"x": value.Num(9)})
	require.NoError(t, a.Publish("shared", "x"))

	b := NewExecContext("exec-b", scope, nil)
	got, err := b.Resolve("shared")
	require.NoError(t, err)
	assert.Equal(t, value.Num(9), got)
}

func TestFuture_ForcedAtFirstRead(t *testing.T) {
	exec := testExec(nil)

	f := newFuture()
	exec.bindFuture("pending", f)
	go f.complete(value.Num(4), nil)

	got, err := exec.Resolve("pending")
	require.NoError(t, err)
	assert.Equal(t, value.Num(4), got)

	// Second read hits the cached value.
	got, err = exec.Resolve("pending")
	require.NoError(t, err)
	assert.Equal(t, value.Num(4), got)
}

func TestBind_AbandonsPendingFuture(t *testing.T) {
	exec := testExec(nil)

	f := newFuture()
	exec.bindFuture("x", f)
	exec.Bind("x", value.Num(1))

	got, err := exec.Resolve("x")
	require.NoError(t, err)
	assert.Equal(t, value.Num(1), got)
}

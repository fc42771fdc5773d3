package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

const validDoc = `
feature_sets:
  - name: place-order
    activity: checkout
    statements:
      - verb: store
        result: change
        object: { preposition: into, base: event }
        target: orders
      - verb: announce
        object: { preposition: as, base: event }
        target: OrderPlaced

  - name: OrderPlaced Handler<status:paid>
    statements:
      - verb: retrieve
        result: open_orders
        object: { preposition: from, base: orders }
        where: { path: status, op: eq, operand: open }
      - verb: sum
        result: total
        object: { preposition: of, base: open_orders }
        path: amount
      - verb: put
        result: threshold
        object: { preposition: into, literal: 100 }
`

func TestLoad(t *testing.T) {
	sets, err := Load([]byte(validDoc))
	require.NoError(t, err)
	require.Len(t, sets, 2)

	first := sets[0]
	assert.Equal(t, "place-order", first.Name)
	assert.Equal(t, "checkout", first.Activity)
	require.Len(t, first.Statements, 2)
	assert.Equal(t, "store", first.Statements[0].Verb)
	assert.Equal(t, "orders", first.Statements[0].Target)
	assert.Equal(t, lang.PrepInto, first.Statements[0].Object.Preposition)

	second := sets[1]
	require.Len(t, second.Statements, 3)

	retr := second.Statements[0]
	require.NotNil(t, retr.Where)
	assert.Equal(t, lang.OpEq, retr.Where.Op)
	assert.Equal(t, value.Str("open"), retr.Where.Operand)

	agg := second.Statements[1]
	assert.Equal(t, "amount", agg.Path)

	lit := second.Statements[2]
	assert.True(t, lit.Object.IsLiteral())
	assert.Equal(t, value.Num(100), lit.Object.Literal)
}

func TestLoad_DottedBaseBecomesSpecifiers(t *testing.T) {
	doc := `
feature_sets:
  - name: op
    statements:
      - verb: put
        result: name
        object: { preposition: into, base: event.customer.name }
`
	sets, err := Load([]byte(doc))
	require.NoError(t, err)

	obj := sets[0].Statements[0].Object
	assert.Equal(t, "event", obj.Base)
	assert.Equal(t, []string{"customer", "name"}, obj.Specifiers)
}

func TestLoad_TransitionClause(t *testing.T) {
	doc := `
feature_sets:
  - name: approve
    statements:
      - verb: accept
        result: approved
        object: { preposition: of, base: order }
        path: status
        transition: { from: open, to: approved }
`
	sets, err := Load([]byte(doc))
	require.NoError(t, err)

	stmt := sets[0].Statements[0]
	require.NotNil(t, stmt.Transition)
	assert.Equal(t, "open", stmt.Transition.From)
	assert.Equal(t, "approved", stmt.Transition.To)
}

func TestLoad_SchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			"bad preposition",
			`
feature_sets:
  - name: op
    statements:
      - verb: put
        result: x
        object: { preposition: around, literal: 1 }
`,
		},
		{
			"bad predicate op",
			`
feature_sets:
  - name: op
    statements:
      - verb: retrieve
        result: x
        object: { preposition: from, base: orders }
        where: { path: status, op: like, operand: open }
`,
		},
		{
			"empty name",
			`
feature_sets:
  - name: ""
    statements: []
`,
		},
		{
			"unknown field",
			`
feature_sets:
  - name: op
    statements:
      - verb: put
        result: x
        object: { preposition: into, literal: 1 }
        sideways: true
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ObjectNeedsBaseOrLiteral(t *testing.T) {
	doc := `
feature_sets:
  - name: op
    statements:
      - verb: put
        result: x
        object: { preposition: into }
`
	_, err := Load([]byte(doc))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
feature_sets:
  - name: second
    statements:
      - verb: put
        result: x
        object: { preposition: into, literal: 2 }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(`
feature_sets:
  - name: first
    statements:
      - verb: put
        result: x
        object: { preposition: into, literal: 1 }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	sets, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	// Lexical file order.
	assert.Equal(t, "first", sets[0].Name)
	assert.Equal(t, "second", sets[1].Name)
}

func TestLoadDir_Empty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}

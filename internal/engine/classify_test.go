package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verveworks/verve/internal/lang"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	rt, err := NewRuntime()
	require.NoError(t, err)
	return rt.Registry()
}

func compilePlan(t *testing.T, statements ...lang.Statement) *Plan {
	t.Helper()
	plan, err := Compile(&lang.FeatureSet{Name: "test", Statements: statements}, testRegistry(t))
	require.NoError(t, err)
	return plan
}

func regionKinds(p *Plan) []RegionKind {
	kinds := make([]RegionKind, 0, len(p.Regions))
	for _, r := range p.Regions {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func TestClassify_LinearChain(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"), // effect, not fusable
		stmt("filter", "open", "src"),
		stmt("pick", "amounts", "open"),
		stmt("sum", "total", "amounts"), // aggregate terminates the chain
	)

	require.Len(t, plan.Regions, 1)
	region := plan.Regions[0]
	assert.Equal(t, RegionLinearChain, region.Kind)
	assert.Equal(t, []int{1, 2, 3}, region.Statements)

	_, ok := plan.RegionFor(0)
	assert.False(t, ok)
	got, ok := plan.RegionFor(2)
	require.True(t, ok)
	assert.Equal(t, RegionLinearChain, got.Kind)
}

func TestClassify_FanOutAggregation(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		stmt("sum", "total", "src"),
		stmt("count", "n", "src"),
		stmt("average", "mean", "src"),
	)

	require.Len(t, plan.Regions, 1)
	region := plan.Regions[0]
	assert.Equal(t, RegionFanOutAggregation, region.Kind)
	assert.Equal(t, []int{1, 2, 3}, region.Statements)
	assert.Len(t, region.Branches, 3)
}

func TestClassify_FanOutTee(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		stmt("filter", "open", "src"), // element-wise branch
		stmt("sum", "total", "src"),   // aggregate branch
	)

	require.Len(t, plan.Regions, 1)
	region := plan.Regions[0]
	assert.Equal(t, RegionFanOutTee, region.Kind)
	assert.Len(t, region.Branches, 2)
}

func TestClassify_TeeBranchExtendsIntoChain(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		stmt("filter", "open", "src"),
		stmt("pick", "amounts", "open"), // extends the filter branch
		stmt("count", "n", "src"),
	)

	require.Len(t, plan.Regions, 1)
	region := plan.Regions[0]
	assert.Equal(t, RegionFanOutTee, region.Kind)
	assert.Equal(t, []int{1, 2, 3}, region.Statements)
	assert.Equal(t, [][]int{{1, 2}, {3}}, region.Branches)
}

func TestClassify_Diamond(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"), // 0
		stmt("filter", "left", "src"),     // 1
		stmt("filter", "right", "src"),    // 2
		lang.Statement{ // 3: convergence reads both branches
			Verb:   "put",
			Result: lang.ResultRef{Base: "merged"},
			Object: lang.ObjectRef{Preposition: lang.PrepInto, Base: "left"},
			With:   &lang.ObjectRef{Preposition: lang.PrepTo, Base: "right"},
		},
	)

	kinds := regionKinds(plan)
	require.Len(t, kinds, 2)
	assert.Equal(t, RegionDiamond, kinds[0])
	assert.Equal(t, []int{1, 2}, plan.Regions[0].Statements)
	// The convergence point itself materializes fully.
	assert.Equal(t, RegionDiamond, kinds[1])
	assert.Equal(t, []int{3}, plan.Regions[1].Statements)
}

func TestClassify_GuardBreaksFusion(t *testing.T) {
	guarded := stmt("pick", "amounts", "open")
	guarded.Guard = "status:paid"

	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		stmt("filter", "open", "src"),
		guarded,
		stmt("sum", "total", "amounts"),
	)

	// The guarded statement fuses nowhere, which also severs both chains
	// around it.
	for _, region := range plan.Regions {
		for _, s := range region.Statements {
			assert.NotEqual(t, 2, s)
		}
	}
}

func TestClassify_SpecifiersBreakFusion(t *testing.T) {
	projecting := lang.Statement{
		Verb:   "filter",
		Result: lang.ResultRef{Base: "lines"},
		Object: lang.ObjectRef{Preposition: lang.PrepFrom, Base: "src", Specifiers: []string{"items"}},
	}
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		projecting,
		stmt("pick", "skus", "lines"),
	)

	for _, region := range plan.Regions {
		assert.NotContains(t, region.Statements, 1)
	}
}

func TestClassify_SingleStatementsGetNoRegion(t *testing.T) {
	plan := compilePlan(t,
		stmt("retrieve", "src", "orders"),
		stmt("filter", "open", "src"),
	)
	// One consumer, chain length 1: nothing to fuse.
	assert.Empty(t, plan.Regions)
}

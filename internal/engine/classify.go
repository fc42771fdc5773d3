package engine

import (
	"github.com/verveworks/verve/internal/lang"
)

// RegionKind labels a data-flow region with its execution strategy.
type RegionKind int

// Region kinds, from cheapest to most conservative.
const (
	// RegionSingle executes one statement with plain materialization.
	RegionSingle RegionKind = iota + 1
	// RegionLinearChain fuses consecutive element-wise statements into one
	// pass over the source collection.
	RegionLinearChain
	// RegionFanOutAggregation folds several aggregate consumers of one
	// source into a single traversal with k accumulators.
	RegionFanOutAggregation
	// RegionFanOutTee replicates one source to heterogeneous consumer
	// chains through bounded buffers with producer backpressure.
	RegionFanOutTee
	// RegionDiamond is a reconverging fan-out: branches and convergence run
	// with full materialization (the conservative default).
	RegionDiamond
)

func (k RegionKind) String() string {
	switch k {
	case RegionSingle:
		return "single"
	case RegionLinearChain:
		return "linear-chain"
	case RegionFanOutAggregation:
		return "fan-out/aggregation"
	case RegionFanOutTee:
		return "fan-out/tee"
	case RegionDiamond:
		return "diamond"
	default:
		return "unknown"
	}
}

// Region is a classified group of statements executed by one strategy.
// Statements are ascending indices. For fan-out kinds, Branches holds the
// per-consumer chains hanging off the shared source.
type Region struct {
	Kind       RegionKind
	Statements []int
	Branches   [][]int
}

// Plan is a feature set's compiled execution plan: the data-flow graph plus
// the region classification. Built once at load time, immutable afterwards.
type Plan struct {
	FeatureSet *lang.FeatureSet
	Graph      *Graph
	Regions    []Region

	// regionOf maps a statement index to its region, or -1.
	regionOf []int
}

// RegionFor returns the region a statement belongs to, if any.
func (p *Plan) RegionFor(stmt int) (Region, bool) {
	idx := p.regionOf[stmt]
	if idx < 0 {
		return Region{}, false
	}
	return p.Regions[idx], true
}

// classer abstracts the registry for classification: only the action class
// per verb matters here.
type classer interface {
	classOf(verb string) (ActionClass, bool)
}

func (r *Registry) classOf(verb string) (ActionClass, bool) {
	a, ok := r.Lookup(verb)
	if !ok {
		return 0, false
	}
	return a.Class, true
}

// Compile builds the graph and classifies its regions against the registry's
// action classes.
func Compile(fs *lang.FeatureSet, reg *Registry) (*Plan, error) {
	g, err := BuildGraph(fs, reg)
	if err != nil {
		return nil, err
	}
	return classify(fs, g, reg), nil
}

// classify labels DAG regions. Strategy:
//
//  1. Fan-outs first: a node whose dependents (≥2) are all fusable starts a
//     fan-out. All-aggregate consumers fuse into one traversal; reconverging
//     branches degrade to a diamond; anything else tees.
//  2. Maximal linear chains among what remains: node i chains with its
//     dependent j iff i is j's only dependency source and j is i's only
//     reader, and both are element-wise (an aggregate may terminate a chain).
//  3. Everything else is a single.
func classify(fs *lang.FeatureSet, g *Graph, c classer) *Plan {
	p := &Plan{FeatureSet: fs, Graph: g, regionOf: make([]int, len(g.Nodes))}
	for i := range p.regionOf {
		p.regionOf[i] = -1
	}

	fusable := func(i int) bool {
		stmt := fs.Statements[i]
		// Guarded statements may be skipped at runtime and statements with a
		// secondary operand or object field path need full resolution, so
		// none of them fuse.
		if stmt.Guard != "" || stmt.With != nil || len(stmt.Object.Specifiers) > 0 {
			return false
		}
		class, ok := c.classOf(stmt.Verb)
		if !ok {
			return false
		}
		return class == ClassElementWise || class == ClassAggregate
	}
	aggregate := func(i int) bool {
		class, ok := c.classOf(fs.Statements[i].Verb)
		return ok && class == ClassAggregate
	}
	assigned := func(i int) bool { return p.regionOf[i] != -1 }

	// chainFrom extends a fusable chain starting at head: each link must be
	// the sole reader of its predecessor, single-dependency, and fusable;
	// an aggregate ends the chain.
	chainFrom := func(head int) []int {
		chain := []int{head}
		cur := head
		for !aggregate(cur) {
			deps := g.Nodes[cur].Dependents
			if len(deps) != 1 {
				break
			}
			next := deps[0]
			if assigned(next) || !fusable(next) || len(g.Nodes[next].Deps) != 1 {
				break
			}
			chain = append(chain, next)
			cur = next
		}
		return chain
	}

	addRegion := func(r Region) {
		idx := len(p.Regions)
		p.Regions = append(p.Regions, r)
		for _, s := range r.Statements {
			p.regionOf[s] = idx
		}
	}

	// Pass 1: fan-outs (and the diamonds they reconverge into).
	for i := range g.Nodes {
		deps := g.Nodes[i].Dependents
		if len(deps) < 2 || assigned(i) {
			continue
		}
		allFusable := true
		for _, d := range deps {
			if assigned(d) || !fusable(d) || len(g.Nodes[d].Deps) != 1 {
				allFusable = false
				break
			}
		}
		if !allFusable {
			continue
		}

		branches := make([][]int, 0, len(deps))
		var members []int
		allAggregate := true
		for _, d := range deps {
			branch := chainFrom(d)
			branches = append(branches, branch)
			members = append(members, branch...)
			if !aggregate(d) || len(branch) > 1 {
				allAggregate = false
			}
		}

		kind := RegionFanOutTee
		if allAggregate {
			kind = RegionFanOutAggregation
		} else if converges(g, branches) {
			// Reconverging branches: materialize everything at the merge.
			kind = RegionDiamond
		}
		addRegion(Region{Kind: kind, Statements: sorted(members), Branches: branches})
	}

	// Pass 2: linear chains.
	for i := range g.Nodes {
		if assigned(i) || !fusable(i) {
			continue
		}
		if len(g.Nodes[i].Deps) > 1 {
			continue
		}
		// Only a chain start: a fusable single-reader predecessor would have
		// pulled i into its own chain already (ascending order guarantees it).
		chain := chainFrom(i)
		if len(chain) < 2 {
			continue
		}
		addRegion(Region{Kind: RegionLinearChain, Statements: chain})
	}

	// Pass 3: diamond convergence points outside fan-out regions. A node
	// reading two results whose writers share a common ancestor marks the
	// merge; it executes with full materialization, which RegionSingle is.
	for i := range g.Nodes {
		if assigned(i) || len(g.Nodes[i].Deps) < 2 {
			continue
		}
		for a := 0; a < len(g.Nodes[i].Deps); a++ {
			for b := a + 1; b < len(g.Nodes[i].Deps); b++ {
				if g.shareAncestor(g.Nodes[i].Deps[a], g.Nodes[i].Deps[b]) {
					addRegion(Region{Kind: RegionDiamond, Statements: []int{i}})
					a = len(g.Nodes[i].Deps) // break both loops
					break
				}
			}
		}
	}

	return p
}

// converges reports whether any later statement reads results from two or
// more of the branches - the diamond signature.
func converges(g *Graph, branches [][]int) bool {
	branchOf := make(map[int]int)
	for bi, branch := range branches {
		for _, s := range branch {
			branchOf[s] = bi
		}
	}
	for i := range g.Nodes {
		seen := -1
		for _, d := range g.Nodes[i].Deps {
			bi, ok := branchOf[d]
			if !ok {
				continue
			}
			if seen != -1 && seen != bi {
				return true
			}
			seen = bi
		}
	}
	return false
}

func sorted(xs []int) []int {
	out := append([]int(nil), xs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

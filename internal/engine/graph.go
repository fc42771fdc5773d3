package engine

import (
	"fmt"

	"github.com/verveworks/verve/internal/lang"
)

// Node is one statement's position in the data-flow graph.
type Node struct {
	Index  int    // statement index in the feature set
	Result string // name this statement binds

	// Deps are the indices of the statements whose results this one reads:
	// at most one per referenced name (the nearest preceding writer).
	// Variables with no in-graph writer are external inputs and contribute
	// no edge. Field-path specifiers are metadata, not edges.
	Deps []int

	// Dependents are the statements that read this node's result.
	Dependents []int
}

// Graph is the data-flow DAG of one feature set, keyed by statement index.
// Edges point from readers to the nearest preceding writer, so the graph is
// acyclic by construction.
type Graph struct {
	Nodes []Node
}

// BuildGraph walks the statement list in order maintaining a last-writer
// map. For statement i reading variable v: if v has a writer, add the edge
// i→lastWriter[v]; otherwise that operand is a root input. Then the result
// name's last writer becomes i (redefinition is last-writer-wins).
//
// Operand reads are derived against the registry: a verb whose object is a
// name (retrieve's repository, remove's repository) does not read a
// variable, so a repository named like an earlier result contributes no
// edge.
func BuildGraph(fs *lang.FeatureSet, reg *Registry) (*Graph, error) {
	g := &Graph{Nodes: make([]Node, len(fs.Statements))}
	lastWriter := make(map[string]int)

	for i, stmt := range fs.Statements {
		node := Node{Index: i, Result: stmt.Result.Base}

		for _, name := range statementReads(stmt, reg) {
			w, ok := lastWriter[name]
			if !ok {
				continue
			}
			node.Deps = append(node.Deps, w)
			g.Nodes[w].Dependents = append(g.Nodes[w].Dependents, i)
		}

		g.Nodes[i] = node
		if stmt.Result.Base != "" {
			lastWriter[stmt.Result.Base] = i
		}
	}

	// Defensive: edges only point to strictly earlier indices, so a forward
	// edge means the builder itself is broken.
	for i := range g.Nodes {
		for _, d := range g.Nodes[i].Deps {
			if d >= i {
				return nil, &RuntimeError{
					Code:       CodePipelineCycle,
					Message:    fmt.Sprintf("statement %d depends on statement %d", i, d),
					FeatureSet: fs.Name,
					Statement:  i,
				}
			}
		}
	}
	return g, nil
}

// statementReads lists the variables a statement reads, class-aware:
// lang.Statement.Reads minus the object when the verb takes the object base
// as a name instead of resolving it.
func statementReads(stmt lang.Statement, reg *Registry) []string {
	reads := stmt.Reads()
	action, ok := reg.Lookup(stmt.Verb)
	if !ok || !action.ObjectIsName || stmt.Object.Base == "" {
		return reads
	}
	out := reads[:0]
	dropped := false
	for _, name := range reads {
		if !dropped && name == stmt.Object.Base {
			dropped = true
			continue
		}
		out = append(out, name)
	}
	return out
}

// Roots returns the statement indices with no in-graph dependency.
func (g *Graph) Roots() []int {
	var roots []int
	for _, n := range g.Nodes {
		if len(n.Deps) == 0 {
			roots = append(roots, n.Index)
		}
	}
	return roots
}

// ancestors collects every node reachable from i by following Deps edges,
// excluding i itself.
func (g *Graph) ancestors(i int) map[int]bool {
	seen := make(map[int]bool)
	stack := append([]int(nil), g.Nodes[i].Deps...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.Nodes[n].Deps...)
	}
	return seen
}

// shareAncestor reports whether two nodes reach a common node (or one is an
// ancestor of the other) through Deps edges.
func (g *Graph) shareAncestor(a, b int) bool {
	as := g.ancestors(a)
	as[a] = true
	if as[b] {
		return true
	}
	for n := range g.ancestors(b) {
		if as[n] {
			return true
		}
	}
	return false
}

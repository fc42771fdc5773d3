package engine

import (
	"fmt"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// teeBufferSize bounds each tee consumer's buffer. A full buffer blocks the
// producer until that consumer drains (backpressure).
const teeBufferSize = 16

// stage is one fused pipeline step: either a per-element op or a terminal
// fold. Exactly one of element/fold is set.
type stage struct {
	stmt    lang.Statement
	index   int
	element func(stmt lang.Statement, elem value.Value) (value.Value, bool, error)
	fold    Fold
}

// buildStages turns chain statements into fused stages. Only the last
// statement may be an aggregate (classification guarantees it).
func buildStages(reg *Registry, fs *lang.FeatureSet, indices []int) ([]stage, error) {
	stages := make([]stage, 0, len(indices))
	for pos, idx := range indices {
		stmt := fs.Statements[idx]
		action, ok := reg.Lookup(stmt.Verb)
		if !ok {
			return nil, newUnknownAction(stmt.Verb)
		}
		switch action.Class {
		case ClassElementWise:
			stages = append(stages, stage{stmt: stmt, index: idx, element: action.Element})
		case ClassAggregate:
			if pos != len(indices)-1 {
				return nil, fmt.Errorf("aggregate %q in mid-chain at statement %d", stmt.Verb, idx)
			}
			stages = append(stages, stage{stmt: stmt, index: idx, fold: action.NewFold(stmt)})
		default:
			return nil, fmt.Errorf("non-fusable verb %q at statement %d", stmt.Verb, idx)
		}
	}
	return stages, nil
}

// feed pushes one element through the element stages. Returns the surviving
// element (keep=false means it was filtered out at some stage).
func feed(stages []stage, elem value.Value) (value.Value, bool, error) {
	cur := elem
	for _, s := range stages {
		if s.element == nil {
			// Terminal fold; caller handles it.
			break
		}
		mapped, keep, err := s.element(s.stmt, cur)
		if err != nil {
			return nil, false, statementError(err, "", s.index, s.stmt.Verb, nil)
		}
		if !keep {
			return nil, false, nil
		}
		cur = mapped
	}
	return cur, true, nil
}

// runChainFused executes a linear chain in one pass over the source with
// O(1) auxiliary memory beyond the output accumulator. Intermediate
// collections are never materialized; only the terminal result is returned.
func runChainFused(stages []stage, source value.Value) (value.Value, error) {
	list, ok := source.(value.List)
	if !ok {
		return nil, fmt.Errorf("pipeline source must be a list, got %T", source)
	}

	last := stages[len(stages)-1]
	elementStages := stages
	if last.fold != nil {
		elementStages = stages[:len(stages)-1]
	}

	var out value.List
	if last.fold == nil {
		out = make(value.List, 0, len(list))
	}

	for _, elem := range list {
		cur, keep, err := feed(elementStages, elem)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		if last.fold != nil {
			if err := last.fold.Add(cur); err != nil {
				return nil, statementError(err, "", last.index, last.stmt.Verb, nil)
			}
		} else {
			out = append(out, cur)
		}
	}

	if last.fold != nil {
		return last.fold.Result(), nil
	}
	return out, nil
}

// runAggregationFanOut executes an AggregationFusable fan-out: one traversal
// of the source updating k independent accumulators. Returns results keyed
// by statement index.
func runAggregationFanOut(reg *Registry, fs *lang.FeatureSet, consumers []int, source value.Value) (map[int]value.Value, error) {
	list, ok := source.(value.List)
	if !ok {
		return nil, fmt.Errorf("fan-out source must be a list, got %T", source)
	}

	folds := make([]Fold, len(consumers))
	stmts := make([]lang.Statement, len(consumers))
	for i, idx := range consumers {
		stmt := fs.Statements[idx]
		action, ok := reg.Lookup(stmt.Verb)
		if !ok {
			return nil, newUnknownAction(stmt.Verb)
		}
		if action.Class != ClassAggregate {
			return nil, fmt.Errorf("fan-out consumer %q at statement %d is not an aggregate", stmt.Verb, idx)
		}
		folds[i] = action.NewFold(stmt)
		stmts[i] = stmt
	}

	for _, elem := range list {
		for i, f := range folds {
			if err := f.Add(elem); err != nil {
				return nil, statementError(err, "", consumers[i], stmts[i].Verb, nil)
			}
		}
	}

	results := make(map[int]value.Value, len(consumers))
	for i, idx := range consumers {
		results[idx] = folds[i].Result()
	}
	return results, nil
}

// teeResult is one branch's outcome.
type teeResult struct {
	terminal int // statement index whose result this is
	val      value.Value
	err      error
}

// runTee executes a heterogeneous fan-out: the source is replicated to each
// consumer branch through a bounded buffer. Consumers pull independently;
// the producer blocks on a full buffer until that consumer drains. Each
// branch is itself a fused chain. Returns terminal results keyed by
// statement index.
func runTee(reg *Registry, fs *lang.FeatureSet, branches [][]int, source value.Value) (map[int]value.Value, error) {
	list, ok := source.(value.List)
	if !ok {
		return nil, fmt.Errorf("tee source must be a list, got %T", source)
	}

	chans := make([]chan value.Value, len(branches))
	resultCh := make(chan teeResult, len(branches))

	for bi, branch := range branches {
		chans[bi] = make(chan value.Value, teeBufferSize)
		stages, err := buildStages(reg, fs, branch)
		if err != nil {
			return nil, err
		}
		terminal := branch[len(branch)-1]

		go func(in <-chan value.Value, stages []stage, terminal int) {
			last := stages[len(stages)-1]
			elementStages := stages
			if last.fold != nil {
				elementStages = stages[:len(stages)-1]
			}

			var out value.List
			var branchErr error
			for elem := range in {
				if branchErr != nil {
					continue // drain to unblock the producer
				}
				cur, keep, err := feed(elementStages, elem)
				if err != nil {
					branchErr = err
					continue
				}
				if !keep {
					continue
				}
				if last.fold != nil {
					if err := last.fold.Add(cur); err != nil {
						branchErr = statementError(err, "", last.index, last.stmt.Verb, nil)
					}
				} else {
					out = append(out, cur)
				}
			}

			if branchErr != nil {
				resultCh <- teeResult{terminal: terminal, err: branchErr}
				return
			}
			if last.fold != nil {
				resultCh <- teeResult{terminal: terminal, val: last.fold.Result()}
				return
			}
			if out == nil {
				out = value.List{}
			}
			resultCh <- teeResult{terminal: terminal, val: out}
		}(chans[bi], stages, terminal)
	}

	// Producer: one pass over the source, each element to every consumer.
	for _, elem := range list {
		for _, ch := range chans {
			ch <- elem
		}
	}
	for _, ch := range chans {
		close(ch)
	}

	results := make(map[int]value.Value, len(branches))
	var firstErr error
	for range branches {
		r := <-resultCh
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		results[r.terminal] = r.val
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

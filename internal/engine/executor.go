package engine

import (
	"context"
	"strconv"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// runPlan walks the feature set's statements in order. Statements covered by
// a fused region execute together when the walk reaches the region's first
// member; diamond and single regions fall back to plain per-statement
// dispatch with full materialization.
//
// A fused region's terminal results are computed at the region head but not
// bound until the walk reaches each terminal's own index: a non-region
// statement interleaved between region members may redefine the same name,
// and a later reader must see the last writer in program order.
func (r *Runtime) runPlan(ctx context.Context, exec *ExecContext, plan *Plan) error {
	fs := plan.FeatureSet
	done := make([]bool, len(fs.Statements))
	pending := make(map[int]value.Value)

	for i := range fs.Statements {
		if region, ok := plan.RegionFor(i); ok && !done[i] && fused(region.Kind) && region.Statements[0] == i {
			results, err := r.runRegion(exec, plan, region)
			if err != nil {
				return statementError(err, fs.Name, i, fs.Statements[i].Verb, nil)
			}
			for _, s := range region.Statements {
				done[s] = true
			}
			for idx, v := range results {
				pending[idx] = v
			}
		}
		if v, ok := pending[i]; ok {
			if name := fs.Statements[i].Result.Base; name != "" {
				exec.Bind(name, v)
			}
			delete(pending, i)
			continue
		}
		if done[i] {
			continue
		}
		if err := r.dispatch(ctx, exec, fs, i); err != nil {
			return err
		}
		done[i] = true
	}
	return nil
}

func fused(k RegionKind) bool {
	switch k {
	case RegionLinearChain, RegionFanOutAggregation, RegionFanOutTee:
		return true
	}
	return false
}

// dispatch executes one statement with full materialization. Effect-class
// statements first settle pending eager reads so side effects keep statement
// order; async effects are started eagerly and bound as futures.
func (r *Runtime) dispatch(ctx context.Context, exec *ExecContext, fs *lang.FeatureSet, i int) error {
	stmt := fs.Statements[i]
	fail := func(err error) error {
		return statementError(err, fs.Name, i, stmt.Verb, map[string]string{
			"result": stmt.Result.Base,
			"object": stmt.Object.Base,
		})
	}

	action, object, skip, err := r.registry.prepare(exec, stmt)
	if err != nil {
		return fail(err)
	}
	if skip {
		r.metrics.stepSkipped()
		r.trace("statement-skip", stmt.Verb, map[string]string{
			"statement": strconv.Itoa(i),
			"result":    stmt.Result.Base,
		})
		return nil
	}

	if action.Class == ClassEffect {
		if err := exec.settle(); err != nil {
			return fail(err)
		}
	}

	r.trace("statement", stmt.Verb, map[string]string{
		"statement": strconv.Itoa(i),
		"result":    stmt.Result.Base,
	})

	if action.Async && stmt.Result.Base != "" {
		f := newFuture()
		go func() {
			v, err := action.Effect(ctx, exec, stmt, object)
			if err != nil {
				f.complete(nil, fail(err))
				return
			}
			if v == nil {
				v = value.Null{}
			}
			f.complete(v, nil)
		}()
		exec.bindFuture(stmt.Result.Base, f)
		return nil
	}

	result, err := action.Effect(ctx, exec, stmt, object)
	if err != nil {
		return fail(err)
	}
	if result == nil {
		result = value.Null{}
	}
	if stmt.Result.Base != "" {
		exec.Bind(stmt.Result.Base, result)
	}
	return nil
}

// runRegion executes a fused region, returning its terminal results keyed
// by statement index; the caller binds each at that statement's position in
// the walk. Intermediate names never materialize, which classification
// guarantees is unobservable (each intermediate has exactly one reader,
// inside the region).
func (r *Runtime) runRegion(exec *ExecContext, plan *Plan, region Region) (map[int]value.Value, error) {
	fs := plan.FeatureSet
	head := region.Statements[0]
	if len(region.Branches) > 0 {
		head = region.Branches[0][0]
	}
	source, err := resolveObject(exec, fs.Statements[head].Object)
	if err != nil {
		return nil, err
	}

	r.trace("region", region.Kind.String(), map[string]string{
		"statements": strconv.Itoa(len(region.Statements)),
		"first":      strconv.Itoa(region.Statements[0]),
	})

	switch region.Kind {
	case RegionLinearChain:
		stages, err := buildStages(r.registry, fs, region.Statements)
		if err != nil {
			return nil, err
		}
		result, err := runChainFused(stages, source)
		if err != nil {
			return nil, err
		}
		terminal := region.Statements[len(region.Statements)-1]
		return map[int]value.Value{terminal: result}, nil

	case RegionFanOutAggregation:
		consumers := make([]int, len(region.Branches))
		for bi, branch := range region.Branches {
			consumers[bi] = branch[0]
		}
		return runAggregationFanOut(r.registry, fs, consumers, source)

	case RegionFanOutTee:
		return runTee(r.registry, fs, region.Branches, source)
	}
	return nil, nil
}

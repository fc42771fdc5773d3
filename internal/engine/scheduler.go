package engine

import (
	"context"
	"sync"

	"github.com/verveworks/verve/internal/bus"
	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// cascade is the chain of executions descending from one triggering event.
// It owns the activity scopes those executions share and the step quota
// that bounds how many executions the chain may spawn; when the cascade's
// last execution finishes both become garbage with it.
type cascade struct {
	scopes sharedScopes
	quota  *stepQuota
}

type sharedScopes struct {
	mu sync.Mutex
	m  map[string]*ActivityScope
}

func newCascade(maxSteps int) *cascade {
	return &cascade{
		scopes: sharedScopes{m: make(map[string]*ActivityScope)},
		quota:  newStepQuota(maxSteps),
	}
}

// scope returns the cascade's scope for an activity, creating it on first
// use. Executions with no activity get isolated throwaway scopes.
func (c *cascade) scope(activity string) *ActivityScope {
	if activity == "" {
		return NewActivityScope()
	}
	c.scopes.mu.Lock()
	defer c.scopes.mu.Unlock()
	s, ok := c.scopes.m[activity]
	if !ok {
		s = NewActivityScope()
		c.scopes.m[activity] = s
	}
	return s
}

// The cascade rides the context so effect verbs deep in a statement walk
// can emit follow-up events into the same cascade.
type cascadeKey struct{}

func withCascade(ctx context.Context, c *cascade) context.Context {
	return context.WithValue(ctx, cascadeKey{}, c)
}

func (r *Runtime) cascadeFrom(ctx context.Context) *cascade {
	if c, ok := ctx.Value(cascadeKey{}).(*cascade); ok {
		return c
	}
	return newCascade(r.maxSteps)
}

// emit routes an event to its subscribers and spawns one handler execution
// per match, fire and forget. Handler failures and panics are contained at
// this boundary: they are logged and counted, never propagated to the
// emitter.
func (r *Runtime) emit(ctx context.Context, kind bus.Kind, key string, payload value.Value) {
	targets := r.subs.Match(kind, key, payload)
	if len(targets) == 0 {
		return
	}
	casc := r.cascadeFrom(ctx)
	// Handlers outlive the emitting execution; cancellation of the trigger's
	// context must not tear them down mid-effect.
	hctx := withCascade(context.WithoutCancel(ctx), casc)

	for _, fs := range targets {
		if err := casc.quota.take(); err != nil {
			r.logger.Error("handler dropped",
				"feature_set", fs.Name,
				"kind", kind.String(),
				"key", key,
				"error", err,
			)
			continue
		}
		r.trace("handler-spawn", fs.Name, map[string]string{
			"kind": kind.String(),
			"key":  key,
		})
		r.wg.Add(1)
		go func(fs *lang.FeatureSet) {
			defer r.wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("handler panicked",
						"feature_set", fs.Name,
						"panic", p,
					)
				}
			}()
			if err := r.runExecution(hctx, casc, fs, payload); err != nil {
				r.logger.Error("handler failed",
					"feature_set", fs.Name,
					"kind", kind.String(),
					"key", key,
					"error", err,
				)
			}
		}(fs)
	}
}

// Wait blocks until every in-flight handler execution has finished. Tests
// and the CLI call it to drain a cascade before inspecting state.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verveworks/verve/internal/bus"
	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/repo"
	"github.com/verveworks/verve/internal/state"
	"github.com/verveworks/verve/internal/trace"
	"github.com/verveworks/verve/internal/value"
)

// Journal persists the runtime's durable record: executions, repository
// changes, accepted transitions. A nil journal disables persistence;
// journal failures are logged and never fail the execution they record.
type Journal interface {
	ExecutionStarted(ctx context.Context, id, featureSet, activity string, at time.Time) error
	ExecutionFinished(ctx context.Context, id, failure string, at time.Time) error
	RepositoryChange(ctx context.Context, executionID string, ev repo.ChangeEvent) error
	StateTransition(ctx context.Context, executionID string, rec state.TransitionRecord) error
}

// Runtime hosts loaded feature sets and executes them in response to
// triggering events. Load everything first, then trigger; the plan table is
// read-only once dispatch starts.
type Runtime struct {
	registry *Registry
	subs     *bus.Table
	repos    *repo.Manager
	metrics  *Collector
	tracer   *trace.Recorder
	journal  Journal
	ids      IDGenerator
	logger   *slog.Logger
	now      func() time.Time
	maxSteps int

	mu    sync.RWMutex
	plans map[string]*Plan

	wg sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTracer records every runtime step into r.
func WithTracer(r *trace.Recorder) Option {
	return func(rt *Runtime) { rt.tracer = r }
}

// WithJournal persists executions, repository changes and transitions.
func WithJournal(j Journal) Option {
	return func(rt *Runtime) { rt.journal = j }
}

// WithIDGenerator replaces the execution-id source. Tests pass a
// FixedGenerator for deterministic traces.
func WithIDGenerator(g IDGenerator) Option {
	return func(rt *Runtime) { rt.ids = g }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// WithClock replaces the time source. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(rt *Runtime) { rt.now = now }
}

// WithMaxSteps bounds the number of executions one cascade may spawn.
// Exceeding the quota drops further handler spawns, so mutually recursive
// feature sets terminate instead of cascading forever.
func WithMaxSteps(n int) Option {
	return func(rt *Runtime) { rt.maxSteps = n }
}

// NewRuntime creates a runtime with the built-in vocabulary registered.
func NewRuntime(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		registry: NewRegistry(),
		subs:     bus.NewTable(),
		repos:    repo.NewManager(),
		metrics:  &Collector{},
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		now:      time.Now,
		maxSteps: DefaultMaxSteps,
		plans:    make(map[string]*Plan),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := registerBuiltins(rt.registry, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// Registry exposes the action registry so hosts can register or override
// verbs before loading feature sets.
func (r *Runtime) Registry() *Registry { return r.registry }

// Repos exposes the repository manager for seeding and inspection.
func (r *Runtime) Repos() *repo.Manager { return r.repos }

// Metrics returns a snapshot of the execution counters.
func (r *Runtime) Metrics() Stats { return r.metrics.Snapshot() }

// Subscriptions exposes the subscription table for introspection.
func (r *Runtime) Subscriptions() *bus.Table { return r.subs }

// Load compiles a feature set's execution plan and registers its
// subscription. Loading the same name twice is an error.
func (r *Runtime) Load(fs *lang.FeatureSet) error {
	plan, err := Compile(fs, r.registry)
	if err != nil {
		return fmt.Errorf("compile %q: %w", fs.Name, err)
	}

	r.mu.Lock()
	if _, dup := r.plans[fs.Name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("feature set %q already loaded", fs.Name)
	}
	r.plans[fs.Name] = plan
	r.mu.Unlock()

	if err := r.subs.Register(fs); err != nil {
		return err
	}
	r.logger.Debug("feature set loaded",
		"feature_set", fs.Name,
		"activity", fs.Activity,
		"statements", len(fs.Statements),
		"regions", len(plan.Regions),
	)
	return nil
}

func (r *Runtime) plan(name string) (*Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plans[name]
	return p, ok
}

// Trigger fires a named operation: the matching handlers run synchronously
// in the caller's goroutine, and the first failure is returned. Events the
// handlers announce cascade asynchronously; Wait drains them.
func (r *Runtime) Trigger(ctx context.Context, operation string, payload value.Value) error {
	targets := r.subs.Match(bus.HTTPOperation, operation, payload)
	if len(targets) == 0 {
		return fmt.Errorf("no handler for operation %q", operation)
	}
	casc := newCascade(r.maxSteps)
	ctx = withCascade(ctx, casc)
	r.trace("trigger", operation, nil)
	for _, fs := range targets {
		if err := casc.quota.take(); err != nil {
			return err
		}
		if err := r.runExecution(ctx, casc, fs, payload); err != nil {
			return err
		}
	}
	return nil
}

// EmitDomainEvent injects an application event from outside any execution,
// starting a fresh cascade. Fire and forget.
func (r *Runtime) EmitDomainEvent(ctx context.Context, eventType string, payload value.Value) {
	ctx = withCascade(ctx, newCascade(r.maxSteps))
	r.trace("event", eventType, nil)
	r.emit(ctx, bus.DomainEvent, eventType, payload)
}

// runExecution instantiates and runs one feature set against a payload.
func (r *Runtime) runExecution(ctx context.Context, casc *cascade, fs *lang.FeatureSet, payload value.Value) error {
	plan, ok := r.plan(fs.Name)
	if !ok {
		return fmt.Errorf("feature set %q is not loaded", fs.Name)
	}

	id := r.ids.Generate()
	started := r.now()
	r.metrics.executionStarted()
	r.trace("execution-start", fs.Name, map[string]string{"execution": id})
	if r.journal != nil {
		if err := r.journal.ExecutionStarted(ctx, id, fs.Name, fs.Activity, started); err != nil {
			r.logger.Error("journal write failed", "execution", id, "error", err)
		}
	}

	if payload == nil {
		payload = value.Null{}
	}
	exec := NewExecContext(id, casc.scope(fs.Activity), map[string]value.Value{
		TriggerVar: payload,
	})

	err := r.runPlan(ctx, exec, plan)
	if settleErr := exec.settle(); err == nil && settleErr != nil {
		err = statementError(settleErr, fs.Name, -1, "", nil)
	}

	elapsed := r.now().Sub(started)
	r.metrics.executionFinished(elapsed, err)
	detail := map[string]string{"execution": id}
	failure := ""
	if err != nil {
		failure = err.Error()
		detail["error"] = failure
		r.logger.Error("execution failed",
			"execution", id,
			"feature_set", fs.Name,
			"error", err,
		)
	}
	r.trace("execution-end", fs.Name, detail)
	if r.journal != nil {
		if jerr := r.journal.ExecutionFinished(ctx, id, failure, r.now()); jerr != nil {
			r.logger.Error("journal write failed", "execution", id, "error", jerr)
		}
	}
	return err
}

// recordRepoChange journals a repository mutation and fans it out to
// repository observers within the current cascade.
func (r *Runtime) recordRepoChange(ctx context.Context, executionID string, ev repo.ChangeEvent) {
	r.trace("repo-change", ev.Repo, map[string]string{
		"type":   string(ev.Type),
		"entity": ev.EntityID,
	})
	if r.journal != nil {
		if err := r.journal.RepositoryChange(ctx, executionID, ev); err != nil {
			r.logger.Error("journal write failed", "execution", executionID, "error", err)
		}
	}
	r.emit(ctx, bus.RepositoryChange, ev.Repo, changePayload(ev))
}

// recordTransition journals an accepted transition and notifies state
// observers.
func (r *Runtime) recordTransition(ctx context.Context, executionID string, rec state.TransitionRecord) {
	r.trace("transition", rec.Object+"."+rec.Field, map[string]string{
		"from": rec.From,
		"to":   rec.To,
	})
	if r.journal != nil {
		if err := r.journal.StateTransition(ctx, executionID, rec); err != nil {
			r.logger.Error("journal write failed", "execution", executionID, "error", err)
		}
	}
	r.emit(ctx, bus.StateTransition, rec.Field, rec.Payload())
}

// changePayload renders a change event as the payload repository observers
// receive.
func changePayload(ev repo.ChangeEvent) value.Map {
	m := value.Map{
		"repository": value.Str(ev.Repo),
		"change":     value.Str(string(ev.Type)),
		"seq":        value.Num(float64(ev.Seq)),
	}
	if ev.EntityID != "" {
		m["entity_id"] = value.Str(ev.EntityID)
	}
	if ev.New != nil {
		m["new"] = ev.New
	}
	if ev.Old != nil {
		m["old"] = ev.Old
	}
	return m
}

// trace records a runtime step when a tracer is attached.
func (r *Runtime) trace(kind, name string, detail map[string]string) {
	if r.tracer == nil {
		return
	}
	r.tracer.Record(kind, name, detail)
}

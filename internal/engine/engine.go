// Package engine wires the registry, cache, dispatcher, consensus
// aggregation and task controller into one facade. Everything the CLI
// touches goes through here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/joss/ensemble/internal/adapter"
	"github.com/joss/ensemble/internal/cache"
	"github.com/joss/ensemble/internal/config"
	"github.com/joss/ensemble/internal/consensus"
	"github.com/joss/ensemble/internal/dispatch"
	"github.com/joss/ensemble/internal/domain"
	"github.com/joss/ensemble/internal/estimate"
	"github.com/joss/ensemble/internal/logging"
	"github.com/joss/ensemble/internal/metrics"
	"github.com/joss/ensemble/internal/registry"
	"github.com/joss/ensemble/internal/store"
	"github.com/joss/ensemble/internal/task"
)

var (
	// ErrInvalidOperation rejects a submission before a task is created.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnknownProvider rejects a submission naming an unregistered id.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Engine is the orchestration facade.
type Engine struct {
	cfg    config.Config
	db     *store.SQLite
	reg    *registry.Registry
	cache  cache.Cache
	est    *estimate.Estimator
	disp   *dispatch.Dispatcher
	agg    *consensus.Aggregator
	ctrl   *task.Controller
	client adapter.HTTPClient
	log    zerolog.Logger
}

// New builds an engine from config, calling providers over HTTP.
func New(cfg config.Config) (*Engine, error) {
	return NewWithCall(cfg, nil)
}

// NewWithCall builds an engine with an injected provider call function.
// A nil call falls back to real HTTP adapters.
func NewWithCall(cfg config.Config, call dispatch.CallFunc) (*Engine, error) {
	logging.Setup(cfg.LogLevel)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg, err := registry.New(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load registry: %w", err)
	}

	var c cache.Cache
	switch cfg.CacheBackend {
	case "memory":
		c = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	default:
		c = cache.NewPersistent(db)
	}

	e := &Engine{
		cfg:    cfg,
		db:     db,
		reg:    reg,
		cache:  c,
		est:    estimate.New(reg),
		agg:    consensus.NewAggregator(cfg.SimilarityThreshold, cfg.ConsensusThreshold),
		client: http.DefaultClient,
		log:    logging.New("engine"),
	}

	if call == nil {
		call = dispatch.AdapterCall(e.client)
	}
	e.disp = dispatch.New(reg, c, call, dispatch.Options{
		CallTimeout:     cfg.CallTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
		CacheTTL:        cfg.CacheTTL,
		Quorum:          cfg.Quorum,
	})
	e.ctrl = task.New(e.run, cfg.MaxConcurrentTasks)

	e.log.Info().Str("data_dir", cfg.DataDir).Str("cache", cfg.CacheBackend).Msg("engine ready")
	return e, nil
}

// Close stops the task workers and releases the store.
func (e *Engine) Close() error {
	e.ctrl.Shutdown()
	return e.db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Task operations
// ─────────────────────────────────────────────────────────────────────────────

// Submit validates the operation and queues it as a task. Validation
// failures happen before any task exists, so nothing is recorded for
// them.
func (e *Engine) Submit(op domain.Operation, strategy domain.Strategy, providerIDs []string) (string, error) {
	if err := op.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidOperation, err)
	}
	if _, err := domain.ParseStrategy(string(strategy)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidOperation, err)
	}
	if len(providerIDs) == 0 {
		return "", fmt.Errorf("%w: no providers named", ErrInvalidOperation)
	}
	for _, id := range providerIDs {
		if _, err := e.reg.Get(id); err != nil {
			return "", fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
	}

	id, err := e.ctrl.Submit(op, strategy, providerIDs)
	if err != nil {
		return "", err
	}
	metrics.Global().TasksSubmitted.Add(1)
	return id, nil
}

// Task returns a snapshot of one task.
func (e *Engine) Task(id string) (domain.Task, error) { return e.ctrl.Get(id) }

// Tasks lists task snapshots, newest first.
func (e *Engine) Tasks(state domain.TaskState, limit, offset int) []domain.Task {
	return e.ctrl.List(state, limit, offset)
}

// Watch subscribes to a task's progress events, replaying history for
// late attachers.
func (e *Engine) Watch(id string) (<-chan domain.TaskEvent, error) {
	return e.ctrl.Subscribe(id)
}

// CancelTask flags a task for cooperative cancellation.
func (e *Engine) CancelTask(id string) error { return e.ctrl.Cancel(id) }

// run executes one task on a controller worker: dispatch, then for
// analyze operations the merge/rank/roadmap pipeline.
func (e *Engine) run(ctx context.Context, t domain.Task, rep *task.Reporter) (*domain.TaskResult, error) {
	m := metrics.Global()

	if rep.Cancelled() {
		m.RecordTask(false)
		return nil, task.ErrCancelled
	}

	rep.Progress(10, "dispatching")
	start := time.Now()
	out, err := e.disp.Dispatch(ctx, t.ID, t.Operation, t.Providers, t.Strategy)
	m.RecordDispatch(err == nil, time.Since(start).Milliseconds())
	if err != nil {
		m.RecordTask(false)
		return nil, err
	}
	m.RecordCacheLookup(out.CacheHit)

	// A cancellation that lands after the dispatch finished still wins;
	// the results are discarded.
	if rep.Cancelled() {
		m.RecordTask(false)
		return nil, task.ErrCancelled
	}

	result := &domain.TaskResult{
		Payload:    out.Payload,
		ProviderID: out.ProviderID,
		CacheHit:   out.CacheHit,
	}

	if t.Operation.Kind == domain.KindAnalyze {
		rep.Progress(70, "aggregating")

		results := out.Results
		queried := out.Queried
		if len(results) == 0 {
			pid := out.ProviderID
			if pid == "" {
				pid = "cache"
			}
			results = []domain.ProviderResult{{ProviderID: pid, OperationID: t.ID, Payload: out.Payload}}
			queried = 1
		}

		groups := consensus.Score(e.agg.Aggregate(results, queried))
		roadmap := consensus.BuildRoadmap(groups)
		result.Results = out.Results
		result.Groups = groups
		result.Roadmap = &roadmap
	}

	rep.Progress(95, "finalizing")
	m.RecordTask(true)
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Provider operations
// ─────────────────────────────────────────────────────────────────────────────

// RegisterProvider adds a custom provider descriptor.
func (e *Engine) RegisterProvider(ctx context.Context, d registry.Descriptor) error {
	return e.reg.Register(ctx, d)
}

// UpdateProvider applies a partial update to a descriptor.
func (e *Engine) UpdateProvider(ctx context.Context, id string, p registry.Patch) error {
	return e.reg.Update(ctx, id, p)
}

// RemoveProvider deletes a custom descriptor. Built-ins are protected.
func (e *Engine) RemoveProvider(ctx context.Context, id string) error {
	return e.reg.Remove(ctx, id)
}

// Provider returns one descriptor.
func (e *Engine) Provider(id string) (registry.Descriptor, error) { return e.reg.Get(id) }

// Providers returns descriptors matching the filter, sorted by id.
func (e *Engine) Providers(f registry.Filter) []registry.Descriptor {
	return e.reg.Snapshot(f)
}

// TestProvider sends a tiny sample prompt through the provider's real
// adapter and reports latency and outcome.
func (e *Engine) TestProvider(ctx context.Context, id string) (registry.ProbeResult, error) {
	return e.reg.Probe(ctx, id, "Reply with the single word: ok", e.client)
}

// ExportProvider returns a descriptor for serialization.
func (e *Engine) ExportProvider(id string) (registry.Descriptor, error) {
	return e.reg.Export(id)
}

// ImportProvider installs a previously exported descriptor.
func (e *Engine) ImportProvider(ctx context.Context, d registry.Descriptor, overwrite bool) error {
	return e.reg.Import(ctx, d, overwrite)
}

// ProviderStats returns the dispatcher's rolling per-provider stats.
func (e *Engine) ProviderStats() map[string]dispatch.ProviderStats { return e.disp.Stats() }

// ─────────────────────────────────────────────────────────────────────────────
// Estimation and cache
// ─────────────────────────────────────────────────────────────────────────────

// EstimateLines projects cost and time for a hypothetical operation of
// the given size.
func (e *Engine) EstimateLines(lines int, sourceKind, targetKind, providerID string, strategy domain.Strategy) (estimate.Estimate, error) {
	return e.est.Estimate(lines, sourceKind, targetKind, providerID, strategy)
}

// EstimateOperation projects cost and time for a concrete operation.
func (e *Engine) EstimateOperation(op domain.Operation, providerID string, strategy domain.Strategy) (estimate.Estimate, error) {
	return e.est.EstimateText(op.Source, op.SourceKind, op.TargetKind, providerID, strategy)
}

// CacheStats reports hit/miss counters and entry count.
func (e *Engine) CacheStats(ctx context.Context) cache.Stats { return e.cache.Stats(ctx) }

// ClearCache drops all cached results and returns how many were removed.
func (e *Engine) ClearCache(ctx context.Context) int { return e.cache.Clear(ctx) }

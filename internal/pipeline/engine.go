// Package pipeline sequences the cleaning, reconciliation, dimension build
// and fact assembly phases over one materialized batch.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/cleaner"
	"github.com/eventstar/eventstar/internal/dimension"
	"github.com/eventstar/eventstar/internal/fact"
	"github.com/eventstar/eventstar/internal/identity"
	"github.com/eventstar/eventstar/internal/observability"
	"github.com/eventstar/eventstar/pkg/types"
)

// Diagnostics collects the non-fatal counters of a run.
type Diagnostics struct {
	Cleaner            cleaner.Report
	DeletedRows        int
	ConflictedVisitors []string
	PhaseDurations     map[string]time.Duration
}

// Result is the output of a pipeline run. Fields for phases that did not run
// are left empty.
type Result struct {
	RunID       string
	Cleaned     []types.CleanedEvent
	Reconciled  []types.ReconciledEvent
	Tables      *dimension.Tables
	Facts       []types.FactEvent
	Diagnostics Diagnostics
}

// Engine runs the pipeline phases.
type Engine struct {
	cleaner    *cleaner.Cleaner
	reconciler *identity.Reconciler
	builder    *dimension.Builder
	stats      *observability.PhaseStats
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and every phase it creates.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCleaner overrides the cleaning phase.
func WithCleaner(c *cleaner.Cleaner) Option {
	return func(e *Engine) { e.cleaner = c }
}

// WithReconciler overrides the identity reconciliation phase.
func WithReconciler(r *identity.Reconciler) Option {
	return func(e *Engine) { e.reconciler = r }
}

// WithBuilder overrides the dimension builder.
func WithBuilder(b *dimension.Builder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithStats records every phase execution into stats.
func WithStats(stats *observability.PhaseStats) Option {
	return func(e *Engine) { e.stats = stats }
}

// New creates an Engine with default phases.
func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.cleaner == nil {
		e.cleaner = cleaner.New(cleaner.WithLogger(e.logger))
	}
	if e.reconciler == nil {
		e.reconciler = identity.New(identity.WithLogger(e.logger))
	}
	if e.builder == nil {
		e.builder = dimension.NewBuilder(dimension.WithLogger(e.logger))
	}
	return e
}

// Run executes every phase over raw and returns the star schema.
func (e *Engine) Run(ctx context.Context, raw []types.RawEvent) (*Result, error) {
	res := newResult()
	log := e.logger.With(zap.String("run_id", res.RunID))
	log.Info("pipeline: run started", zap.Int("raw_rows", len(raw)))

	if err := e.preprocess(ctx, log, raw, res); err != nil {
		return nil, err
	}
	if err := e.build(ctx, log, res); err != nil {
		return nil, err
	}

	log.Info("pipeline: run completed",
		zap.Int("facts", len(res.Facts)),
		zap.Int("deleted_rows", res.Diagnostics.DeletedRows),
	)
	return res, nil
}

// Preprocess runs cleaning and identity reconciliation only.
func (e *Engine) Preprocess(ctx context.Context, raw []types.RawEvent) (*Result, error) {
	res := newResult()
	log := e.logger.With(zap.String("run_id", res.RunID))
	if err := e.preprocess(ctx, log, raw, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Build runs the dimension build and fact assembly over already reconciled
// rows, e.g. ones loaded from a preprocess snapshot.
func (e *Engine) Build(ctx context.Context, reconciled []types.ReconciledEvent) (*Result, error) {
	res := newResult()
	res.Reconciled = reconciled
	log := e.logger.With(zap.String("run_id", res.RunID))
	if err := e.build(ctx, log, res); err != nil {
		return nil, err
	}
	return res, nil
}

func newResult() *Result {
	return &Result{
		RunID: uuid.NewString(),
		Diagnostics: Diagnostics{
			PhaseDurations: make(map[string]time.Duration),
		},
	}
}

func (e *Engine) preprocess(ctx context.Context, log *zap.Logger, raw []types.RawEvent, res *Result) error {
	err := e.phase(ctx, log, "clean", func() (int, error) {
		cleaned, report, err := e.cleaner.Clean(raw)
		if err != nil {
			return 0, err
		}
		res.Cleaned = cleaned
		res.Diagnostics.Cleaner = report
		return len(cleaned), nil
	}, res)
	if err != nil {
		return err
	}

	return e.phase(ctx, log, "reconcile", func() (int, error) {
		r := e.reconciler.Reconcile(res.Cleaned)
		res.Reconciled = r.Events
		res.Diagnostics.DeletedRows = r.Deleted
		res.Diagnostics.ConflictedVisitors = r.ConflictedVisitors
		return len(r.Events), nil
	}, res)
}

func (e *Engine) build(ctx context.Context, log *zap.Logger, res *Result) error {
	err := e.phase(ctx, log, "dimensions", func() (int, error) {
		tables, err := e.builder.BuildAll(ctx, res.Reconciled)
		if err != nil {
			return 0, err
		}
		res.Tables = tables
		return len(tables.Devices) + len(tables.Users) + len(tables.Locations) + len(tables.Dates), nil
	}, res)
	if err != nil {
		return err
	}

	return e.phase(ctx, log, "facts", func() (int, error) {
		res.Facts = fact.Assemble(res.Reconciled, res.Tables)
		return len(res.Facts), nil
	}, res)
}

// phase runs fn after checking for cancellation and logs its row count and
// duration.
func (e *Engine) phase(ctx context.Context, log *zap.Logger, name string, fn func() (int, error), res *Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline: %s: %w", name, err)
	}

	start := time.Now()
	rows, err := fn()
	elapsed := time.Since(start)
	res.Diagnostics.PhaseDurations[name] = elapsed
	if e.stats != nil {
		e.stats.Record(name, rows, elapsed, err)
	}

	if err != nil {
		log.Error("pipeline: phase failed", zap.String("phase", name), zap.Error(err))
		return fmt.Errorf("pipeline: %s: %w", name, err)
	}
	log.Info("pipeline: phase completed",
		zap.String("phase", name),
		zap.Int("rows", rows),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// Package app wires the eventstar components into the ETL commands.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/config"
	"github.com/eventstar/eventstar/internal/observability"
	"github.com/eventstar/eventstar/internal/pipeline"
	"github.com/eventstar/eventstar/internal/report"
	"github.com/eventstar/eventstar/internal/snapshot"
	"github.com/eventstar/eventstar/internal/source"
	"github.com/eventstar/eventstar/internal/storage"
	"github.com/eventstar/eventstar/internal/warehouse"
	"github.com/eventstar/eventstar/pkg/types"
)

// App holds the shared resources of the ETL commands.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	storage storage.ObjectStorage
	store   *snapshot.Store
	source  *source.Client
	engine  *pipeline.Engine
	stats   *observability.PhaseStats

	// Warehouse connection, opened on first use
	mu   sync.Mutex
	db   *sql.DB
	sink *warehouse.SQLSink
}

// New validates cfg, creates its directories and opens snapshot storage.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	stats := observability.NewPhaseStats(0)
	return &App{
		cfg:     cfg,
		logger:  logger,
		storage: objects,
		store:   snapshot.NewStore(objects, cfg.SnapshotOptions(), logger),
		source:  source.NewClient(cfg.SourceOptions(), source.WithLogger(logger)),
		engine:  pipeline.New(pipeline.WithLogger(logger), pipeline.WithStats(stats)),
		stats:   stats,
	}, nil
}

// Close releases the warehouse connection.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db, a.sink = nil, nil
	return err
}

// FetchRaw fetches the events of [start, end] and saves them as a new raw
// snapshot. It returns an empty path when the period has no events.
func (a *App) FetchRaw(ctx context.Context, start, end time.Time) (string, int, error) {
	if end.Before(start) {
		return "", 0, fmt.Errorf("app: end %s is before start %s",
			types.FormatEventTime(end), types.FormatEventTime(start))
	}

	events, err := a.source.Fetch(ctx, start, end)
	if err != nil {
		return "", 0, fmt.Errorf("app: fetch events: %w", err)
	}
	if len(events) == 0 {
		a.logger.Info("app: no events in period",
			zap.Time("start", start), zap.Time("end", end))
		return "", 0, nil
	}

	execID, err := snapshot.NewExecutionID()
	if err != nil {
		return "", 0, err
	}
	path, err := snapshot.Save(ctx, a.store, snapshot.Raw, execID, events)
	if err != nil {
		return "", 0, err
	}
	return path, len(events), nil
}

// PreprocessResult describes a preprocess run.
type PreprocessResult struct {
	Path        string
	Rows        int
	Diagnostics pipeline.Diagnostics
}

// Preprocess cleans and reconciles every raw snapshot and saves the result
// as the preprocess snapshot. Earlier preprocess snapshots are removed once
// the new one is stored, since reconciliation always covers all raw data.
func (a *App) Preprocess(ctx context.Context) (*PreprocessResult, error) {
	raw, err := snapshot.LoadStage(ctx, a.store, snapshot.Raw)
	if err != nil {
		return nil, fmt.Errorf("app: load raw stage: %w", err)
	}

	res, err := a.engine.Preprocess(ctx, raw)
	if err != nil {
		return nil, err
	}

	previous, err := a.store.List(ctx, types.StagePreprocess)
	if err != nil {
		return nil, err
	}

	execID, err := snapshot.NewExecutionID()
	if err != nil {
		return nil, err
	}
	path, err := snapshot.Save(ctx, a.store, snapshot.Preprocess, execID, res.Reconciled)
	if err != nil {
		return nil, err
	}

	for _, p := range previous {
		if err := a.removeSnapshot(ctx, p); err != nil {
			return nil, err
		}
	}

	return &PreprocessResult{Path: path, Rows: len(res.Reconciled), Diagnostics: res.Diagnostics}, nil
}

func (a *App) removeSnapshot(ctx context.Context, objectPath string) error {
	if err := a.storage.Delete(ctx, snapshot.MetaPath(objectPath)); err != nil {
		return fmt.Errorf("app: remove %s: %w", objectPath, err)
	}
	if err := a.storage.Delete(ctx, objectPath); err != nil {
		return fmt.Errorf("app: remove %s: %w", objectPath, err)
	}
	return nil
}

// InitDB creates the warehouse schema.
func (a *App) InitDB(ctx context.Context) error {
	sink, err := a.warehouse(ctx)
	if err != nil {
		return err
	}
	return sink.InitSchema(ctx)
}

// ImportDB builds the star schema from the preprocess stage and replaces the
// warehouse contents with it.
func (a *App) ImportDB(ctx context.Context) (*warehouse.LoadStats, error) {
	sink, err := a.warehouse(ctx)
	if err != nil {
		return nil, err
	}

	reconciled, err := snapshot.LoadStage(ctx, a.store, snapshot.Preprocess)
	if err != nil {
		return nil, fmt.Errorf("app: load preprocess stage: %w", err)
	}

	res, err := a.engine.Build(ctx, reconciled)
	if err != nil {
		return nil, err
	}
	return warehouse.NewLoader(sink, a.logger).Load(ctx, res.Tables, res.Facts)
}

// Report computes every report over the warehouse and writes it as CSV.
func (a *App) Report(ctx context.Context) (string, error) {
	sink, err := a.warehouse(ctx)
	if err != nil {
		return "", err
	}
	sections, err := report.New(sink.DB(), a.logger).All(ctx)
	if err != nil {
		return "", err
	}
	return report.WriteCSV(a.cfg.Report.Dir, a.cfg.Report.Name, sections)
}

// PhaseStats returns the statistics of every pipeline phase run by a.
func (a *App) PhaseStats() *observability.PhaseStats {
	return a.stats
}

// Truncate deletes every snapshot of a stage.
func (a *App) Truncate(ctx context.Context, stage types.Stage) (int, error) {
	return a.store.Truncate(ctx, stage)
}

// VisitorBatches lists the snapshots of a stage that may hold events of a
// visitor.
func (a *App) VisitorBatches(ctx context.Context, stage types.Stage, visitorID string) ([]string, error) {
	return a.store.BatchesContainingVisitor(ctx, stage, visitorID)
}

// RunSummary describes a full run.
type RunSummary struct {
	RawPath        string
	RawRows        int
	PreprocessPath string
	Load           *warehouse.LoadStats
	ReportPath     string
	Diagnostics    pipeline.Diagnostics
}

// Run fetches a period and takes it through preprocess, import and report.
// A period without new events still rebuilds from the existing snapshots.
func (a *App) Run(ctx context.Context, start, end time.Time) (*RunSummary, error) {
	var sum RunSummary
	var err error

	if sum.RawPath, sum.RawRows, err = a.FetchRaw(ctx, start, end); err != nil {
		return nil, err
	}

	pre, err := a.Preprocess(ctx)
	if err != nil {
		return nil, err
	}
	sum.PreprocessPath = pre.Path
	sum.Diagnostics = pre.Diagnostics

	if err := a.InitDB(ctx); err != nil {
		return nil, err
	}
	if sum.Load, err = a.ImportDB(ctx); err != nil {
		return nil, err
	}
	if sum.ReportPath, err = a.Report(ctx); err != nil {
		return nil, err
	}

	for _, p := range a.stats.Slowest(4) {
		a.logger.Info("app: phase summary",
			zap.String("phase", p.Name),
			zap.Int64("rows", p.Rows),
			zap.Duration("total", p.Total),
		)
	}
	return &sum, nil
}

func (a *App) warehouse(ctx context.Context) (*warehouse.SQLSink, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sink != nil {
		return a.sink, nil
	}

	db, d, err := warehouse.Open(ctx, a.cfg.Warehouse.Driver, a.cfg.Warehouse.DSN)
	if err != nil {
		return nil, fmt.Errorf("app: open warehouse: %w", err)
	}
	a.db = db
	a.sink = warehouse.NewSQLSink(db, d)
	return a.sink, nil
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

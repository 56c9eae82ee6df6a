// Package service owns the runs of a process: it turns requests into
// executors, tracks them, and fans their progress out to observers.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/sink"
	"github.com/raaihank/numsieve/internal/source"
)

const sideEffectTimeout = 5 * time.Second

// Manager starts, tracks, cancels and evicts runs.
type Manager struct {
	hub     Broadcaster
	board   StatusStore
	journal Journal
	logger  *zap.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.RWMutex
	config Config
	runs   map[string]*run
	now    func() time.Time
}

// Option wires an optional collaborator into a Manager.
type Option func(*Manager)

// WithBroadcaster publishes run events, typically to the websocket hub.
func WithBroadcaster(b Broadcaster) Option { return func(m *Manager) { m.hub = b } }

// WithStatusStore mirrors snapshots, typically to Redis.
func WithStatusStore(s StatusStore) Option { return func(m *Manager) { m.board = s } }

// WithJournal records run metadata, typically in PostgreSQL.
func WithJournal(j Journal) Option { return func(m *Manager) { m.journal = j } }

// NewManager creates a manager with no runs.
func NewManager(config Config, logger *zap.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:    logger.With(zap.String("component", "service")),
		baseCtx:   ctx,
		cancelAll: cancel,
		config:    normalize(config),
		runs:      make(map[string]*run),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalize(c Config) Config {
	if c.MaxActive <= 0 {
		c.MaxActive = 1
	}
	if c.DefaultChunkSize <= 0 {
		c.DefaultChunkSize = 2
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = 250 * time.Millisecond
	}
	return c
}

// UpdateConfig swaps the defaults used by runs started afterwards.
func (m *Manager) UpdateConfig(config Config) {
	m.mu.Lock()
	m.config = normalize(config)
	m.mu.Unlock()
	m.logger.Info("Run defaults updated",
		zap.Int("batch_size", config.Pipeline.BatchSize),
		zap.Int("max_active", config.MaxActive))
}

// Config returns the current defaults.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// StartGenerate validates req and launches an enumeration run. Invalid
// constraints are reported here and no run is created.
func (m *Manager) StartGenerate(ctx context.Context, req Request) (*Info, error) {
	cfg := m.Config()
	c, err := m.constraints(req, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(filter.ModeGenerate); err != nil {
		return nil, err
	}
	accept, err := filter.Build(c, filter.ModeGenerate)
	if err != nil {
		return nil, err
	}
	enum, err := source.NewEnumerator(c.Prefix, c.Suffix)
	if err != nil {
		return nil, err
	}
	return m.launch(ctx, launchSpec{
		mode:        filter.ModeGenerate,
		constraints: c,
		source:      enum,
		sourceName:  "enumeration",
		accept:      accept,
		req:         req,
		config:      cfg,
	})
}

// StartScan validates req, opens upload and launches a scan run.
func (m *Manager) StartScan(ctx context.Context, req Request, upload Upload) (*Info, error) {
	cleanup := func() {
		if upload.Cleanup != nil {
			upload.Cleanup()
		}
	}

	cfg := m.Config()
	c, err := m.constraints(req, cfg)
	if err != nil {
		cleanup()
		return nil, err
	}
	accept, err := filter.Build(c, filter.ModeScan)
	if err != nil {
		cleanup()
		return nil, err
	}

	policyName := req.Policy
	if policyName == "" {
		policyName = cfg.DefaultPolicy
	}
	policy, err := source.ParsePolicy(policyName)
	if err != nil {
		cleanup()
		return nil, &filter.ConstraintError{Field: "policy", Reason: err.Error()}
	}
	column := cfg.DefaultColumn
	if req.Column != nil {
		column = *req.Column
	}
	if column < -1 {
		cleanup()
		return nil, &filter.ConstraintError{Field: "column", Reason: fmt.Sprintf("%d is not a column index", column)}
	}

	name := upload.Name
	if name == "" {
		name = upload.Path
	}
	rows, err := source.OpenRows(upload.Path, source.DetectFileFormat(name))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: %w", ErrUnreadableUpload, err)
	}
	scanner := source.NewScanner(rows, source.ScanOptions{Policy: policy, Column: column}, m.logger)

	info, err := m.launch(ctx, launchSpec{
		mode:        filter.ModeScan,
		constraints: c,
		source:      scanner,
		sourceName:  name,
		accept:      accept,
		req:         req,
		config:      cfg,
		cleanup:     cleanup,
	})
	if err != nil {
		scanner.Close()
		cleanup()
	}
	return info, err
}

// constraints parses the request and applies pattern defaults.
func (m *Manager) constraints(req Request, cfg Config) (filter.Constraints, error) {
	in := req.Constraints
	if in.Strategy == "" {
		in.Strategy = cfg.DefaultStrategy
	}
	if in.ChunkSize == 0 {
		in.ChunkSize = cfg.DefaultChunkSize
	}
	c, err := filter.Parse(in)
	if err != nil {
		return filter.Constraints{}, err
	}
	if !c.PatternUsable() {
		m.logger.Warn("Pattern length differs from candidate length; every candidate will be rejected",
			zap.String("pattern", c.Pattern),
			zap.Int("length", len(c.Pattern)))
	}
	return c, nil
}

type launchSpec struct {
	mode        filter.Mode
	constraints filter.Constraints
	source      source.Source
	sourceName  string
	accept      filter.Predicate
	req         Request
	config      Config
	cleanup     func()
}

func (m *Manager) launch(ctx context.Context, spec launchSpec) (*Info, error) {
	output := spec.req.Output
	if output == "" {
		output = OutputCollect
	}
	if output != OutputCollect && output != OutputExport {
		return nil, &filter.ConstraintError{Field: "output", Reason: fmt.Sprintf("unknown output %q (must be collect or export)", output)}
	}
	metrics := spec.config.IncludeMetrics
	if spec.req.IncludeMetrics != nil {
		metrics = *spec.req.IncludeMetrics
	}

	r := &run{
		id:             uuid.NewString(),
		mode:           spec.mode,
		output:         output,
		constraints:    spec.constraints,
		source:         spec.sourceName,
		includeMetrics: metrics,
		createdAt:      m.now(),
		cleanup:        spec.cleanup,
	}
	if output == OutputExport {
		r.exporter = sink.NewExporter(spec.constraints, spec.mode, metrics)
		r.sink = r.exporter
	} else {
		r.collector = sink.NewCollector()
		r.sink = r.collector
	}
	runLogger := m.logger.With(zap.String("run_id", r.id), zap.String("mode", string(spec.mode)))
	execConfig := spec.config.Pipeline
	if spec.config.MaxMatches > 0 {
		execConfig.MaxMatches = spec.config.MaxMatches
	}
	r.exec = pipeline.New(spec.source, spec.accept, r.sink, execConfig, &runObserver{m: m, run: r}, runLogger)

	m.mu.Lock()
	m.evictLocked()
	if active := m.activeLocked(); active >= m.config.MaxActive {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d", ErrTooManyRuns, active, m.config.MaxActive)
	}
	m.runs[r.id] = r
	m.wg.Add(1)
	m.mu.Unlock()

	m.recordStart(ctx, r)
	m.announce(r)

	runLogger.Info("Run started",
		zap.String("tag", spec.constraints.Tag()),
		zap.String("source", spec.sourceName),
		zap.String("output", string(output)))

	go func() {
		defer m.wg.Done()
		defer func() {
			if r.cleanup != nil {
				r.cleanup()
			}
		}()
		// errors are carried by the run state and reported by the observer
		_, _ = r.exec.Execute(m.baseCtx)
	}()

	return r.info(), nil
}

func (m *Manager) activeLocked() int {
	n := 0
	for _, r := range m.runs {
		if !r.exec.State().Terminal() {
			n++
		}
	}
	return n
}

// evictLocked drops finished runs older than the retention window.
func (m *Manager) evictLocked() {
	if m.config.Retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.config.Retention)
	for id, r := range m.runs {
		if fin := r.finishedAt(); fin != nil && fin.Before(cutoff) {
			delete(m.runs, id)
			m.logger.Debug("Evicted run", zap.String("run_id", id))
		}
	}
}

func (m *Manager) lookup(id string) (*run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, nil
}

// Get returns the current state of a run.
func (m *Manager) Get(id string) (*Info, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.info(), nil
}

// List returns every retained run, newest first.
func (m *Manager) List() []*Info {
	m.mu.Lock()
	m.evictLocked()
	runs := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].createdAt.After(runs[j].createdAt) })
	out := make([]*Info, len(runs))
	for i, r := range runs {
		out[i] = r.info()
	}
	return out
}

// Cancel asks a run to stop at its next batch boundary.
func (m *Manager) Cancel(id string) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	r.exec.Cancel()
	m.logger.Info("Run cancellation requested", zap.String("run_id", id))
	return nil
}

// Wait blocks until the run is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (*Info, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done():
		return r.info(), nil
	case <-ctx.Done():
		return r.info(), ctx.Err()
	}
}

// Matches pages through the records of a collect run. Records accepted so
// far are visible while the run is still going.
func (m *Manager) Matches(id string, offset, limit int) ([]sink.MatchRecord, int, error) {
	r, err := m.lookup(id)
	if err != nil {
		return nil, 0, err
	}
	if r.collector == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotCollected, id)
	}
	return r.collector.Page(offset, limit), r.collector.Len(), nil
}

// Export renders the run's matches as a CSV download.
func (m *Manager) Export(id string) (sink.Output, error) {
	r, err := m.lookup(id)
	if err != nil {
		return sink.Output{}, err
	}
	if r.exporter != nil {
		return r.exporter.Finalize(), nil
	}
	return sink.Render(r.collector.Finalize().Records, r.constraints, r.mode, r.includeMetrics), nil
}

// Shutdown cancels every run and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All runs stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("runs still stopping: %w", ctx.Err())
	}
}

package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/cache"
	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/history"
	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/sink"
	"github.com/raaihank/numsieve/internal/websocket"
)

// run is one tracked execution. Everything mutable lives in exec and the
// sink; the fields here are fixed at launch except the finish time.
type run struct {
	id             string
	mode           filter.Mode
	output         OutputKind
	constraints    filter.Constraints
	source         string
	includeMetrics bool
	createdAt      time.Time
	cleanup        func()

	exec      *pipeline.Run
	sink      sink.Sink
	collector *sink.Collector
	exporter  *sink.Exporter

	mu         sync.RWMutex
	finished   *time.Time
	lastStatus time.Time
}

func (r *run) done() <-chan struct{} { return r.exec.Done() }

func (r *run) finishedAt() *time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished
}

func (r *run) info() *Info {
	info := &Info{
		ID:            r.id,
		Mode:          r.mode,
		Output:        r.output,
		Tag:           r.constraints.Tag(),
		Constraints:   r.constraints,
		PatternUsable: r.constraints.PatternUsable(),
		Source:        r.source,
		Progress:      r.exec.Progress(),
		HadAnyMatch:   r.exec.HadAnyMatch(),
		CreatedAt:     r.createdAt,
		FinishedAt:    r.finishedAt(),
	}
	if err := r.exec.Err(); err != nil {
		info.Error = err.Error()
	}
	return info
}

func (r *run) runEvent(p pipeline.Progress, hadAnyMatch bool, err error) websocket.RunEvent {
	ev := websocket.RunEvent{
		RunID:       r.id,
		Mode:        string(r.mode),
		Tag:         r.constraints.Tag(),
		Progress:    p,
		HadAnyMatch: hadAnyMatch,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// runObserver forwards executor notifications to the manager's sinks of
// record. It runs on the executor's observer goroutine, never the batch loop.
type runObserver struct {
	m   *Manager
	run *run
}

func (o *runObserver) OnProgress(p pipeline.Progress) {
	m, r := o.m, o.run
	if m.hub != nil {
		m.hub.BroadcastRun(websocket.EventTypeRunProgress, r.runEvent(p, p.Matches > 0, nil))
	}

	r.mu.Lock()
	due := time.Since(r.lastStatus) >= m.Config().StatusInterval
	if due {
		r.lastStatus = time.Now()
	}
	r.mu.Unlock()
	if due {
		m.saveStatus(r, p, p.Matches > 0, nil)
	}
}

func (o *runObserver) OnFinish(res pipeline.Result) {
	m, r := o.m, o.run

	now := m.now()
	r.mu.Lock()
	r.finished = &now
	r.mu.Unlock()

	if m.hub != nil {
		m.hub.BroadcastRun(websocket.EventTypeRunFinished, r.runEvent(res.Progress, res.HadAnyMatch, res.Err))
	}
	m.saveStatus(r, res.Progress, res.HadAnyMatch, res.Err)
	m.recordFinish(r, res, now)

	if !res.HadAnyMatch && res.State == pipeline.StateCompleted {
		m.logger.Info("Run completed with no results", zap.String("run_id", r.id))
	}
}

// announce publishes a freshly launched run.
func (m *Manager) announce(r *run) {
	p := r.exec.Progress()
	if m.hub != nil {
		m.hub.BroadcastRun(websocket.EventTypeRunStarted, r.runEvent(p, false, nil))
	}
	m.saveStatus(r, p, false, nil)
}

func (m *Manager) saveStatus(r *run, p pipeline.Progress, hadAnyMatch bool, err error) {
	if m.board == nil {
		return
	}
	status := &cache.RunStatus{
		ID:          r.id,
		Mode:        string(r.mode),
		Tag:         r.constraints.Tag(),
		Progress:    p,
		HadAnyMatch: hadAnyMatch,
	}
	if err != nil {
		status.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if saveErr := m.board.Save(ctx, status); saveErr != nil {
		m.logger.Warn("Failed to publish run status", zap.String("run_id", r.id), zap.Error(saveErr))
	}
}

func (m *Manager) recordStart(ctx context.Context, r *run) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	rec := &history.RunRecord{
		ID:          r.id,
		Mode:        string(r.mode),
		Tag:         r.constraints.Tag(),
		Constraints: r.constraints.String(),
		Source:      r.source,
		State:       pipeline.StateRunning.String(),
		StartedAt:   r.createdAt,
	}
	if err := m.journal.RecordStart(ctx, rec); err != nil {
		m.logger.Warn("Failed to journal run start", zap.String("run_id", r.id), zap.Error(err))
	}
}

func (m *Manager) recordFinish(r *run, res pipeline.Result, at time.Time) {
	if m.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	rec := &history.RunRecord{
		ID:          r.id,
		Mode:        string(r.mode),
		Tag:         r.constraints.Tag(),
		Constraints: r.constraints.String(),
		Source:      r.source,
		State:       res.State.String(),
		Processed:   res.Processed,
		Matches:     res.Matches,
		HadAnyMatch: res.HadAnyMatch,
		StartedAt:   r.createdAt,
		FinishedAt:  &at,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := m.journal.RecordFinish(ctx, rec); err != nil {
		m.logger.Warn("Failed to journal run finish", zap.String("run_id", r.id), zap.Error(err))
	}
}

// Package pipeline drives a candidate source through a predicate in bounded
// batches, forwarding matches to a sink and yielding between batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/sink"
	"github.com/raaihank/numsieve/internal/source"
)

var (
	// ErrSourceRead wraps the terminal error of a failed source.
	ErrSourceRead = errors.New("source read failure")
	// ErrEvaluation wraps a panic raised while evaluating a batch.
	ErrEvaluation = errors.New("batch evaluation failure")
	// ErrAlreadyStarted is returned by a second Execute on the same Run.
	ErrAlreadyStarted = errors.New("run already started")
	// ErrMatchLimit ends a run whose matches reached Config.MaxMatches.
	ErrMatchLimit = errors.New("match limit reached")
)

// minShard keeps small batches on a single goroutine.
const minShard = 512

// Run executes one source against one predicate into one sink. A Run is
// single use and shares no mutable state with other runs.
type Run struct {
	source   source.Source
	accept   filter.Predicate
	sink     sink.Sink
	config   Config
	observer Observer
	logger   *zap.Logger

	cancelled atomic.Bool
	state     atomic.Int32
	done      chan struct{}

	mu       sync.RWMutex
	progress Progress
	err      error
	updates  chan Progress
}

// New creates an idle run. observer may be nil.
func New(src source.Source, accept filter.Predicate, sk sink.Sink, config Config, observer Observer, logger *zap.Logger) *Run {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Run{
		source:   src,
		accept:   accept,
		sink:     sk,
		config:   config.normalized(),
		observer: observer,
		logger:   logger,
		done:     make(chan struct{}),
		progress: Progress{State: StateIdle, Total: -1},
	}
}

// Cancel asks the run to stop at the next batch boundary. The batch being
// evaluated always completes. Cancelling before Execute stops the run before
// its first batch.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	return State(r.state.Load())
}

// Progress returns the latest snapshot.
func (r *Run) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.progress
	p.State = r.State()
	return p
}

// HadAnyMatch reports whether at least one candidate was accepted.
func (r *Run) HadAnyMatch() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress.Matches > 0
}

// Err returns the failure cause of a Failed run.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Sink returns the sink matches are forwarded to.
func (r *Run) Sink() sink.Sink {
	return r.sink
}

// Execute runs the batch loop until the source is exhausted, the run is
// cancelled or the context ends, or the source fails. Cancellation is not an
// error: it returns a nil error with a Cancelled result. The source is
// closed before Execute returns.
func (r *Run) Execute(ctx context.Context) (Result, error) {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Result{}, ErrAlreadyStarted
	}
	defer r.source.Close()

	start := time.Now()
	r.mu.Lock()
	r.progress = Progress{State: StateRunning, Total: -1, StartedAt: start}
	r.mu.Unlock()

	var drained chan struct{}
	if r.observer != nil {
		r.updates = make(chan Progress, 1)
		drained = make(chan struct{})
		go func() {
			defer close(drained)
			for p := range r.updates {
				r.observer.OnProgress(p)
			}
		}()
	}

	r.logger.Info("Starting run",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Int("workers", r.config.Workers))

	final, err := r.loop(ctx, start)

	r.mu.Lock()
	r.progress.State = final
	r.progress.Elapsed = Duration(time.Since(start))
	r.err = err
	result := Result{Progress: r.progress, HadAnyMatch: r.progress.Matches > 0, Err: err}
	r.mu.Unlock()
	r.state.Store(int32(final))

	if r.updates != nil {
		close(r.updates)
		<-drained
	}

	fields := []zap.Field{
		zap.String("state", final.String()),
		zap.Int64("processed", result.Processed),
		zap.Int64("matches", result.Matches),
		zap.Int64("batches", result.Batches),
		zap.Duration("duration", time.Duration(result.Elapsed)),
	}
	if err != nil {
		r.logger.Error("Run failed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("Run finished", fields...)
	}

	if r.observer != nil {
		r.observer.OnFinish(result)
	}
	close(r.done)
	return result, err
}

func (r *Run) loop(ctx context.Context, start time.Time) (State, error) {
	batch := make([]string, 0, r.config.BatchSize)
	for {
		if r.cancelled.Load() {
			return StateCancelled, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.logger.Info("Run context ended", zap.Error(ctxErr))
			return StateCancelled, nil
		}

		var readErr error
		batch, readErr = r.source.NextBatch(batch[:0], r.config.BatchSize)

		matches, err := r.evaluate(batch)
		if err != nil {
			return StateFailed, err
		}
		limited := false
		if limit := r.config.MaxMatches; limit > 0 {
			if room := limit - r.matched(); int64(len(matches)) >= room {
				matches = matches[:room]
				limited = true
			}
		}
		if len(matches) > 0 {
			r.sink.Accept(matches...)
		}
		r.advance(len(batch), len(matches), start)

		if limited && readErr != io.EOF {
			return StateFailed, fmt.Errorf("%w: %d", ErrMatchLimit, r.config.MaxMatches)
		}

		if readErr == io.EOF {
			return StateCompleted, nil
		}
		if readErr != nil {
			return StateFailed, fmt.Errorf("%w: %w", ErrSourceRead, readErr)
		}

		runtime.Gosched()
	}
}

// evaluate applies the predicate to batch and returns the accepted records
// in batch order. Large batches are split across workers and the shards are
// merged back in order.
func (r *Run) evaluate(batch []string) ([]sink.MatchRecord, error) {
	workers := r.config.Workers
	if n := len(batch) / minShard; n < workers {
		workers = n
	}
	if workers <= 1 {
		var out []sink.MatchRecord
		err := r.evaluateShard(batch, &out)
		return out, err
	}

	shards := make([][]sink.MatchRecord, workers)
	size := (len(batch) + workers - 1) / workers
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		lo := i * size
		hi := lo + size
		if hi > len(batch) {
			hi = len(batch)
		}
		if lo >= hi {
			break
		}
		part := batch[lo:hi]
		g.Go(func() error {
			return r.evaluateShard(part, &shards[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, s := range shards {
		total += len(s)
	}
	out := make([]sink.MatchRecord, 0, total)
	for _, s := range shards {
		out = append(out, s...)
	}
	return out, nil
}

func (r *Run) evaluateShard(part []string, out *[]sink.MatchRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrEvaluation, p)
		}
	}()
	for _, candidate := range part {
		if r.accept(candidate) {
			*out = append(*out, sink.NewRecord(candidate))
		}
	}
	return nil
}

func (r *Run) matched() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress.Matches
}

func (r *Run) advance(processed, matched int, start time.Time) {
	done, total := r.source.Progress()

	r.mu.Lock()
	p := &r.progress
	p.Processed += int64(processed)
	p.Matches += int64(matched)
	p.Batches++
	if done > p.Done {
		p.Done = done
	}
	p.Total = total
	if total > 0 {
		f := float64(p.Done) / float64(total)
		if f > 1 {
			f = 1
		}
		if f > p.Fraction {
			p.Fraction = f
		}
	}
	p.Elapsed = Duration(time.Since(start))
	snapshot := *p
	r.mu.Unlock()

	if snapshot.Batches%int64(r.config.ProgressEvery) == 0 {
		r.reportProgress(snapshot)
	}
	r.publish(snapshot)
}

// publish hands snapshot to the observer goroutine without blocking. When
// the observer is behind, the stale snapshot is replaced.
func (r *Run) publish(p Progress) {
	if r.updates == nil {
		return
	}
	select {
	case r.updates <- p:
		return
	default:
	}
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- p:
	default:
	}
}

func (r *Run) reportProgress(p Progress) {
	elapsed := time.Duration(p.Elapsed)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(p.Processed) / secs
	}

	r.logger.Info("Processing progress",
		zap.Int64("processed", p.Processed),
		zap.Int64("matches", p.Matches),
		zap.Float64("fraction", p.Fraction),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}

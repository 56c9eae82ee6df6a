package service

import (
	"context"
	"errors"
	"time"

	"github.com/raaihank/numsieve/internal/cache"
	"github.com/raaihank/numsieve/internal/filter"
	"github.com/raaihank/numsieve/internal/history"
	"github.com/raaihank/numsieve/internal/pipeline"
	"github.com/raaihank/numsieve/internal/websocket"
)

var (
	// ErrRunNotFound is returned for unknown or evicted run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrTooManyRuns is returned when max_active runs are already running.
	ErrTooManyRuns = errors.New("too many active runs")
	// ErrNotCollected is returned when asking an export run for its records.
	ErrNotCollected = errors.New("run does not collect matches")
	// ErrUnreadableUpload is returned when a scan input cannot be opened as
	// the format its name implies.
	ErrUnreadableUpload = errors.New("unreadable upload")
)

// OutputKind selects the sink of a run.
type OutputKind string

const (
	OutputCollect OutputKind = "collect"
	OutputExport  OutputKind = "export"
)

// Request describes a run as submitted by a user.
type Request struct {
	Constraints    filter.Input `json:"constraints"`
	Output         OutputKind   `json:"output,omitempty"`
	IncludeMetrics *bool        `json:"include_metrics,omitempty"`

	// scan only
	Policy string `json:"policy,omitempty"`
	Column *int   `json:"column,omitempty"`
}

// Upload is a file to scan. Cleanup, when set, runs once the run is over.
type Upload struct {
	Path    string
	Name    string
	Cleanup func()
}

// Config holds the defaults and limits applied to every run.
type Config struct {
	Pipeline         pipeline.Config
	DefaultStrategy  string
	DefaultChunkSize int
	DefaultPolicy    string
	DefaultColumn    int
	IncludeMetrics   bool
	MaxActive        int
	Retention        time.Duration

	// MaxMatches caps each run's matches; a run reaching it fails with
	// pipeline.ErrMatchLimit and keeps what it found. 0 means no cap.
	MaxMatches int64

	// StatusInterval throttles status board writes per run.
	StatusInterval time.Duration
}

// Info is the externally visible state of a run.
type Info struct {
	ID            string             `json:"id"`
	Mode          filter.Mode        `json:"mode"`
	Output        OutputKind         `json:"output"`
	Tag           string             `json:"tag"`
	Constraints   filter.Constraints `json:"constraints"`
	PatternUsable bool               `json:"pattern_usable"`
	Source        string             `json:"source"`
	Progress      pipeline.Progress  `json:"progress"`
	HadAnyMatch   bool               `json:"had_any_match"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}

// Broadcaster publishes run events to live clients.
type Broadcaster interface {
	BroadcastRun(t websocket.EventType, run websocket.RunEvent)
}

// StatusStore mirrors run snapshots outside the process.
type StatusStore interface {
	Save(ctx context.Context, status *cache.RunStatus) error
}

// Journal records run metadata.
type Journal interface {
	RecordStart(ctx context.Context, run *history.RunRecord) error
	RecordFinish(ctx context.Context, run *history.RunRecord) error
}

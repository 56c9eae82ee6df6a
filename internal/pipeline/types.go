package pipeline

import (
	"fmt"
	"time"
)

// Config contains executor configuration
type Config struct {
	BatchSize     int `yaml:"batch_size" mapstructure:"batch_size"`         // 5000
	Workers       int `yaml:"workers" mapstructure:"workers"`               // 4
	ProgressEvery int `yaml:"progress_every" mapstructure:"progress_every"` // log every N batches

	// MaxMatches stops the run once this many matches were forwarded; 0 means no limit
	MaxMatches int64 `yaml:"max_matches" mapstructure:"max_matches"`
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     5000,
		Workers:       4,
		ProgressEvery: 200,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = d.ProgressEvery
	}
	if c.MaxMatches < 0 {
		c.MaxMatches = 0
	}
	return c
}

// State is the lifecycle of a Run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Progress is a point-in-time snapshot of a run. Every counter is
// non-decreasing over the life of a run.
type Progress struct {
	State     State     `json:"state"`
	Processed int64     `json:"processed"` // candidates evaluated
	Matches   int64     `json:"matches"`
	Batches   int64     `json:"batches"`
	Done      int64     `json:"done"`  // source units consumed
	Total     int64     `json:"total"` // source units, -1 when unknown
	Fraction  float64   `json:"fraction"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   Duration  `json:"elapsed"`
}

// Result is the terminal notification of a run.
type Result struct {
	Progress
	HadAnyMatch bool  `json:"had_any_match"`
	Err         error `json:"-"`
}

// Duration marshals as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Observer receives progress updates and the terminal result. OnProgress is
// called from a separate goroutine and may skip intermediate snapshots when
// it falls behind; OnFinish is always called exactly once, after the last
// OnProgress.
type Observer interface {
	OnProgress(Progress)
	OnFinish(Result)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(Progress)
	Finish   func(Result)
}

func (o ObserverFuncs) OnProgress(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnFinish(r Result) {
	if o.Finish != nil {
		o.Finish(r)
	}
}

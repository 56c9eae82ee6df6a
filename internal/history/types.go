package history

import (
	"time"
)

// RunRecord is one journal row. It describes a run; matched numbers are
// never stored.
type RunRecord struct {
	ID          string     `db:"id" json:"id"`
	Mode        string     `db:"mode" json:"mode"`
	Tag         string     `db:"tag" json:"tag"`
	Constraints string     `db:"constraints" json:"constraints"` // JSON
	Source      string     `db:"source" json:"source"`
	State       string     `db:"state" json:"state"`
	Processed   int64      `db:"processed" json:"processed"`
	Matches     int64      `db:"matches" json:"matches"`
	HadAnyMatch bool       `db:"had_any_match" json:"had_any_match"`
	Error       string     `db:"error" json:"error,omitempty"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// JournalStats represents aggregate run statistics
type JournalStats struct {
	TotalRuns     int64   `db:"total" json:"total_runs"`
	CompletedRuns int64   `db:"completed" json:"completed_runs"`
	CancelledRuns int64   `db:"cancelled" json:"cancelled_runs"`
	FailedRuns    int64   `db:"failed" json:"failed_runs"`
	TotalMatches  int64   `db:"matches" json:"total_matches"`
	AvgDurationMs float64 `db:"avg_duration_ms" json:"avg_duration_ms"`
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

package cache

import (
	"errors"
	"time"

	"github.com/raaihank/numsieve/internal/pipeline"
)

// ErrNotFound is returned when no status is stored for a run.
var ErrNotFound = errors.New("run status not found")

// RunStatus is the snapshot of a run published on the status board
type RunStatus struct {
	ID          string            `json:"id"`
	Mode        string            `json:"mode"`
	Tag         string            `json:"tag"`
	Progress    pipeline.Progress `json:"progress"`
	HadAnyMatch bool              `json:"had_any_match"`
	Error       string            `json:"error,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BoardStats represents status board statistics
type BoardStats struct {
	Writes      int64 `json:"writes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	TotalKeys   int64 `json:"total_keys"`
	MemoryUsage int64 `json:"memory_usage_bytes"`
}

// Config contains status board configuration
type Config struct {
	Addr      string        `yaml:"addr" mapstructure:"addr"`
	Password  string        `yaml:"password" mapstructure:"password"`
	DB        int           `yaml:"db" mapstructure:"db"`
	PoolSize  int           `yaml:"pool_size" mapstructure:"pool_size"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

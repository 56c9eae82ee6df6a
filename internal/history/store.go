// Package history journals run metadata in PostgreSQL.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS numsieve_runs (
		id            TEXT PRIMARY KEY,
		mode          TEXT NOT NULL,
		tag           TEXT NOT NULL,
		constraints   JSONB NOT NULL,
		source        TEXT NOT NULL DEFAULT '',
		state         TEXT NOT NULL,
		processed     BIGINT NOT NULL DEFAULT 0,
		matches       BIGINT NOT NULL DEFAULT 0,
		had_any_match BOOLEAN NOT NULL DEFAULT FALSE,
		error         TEXT NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ NOT NULL,
		finished_at   TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_numsieve_runs_started_at ON numsieve_runs (started_at DESC);`

const insertRunQuery = `
	INSERT INTO numsieve_runs (id, mode, tag, constraints, source, state, started_at)
	VALUES (:id, :mode, :tag, :constraints, :source, :state, :started_at)`

const finishRunQuery = `
	UPDATE numsieve_runs
	SET state = :state, processed = :processed, matches = :matches,
		had_any_match = :had_any_match, error = :error, finished_at = :finished_at
	WHERE id = :id`

// Journal records the lifecycle of every run
type Journal struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewJournal connects to PostgreSQL and prepares the schema
func NewJournal(config *Config, logger *zap.Logger) (*Journal, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	journal := &Journal{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := journal.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	logger.Info("Run journal initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return journal, nil
}

// EnsureSchema creates the journal table if it does not exist
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// RecordStart inserts the row of a run that just started
func (j *Journal) RecordStart(ctx context.Context, run *RunRecord) error {
	if _, err := j.db.NamedExecContext(ctx, insertRunQuery, run); err != nil {
		j.logger.Error("Failed to record run start", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordFinish stores the terminal state and counters of a run
func (j *Journal) RecordFinish(ctx context.Context, run *RunRecord) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	res, err := j.db.NamedExecContext(ctx, finishRunQuery, run)
	if err != nil {
		j.logger.Error("Failed to record run finish", zap.String("run_id", run.ID), zap.Error(err))
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s was never recorded", run.ID)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, mode, tag, constraints, source, state, processed, matches,
			had_any_match, error, started_at, finished_at
		FROM numsieve_runs
		ORDER BY started_at DESC
		LIMIT $1`

	var runs []*RunRecord
	if err := j.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetStats returns aggregate statistics over every journaled run
func (j *Journal) GetStats(ctx context.Context) (*JournalStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN state = 'completed' THEN 1 END) AS completed,
			COUNT(CASE WHEN state = 'cancelled' THEN 1 END) AS cancelled,
			COUNT(CASE WHEN state = 'failed' THEN 1 END) AS failed,
			COALESCE(SUM(matches), 0) AS matches,
			COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at)) * 1000), 0) AS avg_duration_ms
		FROM numsieve_runs`

	stats := &JournalStats{}
	if err := j.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get journal stats: %w", err)
	}
	return stats, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	// "postgres://user:pass" has a scheme colon before the password colon
	if colon < 0 || strings.Count(userPart, ":") < 2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}

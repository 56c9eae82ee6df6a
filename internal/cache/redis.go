package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StatusBoard keeps the latest snapshot of every run in Redis so other
// processes and dashboards can poll it
type StatusBoard struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  boardStats
}

type boardStats struct {
	writes atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStatusBoard connects to Redis and verifies the connection
func NewStatusBoard(config *Config, logger *zap.Logger) (*StatusBoard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	board := newStatusBoard(client, config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := board.ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Status board initialized successfully",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
		zap.Duration("ttl", config.TTL))

	return board, nil
}

func newStatusBoard(client *redis.Client, config *Config, logger *zap.Logger) *StatusBoard {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "numsieve"
	}
	return &StatusBoard{client: client, config: config, logger: logger}
}

func (b *StatusBoard) ping(ctx context.Context) error {
	_, err := b.client.Ping(ctx).Result()
	return err
}

// Save stores status under its run key, replacing the previous snapshot
func (b *StatusBoard) Save(ctx context.Context, status *RunStatus) error {
	status.UpdatedAt = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal run status: %w", err)
	}

	if err := b.client.Set(ctx, b.runKey(status.ID), data, b.config.TTL).Err(); err != nil {
		b.logger.Error("Failed to save run status", zap.String("run_id", status.ID), zap.Error(err))
		return fmt.Errorf("failed to save run status: %w", err)
	}
	b.stats.writes.Add(1)
	return nil
}

// SaveBatch stores several snapshots in one round trip
func (b *StatusBoard) SaveBatch(ctx context.Context, statuses []*RunStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	now := time.Now()
	for _, status := range statuses {
		status.UpdatedAt = now
		data, err := json.Marshal(status)
		if err != nil {
			b.logger.Error("Failed to marshal run status for batch save", zap.Error(err))
			continue
		}
		pipe.Set(ctx, b.runKey(status.ID), data, b.config.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("Batch status save failed", zap.Error(err))
		return fmt.Errorf("batch status save failed: %w", err)
	}
	b.stats.writes.Add(int64(len(statuses)))
	return nil
}

// Get returns the latest snapshot of run id
func (b *StatusBoard) Get(ctx context.Context, id string) (*RunStatus, error) {
	data, err := b.client.Get(ctx, b.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		b.stats.misses.Add(1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run status: %w", err)
	}

	var status RunStatus
	if err := json.Unmarshal(data, &status); err != nil {
		b.logger.Error("Failed to unmarshal run status", zap.String("run_id", id), zap.Error(err))
		// Delete corrupted entry
		b.client.Del(ctx, b.runKey(id))
		b.stats.misses.Add(1)
		return nil, ErrNotFound
	}
	b.stats.hits.Add(1)
	return &status, nil
}

// Delete removes the snapshot of run id
func (b *StatusBoard) Delete(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, b.runKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete run status: %w", err)
	}
	return nil
}

// GetStats returns status board statistics
func (b *StatusBoard) GetStats(ctx context.Context) (*BoardStats, error) {
	info, err := b.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &BoardStats{
		Writes:      b.stats.writes.Load(),
		Hits:        b.stats.hits.Load(),
		Misses:      b.stats.misses.Load(),
		MemoryUsage: parseUsedMemory(info),
	}

	keys, err := b.scanKeys(ctx)
	if err == nil {
		stats.TotalKeys = int64(len(keys))
	}
	return stats, nil
}

// Clear removes every snapshot under the board's prefix
func (b *StatusBoard) Clear(ctx context.Context) error {
	keys, err := b.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := b.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			b.logger.Error("Failed to delete status keys", zap.Error(err))
			return fmt.Errorf("failed to delete status keys: %w", err)
		}
	}

	b.logger.Info("Status board cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (b *StatusBoard) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func (b *StatusBoard) scanKeys(ctx context.Context) ([]string, error) {
	iter := b.client.Scan(ctx, 0, b.config.KeyPrefix+":run:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan status keys: %w", err)
	}
	return keys, nil
}

func (b *StatusBoard) runKey(id string) string {
	return b.config.KeyPrefix + ":run:" + id
}

// parseUsedMemory extracts used_memory from an INFO reply
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/numsieve/internal/pipeline"
)

func TestRunKey(t *testing.T) {
	b := newStatusBoard(redis.NewClient(&redis.Options{Addr: "localhost:0"}), &Config{}, zap.NewNop())
	defer b.Close()

	assert.Equal(t, "numsieve:run:abc", b.runKey("abc"))
}

func TestParseUsedMemory(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n"
	assert.Equal(t, int64(1048576), parseUsedMemory(info))
	assert.Zero(t, parseUsedMemory("# Memory\r\n"))
}

// TestStatusBoardRoundTrip needs a Redis server; set NUMSIEVE_TEST_REDIS to
// its address to run it.
func TestStatusBoardRoundTrip(t *testing.T) {
	addr := os.Getenv("NUMSIEVE_TEST_REDIS")
	if addr == "" {
		t.Skip("NUMSIEVE_TEST_REDIS not set")
	}

	board, err := NewStatusBoard(&Config{Addr: addr, TTL: time.Minute, KeyPrefix: "numsieve-test"}, zap.NewNop())
	require.NoError(t, err)
	defer board.Close()

	ctx := context.Background()
	require.NoError(t, board.Clear(ctx))

	status := &RunStatus{
		ID:   "run-1",
		Mode: "generate",
		Tag:  "st98-----end21--sds--dds--nnn",
		Progress: pipeline.Progress{
			State:     pipeline.StateRunning,
			Processed: 5000,
			Matches:   12,
		},
		HadAnyMatch: true,
	}
	require.NoError(t, board.Save(ctx, status))

	got, err := board.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, status.Tag, got.Tag)
	assert.Equal(t, int64(12), got.Progress.Matches)

	_, err = board.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, board.SaveBatch(ctx, []*RunStatus{{ID: "run-2"}, {ID: "run-3"}}))
	stats, err := board.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalKeys)
	assert.Equal(t, int64(3), stats.Writes)

	require.NoError(t, board.Delete(ctx, "run-1"))
	require.NoError(t, board.Clear(ctx))
}

package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
)

func TestUniversalOptions(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("META_PASSWORD", "")

	testCases := []struct {
		name       string
		addr       string
		addrs      []string
		masterName string
		db         int
		password   string
	}{
		{"Single", "127.0.0.1:6379", []string{"127.0.0.1:6379"}, "", 0, ""},
		{"Single with db", "127.0.0.1:6379/3", []string{"127.0.0.1:6379"}, "", 3, ""},
		{"Single without port", "127.0.0.1/2", []string{"127.0.0.1:6379"}, "", 2, ""},
		{"Hostname without port", "redis.local", []string{"redis.local:6379"}, "", 0, ""},
		{"IPv6 without port", "[::1]/1", []string{"[::1]:6379"}, "", 1, ""},
		{"Password in url", ":secret@127.0.0.1:6379/1", []string{"127.0.0.1:6379"}, "", 1, "secret"},
		{"Cluster", "10.0.0.1:7001,10.0.0.2:7002", []string{"10.0.0.1:7001", "10.0.0.2:7002"}, "", 0, ""},
		{"Cluster node without port", "10.0.0.1:7001,10.0.0.2", []string{"10.0.0.1:7001", "10.0.0.2:6379"}, "", 0, ""},
		{"Sentinel", "mymaster,10.0.0.1:26379,10.0.0.2:26379/2", []string{"10.0.0.1:26379", "10.0.0.2:26379"}, "mymaster", 2, ""},
		{"Sentinel without ports", "mymaster,10.0.0.1,10.0.0.2/2", []string{"10.0.0.1:26379", "10.0.0.2:26379"}, "mymaster", 2, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := universalOptions(tc.addr, Options{Retries: 2, ReadTimeout: time.Second})
			require.NoError(t, err)
			assert.Equal(t, tc.addrs, opts.Addrs)
			assert.Equal(t, tc.masterName, opts.MasterName)
			assert.Equal(t, tc.db, opts.DB)
			assert.Equal(t, tc.password, opts.Password)
			assert.Equal(t, 2, opts.MaxRetries)
			assert.Equal(t, time.Second, opts.ReadTimeout)
		})
	}
}

func TestUniversalOptions_PasswordFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("META_PASSWORD", "from-meta")
	opts, err := universalOptions("127.0.0.1:6379", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from-meta", opts.Password)
	assert.Equal(t, -1, opts.MaxRetries)

	t.Setenv("REDIS_PASSWORD", "from-redis")
	opts, err = universalOptions("127.0.0.1:6379", Options{})
	require.NoError(t, err)
	assert.Equal(t, "from-redis", opts.Password)
}

func TestUniversalOptions_Invalid(t *testing.T) {
	_, err := universalOptions("", Options{})
	assert.Error(t, err)
	_, err = universalOptions("127.0.0.1:6379/notadb", Options{})
	assert.Error(t, err)
}

func TestParseTotals(t *testing.T) {
	totals, err := parseTotals(map[string]string{
		"runs":             "3",
		"skipped":          "1",
		"blocks_processed": "100",
		"unique_blocks":    "40",
		"bytes":            "409600",
		"unrelated":        "x",
	})
	require.NoError(t, err)
	assert.Equal(t, Totals{Runs: 3, Skipped: 1, BlocksProcessed: 100, UniqueBlocks: 40, Bytes: 409600}, totals)
	assert.InDelta(t, 0.6, totals.EliminationRatio(), 1e-12)

	empty, err := parseTotals(map[string]string{})
	require.NoError(t, err)
	assert.Zero(t, empty.EliminationRatio())

	_, err = parseTotals(map[string]string{"runs": "many"})
	assert.Error(t, err)
}

func TestRedisStore_Keys(t *testing.T) {
	s := newRedisStore(nil, "")
	assert.Equal(t, "blockdedup.run.abc", s.runKey("abc"))
	assert.Equal(t, "blockdedup.runs", s.runsKey())
	assert.Equal(t, "blockdedup.totals", s.totalsKey())

	s = newRedisStore(nil, "test")
	assert.Equal(t, "test.totals", s.totalsKey())
}

func reportJSON(id string) interface{} {
	return mock.MatchedBy(func(v interface{}) bool {
		data, ok := v.([]byte)
		if !ok {
			return false
		}
		var r report.RunReport
		return json.Unmarshal(data, &r) == nil && r.RunID == id
	})
}

func TestRedisStore_SaveRun(t *testing.T) {
	ctx := context.Background()
	completed := report.New("a", 8, nil)
	completed.AddChunk(report.ChunkReport{Bytes: 8, BlocksProcessed: 2, UniqueBlocks: 1})
	completed.Finish(time.Second, false)
	skipped := report.New("b", 8, nil)
	skipped.Skip("dedup engine unavailable")
	skipped.Finish(0, false)

	t.Run("Completed run adds its counts", func(t *testing.T) {
		pipe := &MockPipeliner{}
		client := &MockRedisClient{pipe: pipe}
		s := newRedisStore(client, "")
		client.On("TxPipelined").Return(nil)
		pipe.On("Set", "blockdedup.run."+completed.RunID, reportJSON(completed.RunID), time.Duration(0)).Return()
		pipe.On("LPush", "blockdedup.runs", []interface{}{completed.RunID}).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "runs", int64(1)).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "blocks_processed", int64(2)).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "unique_blocks", int64(1)).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "bytes", int64(8)).Return()

		require.NoError(t, s.SaveRun(ctx, completed))
		pipe.AssertExpectations(t)
		client.AssertExpectations(t)
		client.AssertNotCalled(t, "Watch", mock.Anything)
	})

	t.Run("Skipped run only counts as skipped", func(t *testing.T) {
		pipe := &MockPipeliner{}
		client := &MockRedisClient{pipe: pipe}
		s := newRedisStore(client, "")
		client.On("TxPipelined").Return(nil)
		pipe.On("Set", "blockdedup.run."+skipped.RunID, reportJSON(skipped.RunID), time.Duration(0)).Return()
		pipe.On("LPush", "blockdedup.runs", []interface{}{skipped.RunID}).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "runs", int64(1)).Return()
		pipe.On("HIncrBy", "blockdedup.totals", "skipped", int64(1)).Return()

		require.NoError(t, s.SaveRun(ctx, skipped))
		pipe.AssertExpectations(t)
		pipe.AssertNumberOfCalls(t, "HIncrBy", 2)
	})

	t.Run("Retention prunes the history", func(t *testing.T) {
		pipe := &MockPipeliner{}
		client := &MockRedisClient{pipe: pipe}
		s := newRedisStore(client, "")
		s.keep = 5
		client.On("TxPipelined").Return(nil)
		client.On("Watch", []string{"blockdedup.runs"}).Return(nil)
		pipe.On("Set", mock.Anything, mock.Anything, mock.Anything).Return()
		pipe.On("LPush", mock.Anything, mock.Anything).Return()
		pipe.On("HIncrBy", mock.Anything, mock.Anything, mock.Anything).Return()

		require.NoError(t, s.SaveRun(ctx, completed))
		client.AssertExpectations(t)
	})

	t.Run("Transaction error", func(t *testing.T) {
		pipe := &MockPipeliner{}
		client := &MockRedisClient{pipe: pipe}
		s := newRedisStore(client, "")
		s.keep = 5
		client.On("TxPipelined").Return(errors.New("connection reset"))
		pipe.On("Set", mock.Anything, mock.Anything, mock.Anything).Return()
		pipe.On("LPush", mock.Anything, mock.Anything).Return()
		pipe.On("HIncrBy", mock.Anything, mock.Anything, mock.Anything).Return()

		assert.EqualError(t, s.SaveRun(ctx, completed), "connection reset")
		client.AssertNotCalled(t, "Watch", mock.Anything)
	})
}

func TestRedisStore_QueueEviction(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		name    string
		evicted []string
		keep    int
		stop    int64
	}{
		{"Keep one", []string{"b", "a"}, 1, 0},
		{"Keep three", []string{"x"}, 3, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pipe := &MockPipeliner{}
			s := newRedisStore(nil, "")
			for _, id := range tc.evicted {
				pipe.On("Del", []string{"blockdedup.run." + id}).Return()
			}
			pipe.On("LTrim", "blockdedup.runs", int64(0), tc.stop).Return()

			s.queueEviction(ctx, pipe, tc.evicted, tc.keep)
			pipe.AssertExpectations(t)
			pipe.AssertNumberOfCalls(t, "Del", len(tc.evicted))
			pipe.AssertNotCalled(t, "HIncrBy", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

// TestRedisStore_RoundTrip needs a disposable redis, e.g.
// BLOCKDEDUP_TEST_REDIS=127.0.0.1:6379/15 go test ./pkg/reportstore/
func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("BLOCKDEDUP_TEST_REDIS")
	if addr == "" {
		t.Skip("BLOCKDEDUP_TEST_REDIS not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(addr, Options{Prefix: "blockdedup-test-" + uuid.NewString()})
	require.NoError(t, err)
	defer func() {
		keys, _ := store.rdb.Keys(ctx, store.prefix+"*").Result()
		if len(keys) > 0 {
			store.rdb.Del(ctx, keys...)
		}
		store.Close()
	}()

	first := report.New("a", 8, nil)
	first.AddChunk(report.ChunkReport{Bytes: 8, BlocksProcessed: 2, UniqueBlocks: 1})
	first.Finish(time.Second, false)
	skipped := report.New("b", 8, nil)
	skipped.Skip("dedup engine unavailable")
	skipped.Finish(0, false)

	require.NoError(t, store.SaveRun(ctx, first))
	require.NoError(t, store.SaveRun(ctx, skipped))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, skipped.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
	assert.NoError(t, report.Verify(runs[1]))

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{Runs: 2, Skipped: 1, BlocksProcessed: 2, UniqueBlocks: 1, Bytes: 8}, totals)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	store.keep = 1
	third := report.New("c", 0, nil)
	third.Finish(0, false)
	require.NoError(t, store.SaveRun(ctx, third))
	runs, err = store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, third.RunID, runs[0].RunID)
	_, err = store.GetRun(ctx, first.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	totals, err = store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Runs)
}

func TestRedisStore_Retention(t *testing.T) {
	addr := os.Getenv("BLOCKDEDUP_TEST_REDIS")
	if addr == "" {
		t.Skip("BLOCKDEDUP_TEST_REDIS not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(addr, Options{Prefix: "blockdedup-test-" + uuid.NewString(), Keep: 1})
	require.NoError(t, err)
	defer func() {
		keys, _ := store.rdb.Keys(ctx, store.prefix+"*").Result()
		if len(keys) > 0 {
			store.rdb.Del(ctx, keys...)
		}
		store.Close()
	}()

	first := report.New("a", 4, nil)
	first.AddChunk(report.ChunkReport{Bytes: 4, BlocksProcessed: 4, UniqueBlocks: 2})
	first.Finish(time.Second, false)
	second := report.New("b", 4, nil)
	second.AddChunk(report.ChunkReport{Bytes: 4, BlocksProcessed: 4, UniqueBlocks: 4})
	second.Finish(time.Second, false)
	require.NoError(t, store.SaveRun(ctx, first))
	require.NoError(t, store.SaveRun(ctx, second))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, second.RunID, runs[0].RunID)

	_, err = store.GetRun(ctx, first.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{Runs: 2, BlocksProcessed: 8, UniqueBlocks: 6, Bytes: 8}, totals)
}

package reportstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
)

/*
Keys, all under the configured prefix (default "blockdedup"):

	Run:     <prefix>.run.<run_id>   -> report JSON
	History: <prefix>.runs           -> [run_id, newest first]
	Totals:  <prefix>.totals         -> {runs, skipped, blocks_processed, unique_blocks, bytes}
*/
const (
	DefaultPrefix = "blockdedup"

	fieldRuns            = "runs"
	fieldSkipped         = "skipped"
	fieldBlocksProcessed = "blocks_processed"
	fieldUniqueBlocks    = "unique_blocks"
	fieldBytes           = "bytes"
)

var logger = internal.GetLogger("blockdedup_reportstore")

var ErrRunNotFound = errors.New("run not found")

// Store keeps finished runs and aggregate counters across runs.
type Store interface {
	SaveRun(ctx context.Context, r *report.RunReport) error
	GetRun(ctx context.Context, id string) (*report.RunReport, error)
	ListRuns(ctx context.Context, n int) ([]*report.RunReport, error)
	Totals(ctx context.Context) (Totals, error)
	Close() error
}

type Options struct {
	Prefix string
	// Keep bounds the run history. Older runs are deleted, totals are kept.
	Keep         int
	Retries      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Totals struct {
	Runs            int64 `json:"runs"`
	Skipped         int64 `json:"skipped"`
	BlocksProcessed int64 `json:"blocks_processed"`
	UniqueBlocks    int64 `json:"unique_blocks"`
	Bytes           int64 `json:"bytes"`
}

// EliminationRatio over every completed run recorded so far.
func (t Totals) EliminationRatio() float64 {
	if t.BlocksProcessed == 0 {
		return 0
	}
	return 1 - float64(t.UniqueBlocks)/float64(t.BlocksProcessed)
}

type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	keep   int
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to addr, e.g. "127.0.0.1:6379/1".
func NewRedisStore(addr string, opts Options) (*RedisStore, error) {
	rdb, err := newUniversalRedisClient(addr, opts)
	if err != nil {
		logger.Errorf("NewRedisStore: %s", err)
		return nil, err
	}
	s := newRedisStore(rdb, opts.Prefix)
	s.keep = opts.Keep
	return s, nil
}

func newRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) runKey(id string) string {
	return s.prefix + ".run." + id
}

func (s *RedisStore) runsKey() string {
	return s.prefix + ".runs"
}

func (s *RedisStore) totalsKey() string {
	return s.prefix + ".totals"
}

// SaveRun stores the report and folds it into the totals in one transaction.
// Skipped runs are recorded but only counted under "skipped".
func (s *RedisStore) SaveRun(ctx context.Context, r *report.RunReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", r.RunID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueRun(ctx, pipe, r, data)
		return nil
	})
	if err != nil {
		logger.Errorf("SaveRun: transaction failed for run %s: %v", r.RunID, err)
		return err
	}
	logger.Debugf("SaveRun: stored run %s (%d bytes)", r.RunID, len(data))
	if s.keep > 0 {
		return s.prune(ctx, s.keep)
	}
	return nil
}

func (s *RedisStore) queueRun(ctx context.Context, pipe redis.Pipeliner, r *report.RunReport, data []byte) {
	totals := s.totalsKey()
	pipe.Set(ctx, s.runKey(r.RunID), data, 0)
	pipe.LPush(ctx, s.runsKey(), r.RunID)
	pipe.HIncrBy(ctx, totals, fieldRuns, 1)
	if r.Skipped() {
		pipe.HIncrBy(ctx, totals, fieldSkipped, 1)
		return
	}
	pipe.HIncrBy(ctx, totals, fieldBlocksProcessed, r.Totals.BlocksProcessed)
	pipe.HIncrBy(ctx, totals, fieldUniqueBlocks, r.Totals.UniqueBlocks)
	pipe.HIncrBy(ctx, totals, fieldBytes, r.Totals.Bytes)
}

// queueEviction deletes the evicted run records and trims the history to
// keep ids. Totals are left alone.
func (s *RedisStore) queueEviction(ctx context.Context, pipe redis.Pipeliner, evicted []string, keep int) {
	for _, id := range evicted {
		pipe.Del(ctx, s.runKey(id))
	}
	pipe.LTrim(ctx, s.runsKey(), 0, int64(keep-1))
}

// prune drops every run beyond the newest keep. The WATCH makes a concurrent
// SaveRun retry the transaction instead of losing its id.
func (s *RedisStore) prune(ctx context.Context, keep int) error {
	runs := s.runsKey()
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		evicted, err := tx.LRange(ctx, runs, int64(keep), -1).Result()
		if err != nil {
			return err
		}
		if len(evicted) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queueEviction(ctx, pipe, evicted, keep)
			return nil
		})
		if err == nil {
			logger.Debugf("prune: removed %d old runs", len(evicted))
		}
		return err
	}, runs)
	if err != nil {
		logger.Errorf("prune: transaction failed on %s: %v", runs, err)
	}
	return err
}

func (s *RedisStore) GetRun(ctx context.Context, id string) (*report.RunReport, error) {
	data, err := s.rdb.Get(ctx, s.runKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		logger.Errorf("GetRun: failed to get run %s: %v", id, err)
		return nil, err
	}
	r := &report.RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns up to n of the most recent runs, newest first. Runs whose
// record has vanished are skipped.
func (s *RedisStore) ListRuns(ctx context.Context, n int) ([]*report.RunReport, error) {
	if n <= 0 {
		return []*report.RunReport{}, nil
	}
	ids, err := s.rdb.LRange(ctx, s.runsKey(), 0, int64(n-1)).Result()
	if err != nil {
		logger.Errorf("ListRuns: failed to LRange %s: %v", s.runsKey(), err)
		return nil, err
	}
	runs := make([]*report.RunReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRun(ctx, id)
		if errors.Is(err, ErrRunNotFound) {
			logger.Warnf("ListRuns: run %s is listed but missing", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (s *RedisStore) Totals(ctx context.Context) (Totals, error) {
	fields, err := s.rdb.HGetAll(ctx, s.totalsKey()).Result()
	if err != nil {
		logger.Errorf("Totals: failed to HGetAll %s: %v", s.totalsKey(), err)
		return Totals{}, err
	}
	return parseTotals(fields)
}

func parseTotals(fields map[string]string) (Totals, error) {
	var t Totals
	targets := map[string]*int64{
		fieldRuns:            &t.Runs,
		fieldSkipped:         &t.Skipped,
		fieldBlocksProcessed: &t.BlocksProcessed,
		fieldUniqueBlocks:    &t.UniqueBlocks,
		fieldBytes:           &t.Bytes,
	}
	for name, v := range fields {
		dst, ok := targets[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Totals{}, fmt.Errorf("totals field %s has invalid value %q: %w", name, v, err)
		}
		*dst = n
	}
	return t, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

package reportstore

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

// MockPipeliner records the commands queued on a pipeline.
type MockPipeliner struct {
	redis.Pipeliner
	mock.Mock
}

func (m *MockPipeliner) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.Called(key, value, expiration)
	return redis.NewStatusCmd(ctx)
}

func (m *MockPipeliner) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.Called(key, values)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeliner) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	m.Called(key, field, incr)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeliner) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.Called(keys)
	return redis.NewIntCmd(ctx)
}

func (m *MockPipeliner) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	m.Called(key, start, stop)
	return redis.NewStatusCmd(ctx)
}

// MockRedisClient runs transactions against pipe instead of a server.
type MockRedisClient struct {
	redis.UniversalClient
	mock.Mock
	pipe *MockPipeliner
}

func (m *MockRedisClient) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	args := m.Called()
	if err := fn(m.pipe); err != nil {
		return nil, err
	}
	return nil, args.Error(0)
}

func (m *MockRedisClient) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	args := m.Called(keys)
	return args.Error(0)
}

package runner

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/dedup"
)

// MockEngine is a mock implementation of the dedup.Engine interface for testing.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockEngine) Deduplicate(ctx context.Context, blocks []dedup.Block, budget time.Duration) ([]dedup.Block, dedup.Stats, error) {
	args := m.Called(ctx, blocks, budget)
	unique, _ := args.Get(0).([]dedup.Block)
	return unique, args.Get(1).(dedup.Stats), args.Error(2)
}

// recordingEngine runs the exact engine and keeps a copy of every block it saw.
type recordingEngine struct {
	dedup.Engine
	seen []dedup.Block
}

func (r *recordingEngine) Deduplicate(ctx context.Context, blocks []dedup.Block, budget time.Duration) ([]dedup.Block, dedup.Stats, error) {
	for _, b := range blocks {
		r.seen = append(r.seen, append(dedup.Block(nil), b...))
	}
	return r.Engine.Deduplicate(ctx, blocks, budget)
}

// Copyright 2025 zhengshuai.xiao@outlook.com
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

const (
	ExactEngineName = "exact"
	// RingEngineName is the external compression engine some deployments
	// plug in. It is not part of this repository.
	RingEngineName = "ring"
)

// ErrEngineUnavailable is returned when the requested engine is not
// registered in this binary, or when a registered engine loses its backend.
var ErrEngineUnavailable = errors.New("dedup engine unavailable")

// Engine deduplicates one block sequence. Implementations must return a
// subsequence of blocks; the advisory budget never turns into an error.
type Engine interface {
	Name() string
	Deduplicate(ctx context.Context, blocks []Block, budget time.Duration) ([]Block, Stats, error)
}

type EngineFactory func(conf internal.EngineConfig) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]EngineFactory)
)

func init() {
	RegisterEngine(ExactEngineName, newExactEngine)
}

// RegisterEngine makes an engine available to NewEngine. A later
// registration under the same name replaces the earlier one.
func RegisterEngine(name string, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = factory
}

func unregisterEngine(name string) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	delete(engines, name)
}

func RegisteredEngines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEngine builds the engine named by conf.Name. Unknown names yield an
// error wrapping ErrEngineUnavailable.
func NewEngine(conf internal.EngineConfig) (Engine, error) {
	enginesMu.RLock()
	factory, ok := engines[conf.Name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not built into this binary (available: %v)", ErrEngineUnavailable, conf.Name, RegisteredEngines())
	}
	engine, err := factory(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine %q: %w", conf.Name, err)
	}
	logger.Infof("Using dedup engine %s", engine.Name())
	return engine, nil
}

type exactEngine struct{}

func newExactEngine(conf internal.EngineConfig) (Engine, error) {
	if conf.SimilarityThreshold != 0 && conf.SimilarityThreshold != 1 {
		logger.Warnf("exact engine ignores similarity_threshold=%v, blocks are matched byte for byte", conf.SimilarityThreshold)
	}
	if conf.EnableBloom {
		logger.Warnf("exact engine ignores enable_bloom, membership is always exact")
	}
	if conf.NumWorkers > 1 {
		logger.Debugf("exact engine runs single threaded, num_workers=%d ignored", conf.NumWorkers)
	}
	return &exactEngine{}, nil
}

func (e *exactEngine) Name() string {
	return ExactEngineName
}

func (e *exactEngine) Deduplicate(ctx context.Context, blocks []Block, budget time.Duration) ([]Block, Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}
	unique, stats := Deduplicate(blocks, budget)
	if stats.OverBudget {
		logger.Warnf("deduplicating %d blocks took %s, over the %s target", stats.CountInput, stats.Elapsed, budget)
	}
	logger.Debugf("exact engine: %d blocks in, %d unique, %.4f eliminated", stats.CountInput, stats.CountUnique, stats.EliminationRatio)
	return unique, stats, nil
}

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
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/internal/compression"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/dedup"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
)

var logger = internal.GetLogger("blockdedup_runner")

type Options struct {
	BlockSize int
	ChunkSize int64
	// TextMode decodes chunks as UTF-8 and counts BlockSize in characters.
	TextMode bool
	Budget   time.Duration
	// Compressor, when set, compresses the unique payload of every chunk.
	Compressor compression.Compressor
	OnChunk    func(report.ChunkReport)
	// Config is recorded in the report as is.
	Config *internal.Config
}

// OptionsFromConfig maps a validated configuration onto runner options.
func OptionsFromConfig(conf *internal.Config) (Options, error) {
	if err := conf.Validate(); err != nil {
		return Options{}, err
	}
	comp, err := compression.GetCompressorViaString(conf.Compression)
	if err != nil {
		return Options{}, fmt.Errorf("%w: compression %q: %v", internal.ErrInvalidConf, conf.Compression, err)
	}
	return Options{
		BlockSize:  conf.BlockSize,
		ChunkSize:  conf.ChunkSize,
		TextMode:   conf.TextMode,
		Budget:     conf.TargetTime(),
		Compressor: comp,
		Config:     conf,
	}, nil
}

// Runner streams a source through an engine chunk by chunk. Memory stays
// proportional to ChunkSize.
type Runner struct {
	engine   dedup.Engine
	opts     Options
	buffPool sync.Pool
}

func New(engine dedup.Engine, opts Options) *Runner {
	r := &Runner{engine: engine, opts: opts}
	r.buffPool.New = func() interface{} {
		buf := make([]byte, opts.ChunkSize)
		return &buf
	}
	return r
}

func (r *Runner) engineName() string {
	if r.engine != nil {
		return r.engine.Name()
	}
	if r.opts.Config != nil {
		return r.opts.Config.Engine.Name
	}
	return ""
}

// Run deduplicates src. A missing engine is not an error: the returned report
// is marked skipped and carries the reason.
func (r *Runner) Run(ctx context.Context, src io.Reader, size int64, sourceName string) (*report.RunReport, error) {
	if r.opts.BlockSize <= 0 || r.opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d, chunk size %d", internal.ErrInvalidConf, r.opts.BlockSize, r.opts.ChunkSize)
	}
	if r.opts.TextMode && r.opts.ChunkSize < 4 {
		return nil, fmt.Errorf("%w: chunk size %d cannot hold a UTF-8 character", internal.ErrInvalidConf, r.opts.ChunkSize)
	}

	start := time.Now()
	rep := report.New(sourceName, size, r.opts.Config)
	rep.Engine = r.engineName()
	session, err := report.SessionDigest(start, sourceName, size, r.opts.Config)
	if err != nil {
		return nil, err
	}
	rep.SessionDigest = session
	logger.Infof("run %s: source %s (%d bytes), engine %s, session %s",
		rep.RunID, sourceName, size, rep.Engine, internal.ShortHex(session, 16))

	if r.engine == nil {
		logger.Warnf("run %s: %v, skipping deduplication", rep.RunID, dedup.ErrEngineUnavailable)
		rep.Skip(dedup.ErrEngineUnavailable.Error())
		rep.Finish(time.Since(start), false)
		return rep, nil
	}

	if err := r.process(ctx, src, rep); err != nil {
		if !errors.Is(err, dedup.ErrEngineUnavailable) {
			logger.Errorf("run %s failed: %s", rep.RunID, err)
			return nil, err
		}
		logger.Warnf("run %s: %v, skipping the rest of the source", rep.RunID, err)
		rep.Skip(err.Error())
	}
	rep.Finish(time.Since(start), r.opts.Compressor != nil)
	logger.Infof("run %s: %d blocks, %d unique, elimination ratio %.4f in %.3fs",
		rep.RunID, rep.Totals.BlocksProcessed, rep.Totals.UniqueBlocks, rep.EliminationRatio, rep.ElapsedSeconds)
	return rep, nil
}

func (r *Runner) process(ctx context.Context, src io.Reader, rep *report.RunReport) error {
	var buf = r.buffPool.Get().(*[]byte)
	defer r.buffPool.Put(buf)

	var offset int64
	carry := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		loadStart := time.Now()
		n, err := io.ReadFull(src, (*buf)[carry:])
		last := false
		switch {
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			last = true
		case err != nil:
			return fmt.Errorf("failed to read chunk %d: %w", index, err)
		}
		if n == 0 {
			if carry > 0 {
				logger.Debugf("dropping %d bytes of a truncated character at the end of the source", carry)
			}
			return nil
		}
		load := time.Since(loadStart)

		data := (*buf)[:carry+n]
		tail := 0
		if r.opts.TextMode && !last {
			tail = dedup.IncompleteTail(data)
		}
		data = data[:len(data)-tail]

		chunk, err := r.dedupChunk(ctx, index, data)
		if err != nil {
			return err
		}
		chunk.Offset = offset
		chunk.LoadSeconds = load.Seconds()
		offset += int64(len(data))
		rep.AddChunk(chunk)
		if r.opts.OnChunk != nil {
			r.opts.OnChunk(chunk)
		}

		if last {
			return nil
		}
		// the partial character opens the next chunk
		carry = copy(*buf, (*buf)[len(data):len(data)+tail])
	}
}

func (r *Runner) dedupChunk(ctx context.Context, index int, data []byte) (report.ChunkReport, error) {
	var blocks []dedup.Block
	if r.opts.TextMode {
		blocks = dedup.SplitRunes(dedup.DecodeText(data), r.opts.BlockSize)
	} else {
		blocks = dedup.SplitFixed(data, r.opts.BlockSize)
	}

	start := time.Now()
	unique, stats, err := r.engine.Deduplicate(ctx, blocks, r.opts.Budget)
	if err != nil {
		return report.ChunkReport{}, fmt.Errorf("chunk %d: %w", index, err)
	}
	elapsed := time.Since(start)

	chunk := report.ChunkReport{
		Index:            index,
		Bytes:            int64(len(data)),
		BlocksProcessed:  stats.CountInput,
		UniqueBlocks:     stats.CountUnique,
		EliminationRatio: stats.EliminationRatio,
		ElapsedSeconds:   elapsed.Seconds(),
		OverBudget:       stats.OverBudget,
	}
	if elapsed > 0 {
		chunk.BlocksPerSecond = float64(stats.CountInput) / elapsed.Seconds()
	}
	parts := make([][]byte, len(unique))
	for i, b := range unique {
		parts[i] = b
		chunk.UniqueBytes += int64(len(b))
	}
	if r.opts.Compressor != nil {
		size, err := compression.CompressedSize(r.opts.Compressor, parts)
		if err != nil {
			return report.ChunkReport{}, fmt.Errorf("chunk %d: %w", index, err)
		}
		chunk.CompressedBytes = int64(size)
	}
	logger.Debugf("chunk %d: %d blocks, %d unique, %.4f eliminated in %s",
		index, chunk.BlocksProcessed, chunk.UniqueBlocks, chunk.EliminationRatio, elapsed)
	return chunk, nil
}

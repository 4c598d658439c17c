package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var logger = internal.GetLogger("blockdedup_report")

const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// ChunkReport describes one chunk handed to the engine.
type ChunkReport struct {
	Index            int     `json:"index"`
	Offset           int64   `json:"offset"`
	Bytes            int64   `json:"bytes"`
	BlocksProcessed  int     `json:"blocks_processed"`
	UniqueBlocks     int     `json:"unique_blocks"`
	UniqueBytes      int64   `json:"unique_bytes"`
	CompressedBytes  int64   `json:"compressed_bytes,omitempty"`
	EliminationRatio float64 `json:"elimination_ratio"`
	LoadSeconds      float64 `json:"load_seconds"`
	ElapsedSeconds   float64 `json:"elapsed_time"`
	BlocksPerSecond  float64 `json:"blocks_per_second"`
	OverBudget       bool    `json:"over_budget,omitempty"`
}

type Totals struct {
	BlocksProcessed int64 `json:"blocks_processed"`
	UniqueBlocks    int64 `json:"unique_blocks"`
	Bytes           int64 `json:"bytes"`
	UniqueBytes     int64 `json:"unique_bytes"`
	CompressedBytes int64 `json:"compressed_bytes,omitempty"`
}

// RunReport is the outcome of deduplicating one source.
type RunReport struct {
	RunID                string            `json:"run_id"`
	Timestamp            time.Time         `json:"timestamp"`
	Version              string            `json:"version"`
	Source               string            `json:"source"`
	SourceSize           int64             `json:"source_size"`
	Engine               string            `json:"engine"`
	Config               *internal.Config  `json:"config,omitempty"`
	Status               string            `json:"status"`
	Reason               string            `json:"reason,omitempty"`
	Totals               Totals            `json:"totals"`
	EliminationRatio     float64           `json:"elimination_ratio"`
	ElapsedSeconds       float64           `json:"elapsed_seconds"`
	BlocksPerSecond      float64           `json:"blocks_per_second"`
	CompressionReduction float64           `json:"compression_reduction,omitempty"`
	Host                 internal.HostInfo `json:"host"`
	Chunks               []ChunkReport     `json:"chunks"`
	SessionDigest        string            `json:"session_digest"`
	Digest               string            `json:"digest"`
}

func New(source string, size int64, conf *internal.Config) *RunReport {
	r := &RunReport{
		RunID:      uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Version:    internal.ShortVersion(),
		Source:     source,
		SourceSize: size,
		Config:     conf,
		Status:     StatusCompleted,
		Host:       internal.GetHostInfo(),
		Chunks:     []ChunkReport{},
	}
	if conf != nil {
		r.Engine = conf.Engine.Name
	}
	return r
}

func (r *RunReport) Skipped() bool {
	return r.Status == StatusSkipped
}

// Skip marks the run as not performed. Counters already gathered are kept.
func (r *RunReport) Skip(reason string) {
	r.Status = StatusSkipped
	r.Reason = reason
}

// AddChunk appends c and folds it into the totals.
func (r *RunReport) AddChunk(c ChunkReport) {
	r.Chunks = append(r.Chunks, c)
	r.Totals.BlocksProcessed += int64(c.BlocksProcessed)
	r.Totals.UniqueBlocks += int64(c.UniqueBlocks)
	r.Totals.Bytes += c.Bytes
	r.Totals.UniqueBytes += c.UniqueBytes
	r.Totals.CompressedBytes += c.CompressedBytes
}

// Finish computes the derived totals and seals the report with its digest.
func (r *RunReport) Finish(elapsed time.Duration, compressed bool) {
	r.ElapsedSeconds = elapsed.Seconds()
	if r.Totals.BlocksProcessed > 0 {
		r.EliminationRatio = 1 - float64(r.Totals.UniqueBlocks)/float64(r.Totals.BlocksProcessed)
	}
	if r.ElapsedSeconds > 0 {
		r.BlocksPerSecond = float64(r.Totals.BlocksProcessed) / r.ElapsedSeconds
	}
	if compressed && r.Totals.Bytes > 0 {
		r.CompressionReduction = (1 - float64(r.Totals.CompressedBytes)/float64(r.Totals.Bytes)) * 100
	}
	r.Digest = Digest(r)
}

func (r *RunReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *RunReport) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := internal.WriteFileAtomic(path, append(data, '\n')); err != nil {
		logger.Errorf("failed to save report %s: %v", path, err)
		return err
	}
	logger.Infof("report %s saved to %s", r.RunID, path)
	return nil
}

func ReadJSON(rd io.Reader) (*RunReport, error) {
	r := &RunReport{}
	if err := json.NewDecoder(rd).Decode(r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}

func Load(path string) (*RunReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

// WriteText renders a short human readable summary.
func (r *RunReport) WriteText(w io.Writer) error {
	var err error
	p := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	p("Run %s (%s)\n", r.RunID, r.Timestamp.Format(time.RFC3339))
	p("  source:            %s (%s)\n", r.Source, internal.FormatBytes(uint64(r.SourceSize)))
	p("  engine:            %s\n", r.Engine)
	if r.Skipped() {
		p("  status:            skipped: %s\n", r.Reason)
		return err
	}
	p("  blocks processed:  %d\n", r.Totals.BlocksProcessed)
	p("  unique blocks:     %d\n", r.Totals.UniqueBlocks)
	p("  elimination ratio: %.2f%%\n", r.EliminationRatio*100)
	p("  elapsed:           %.3fs (%.0f blocks/s)\n", r.ElapsedSeconds, r.BlocksPerSecond)
	if r.Totals.CompressedBytes > 0 {
		p("  compressed:        %s (%.2f%% smaller)\n", internal.FormatBytes(uint64(r.Totals.CompressedBytes)), r.CompressionReduction)
	}
	for _, c := range r.Chunks {
		p("  chunk %-4d %10d blocks %10d unique %6.2f%% %8.3fs\n",
			c.Index, c.BlocksProcessed, c.UniqueBlocks, c.EliminationRatio*100, c.ElapsedSeconds)
	}
	p("  digest:            %s\n", r.Digest)
	return err
}

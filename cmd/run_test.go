package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/dedup"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/source"
)

func parseRunConfig(t *testing.T, args ...string) (*internal.Config, error) {
	var conf *internal.Config
	var confErr error
	app := &cli.App{
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: expandFlags(configFlags(), runFlags()),
			Action: func(c *cli.Context) error {
				conf, confErr = loadConfig(c)
				return nil
			},
		}},
	}
	require.NoError(t, app.Run(append([]string{"blockdedup", "run"}, args...)))
	return conf, confErr
}

func writeTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"blockdedup"}, args...))
	return out.String(), err
}

func TestLoadConfig_Defaults(t *testing.T) {
	conf, err := parseRunConfig(t)
	require.NoError(t, err)
	assert.Equal(t, internal.DefaultBlockSize, conf.BlockSize)
	assert.Equal(t, int64(internal.DefaultChunkSize), conf.ChunkSize)
	assert.Equal(t, internal.DefaultEngine, conf.Engine.Name)
	assert.False(t, conf.TextMode)
}

func TestLoadConfig_Flags(t *testing.T) {
	conf, err := parseRunConfig(t,
		"--block-size", "1", "--chunk-size", "64M", "--text",
		"--engine", dedup.RingEngineName, "--target-time", "500ms",
		"--compression", "zlib", "--report", "out.json",
		"--meta-addr", "127.0.0.1:6379/2",
		"--upload-endpoint", "http://127.0.0.1:9000", "--upload-bucket", "reports",
		"--s3-endpoint", "http://127.0.0.1:9000", "--s3-region", "eu-west-1")
	require.NoError(t, err)

	assert.Equal(t, 1, conf.BlockSize)
	assert.Equal(t, int64(64*internal.MiB), conf.ChunkSize)
	assert.True(t, conf.TextMode)
	assert.Equal(t, dedup.RingEngineName, conf.Engine.Name)
	assert.Equal(t, int64(500), conf.Engine.TargetTimeMs)
	assert.Equal(t, "zlib", conf.Compression)
	assert.Equal(t, "out.json", conf.ReportPath)
	assert.Equal(t, "127.0.0.1:6379/2", conf.MetaAddr)
	assert.Equal(t, "reports", conf.Upload.Bucket)
	assert.Equal(t, "eu-west-1", conf.S3.Region)
}

func TestLoadConfig_FileThenFlags(t *testing.T) {
	path := writeTempFile(t, "blockdedup.toml", `
block_size = 512
chunk_size = 1048576

[engine]
name = "exact"
num_workers = 8
`)
	conf, err := parseRunConfig(t, "--config", path, "--block-size", "1K")
	require.NoError(t, err)
	assert.Equal(t, 1024, conf.BlockSize)
	assert.Equal(t, int64(1048576), conf.ChunkSize)
	assert.Equal(t, 8, conf.Engine.NumWorkers)
	assert.Equal(t, 1.0, conf.Engine.SimilarityThreshold)
}

func TestLoadConfig_TargetTime(t *testing.T) {
	testCases := []struct {
		value    string
		expected int64
	}{
		{"0", 0},
		{"0s", 0},
		{"0ms", 0},
		{"0.0", 0},
		{"1ms", 1},
		{"2.5", 2500},
		{"1m", 60000},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			conf, err := parseRunConfig(t, "--target-time", tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, conf.Engine.TargetTimeMs)
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--block-size", "lots"},
		{"--chunk-size", "1x"},
		{"--block-size", "0"},
		{"--block-size", "4K", "--chunk-size", "1K"},
		{"--target-time", "soon"},
		{"--target-time", "500us"},
		{"--target-time", "-1s"},
		{"--upload-endpoint", "http://127.0.0.1:9000"},
		{"--config", "/nonexistent/blockdedup.toml"},
	} {
		_, err := parseRunConfig(t, args...)
		assert.Error(t, err, args)
	}
}

func TestRun_WritesVerifiableReport(t *testing.T) {
	src := writeTempFile(t, "input.bin", strings.Repeat("abcd", 8)+"wxyz")
	reportPath := filepath.Join(t.TempDir(), "report.json")

	out, err := runApp(t, "run", "--block-size", "4", "--chunk-size", "16", "--report", reportPath, src)
	require.NoError(t, err)
	assert.Contains(t, out, "blocks processed:  9")
	assert.Contains(t, out, "unique blocks:     3")

	rep, err := report.Load(reportPath)
	require.NoError(t, err)
	assert.Equal(t, report.StatusCompleted, rep.Status)
	assert.Equal(t, src, rep.Source)
	assert.Equal(t, int64(36), rep.SourceSize)
	assert.Len(t, rep.Chunks, 3)
	assert.NoError(t, report.Verify(rep))

	out, err = runApp(t, "verify", reportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
}

func TestRun_JSONOutput(t *testing.T) {
	src := writeTempFile(t, "input.txt", "héhéhé")
	out, err := runApp(t, "run", "--text", "--block-size", "2", "--chunk-size", "1K", "--json", src)
	require.NoError(t, err)

	rep, err := report.ReadJSON(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.Totals.BlocksProcessed)
	assert.Equal(t, int64(1), rep.Totals.UniqueBlocks)
	assert.True(t, rep.Config.TextMode)
}

func TestRun_UnavailableEngineIsSkipped(t *testing.T) {
	src := writeTempFile(t, "input.bin", "aaaa")
	reportPath := filepath.Join(t.TempDir(), "report.json")

	out, err := runApp(t, "run", "--engine", dedup.RingEngineName, "--block-size", "2", "--chunk-size", "1K", "--report", reportPath, src)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped")

	rep, err := report.Load(reportPath)
	require.NoError(t, err)
	assert.True(t, rep.Skipped())
	assert.Equal(t, dedup.RingEngineName, rep.Engine)
	assert.Contains(t, rep.Reason, "unavailable")
}

func TestRun_MissingSource(t *testing.T) {
	_, err := runApp(t, "run", filepath.Join(t.TempDir(), "enwik9"))
	assert.ErrorIs(t, err, source.ErrSourceNotFound)
}

func TestRun_NeedsOneSource(t *testing.T) {
	_, err := runApp(t, "run")
	assert.Error(t, err)
	_, err = runApp(t, "run", "a", "b")
	assert.Error(t, err)
}

func TestVerify_Tampered(t *testing.T) {
	rep := report.New("src", 4, nil)
	rep.AddChunk(report.ChunkReport{Bytes: 4, BlocksProcessed: 2, UniqueBlocks: 1})
	rep.Finish(time.Second, false)
	good := filepath.Join(t.TempDir(), "good.json")
	require.NoError(t, rep.Save(good))

	rep.Totals.UniqueBlocks = 2
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, rep.Save(bad))

	out, err := runApp(t, "verify", good, bad)
	assert.ErrorIs(t, err, internal.ErrDigestBroken)
	assert.Contains(t, out, "OK     "+good)
	assert.Contains(t, out, "FAILED "+bad)

	_, err = runApp(t, "verify")
	assert.Error(t, err)
}

func TestPublish_NothingConfigured(t *testing.T) {
	assert.NoError(t, publish(context.Background(), internal.NewConfig(), report.New("src", 0, nil)))
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/daemon"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/dedup"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/reportstore"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/runner"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/s3client"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/source"
)

func cmdRun() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Action:    run,
		Category:  "DEDUP",
		Usage:     "Deduplicate a source block by block and report the elimination ratio",
		ArgsUsage: "SOURCE",
		Description: `
			SOURCE is a local path or s3://bucket/key. The source is read in chunks of --chunk-size
			bytes, every chunk is cut into blocks of --block-size and exact duplicates within the
			chunk are eliminated. When the configured engine is not built into this binary the run
			is reported as skipped.

			Examples:
			$ blockdedup run --block-size 4K enwik9
			$ blockdedup run --text --block-size 1 --chunk-size 1G --report run.json enwik9
			$ blockdedup run --s3-endpoint http://127.0.0.1:9000 --meta-addr 127.0.0.1:6379/1 s3://dumps/enwik9`,
		Flags: expandFlags(configFlags(), runFlags()),
	}
}

// loadConfig layers the config file, the environment and the flags that
// were set explicitly, in that order.
func loadConfig(c *cli.Context) (*internal.Config, error) {
	internal.LoadEnv(c.String("env-file"))

	conf := internal.NewConfig()
	if path := c.String("config"); path != "" {
		var err error
		if conf, err = internal.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	conf.ApplyEnv()

	if c.IsSet("block-size") {
		n, err := internal.ParseSize(c.String("block-size"))
		if err != nil {
			return nil, fmt.Errorf("--block-size: %w", err)
		}
		conf.BlockSize = int(n)
	}
	if c.IsSet("chunk-size") {
		n, err := internal.ParseSize(c.String("chunk-size"))
		if err != nil {
			return nil, fmt.Errorf("--chunk-size: %w", err)
		}
		conf.ChunkSize = int64(n)
	}
	if c.IsSet("text") {
		conf.TextMode = c.Bool("text")
	}
	if c.IsSet("engine") {
		conf.Engine.Name = c.String("engine")
	}
	if c.IsSet("target-time") {
		d, err := internal.ParseDuration(c.String("target-time"))
		if err != nil {
			return nil, fmt.Errorf("%w: --target-time: %v", internal.ErrInvalidConf, err)
		}
		if d > 0 && d < time.Millisecond {
			return nil, fmt.Errorf("%w: --target-time %s is below 1ms", internal.ErrInvalidConf, d)
		}
		conf.Engine.TargetTimeMs = d.Milliseconds()
	}
	if c.IsSet("compression") {
		conf.Compression = c.String("compression")
	}
	if c.IsSet("report") {
		conf.ReportPath = c.String("report")
	}
	if c.IsSet("meta-addr") {
		conf.MetaAddr = c.String("meta-addr")
	}
	if c.IsSet("upload-endpoint") {
		conf.Upload.Endpoint = c.String("upload-endpoint")
	}
	if c.IsSet("upload-bucket") {
		conf.Upload.Bucket = c.String("upload-bucket")
	}
	if c.IsSet("s3-endpoint") {
		conf.S3.Endpoint = c.String("s3-endpoint")
	}
	if c.IsSet("s3-region") {
		conf.S3.Region = c.String("s3-region")
	}
	return conf, conf.Validate()
}

func run(c *cli.Context) error {
	// Handle daemonization first. If this function returns true, it means
	// the current process is the parent and should exit gracefully.
	if shouldExit, err := handleBackgroundMode(c); err != nil {
		logger.Fatalf("Failed to start in background: %v", err)
	} else if shouldExit {
		return nil
	}

	if c.Args().Len() != 1 {
		return fmt.Errorf("run needs exactly one SOURCE, got %d arguments", c.Args().Len())
	}
	conf, err := loadConfig(c)
	if err != nil {
		logger.Errorf("invalid configuration: %s", err)
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.Open(ctx, c.Args().First(), conf.S3)
	if err != nil {
		if errors.Is(err, source.ErrSourceNotFound) {
			logger.Errorf("%s, nothing to deduplicate", err)
		}
		return err
	}
	defer src.Close()

	engine, err := dedup.NewEngine(conf.Engine)
	if err != nil {
		if !errors.Is(err, dedup.ErrEngineUnavailable) {
			return err
		}
		logger.Warnf("%s", err)
	}

	opts, err := runner.OptionsFromConfig(conf)
	if err != nil {
		return err
	}
	opts.OnChunk = func(cr report.ChunkReport) {
		logger.Infof("chunk %d at %d: %d blocks, %d unique (%.2f%% eliminated) in %.3fs",
			cr.Index, cr.Offset, cr.BlocksProcessed, cr.UniqueBlocks, cr.EliminationRatio*100, cr.ElapsedSeconds)
	}

	rep, err := runner.New(engine, opts).Run(ctx, src, src.Size, src.Name)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		err = rep.WriteJSON(c.App.Writer)
	} else {
		err = rep.WriteText(c.App.Writer)
	}
	if err != nil {
		return err
	}
	if conf.ReportPath != "" {
		if err := rep.Save(conf.ReportPath); err != nil {
			return err
		}
	}
	return publish(ctx, conf, rep)
}

// publish hands the report to the run history and the upload bucket when
// they are configured. Every destination is attempted.
func publish(ctx context.Context, conf *internal.Config, rep *report.RunReport) error {
	var errs []error
	if conf.MetaAddr != "" {
		logger.Infof("saving run %s to %s", rep.RunID, internal.RemovePassword("redis://"+conf.MetaAddr))
		store, err := reportstore.NewRedisStore(conf.MetaAddr, reportstore.Options{Retries: conf.Retries, Keep: conf.HistoryKeep})
		if err == nil {
			err = store.SaveRun(ctx, rep)
			store.Close()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to save run history: %w", err))
		}
	}
	if conf.Upload.Endpoint != "" {
		if err := uploadReport(ctx, conf.Upload, rep); err != nil {
			errs = append(errs, fmt.Errorf("failed to upload report: %w", err))
		}
	}
	return errors.Join(errs...)
}

func uploadReport(ctx context.Context, conf internal.UploadConfig, rep *report.RunReport) error {
	core, err := s3client.NewCore(conf)
	if err != nil {
		return err
	}
	if err := s3client.EnsureBucket(ctx, core, conf.Bucket); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	y, m, d := rep.Timestamp.Date()
	_, err = s3client.UploadReport(ctx, core, conf.Bucket, s3client.ReportObjectName(rep.RunID, y, int(m), d), data)
	return err
}

// handleBackgroundMode checks for the --background flag and daemonizes the process if set.
// It returns true if the current process is the parent and should exit.
func handleBackgroundMode(c *cli.Context) (shouldExit bool, err error) {
	// If we are the child daemon process (marked by the env var), just clean up and continue.
	if daemon.WasReborn() {
		daemon.UnsetMark()
		return false, nil
	}

	if !c.Bool("background") {
		return false, nil
	}

	logDir := c.String("logdir")
	if logDir == "" {
		logDir = internal.GetDefaultLogDir()
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return false, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	pidFile := filepath.Join(logDir, "blockdedup.pid")
	if err := daemon.CheckPidFile(pidFile); err != nil {
		return false, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return false, fmt.Errorf("failed to get working directory: %w", err)
	}

	d, err := daemon.Daemonize(
		pidFile,
		filepath.Join(logDir, "blockdedup-run-"+time.Now().Format("20060102-150405")+".out"),
		workDir,
		daemon.ChildArgs(os.Args),
	)
	if err != nil {
		return false, fmt.Errorf("unable to run in background: %w", err)
	}

	// If d is not nil, we are in the parent process and should exit.
	if d != nil {
		logger.Infof("started in background with PID %d, output in %s", d.Pid, logDir)
	}
	return d != nil, nil
}

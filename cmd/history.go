package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/reportstore"
)

var openStore = func(addr string) (reportstore.Store, error) {
	return reportstore.NewRedisStore(addr, reportstore.Options{})
}

func cmdHistory() *cli.Command {
	return &cli.Command{
		Name:     "history",
		Action:   history,
		Category: "DEDUP",
		Usage:    "Show stored runs and the totals across them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "meta-addr",
				Usage:   "redis address the runs were saved to",
				EnvVars: []string{"BLOCKDEDUP_META_ADDR"},
			},
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "number of recent runs to show"},
			&cli.BoolFlag{Name: "json", Usage: "print runs and totals as JSON"},
		},
	}
}

func history(c *cli.Context) error {
	addr := c.String("meta-addr")
	if addr == "" {
		return fmt.Errorf("%w: --meta-addr is required", internal.ErrInvalidConf)
	}
	store, err := openStore(addr)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	totals, err := store.Totals(c.Context)
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"runs": runs, "totals": totals})
	}

	fmt.Fprintf(out, "%-36s  %-20s  %-9s  %12s  %12s  %8s  %s\n", "RUN", "TIME", "STATUS", "BLOCKS", "UNIQUE", "ELIM", "SOURCE")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-20s  %-9s  %12d  %12d  %7.2f%%  %s\n",
			r.RunID, r.Timestamp.Local().Format(time.DateTime), r.Status,
			r.Totals.BlocksProcessed, r.Totals.UniqueBlocks, r.EliminationRatio*100, r.Source)
	}
	fmt.Fprintf(out, "\n%d runs (%d skipped), %d blocks, %d unique, %.2f%% eliminated, %s read\n",
		totals.Runs, totals.Skipped, totals.BlocksProcessed, totals.UniqueBlocks,
		totals.EliminationRatio()*100, internal.FormatBytes(uint64(totals.Bytes)))
	return nil
}

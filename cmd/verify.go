package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/report"
)

func cmdVerify() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Action:    verify,
		Category:  "DEDUP",
		Usage:     "Recompute the digest of saved reports",
		ArgsUsage: "REPORT.json...",
	}
}

func verify(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("verify needs at least one report file")
	}
	failed := 0
	for _, path := range c.Args().Slice() {
		rep, err := report.Load(path)
		if err == nil {
			err = report.Verify(rep)
		}
		if err != nil {
			failed++
			logger.Errorf("verify %s: %s", path, err)
			fmt.Fprintf(c.App.Writer, "FAILED %s: %s\n", path, err)
			continue
		}
		fmt.Fprintf(c.App.Writer, "OK     %s run %s digest %s\n", path, rep.RunID, internal.ShortHex(rep.Digest, 16))
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d reports failed verification", internal.ErrDigestBroken, failed, c.Args().Len())
	}
	return nil
}


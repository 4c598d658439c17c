package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
	"github.com/zhengshuai-xiao/BlockDedup/pkg/dedup"
)

func cmdBlocks() *cli.Command {
	return &cli.Command{
		Name:     "blocks",
		Category: "DEDUP",
		Usage:    "List the blocks of a local file with their checksums and fingerprints",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true, Usage: "Path to local file"},
			&cli.IntFlag{Name: "avg", Value: internal.DefaultBlockSize, Usage: "Block size, or the average size for FastCDC"},
			&cli.IntFlag{Name: "min", Value: internal.DefaultBlockSize / 2, Usage: "Min block size for FastCDC"},
			&cli.IntFlag{Name: "max", Value: internal.DefaultBlockSize * 4, Usage: "Max block size for FastCDC"},
			&cli.BoolFlag{Name: "fastcdc", Usage: "Use content defined FastCDC boundaries instead of fixed ones"},
			&cli.IntFlag{Name: "limit", Value: 0, Usage: "Print at most this many blocks, 0 prints all"},
		},
		Action: blocks,
	}
}

func blocks(c *cli.Context) error {
	file, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	out := c.App.Writer
	var cdc dedup.CDC
	if c.Bool("fastcdc") {
		fmt.Fprintln(out, "Using FastCDC chunking algorithm.")
		cdc = &dedup.FastCDC{
			MinChunkSize: c.Int("min"),
			AvgChunkSize: c.Int("avg"),
			MaxChunkSize: c.Int("max"),
		}
	} else {
		fmt.Fprintln(out, "Using FixedCDC chunking algorithm.")
		cdc = &dedup.FixedCDC{ChunkSize: c.Int("avg")}
	}

	chunker, err := cdc.NewChunker(file)
	if err != nil {
		return fmt.Errorf("error creating chunker: %w", err)
	}

	var chunks []dedup.Chunk
	var totalSize int64
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error getting next chunk: %w", err)
		}
		chunks = append(chunks, chunk)
		totalSize += int64(chunk.Len)
	}

	dedup.CalcFPs(chunks)
	limit := c.Int("limit")
	for i, chunk := range chunks {
		if limit > 0 && i >= limit {
			fmt.Fprintf(out, "... %d more blocks\n", len(chunks)-limit)
			break
		}
		fmt.Fprintf(out, "Block %d: off=%d len=%d crc32=%08x fp=%s\n",
			i+1, chunk.Off, chunk.Len, internal.CalculateCRC32(chunk.Data), internal.StringToHex(chunk.FP))
	}

	unique, stats := dedup.Deduplicate(dedup.Blocks(chunks), 0)
	var uniqueSize int64
	for _, b := range unique {
		uniqueSize += int64(len(b))
	}
	fmt.Fprintf(out, "%d blocks, %d unique, elimination ratio %.2f%%, %s of %s unique\n",
		stats.CountInput, stats.CountUnique, stats.EliminationRatio*100,
		internal.FormatBytes(uint64(uniqueSize)), internal.FormatBytes(uint64(totalSize)))
	return nil
}

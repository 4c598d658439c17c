package dedup

import (
	"io"

	fastcdc "github.com/jotfs/fastcdc-go"
)

// FastCDC implements the CDC interface to create FastCDC chunkers.
type FastCDC struct {
	MinChunkSize int
	AvgChunkSize int
	MaxChunkSize int
}

// NewChunker creates a new chunker that reads from r and produces variable-size chunks using FastCDC.
func (f *FastCDC) NewChunker(r io.Reader) (Chunker, error) {
	opts := fastcdc.Options{
		MinSize:     f.MinChunkSize,
		AverageSize: f.AvgChunkSize,
		MaxSize:     f.MaxChunkSize,
	}
	chunker, err := fastcdc.NewChunker(r, opts)
	if err != nil {
		return nil, err
	}
	return &fastCDCChunker{
		chunker: chunker,
	}, nil
}

// fastCDCChunker implements the Chunker interface for FastCDC.
type fastCDCChunker struct {
	chunker *fastcdc.Chunker
}

// Next returns the next content-defined chunk from the reader.
func (c *fastCDCChunker) Next() (Chunk, error) {
	fc, err := c.chunker.Next()
	if err != nil {
		return Chunk{}, err // io.EOF included
	}

	// fc.Data points into the chunker's buffer and is overwritten by the next call.
	dataCopy := make([]byte, fc.Length)
	copy(dataCopy, fc.Data)

	return Chunk{
		Data: dataCopy,
		Off:  uint64(fc.Offset),
		Len:  uint64(fc.Length),
	}, nil
}

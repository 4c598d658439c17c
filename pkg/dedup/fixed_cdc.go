package dedup

import (
	"fmt"
	"io"
)

// FixedCDC implements the CDC interface to create fixed-size chunkers.
type FixedCDC struct {
	ChunkSize int
}

// NewChunker creates a new chunker that reads from r and produces fixed-size chunks.
func (f *FixedCDC) NewChunker(r io.Reader) (Chunker, error) {
	if f.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid fixed chunk size %d", f.ChunkSize)
	}
	return &fixedChunker{
		r:         r,
		chunkSize: f.ChunkSize,
	}, nil
}

// fixedChunker implements the Chunker interface for fixed-size chunking.
type fixedChunker struct {
	r         io.Reader
	chunkSize int
	off       uint64
}

// Next returns the next fixed-size chunk from the reader. Each chunk owns its data.
func (c *fixedChunker) Next() (Chunk, error) {
	buf := make([]byte, c.chunkSize)
	n, err := io.ReadFull(c.r, buf)

	switch err {
	case nil:
	case io.EOF: // clean end of stream, nothing read
		return Chunk{}, io.EOF
	case io.ErrUnexpectedEOF: // last partial chunk
		buf = buf[:n]
	default:
		return Chunk{}, err
	}

	chunk := Chunk{
		Data: buf,
		Off:  c.off,
		Len:  uint64(n),
	}
	c.off += uint64(n)
	return chunk, nil
}

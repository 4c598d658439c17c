package dedup

import "github.com/zhengshuai-xiao/BlockDedup/internal"

var logger = internal.GetLogger("blockdedup_dedup")

// Block is an opaque run of bytes, the unit of deduplication. Two blocks are
// duplicates only when their bytes are identical.
type Block []byte

// Chunk is a block produced by a streaming Chunker together with its position
// in the source. FP is filled by CalcFP.
type Chunk struct {
	Data []byte
	Off  uint64
	Len  uint64
	FP   string
}

func (c Chunk) Block() Block {
	return Block(c.Data)
}

// Blocks returns the data of each chunk as a block sequence, in order.
func Blocks(chunks []Chunk) []Block {
	blocks := make([]Block, len(chunks))
	for i := range chunks {
		blocks[i] = chunks[i].Block()
	}
	return blocks
}

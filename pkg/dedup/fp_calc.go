package dedup

import (
	"crypto/sha256"

	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

// CalcFP sets c.FP to the raw SHA-256 digest of the chunk data.
func CalcFP(c *Chunk) {
	sum := sha256.Sum256(c.Data)
	c.FP = string(sum[:])
	logger.Tracef("CalcFP:off:%d len:%d fp:%s", c.Off, c.Len, internal.StringToHex(c.FP))
}

func CalcFPs(chunks []Chunk) {
	for i := range chunks {
		CalcFP(&chunks[i])
	}
}

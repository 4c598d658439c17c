package compression

import (
	"errors"
	"fmt"
)

type CompressionType byte

const (
	Compress_zlib   CompressionType = iota //0
	Compress_snappy                        //1
	Compress_none                          //2
)

var (
	ErrInvalidCompressionType = errors.New("invalid compression type")

	CompressionMethods = map[string]CompressionType{
		"zlib":   Compress_zlib,
		"snappy": Compress_snappy,
		"none":   Compress_none,
		"":       Compress_none,
	}
)

// Compressor defines the interface for data compression and decompression algorithms.
type Compressor interface {
	// Compress takes a byte slice and returns the compressed data.
	Compress(data []byte) ([]byte, error)

	// Decompress takes a compressed byte slice and returns the original data.
	Decompress(data []byte) ([]byte, error)

	// TypeString returns the name of the algorithm, e.g. "zlib", "snappy".
	TypeString() string
	Type() CompressionType
}

// GetCompressorViaString returns nil, nil for "none": callers treat a nil
// Compressor as "do not compress".
func GetCompressorViaString(compressionStr string) (Compressor, error) {
	compressionType, ok := CompressionMethods[compressionStr]
	if !ok {
		return nil, ErrInvalidCompressionType
	}
	return GetCompressorViaType(compressionType)
}

func GetCompressorViaType(compressionType CompressionType) (Compressor, error) {
	switch compressionType {
	case Compress_zlib:
		return NewZlib(), nil
	case Compress_snappy:
		return NewSnappy(), nil
	case Compress_none:
		return nil, nil
	default:
		return nil, ErrInvalidCompressionType
	}
}

// CompressedSize compresses the concatenation of parts and returns the size
// of the result. A nil compressor reports the uncompressed size.
func CompressedSize(c Compressor, parts [][]byte) (int, error) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if c == nil || total == 0 {
		return total, nil
	}
	buf := make([]byte, 0, total)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	out, err := c.Compress(buf)
	if err != nil {
		return 0, fmt.Errorf("%s compression failed: %w", c.TypeString(), err)
	}
	return len(out), nil
}

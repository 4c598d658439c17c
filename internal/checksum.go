package internal

import "hash/crc32"

// CalculateCRC32 computes the CRC-32 checksum of the data using the IEEE polynomial.
func CalculateCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

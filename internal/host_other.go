//go:build !linux

package internal

// TotalRAM is only implemented on linux.
func TotalRAM() uint64 {
	return 0
}

package internal

import (
	"encoding/hex"
)

func StringToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

func HexToString(s string) (string, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ShortHex returns the first n hex characters of s, for log lines.
func ShortHex(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

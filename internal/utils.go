package internal

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30
)

func StringContains(s []string, e string) bool {
	for _, item := range s {
		if item == e {
			return true
		}
	}
	return false
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FormatBytes renders n with a binary unit, keeping the raw count for large values.
func FormatBytes(n uint64) string {
	if n < KiB {
		return fmt.Sprintf("%d Bytes", n)
	}
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	v := float64(n) / KiB
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s (%d Bytes)", v, units[i], n)
}

// ParseSize accepts a plain byte count or one with a K, M or G suffix
// (optionally followed by "B" or "iB"), all binary multiples.
func ParseSize(sizeStr string) (uint64, error) {
	s := strings.ToLower(strings.TrimSpace(sizeStr))
	s = strings.TrimSuffix(s, "ib")
	s = strings.TrimSuffix(s, "b")

	var multiplier uint64 = 1
	switch {
	case strings.HasSuffix(s, "g"):
		multiplier = GiB
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		multiplier = MiB
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		multiplier = KiB
		s = strings.TrimSuffix(s, "k")
	}

	size, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, sizeStr)
	}
	return size * multiplier, nil
}

// Duration parses a Go duration, a plain number of seconds, or a duration with
// a leading day count such as "1d2h". Unparsable input yields 0.
func Duration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// ParseDuration is Duration with an error for unparsable input.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(v * float64(time.Second)), nil
	}
	rest := s
	var days time.Duration
	if i := strings.Index(rest, "d"); i > 0 {
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
		}
		days = time.Duration(n) * 24 * time.Hour
		rest = rest[i+1:]
		if rest == "" {
			return days, nil
		}
	}
	d, err := time.ParseDuration(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return days + d, nil
}

// RemovePassword masks the password of a URL-like address before it is logged.
func RemovePassword(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			return strings.Replace(uri, u.User.String()+"@", u.User.Username()+":****@", 1)
		}
		return uri
	}
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	colon := strings.Index(uri[:at], ":")
	if colon < 0 {
		return uri
	}
	return uri[:colon+1] + "****" + uri[at:]
}

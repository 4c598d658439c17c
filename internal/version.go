package internal

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	version      = "0.3.0"
	revision     = "$Format:%h$"
	revisionDate = "$Format:%as$"
	ver          = Semver{
		major:      0,
		minor:      3,
		patch:      0,
		preRelease: "",
		build:      fmt.Sprintf("%s.%s", revisionDate, revision),
	}
)

type Semver struct {
	major, minor, patch uint64
	preRelease, build   string
}

// Version returns version in format - `VERSION (REVISIONDATE REVISION)`
// value is assigned in Makefile
func Version() string {
	return fmt.Sprintf("%v (%v %v)", version, revisionDate, revision)
}

// ShortVersion is the bare semantic version, recorded in reports.
func ShortVersion() string {
	return version
}

func Parse(vs string) *Semver {
	re := regexp.MustCompile(`^(\d+)(\.\d+)?(\.\d+)?(-[\w.]+)?(\+[\w.]+)?$`)
	matches := re.FindStringSubmatch(vs)
	if matches == nil {
		return nil
	}
	var v Semver
	v.major, _ = strconv.ParseUint(matches[1], 10, 64)
	if matches[2] != "" {
		v.minor, _ = strconv.ParseUint(matches[2][1:], 10, 64)
	}
	if matches[3] != "" {
		v.patch, _ = strconv.ParseUint(matches[3][1:], 10, 64)
	}
	if matches[4] != "" {
		v.preRelease = matches[4][1:]
	}
	if matches[5] != "" {
		v.build = matches[5][1:]
	}
	return &v
}

// CompareVersions returns -1, 0 or 1. A release sorts after its pre-releases.
func CompareVersions(v1, v2 *Semver) (int, error) {
	if v1 == nil || v2 == nil {
		return 0, fmt.Errorf("v1 %v and v2 %v can't be nil", v1, v2)
	}
	cmp := func(a, b uint64) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	if r := cmp(v1.major, v2.major); r != 0 {
		return r, nil
	}
	if r := cmp(v1.minor, v2.minor); r != 0 {
		return r, nil
	}
	if r := cmp(v1.patch, v2.patch); r != 0 {
		return r, nil
	}
	switch {
	case v1.preRelease == v2.preRelease:
		return 0, nil
	case v1.preRelease == "":
		return 1, nil
	case v2.preRelease == "":
		return -1, nil
	case v1.preRelease < v2.preRelease:
		return -1, nil
	}
	return 1, nil
}

// NewerThanRunning reports whether vs is a later version than this binary.
func NewerThanRunning(vs string) (bool, error) {
	other := Parse(vs)
	if other == nil {
		return false, fmt.Errorf("invalid version %q", vs)
	}
	r, err := CompareVersions(other, &ver)
	return r > 0, err
}

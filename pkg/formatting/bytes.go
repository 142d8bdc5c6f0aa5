// Package formatting converts byte sizes between counts and the
// human-readable strings used in configuration files.
package formatting

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidSize is returned for byte size strings that cannot be parsed.
var ErrInvalidSize = errors.New("invalid byte size")

var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n with base-1024 units, e.g. 1536 with precision 1 is "1.5 KB".
func FormatBytes(n int64, precision int) string {
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	exp := 0
	size := float64(n)
	for size >= 1024 && exp < len(units)-1 {
		size /= 1024
		exp++
	}
	return strconv.FormatFloat(size, 'f', max(precision, 0), 64) + " " + units[exp]
}

// ParseBytes parses sizes such as "512", "64KB", "1.5 mb" or "2KiB".
// Units are base-1024 and case-insensitive; a bare number is bytes.
func ParseBytes(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}

	unit := strings.ToUpper(strings.Replace(m[2], "i", "", 1))
	if unit == "" {
		unit = "B"
	}
	if len(unit) == 1 && unit != "B" {
		unit += "B"
	}

	exp := slices.Index(units, unit)
	if exp < 0 {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, m[2])
	}

	n := value * math.Pow(1024, float64(exp))
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}
	return int64(n), nil
}

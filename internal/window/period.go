package window

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var periodPattern = regexp.MustCompile(`^([1-9][0-9]*)([mhd])$`)

// ParsePeriod converts a label such as "30m", "4h" or "1d" into a duration.
func ParsePeriod(label string) (time.Duration, error) {
	m := periodPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, label)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, label)
	}

	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

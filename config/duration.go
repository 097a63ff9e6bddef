// config/duration.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDurationFlexible accepts duration strings like "300s"/"5m", plain
// numeric seconds (int, float, or numeric string), or a time.Duration.
// Returns def on empty/unknown input; returns def plus an error on values
// that cannot be parsed. Negative values are rejected; zero means "unset".
func parseDurationFlexible(raw interface{}, def time.Duration) (time.Duration, error) {
	switch t := raw.(type) {
	case time.Duration:
		if t < 0 {
			return def, fmt.Errorf("duration must be >= 0")
		}
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			if d < 0 {
				return def, fmt.Errorf("duration must be >= 0")
			}
			return d, nil
		}
		// Allow plain seconds in string form, e.g. "300"
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			if n < 0 {
				return def, fmt.Errorf("seconds must be >= 0")
			}
			return time.Duration(n) * time.Second, nil
		}
		return def, fmt.Errorf("cannot parse duration %q", s)
	case int:
		return secondsDuration(int64(t), def)
	case int32:
		return secondsDuration(int64(t), def)
	case int64:
		return secondsDuration(t, def)
	case float64:
		if t < 0 {
			return def, fmt.Errorf("seconds must be >= 0")
		}
		return time.Duration(t * float64(time.Second)), nil
	default:
		// Unknown type (nil, bool, etc.) – use default, no error
		return def, nil
	}
}

func secondsDuration(n int64, def time.Duration) (time.Duration, error) {
	if n < 0 {
		return def, fmt.Errorf("seconds must be >= 0")
	}
	return time.Duration(n) * time.Second, nil
}

package nodes

import (
	"fmt"
	"time"
)

// unitDuration converts n of unit (ms, s, min, h) to a Duration.
func unitDuration(n int, unit string) (time.Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: negative interval %d", ErrInvalidSettings, n)
	}
	var base time.Duration
	switch unit {
	case "ms":
		base = time.Millisecond
	case "", "s":
		base = time.Second
	case "min":
		base = time.Minute
	case "h":
		base = time.Hour
	default:
		return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidSettings, unit)
	}
	return time.Duration(n) * base, nil
}

package alert

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// lockoutPattern matches "[D ]HH:MM:SS[.ffffff]", "MM:SS" and "SS".
var lockoutPattern = regexp.MustCompile(`^(?:(\d+) )?(?:(?:(\d+):)?(\d+):)?(\d+(?:\.\d{1,6})?)$`)

// ParseLockout parses a lockout duration.
// Unparsable or empty input means no lockout and yields nil.
func ParseLockout(s string) *time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := lockoutPattern.FindStringSubmatch(s); m != nil {
		var d time.Duration
		for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute} {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.ParseInt(m[i+1], 10, 64)
			if err != nil || n > math.MaxInt64/int64(unit) {
				return nil
			}
			var ok bool
			if d, ok = addDuration(d, time.Duration(n)*unit); !ok {
				return nil
			}
		}
		secs, err := strconv.ParseFloat(m[4], 64)
		if err != nil || secs >= float64(math.MaxInt64/int64(time.Second)) {
			return nil
		}
		d, ok := addDuration(d, time.Duration(secs*float64(time.Second)))
		if !ok {
			return nil
		}
		return &d
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return &d
	}
	return nil
}

// addDuration adds two non-negative durations, reporting false on overflow.
func addDuration(a, b time.Duration) (time.Duration, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// FormatLockout renders d the way ParseLockout reads it.
func FormatLockout(d *time.Duration) string {
	if d == nil {
		return ""
	}
	total := *d
	days := total / (24 * time.Hour)
	total -= days * 24 * time.Hour
	h := total / time.Hour
	total -= h * time.Hour
	m := total / time.Minute
	total -= m * time.Minute
	s := total / time.Second
	frac := total - s*time.Second

	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if frac > 0 {
		out += fmt.Sprintf(".%06d", frac/time.Microsecond)
	}
	if days > 0 {
		out = fmt.Sprintf("%d %s", days, out)
	}
	return out
}

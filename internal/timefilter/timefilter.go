// Package timefilter parses the --since and --until values of the CLI.
package timefilter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/asheshgoplani/recall/internal/session"
)

const accepted = `use "yesterday", "today", "N minutes|hours|days|weeks|months ago", "2025-12-01" or RFC3339`

var units = map[string]time.Duration{
	"minute": time.Minute,
	"min":    time.Minute,
	"hour":   time.Hour,
	"hr":     time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"wk":     7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"mo":     30 * 24 * time.Hour,
}

// Parse resolves s relative to now. Dates without a time are midnight UTC.
func Parse(s string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(s)
	lower := strings.ToLower(raw)

	switch lower {
	case "yesterday":
		return now.Add(-24 * time.Hour), nil
	case "today":
		return now, nil
	}

	if rest, ok := strings.CutSuffix(lower, " ago"); ok {
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return time.Time{}, invalid(raw)
		}
		n, err := strconv.Atoi(parts[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad count %q in %q: %s", session.ErrInvalidInput, parts[0], raw, accepted)
		}
		unit, ok := units[strings.TrimSuffix(parts[1], "s")]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown time unit %q: %s", session.ErrInvalidInput, parts[1], accepted)
		}
		if n < 0 || int64(n) > math.MaxInt64/int64(unit) {
			return time.Time{}, fmt.Errorf("%w: count %d out of range in %q: %s", session.ErrInvalidInput, n, raw, accepted)
		}
		return now.Add(-time.Duration(n) * unit), nil
	}

	if t, err := time.Parse(time.RFC3339, strings.ToUpper(raw)); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, invalid(raw)
}

func invalid(raw string) error {
	return fmt.Errorf("%w: invalid time %q: %s", session.ErrInvalidInput, raw, accepted)
}

// Window is an inclusive time range; a zero bound is open.
type Window struct {
	Since time.Time
	Until time.Time
}

// ParseWindow parses optional since and until values. Empty strings leave
// that side open.
func ParseWindow(since, until string, now time.Time) (Window, error) {
	var w Window
	var err error
	if since != "" {
		if w.Since, err = Parse(since, now); err != nil {
			return Window{}, err
		}
	}
	if until != "" {
		if w.Until, err = Parse(until, now); err != nil {
			return Window{}, err
		}
	}
	return w, nil
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if !w.Since.IsZero() && t.Before(w.Since) {
		return false
	}
	if !w.Until.IsZero() && t.After(w.Until) {
		return false
	}
	return true
}

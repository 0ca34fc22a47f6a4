package utils

import (
	"fmt"
	"strings"
	"time"
)

// RescheduleWindow is the minimum lead time before departure for a trip to be rescheduled
const RescheduleWindow = time.Hour

// ParseDateTime parses raw with layout in loc, trimming whitespace first
func ParseDateTime(raw, layout string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected format %s: %w", layout, err)
	}
	return t, nil
}

// IsRescheduleTimedOut reports whether departure is less than RescheduleWindow away
func IsRescheduleTimedOut(departure, now time.Time) bool {
	return departure.Sub(now) < RescheduleWindow
}

// DateRange is an optional lower and upper bound on a timestamp
type DateRange struct {
	After  *time.Time
	Before *time.Time
}

// IsZero reports whether neither bound is set
func (r DateRange) IsZero() bool {
	return r.After == nil && r.Before == nil
}

// ParseDateRange parses "after:YYYY-MM-DD;before:YYYY-MM-DD" where either part may be omitted
func ParseDateRange(raw, layout string) (DateRange, error) {
	var r DateRange
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return r, nil
	}

	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			return DateRange{}, fmt.Errorf("date range part %q must look like after:%s", part, layout)
		}
		t, err := time.Parse(layout, strings.TrimSpace(value))
		if err != nil {
			return DateRange{}, fmt.Errorf("date range %s: %w", name, err)
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "after":
			r.After = &t
		case "before":
			r.Before = &t
		default:
			return DateRange{}, fmt.Errorf("unknown date range bound %q", name)
		}
	}
	return r, nil
}

// NextLabel returns the label that follows prev in the sequence A..Z, AA..AZ, BA...
// An empty prev yields "A".
func NextLabel(prev string) string {
	if prev == "" {
		return "A"
	}
	letters := []byte(strings.ToUpper(prev))
	for i := len(letters) - 1; i >= 0; i-- {
		if letters[i] < 'Z' {
			letters[i]++
			return string(letters)
		}
		letters[i] = 'A'
	}
	return "A" + string(letters)
}

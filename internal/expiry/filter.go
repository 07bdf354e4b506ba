package expiry

import (
	"math"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Today truncates t to a UTC calendar date so inclusive window
// comparisons work on whole days.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Threshold is today plus round(months * 30.5) days. The fixed average
// month length is deliberate: it keeps output reproducible, so this
// must not become a calendar-aware month addition.
func Threshold(today time.Time, months int) time.Time {
	return today.AddDate(0, 0, int(math.Round(float64(months)*30.5)))
}

// ExpiresWithin reports whether any of the record's accreditations has
// a valid_until date inside [today, threshold]. A record without an
// accreditations list never matches, and entries with missing or
// unparseable dates are skipped silently.
func ExpiresWithin(rec Record, threshold, today time.Time) bool {
	m, ok := rec.(map[string]any)
	if !ok {
		return false
	}
	accs, ok := m["accreditations"].([]any)
	if !ok {
		return false
	}
	for _, a := range accs {
		entry, ok := a.(map[string]any)
		if !ok {
			continue
		}
		s, ok := entry["valid_until"].(string)
		if !ok {
			continue
		}
		d, ok := parseDate(s)
		if !ok {
			continue
		}
		if !d.Before(today) && !d.After(threshold) {
			return true
		}
	}
	return false
}

// parseDate reads the first 10 characters as YYYY-MM-DD, tolerating
// timestamp suffixes like "2024-03-01T00:00:00Z".
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

package evn

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the date form every record is stored in.
const CanonicalDateLayout = "02-01-2006"

// ParseDate converts a portal date string to canonical DD-MM-YYYY form.
// The portals are inconsistent: depending on region and endpoint a date
// can arrive as DD/MM/YYYY, YYYY-MM-DD, DD-MM-YYYY, YYYYMMDD, DDMMYYYY,
// a "DD/MM/YYYY HH:MM" timestamp, or embedded in a Vietnamese
// "HH:MM:SS ngày DD/MM/YYYY" phrase. Anything unparseable falls back to
// the current date, matching the upstream system's behavior.
func ParseDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if low := strings.ToLower(s); low == "" || low == "null" || low == "none" {
		return now.Format(CanonicalDateLayout)
	}

	// "08:00:00 ngày 01/02/2026" carries the date after the marker word.
	if _, datePart, ok := splitDateTime(s); ok {
		s = datePart
	}

	// "24/01/2026 00:33" style timestamps keep only the date part.
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}

	switch {
	case len(s) == 10 && s[2] == '/':
		if t, err := time.Parse("02/01/2006", s); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	case len(s) == 10 && s[4] == '-':
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	case len(s) == 10 && s[2] == '-':
		if _, err := time.Parse(CanonicalDateLayout, s); err == nil {
			return s
		}
	case len(s) == 8 && allDigits(s):
		if t, err := time.Parse("20060102", s); err == nil {
			return t.Format(CanonicalDateLayout)
		}
		if t, err := time.Parse("02012006", s); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}

	return now.Format(CanonicalDateLayout)
}

// SplitDateTime splits a combined "HH:MM:SS ngày DD/MM/YYYY" value into
// its time and date parts. Values without the marker word are returned
// unchanged as the time part with an empty date.
func SplitDateTime(s string) (timePart, datePart string) {
	if t, d, ok := splitDateTime(s); ok {
		return t, d
	}
	return strings.TrimSpace(s), ""
}

func splitDateTime(s string) (timePart, datePart string, ok bool) {
	const marker = "ngày"
	i := strings.Index(s, marker)
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(marker):]), true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// dateSortKey parses a canonical DD-MM-YYYY date for ordering. Records
// whose dates defaulted to "today" sort by that same fallback.
func dateSortKey(canonical string, now time.Time) time.Time {
	t, err := time.Parse(CanonicalDateLayout, canonical)
	if err != nil {
		return now
	}
	return t
}

package export

import (
	"strings"
	"time"
)

// NormalizeISO8601 rewrites a date filter into the ISO-8601-with-offset
// form the task list endpoint expects. Pure string transform: seconds are
// added when missing, a trailing Z becomes the default offset, a bare date
// gains midnight plus the offset, and an already-conformant string passes
// through untouched.
func NormalizeISO8601(value, defaultTZ string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}

	if hasFullOffset(s) {
		return s
	}

	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1] + defaultTZ
	}

	i := strings.Index(s, "T")
	if i < 0 {
		// Date only: add midnight and the offset.
		return s + "T00:00:00" + defaultTZ
	}

	datePart, timePart := s[:i], s[i+1:]

	if strings.Count(timePart, ":") == 1 {
		timePart += ":00"
	}

	// Strip any partial offset so one canonical offset can be appended.
	if j := strings.Index(timePart, "+"); j >= 0 {
		timePart = timePart[:j]
	} else if parts := strings.Split(timePart, "-"); len(parts) > 2 {
		timePart = strings.Join(parts[:len(parts)-1], "-")
	}

	if !hasOffsetSuffix(timePart) {
		timePart += defaultTZ
	}
	return datePart + "T" + timePart
}

// hasFullOffset reports whether the whole string already carries a
// +HH:MM / -HH:MM zone suffix at full timestamp length.
func hasFullOffset(s string) bool {
	if len(s) < 25 {
		return false
	}
	tail := s[len(s)-6:]
	return strings.HasPrefix(tail, "+") ||
		(strings.HasPrefix(tail, "-") && strings.Contains(s[len(s)-5:], ":"))
}

func hasOffsetSuffix(timePart string) bool {
	if len(timePart) < 6 {
		return false
	}
	c := timePart[len(timePart)-6]
	return c == '+' || c == '-'
}

const isoLayout = "2006-01-02T15:04:05"

// PresetWindow translates a named date preset into an inclusive activity
// window, mirroring the portal's built-in period choices. The reference
// time is a parameter so tests are deterministic.
func PresetWindow(preset string, now time.Time, tz string) (from, to string, ok bool) {
	var start, end time.Time

	switch preset {
	case "", "any":
		return "", "", false
	case "today":
		start, end = dayStart(now), dayEnd(now)
	case "tomorrow":
		t := now.AddDate(0, 0, 1)
		start, end = dayStart(t), dayEnd(t)
	case "this_week":
		monday := now.AddDate(0, 0, -weekdayIndex(now))
		start, end = dayStart(monday), dayEnd(monday.AddDate(0, 0, 6))
	case "last_week":
		monday := now.AddDate(0, 0, -weekdayIndex(now)-7)
		start, end = dayStart(monday), dayEnd(monday.AddDate(0, 0, 6))
	case "next_week":
		monday := now.AddDate(0, 0, 7-weekdayIndex(now))
		start, end = dayStart(monday), dayEnd(monday.AddDate(0, 0, 6))
	case "this_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		start, end = first, dayEnd(first.AddDate(0, 1, -1))
	case "last_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		start, end = first, dayEnd(first.AddDate(0, 1, -1))
	case "next_month":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
		start, end = first, dayEnd(first.AddDate(0, 1, -1))
	case "last_7_days":
		start, end = dayStart(now.AddDate(0, 0, -7)), dayEnd(now)
	case "last_30_days":
		start, end = dayStart(now.AddDate(0, 0, -30)), dayEnd(now)
	case "last_60_days":
		start, end = dayStart(now.AddDate(0, 0, -60)), dayEnd(now)
	case "last_90_days":
		start, end = dayStart(now.AddDate(0, 0, -90)), dayEnd(now)
	case "year_to_date":
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		end = time.Date(now.Year(), 12, 31, 23, 59, 59, 0, now.Location())
	default:
		return "", "", false
	}

	return start.Format(isoLayout) + tz, end.Format(isoLayout) + tz, true
}

// Presets lists the supported preset names.
func Presets() []string {
	return []string{
		"today", "tomorrow", "this_week", "last_week", "next_week",
		"this_month", "last_month", "next_month",
		"last_7_days", "last_30_days", "last_60_days", "last_90_days",
		"year_to_date",
	}
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// weekdayIndex maps Monday to 0 ... Sunday to 6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

package export

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders seconds as a compact human duration ("2h 30min").
// Zero renders as the empty string so empty cells stay empty.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}

	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dmin", minutes))
	}
	if secs > 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}

var entryTimestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// FormatTimestamp renders an API timestamp for display as dd/mm/yyyy hh:mm.
// The backend answers in several layouts; an unrecognized value passes
// through unchanged rather than disappearing.
func FormatTimestamp(value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}

	cleaned := strings.ReplaceAll(s, "Z", "")
	if i := strings.Index(cleaned, "."); i >= 0 {
		cleaned = cleaned[:i]
	}
	if i := strings.Index(cleaned, "+"); i >= 0 {
		cleaned = cleaned[:i]
	}
	// Negative offsets ("...13:56:00-03:00") can't be split on "-" without
	// eating the date, so only a well-formed suffix is dropped.
	if len(cleaned) >= 6 && cleaned[len(cleaned)-6] == '-' && cleaned[len(cleaned)-3] == ':' && strings.Contains(cleaned, "T") {
		cleaned = cleaned[:len(cleaned)-6]
	}

	for _, layout := range entryTimestampLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("02/01/2006 15:04")
		}
	}
	return s
}

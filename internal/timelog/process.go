package timelog

import (
	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
	"github.com/MateusSouzaG/bitrix-exporter/internal/tasks"
)

// UnknownActorLabel names an entry whose actor id is missing or unparsable.
const UnknownActorLabel = "Unknown"

// Totals is the aggregate duration of a list of processed entries.
type Totals struct {
	Seconds float64 `json:"total_seconds"`
	Minutes float64 `json:"total_minutes"`
	Hours   float64 `json:"total_hours"`
}

// Process normalizes raw elapsed-item payloads into TimeEntry values.
// SECONDS and MINUTES arrive as numeral strings from most portals; minutes
// only count when seconds is absent or zero, and TIME_SPENT is the last
// resort. Nothing here panics on a malformed entry — bad fields coerce to
// zero values.
func Process(raw []map[string]any, dir tasks.Directory) []domain.TimeEntry {
	processed := make([]domain.TimeEntry, 0, len(raw))

	for _, entry := range raw {
		seconds, _ := bitrix.IntValue(bitrix.Field(entry, "seconds"))
		minutes, _ := bitrix.IntValue(bitrix.Field(entry, "minutes"))

		if minutes > 0 && seconds == 0 {
			seconds = minutes * 60
		} else if seconds == 0 && minutes == 0 {
			spentRaw := bitrix.Field(entry, "TIME_SPENT")
			if spentRaw == nil {
				spentRaw = bitrix.Field(entry, "timeSpent")
			}
			if spent, ok := bitrix.IntValue(spentRaw); ok {
				seconds = spent
			}
		}
		if seconds < 0 {
			seconds = 0
		}

		comment := bitrix.FieldString(entry, "COMMENT_TEXT")
		if comment == "" {
			comment = bitrix.FieldString(entry, "comment")
		}

		createdDate := firstNonEmpty(
			bitrix.FieldString(entry, "CREATED_DATE"),
			bitrix.FieldString(entry, "createdDate"),
			bitrix.FieldString(entry, "DATE"),
			bitrix.FieldString(entry, "DATE_CREATE"),
			bitrix.FieldString(entry, "DATE_CREATE_UTC"),
		)

		out := domain.TimeEntry{
			Seconds:     seconds,
			Minutes:     float64(seconds) / 60.0,
			Hours:       float64(seconds) / 3600.0,
			Comment:     comment,
			CreatedDate: createdDate,
			UserName:    UnknownActorLabel,
		}

		actorRaw := bitrix.Field(entry, "USER_ID")
		if actorRaw == nil {
			actorRaw = bitrix.Field(entry, "userId")
		}
		if userID, ok := bitrix.IntValue(actorRaw); ok {
			out.UserID = int(userID)
			if c, found := dir.Lookup(int(userID)); found && c.Name != "" {
				out.UserName = c.Name
			} else {
				out.UserName = tasks.UnknownUserLabel(int(userID))
			}
		}

		processed = append(processed, out)
	}

	return processed
}

// Total sums processed entries into seconds, minutes and hours.
func Total(entries []domain.TimeEntry) Totals {
	var seconds float64
	for _, e := range entries {
		seconds += float64(e.Seconds)
	}
	return Totals{
		Seconds: seconds,
		Minutes: seconds / 60.0,
		Hours:   seconds / 3600.0,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package recurrence expands recurrence definitions into dated, per-platform
// occurrences. Everything here is a pure function of its inputs plus the
// injected zone resolver.
package recurrence

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/ifuryst/cadence/internal/models"
)

// Matches reports whether date satisfies def's pattern. Validity window and
// exception dates are the caller's concern.
func Matches(date civil.Date, def *models.RecurrenceDefinition) bool {
	switch def.Pattern {
	case models.PatternDaily:
		return true
	case models.PatternWeekly, models.PatternCustom:
		return def.DaysOfWeek.Contains(int(Weekday(date)))
	case models.PatternMonthly:
		// No clamping: day 31 never matches a 30-day month.
		return def.DayOfMonth >= 1 && date.Day == def.DayOfMonth
	default:
		return false
	}
}

// Weekday returns the day of week of a calendar date.
func Weekday(date civil.Date) time.Weekday {
	return date.In(time.UTC).Weekday()
}

package recurrence

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/ifuryst/cadence/internal/models"
)

// ScanHorizonDays caps how far ResolveNext looks ahead. A definition whose
// only valid date lies further out resolves to "none".
const ScanHorizonDays = 365

// MaxRangeDays bounds the date ranges callers may ask Generate to expand.
const MaxRangeDays = 366

// CheckRange rejects reversed ranges and ranges longer than MaxRangeDays.
func CheckRange(from, to civil.Date) error {
	if to.Before(from) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	if to.DaysSince(from) >= MaxRangeDays {
		return fmt.Errorf("%w: limited to %d days", ErrInvalidRange, MaxRangeDays)
	}
	return nil
}

// ZoneResolver turns timezone identifiers into locations. clock.Clock satisfies it.
type ZoneResolver interface {
	Location(name string) (*time.Location, error)
}

// Template is the content shared by every occurrence of a definition.
type Template struct {
	Text     string   `json:"text"`
	Media    []string `json:"media"`
	Hashtags []string `json:"hashtags"`
}

// Occurrence is one dated post instance for one platform.
type Occurrence struct {
	RecurrenceID string     `json:"recurrence_id"`
	Date         civil.Date `json:"date"`
	Platform     string     `json:"platform"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Content      Template   `json:"content"`
}

type Engine struct {
	zones ZoneResolver
}

func NewEngine(zones ZoneResolver) *Engine {
	return &Engine{zones: zones}
}

// Generate emits occurrences for every matching date in [rangeStart, rangeEnd]
// that also lies inside the definition's validity window. Output is ordered by
// date, then by the definition's platform order. Invalid definitions yield nothing.
func (e *Engine) Generate(def *models.RecurrenceDefinition, rangeStart, rangeEnd civil.Date) []Occurrence {
	tod, loc, err := e.prepare(def)
	if err != nil {
		return nil
	}

	start, end := clampToWindow(def, rangeStart, rangeEnd)

	tmpl := Template{
		Text:     def.Content,
		Media:    append([]string(nil), def.Media...),
		Hashtags: append([]string(nil), def.Hashtags...),
	}

	var out []Occurrence
	for date := start; !date.After(end); date = date.AddDays(1) {
		if def.ExceptionDates.Contains(date) || !Matches(date, def) {
			continue
		}

		at := resolve(date, tod, loc)
		for _, platform := range def.Platforms {
			out = append(out, Occurrence{
				RecurrenceID: def.ID,
				Date:         date,
				Platform:     platform,
				ScheduledAt:  at,
				Content:      tmpl,
			})
		}
	}

	return out
}

// BatchResult holds the output of GenerateAll.
type BatchResult struct {
	Occurrences []Occurrence
	// Invalid maps definition ids to the reason they produced nothing.
	Invalid map[string]error
}

// GenerateAll runs Generate for each definition. A bad definition is recorded
// in Invalid and does not stop the others.
func (e *Engine) GenerateAll(defs []*models.RecurrenceDefinition, rangeStart, rangeEnd civil.Date) BatchResult {
	result := BatchResult{Invalid: make(map[string]error)}

	for _, def := range defs {
		if _, _, err := e.prepare(def); err != nil {
			id := ""
			if def != nil {
				id = def.ID
			}
			result.Invalid[id] = err
			continue
		}
		result.Occurrences = append(result.Occurrences, e.Generate(def, rangeStart, rangeEnd)...)
	}

	return result
}

// ResolveNext returns the earliest occurrence at or after from. It returns
// (nil, nil) when nothing matches within ScanHorizonDays and (nil,
// ErrOutOfWindow) once the scan passes the definition's end date.
func (e *Engine) ResolveNext(def *models.RecurrenceDefinition, from time.Time) (*time.Time, error) {
	tod, loc, err := e.prepare(def)
	if err != nil {
		return nil, err
	}

	cursor := civil.DateOf(from.In(loc))
	if cursor.Before(def.StartDate.Date) {
		cursor = def.StartDate.Date
	}

	for i := 0; i < ScanHorizonDays; i++ {
		if def.EndDate != nil && cursor.After(def.EndDate.Date) {
			return nil, ErrOutOfWindow
		}

		if !def.ExceptionDates.Contains(cursor) && Matches(cursor, def) {
			at := resolve(cursor, tod, loc)
			if !at.Before(from) {
				return &at, nil
			}
		}

		cursor = cursor.AddDays(1)
	}

	return nil, nil
}

func (e *Engine) prepare(def *models.RecurrenceDefinition) (timeOfDay, *time.Location, error) {
	if err := Validate(def); err != nil {
		return timeOfDay{}, nil, err
	}

	tod, err := parseTimeOfDay(def.TimeOfDay)
	if err != nil {
		return timeOfDay{}, nil, fmt.Errorf("%w: time_of_day: %v", ErrInvalidDefinition, err)
	}

	loc, err := e.zones.Location(def.Timezone)
	if err != nil {
		return timeOfDay{}, nil, fmt.Errorf("%w: timezone: %v", ErrInvalidDefinition, err)
	}

	return tod, loc, nil
}

func clampToWindow(def *models.RecurrenceDefinition, start, end civil.Date) (civil.Date, civil.Date) {
	if start.Before(def.StartDate.Date) {
		start = def.StartDate.Date
	}
	if def.EndDate != nil && end.After(def.EndDate.Date) {
		end = def.EndDate.Date
	}
	return start, end
}

// resolve places a wall-clock time on a date in loc. Times that fall in a DST
// gap are normalized forward by time.Date.
func resolve(date civil.Date, tod timeOfDay, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, tod.hour, tod.minute, 0, 0, loc)
}

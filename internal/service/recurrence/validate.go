package recurrence

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/ifuryst/cadence/internal/models"
)

const timeOfDayLayout = "15:04"

// Validate checks the fields every pattern needs. The error wraps ErrInvalidDefinition.
func Validate(def *models.RecurrenceDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}

	weekdayBased := def.Pattern == models.PatternWeekly || def.Pattern == models.PatternCustom

	err := validation.ValidateStruct(def,
		validation.Field(&def.ID, validation.Required),
		validation.Field(&def.Pattern, validation.Required, validation.In(
			models.PatternDaily, models.PatternWeekly, models.PatternMonthly, models.PatternCustom,
		)),
		validation.Field(&def.TimeOfDay, validation.Required, validation.By(checkTimeOfDay)),
		validation.Field(&def.DaysOfWeek,
			validation.When(weekdayBased, validation.Required),
			validation.Each(validation.Min(0), validation.Max(6)),
		),
		validation.Field(&def.DayOfMonth,
			validation.When(def.Pattern == models.PatternMonthly, validation.Required, validation.Min(1), validation.Max(31)),
		),
		validation.Field(&def.Platforms, validation.Required, validation.Each(validation.Required)),
		validation.Field(&def.StartDate, validation.By(func(interface{}) error {
			if def.StartDate.IsZero() || !def.StartDate.IsValid() {
				return errors.New("must be a valid date")
			}
			return nil
		})),
		validation.Field(&def.EndDate, validation.By(func(interface{}) error {
			if def.EndDate == nil {
				return nil
			}
			if !def.EndDate.IsValid() {
				return errors.New("must be a valid date")
			}
			if def.EndDate.Before(def.StartDate.Date) {
				return errors.New("must not be before start_date")
			}
			return nil
		})),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	return nil
}

func checkTimeOfDay(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.Parse(timeOfDayLayout, s); err != nil {
		return errors.New("must be HH:MM")
	}
	return nil
}

// timeOfDay is a parsed HH:MM.
type timeOfDay struct {
	hour, minute int
}

func parseTimeOfDay(s string) (timeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return timeOfDay{}, err
	}
	return timeOfDay{hour: t.Hour(), minute: t.Minute()}, nil
}

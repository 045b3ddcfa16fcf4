package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// StringArray is stored as a JSON array in a text column; empty arrays are NULL.
// Postgres array literals ({a,b}) written by older rows are still accepted on read.
type StringArray []string

// Scan implements the sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		return s.scanString(v)
	case []byte:
		return s.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
}

func (s *StringArray) scanString(v string) error {
	v = strings.TrimSpace(v)
	if v == "" || v == "{}" || v == "[]" {
		*s = StringArray{}
		return nil
	}

	if strings.HasPrefix(v, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(v), &arr); err != nil {
			return fmt.Errorf("failed to decode StringArray: %w", err)
		}
		*s = arr
		return nil
	}

	parts := strings.Split(strings.Trim(v, "{}"), ",")
	result := make([]string, len(parts))
	for i, part := range parts {
		result[i] = strings.Trim(strings.TrimSpace(part), "\"")
	}
	*s = result
	return nil
}

// Value implements the driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// IntArray is stored as a JSON array in a text column.
type IntArray []int

func (a *IntArray) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = IntArray{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into IntArray", value)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		*a = IntArray{}
		return nil
	}

	var arr []int
	if err := json.Unmarshal(raw, &arr); err != nil {
		return fmt.Errorf("failed to decode IntArray: %w", err)
	}
	*a = arr
	return nil
}

func (a IntArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	data, err := json.Marshal([]int(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Contains reports whether v is in the array.
func (a IntArray) Contains(v int) bool {
	for _, x := range a {
		if x == v {
			return true
		}
	}
	return false
}

// Date is a calendar day without time-of-day or zone.
type Date struct {
	civil.Date
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Date{}, err
	}
	return Date{d}, nil
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		d.Date = civil.DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", value)
	}
}

func (d *Date) scanString(v string) error {
	if len(v) > 10 {
		v = v[:10]
	}
	parsed, err := civil.ParseDate(v)
	if err != nil {
		return fmt.Errorf("failed to decode Date: %w", err)
	}
	d.Date = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// DateList is a set of calendar dates stored as a JSON array of YYYY-MM-DD strings.
type DateList []civil.Date

func (l *DateList) Scan(value interface{}) error {
	var strs StringArray
	if err := strs.Scan(value); err != nil {
		return err
	}

	dates := make(DateList, 0, len(strs))
	for _, s := range strs {
		d, err := civil.ParseDate(s)
		if err != nil {
			return fmt.Errorf("failed to decode DateList: %w", err)
		}
		dates = append(dates, d)
	}
	*l = dates
	return nil
}

func (l DateList) Value() (driver.Value, error) {
	strs := make(StringArray, len(l))
	for i, d := range l {
		strs[i] = d.String()
	}
	return strs.Value()
}

// Contains reports whether d is in the list.
func (l DateList) Contains(d civil.Date) bool {
	for _, x := range l {
		if x == d {
			return true
		}
	}
	return false
}

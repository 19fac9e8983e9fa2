package movie

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and index format of release dates.
const DateLayout = "2006-01-02"

// inputLayouts are accepted when parsing dataset cells.
var inputLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01-02-06",
	"1/2/2006",
	"2006/01/02",
}

// Date is a calendar date in UTC.
type Date struct {
	time.Time
}

// NewDate returns the date for y-m-d.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a dataset cell. An empty cell yields nil without error.
func ParseDate(s string) (*Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := NewDate(t.Year(), t.Month(), t.Day())
			return &d, nil
		}
	}
	return nil, fmt.Errorf("unparsable date %q", s)
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("release_date: %w", err)
	}
	d.Time = t
	return nil
}

package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used in query strings and day groupings.
const DateLayout = "2006-01-02"

// DefaultZoneName is the practice convention for calendar days.
const DefaultZoneName = "Europe/Rome"

// Zone pins calendar-day semantics (grouping keys, slot dates, same-day rules) to one location.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA zone name. An empty name selects DefaultZoneName.
func LoadZone(name string) (Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZoneName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("scheduling: load zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// NewZone wraps an already resolved location.
func NewZone(loc *time.Location) Zone {
	return Zone{loc: loc}
}

// Location never returns nil; the zero Zone behaves as UTC.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// ParseDate parses a YYYY-MM-DD calendar date in the zone.
func (z Zone) ParseDate(value string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), z.Location())
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return day, nil
}

// DayBounds returns local midnight of the day containing t up to the next local midnight.
// AddDate keeps DST days at their real 23 or 25 hours.
func (z Zone) DayBounds(t time.Time) Interval {
	local := t.In(z.Location())
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.Location())
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// DateKey is the calendar date of t in the zone.
func (z Zone) DateKey(t time.Time) string {
	return t.In(z.Location()).Format(DateLayout)
}

func (z Zone) SameDay(a, b time.Time) bool {
	return z.DateKey(a) == z.DateKey(b)
}

// Format renders t as RFC 3339 with the zone's offset.
func (z Zone) Format(t time.Time) string {
	return t.In(z.Location()).Format(time.RFC3339)
}

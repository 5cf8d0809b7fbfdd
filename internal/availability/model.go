// Package availability manages the open time windows doctors declare for booking.
package availability

import (
	"time"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

// Availability is a doctor-declared window in which reservations may be placed.
// Windows are never edited in place; a change is a delete followed by a create.
type Availability struct {
	ID        string    `json:"id"`
	DoctorID  string    `json:"doctorId"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a Availability) Interval() scheduling.Interval {
	return scheduling.Interval{Start: a.StartTime, End: a.EndTime}
}

// CreateInput is the doctor's request for a new window.
type CreateInput struct {
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

// DayGroup is one calendar day of windows for presentation.
type DayGroup struct {
	Date  string         `json:"date"`
	Slots []Availability `json:"slots"`
}

// GroupByDay buckets windows by the practice-local date of their start, keeping input order
// within and across days. Input is expected sorted by start time.
func GroupByDay(items []Availability, zone scheduling.Zone) []DayGroup {
	groups := make([]DayGroup, 0)
	index := make(map[string]int)
	for _, item := range items {
		key := zone.DateKey(item.StartTime)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Date: key})
		}
		groups[i].Slots = append(groups[i].Slots, item)
	}
	return groups
}

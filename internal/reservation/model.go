// Package reservation derives bookable slots from doctor availability and runs the
// PENDING → CONFIRMED | DECLINED booking lifecycle.
package reservation

import (
	"strings"
	"time"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDeclined  Status = "DECLINED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusDeclined
}

// ParseStatus accepts a lifecycle state in any case.
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusPending, StatusConfirmed, StatusDeclined:
		return s, nil
	default:
		return "", scheduling.Validation("invalid reservation status")
	}
}

// StatusAll selects every reservation that is still relevant to the doctor, i.e. not declined.
const StatusAll = "ALL"

// PatientSummary is the patient detail shown on the doctor's agenda.
type PatientSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

// Reservation is a patient's request for a slot with their doctor.
type Reservation struct {
	ID          string          `json:"id"`
	DoctorID    string          `json:"doctorId"`
	PatientID   string          `json:"patientId"`
	VisitTypeID int             `json:"-"`
	VisitType   string          `json:"visitType"`
	StartDate   time.Time       `json:"startTime"`
	EndDate     time.Time       `json:"endTime"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Patient     *PatientSummary `json:"patient,omitempty"`
}

func (r Reservation) Interval() scheduling.Interval {
	return scheduling.Interval{Start: r.StartDate, End: r.EndDate}
}

// CreateInput is the patient's booking request.
type CreateInput struct {
	StartTime time.Time
	EndTime   time.Time
	VisitType string
}

// Filter narrows the doctor's agenda. Status is PENDING when empty.
type Filter struct {
	Start  *time.Time
	End    *time.Time
	Status string
}

// DayGroup is one practice-local day of the doctor's agenda.
type DayGroup struct {
	Date         string        `json:"date"`
	Reservations []Reservation `json:"reservations"`
}

// Page requests one page of a patient's history.
type Page struct {
	Page   int
	Limit  int
	Search string
}

const (
	defaultPage  = 1
	defaultLimit = 12
	maxLimit     = 100
	// Keeps the offset within int range; anything past it is an empty page anyway.
	maxPage      = 1_000_000
)

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = defaultPage
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

func (p Page) offset() uint64 {
	return uint64((p.Page - 1) * p.Limit)
}

// HistoryPage is one page of a patient's reservations with the total across pages.
type HistoryPage struct {
	Items []Reservation `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// GroupByDay buckets reservations by the practice-local date of their start, keeping input order.
func GroupByDay(items []Reservation, zone scheduling.Zone) []DayGroup {
	groups := make([]DayGroup, 0)
	index := make(map[string]int)
	for _, item := range items {
		key := zone.DateKey(item.StartDate)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Date: key})
		}
		groups[i].Reservations = append(groups[i].Reservations, item)
	}
	return groups
}

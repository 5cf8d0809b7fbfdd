package events

import (
	"context"
	"errors"
	"time"
)

// Event type names written to the outbox.
const (
	TypeAvailabilityCreated  = "availability.created.v1"
	TypeAvailabilityDeleted  = "availability.deleted.v1"
	TypeReservationCreated   = "reservation.created.v1"
	TypeReservationConfirmed = "reservation.confirmed.v1"
	TypeReservationDeclined  = "reservation.declined.v1"
)

type AvailabilityChangedV1 struct {
	AvailabilityID string    `json:"availability_id"`
	DoctorID       string    `json:"doctor_id"`
	ActorID        string    `json:"actor_id"`
	Title          string    `json:"title,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ReservationChangedV1 is the payload of every reservation lifecycle event.
type ReservationChangedV1 struct {
	ReservationID string    `json:"reservation_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	ActorID       string    `json:"actor_id"`
	VisitType     string    `json:"visit_type"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FanOut delivers an entry to every handler and reports their joined errors.
// Handlers must be idempotent: a partial failure redelivers the entry to all of them.
type FanOut []DeliveryHandler

func (f FanOut) Handle(ctx context.Context, entry OutboxEntry) error {
	var errs []error
	for _, h := range f {
		if h == nil {
			continue
		}
		if err := h.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

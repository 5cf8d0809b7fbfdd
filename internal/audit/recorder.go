// Package audit keeps an append-only trail of reservation state changes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/medpractice-booking/internal/events"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// Entry is one immutable audit record, keyed by the outbox event that produced it.
type Entry struct {
	EventID       string          `json:"eventId"`
	ReservationID string          `json:"reservationId"`
	DoctorID      string          `json:"doctorId"`
	EventType     string          `json:"eventType"`
	ActorID       string          `json:"actorId,omitempty"`
	FromStatus    string          `json:"fromStatus,omitempty"`
	ToStatus      string          `json:"toStatus"`
	Payload       json.RawMessage `json:"-"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Recorder is an outbox handler that persists reservation events.
type Recorder struct {
	db     *sql.DB
	logger *logging.Logger
}

func NewRecorder(db *sql.DB, logger *logging.Logger) *Recorder {
	if db == nil {
		panic("audit: sql db required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{db: db, logger: logger}
}

// Handle records reservation.* events. Redelivery of the same outbox id is a no-op.
func (r *Recorder) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if !strings.HasPrefix(entry.Type, "reservation.") {
		return nil
	}

	var evt events.ReservationChangedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		r.logger.Error("audit: invalid reservation payload", "error", err, "event_id", entry.ID.String())
		return nil
	}
	occurredAt := evt.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = entry.CreatedAt
	}

	query := `
		INSERT INTO reservation_audit_events (
			event_id, reservation_id, doctor_id, event_type,
			actor_id, from_status, to_status, payload, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID.String(),
		evt.ReservationID,
		evt.DoctorID,
		entry.Type,
		nullString(evt.ActorID),
		nullString(evt.FromStatus),
		evt.ToStatus,
		[]byte(entry.Payload),
		occurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// ForReservation returns the trail of one reservation, oldest first.
func (r *Recorder) ForReservation(ctx context.Context, reservationID string) ([]Entry, error) {
	trails, err := r.ForReservations(ctx, []string{reservationID})
	if err != nil {
		return nil, err
	}
	if trail := trails[reservationID]; trail != nil {
		return trail, nil
	}
	return []Entry{}, nil
}

// ForReservations loads the trails of several reservations in one round trip.
func (r *Recorder) ForReservations(ctx context.Context, reservationIDs []string) (map[string][]Entry, error) {
	out := make(map[string][]Entry, len(reservationIDs))
	if len(reservationIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT event_id, reservation_id, doctor_id, event_type,
		       actor_id, from_status, to_status, payload, occurred_at
		FROM reservation_audit_events
		WHERE reservation_id = ANY($1)
		ORDER BY occurred_at, event_id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(reservationIDs))
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var actor, from sql.NullString
		var payload []byte
		if err := rows.Scan(&e.EventID, &e.ReservationID, &e.DoctorID, &e.EventType,
			&actor, &from, &e.ToStatus, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.ActorID = actor.String
		e.FromStatus = from.String
		e.Payload = json.RawMessage(payload)
		out[e.ReservationID] = append(out[e.ReservationID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ events.DeliveryHandler = (*Recorder)(nil)

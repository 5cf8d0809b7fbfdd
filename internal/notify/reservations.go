package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/events"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// ConsumerName identifies the notifier in processed_events.
const ConsumerName = "notify.reservations"

const whenLayout = "Monday 2 January 2006 at 15:04"

// ContactResolver looks up where to send mail for a doctor user or a patient record.
type ContactResolver interface {
	UserContact(ctx context.Context, userID string) (auth.Contact, error)
	PatientContact(ctx context.Context, patientID string) (auth.Contact, error)
}

// ProcessedTracker dedupes side effects across outbox redeliveries.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// ReservationNotifier is an outbox handler: new requests go to the doctor, decisions go to
// the patient.
type ReservationNotifier struct {
	email     EmailSender
	contacts  ContactResolver
	processed ProcessedTracker
	zone      scheduling.Zone
	logger    *logging.Logger
}

// NewReservationNotifier wires the notifier; processed may be nil to disable dedupe.
func NewReservationNotifier(email EmailSender, contacts ContactResolver, processed ProcessedTracker, zone scheduling.Zone, logger *logging.Logger) *ReservationNotifier {
	if email == nil {
		panic("notify: email sender required")
	}
	if contacts == nil {
		panic("notify: contact resolver required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReservationNotifier{email: email, contacts: contacts, processed: processed, zone: zone, logger: logger}
}

func (n *ReservationNotifier) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case events.TypeReservationCreated, events.TypeReservationConfirmed, events.TypeReservationDeclined:
	default:
		return nil
	}

	eventID := entry.ID.String()
	if n.processed != nil {
		done, err := n.processed.AlreadyProcessed(ctx, ConsumerName, eventID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	var evt events.ReservationChangedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// Malformed payloads are dropped, not retried.
		n.logger.Error("notify: invalid reservation payload", "error", err, "event_id", eventID)
		return n.markProcessed(ctx, eventID)
	}

	msg, err := n.compose(ctx, entry.Type, evt)
	if errors.Is(err, auth.ErrUnknownUser) {
		n.logger.Warn("notify: recipient not found, skipping", "event_id", eventID, "reservation_id", evt.ReservationID)
		return n.markProcessed(ctx, eventID)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.To) == "" {
		n.logger.Warn("notify: recipient has no email, skipping", "event_id", eventID, "reservation_id", evt.ReservationID)
		return n.markProcessed(ctx, eventID)
	}

	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send %s: %w", entry.Type, err)
	}
	return n.markProcessed(ctx, eventID)
}

func (n *ReservationNotifier) markProcessed(ctx context.Context, eventID string) error {
	if n.processed == nil {
		return nil
	}
	_, err := n.processed.MarkProcessed(ctx, ConsumerName, eventID)
	return err
}

func (n *ReservationNotifier) compose(ctx context.Context, eventType string, evt events.ReservationChangedV1) (EmailMessage, error) {
	when := evt.StartDate.In(n.zone.Location()).Format(whenLayout)
	visit := humanVisitType(evt.VisitType)

	switch eventType {
	case events.TypeReservationCreated:
		doctor, err := n.contacts.UserContact(ctx, evt.DoctorID)
		if err != nil {
			return EmailMessage{}, err
		}
		patient, err := n.contacts.PatientContact(ctx, evt.PatientID)
		if err != nil && !errors.Is(err, auth.ErrUnknownUser) {
			return EmailMessage{}, err
		}
		who := patient.Name
		if who == "" {
			who = "A patient"
		}
		return EmailMessage{
			To:      doctor.Email,
			ToName:  doctor.Name,
			Subject: "New reservation request",
			Body: fmt.Sprintf("%s requested a %s on %s.\nOpen your agenda to confirm or decline it.",
				who, visit, when),
		}, nil

	case events.TypeReservationConfirmed:
		patient, err := n.contacts.PatientContact(ctx, evt.PatientID)
		if err != nil {
			return EmailMessage{}, err
		}
		return EmailMessage{
			To:      patient.Email,
			ToName:  patient.Name,
			Subject: "Your reservation is confirmed",
			Body:    fmt.Sprintf("Your %s on %s has been confirmed.", visit, when),
		}, nil

	default:
		patient, err := n.contacts.PatientContact(ctx, evt.PatientID)
		if err != nil {
			return EmailMessage{}, err
		}
		return EmailMessage{
			To:      patient.Email,
			ToName:  patient.Name,
			Subject: "Your reservation was declined",
			Body: fmt.Sprintf("Your %s request for %s could not be accepted.\nPlease choose another slot.",
				visit, when),
		}, nil
	}
}

func humanVisitType(name string) string {
	switch name {
	case "FIRST_VISIT":
		return "first visit"
	case "CONTROL":
		return "control visit"
	case "":
		return "visit"
	default:
		return strings.ToLower(strings.ReplaceAll(name, "_", " "))
	}
}

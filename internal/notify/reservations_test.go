package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/events"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

type recordingSender struct {
	sent []EmailMessage
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type stubContacts struct {
	users    map[string]auth.Contact
	patients map[string]auth.Contact
}

func (s stubContacts) UserContact(_ context.Context, id string) (auth.Contact, error) {
	c, ok := s.users[id]
	if !ok {
		return auth.Contact{}, auth.ErrUnknownUser
	}
	return c, nil
}

func (s stubContacts) PatientContact(_ context.Context, id string) (auth.Contact, error) {
	c, ok := s.patients[id]
	if !ok {
		return auth.Contact{}, auth.ErrUnknownUser
	}
	return c, nil
}

type memoryProcessed struct{ seen map[string]bool }

func (m *memoryProcessed) AlreadyProcessed(_ context.Context, consumer, id string) (bool, error) {
	return m.seen[consumer+"/"+id], nil
}

func (m *memoryProcessed) MarkProcessed(_ context.Context, consumer, id string) (bool, error) {
	key := consumer + "/" + id
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func testContacts() stubContacts {
	return stubContacts{
		users:    map[string]auth.Contact{"doc-1": {Email: "house@example.com", Name: "Gregory House"}},
		patients: map[string]auth.Contact{"pat-1": {Email: "ada@example.com", Name: "Ada Lovelace"}},
	}
}

func entryFor(t *testing.T, eventType string, evt events.ReservationChangedV1) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.OutboxEntry{ID: uuid.New(), DoctorID: evt.DoctorID, Type: eventType, Payload: payload, CreatedAt: time.Now()}
}

func sampleEvent() events.ReservationChangedV1 {
	return events.ReservationChangedV1{
		ReservationID: "r-1",
		DoctorID:      "doc-1",
		PatientID:     "pat-1",
		VisitType:     "CONTROL",
		ToStatus:      "PENDING",
		StartDate:     time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC),
	}
}

func newTestNotifier(t *testing.T, sender EmailSender, processed ProcessedTracker) *ReservationNotifier {
	t.Helper()
	zone, err := scheduling.LoadZone("Europe/Rome")
	if err != nil {
		t.Fatalf("zone: %v", err)
	}
	return NewReservationNotifier(sender, testContacts(), processed, zone, nil)
}

func TestReservationNotifierCreatedMailsDoctor(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(t, sender, nil)

	if err := n.Handle(context.Background(), entryFor(t, events.TypeReservationCreated, sampleEvent())); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "house@example.com" {
		t.Errorf("expected doctor recipient, got %s", msg.To)
	}
	if !strings.Contains(msg.Body, "Ada Lovelace") {
		t.Errorf("expected patient name in body: %q", msg.Body)
	}
	// 07:00Z is 09:00 in Rome during summer time.
	if !strings.Contains(msg.Body, "09:00") {
		t.Errorf("expected practice-local time in body: %q", msg.Body)
	}
}

func TestReservationNotifierDecisionMailsPatient(t *testing.T) {
	for eventType, subject := range map[string]string{
		events.TypeReservationConfirmed: "Your reservation is confirmed",
		events.TypeReservationDeclined:  "Your reservation was declined",
	} {
		sender := &recordingSender{}
		n := newTestNotifier(t, sender, nil)
		if err := n.Handle(context.Background(), entryFor(t, eventType, sampleEvent())); err != nil {
			t.Fatalf("%s: %v", eventType, err)
		}
		if len(sender.sent) != 1 || sender.sent[0].To != "ada@example.com" || sender.sent[0].Subject != subject {
			t.Fatalf("%s: unexpected mail %+v", eventType, sender.sent)
		}
	}
}

func TestReservationNotifierDedupesRedelivery(t *testing.T) {
	sender := &recordingSender{}
	processed := &memoryProcessed{seen: map[string]bool{}}
	n := newTestNotifier(t, sender, processed)
	entry := entryFor(t, events.TypeReservationConfirmed, sampleEvent())

	for i := 0; i < 2; i++ {
		if err := n.Handle(context.Background(), entry); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected a single email across redeliveries, got %d", len(sender.sent))
	}
}

func TestReservationNotifierSendFailureIsRetried(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	processed := &memoryProcessed{seen: map[string]bool{}}
	n := newTestNotifier(t, sender, processed)
	entry := entryFor(t, events.TypeReservationDeclined, sampleEvent())

	if err := n.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected send failure to surface")
	}
	if len(processed.seen) != 0 {
		t.Fatal("failed delivery must not be marked processed")
	}
}

func TestReservationNotifierSkipsUnknownRecipientAndOtherEvents(t *testing.T) {
	sender := &recordingSender{}
	n := newTestNotifier(t, sender, nil)

	evt := sampleEvent()
	evt.PatientID = "ghost"
	if err := n.Handle(context.Background(), entryFor(t, events.TypeReservationConfirmed, evt)); err != nil {
		t.Fatalf("unknown recipient should be skipped, got %v", err)
	}
	if err := n.Handle(context.Background(), events.OutboxEntry{ID: uuid.New(), Type: events.TypeAvailabilityCreated}); err != nil {
		t.Fatalf("unrelated events are ignored, got %v", err)
	}
	if err := n.Handle(context.Background(), events.OutboxEntry{ID: uuid.New(), Type: events.TypeReservationCreated, Payload: []byte("{")}); err != nil {
		t.Fatalf("malformed payloads are dropped, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email, got %d", len(sender.sent))
	}
}

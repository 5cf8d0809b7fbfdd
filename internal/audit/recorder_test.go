package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medpractice-booking/internal/events"
)

var auditColumns = []string{
	"event_id", "reservation_id", "doctor_id", "event_type",
	"actor_id", "from_status", "to_status", "payload", "occurred_at",
}

func confirmedEntry(t *testing.T) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(events.ReservationChangedV1{
		ReservationID: "3f1d1c1e-7a8c-4c55-9a55-7b0a9b1d9f10",
		DoctorID:      "doc-1",
		PatientID:     "pat-1",
		ActorID:       "doc-1",
		VisitType:     "CONTROL",
		FromStatus:    "PENDING",
		ToStatus:      "CONFIRMED",
		OccurredAt:    time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return events.OutboxEntry{ID: uuid.New(), DoctorID: "doc-1", Type: events.TypeReservationConfirmed, Payload: payload}
}

func TestRecorder_HandleRecordsReservationEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entry := confirmedEntry(t)
	mock.ExpectExec("INSERT INTO reservation_audit_events").
		WithArgs(entry.ID.String(), "3f1d1c1e-7a8c-4c55-9a55-7b0a9b1d9f10", "doc-1", events.TypeReservationConfirmed,
			"doc-1", "PENDING", "CONFIRMED", sqlmock.AnyArg(), time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRecorder(db, nil).Handle(context.Background(), entry)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_HandleSkipsOtherEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	recorder := NewRecorder(db, nil)
	tests := []struct {
		name  string
		entry events.OutboxEntry
	}{
		{name: "availability event", entry: events.OutboxEntry{ID: uuid.New(), Type: events.TypeAvailabilityCreated, Payload: []byte(`{}`)}},
		{name: "malformed payload", entry: events.OutboxEntry{ID: uuid.New(), Type: events.TypeReservationCreated, Payload: []byte(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, recorder.Handle(context.Background(), tt.entry))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_HandleSurfacesWriteErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO reservation_audit_events").WillReturnError(errors.New("connection reset"))

	err = NewRecorder(db, nil).Handle(context.Background(), confirmedEntry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: record event")
}

func TestRecorder_ForReservationsGroupsByReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ids := []string{"res-a", "res-b"}
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(auditColumns).
		AddRow("evt-1", "res-a", "doc-1", events.TypeReservationCreated, "pat-user", nil, "PENDING", []byte(`{}`), at).
		AddRow("evt-2", "res-a", "doc-1", events.TypeReservationConfirmed, "doc-1", "PENDING", "CONFIRMED", []byte(`{}`), at.Add(time.Hour)).
		AddRow("evt-3", "res-b", "doc-1", events.TypeReservationCreated, "pat-user", nil, "PENDING", []byte(`{}`), at)
	mock.ExpectQuery("FROM reservation_audit_events").
		WithArgs(pq.Array(ids)).
		WillReturnRows(rows)

	trails, err := NewRecorder(db, nil).ForReservations(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, trails["res-a"], 2)
	require.Len(t, trails["res-b"], 1)
	assert.Equal(t, "", trails["res-a"][0].FromStatus)
	assert.Equal(t, "PENDING", trails["res-a"][1].FromStatus)
	assert.Equal(t, "CONFIRMED", trails["res-a"][1].ToStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_ForReservationEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM reservation_audit_events").
		WillReturnRows(sqlmock.NewRows(auditColumns))

	trail, err := NewRecorder(db, nil).ForReservation(context.Background(), "res-z")
	require.NoError(t, err)
	assert.NotNil(t, trail)
	assert.Empty(t, trail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_ForReservationsNoIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	trails, err := NewRecorder(db, nil).ForReservations(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, trails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

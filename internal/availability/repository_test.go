package availability

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/internal/store/postgres"
)

type recordingOutbox struct {
	types []string
	via   postgres.Querier
}

func (r *recordingOutbox) Insert(_ context.Context, q postgres.Querier, _ string, eventType string, _ any) (uuid.UUID, error) {
	r.types = append(r.types, eventType)
	r.via = q
	return uuid.New(), nil
}

var availabilityColumns = []string{"id", "doctor_id", "title", "start_time", "end_time", "created_at"}

func TestPostgresRepositoryListWithRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock, nil)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, doctor_id, title, start_time, end_time, created_at FROM availabilities WHERE doctor_id = $1 AND start_time < $2 AND end_time > $3 ORDER BY start_time ASC",
	)).WithArgs("doc-1", end, start).WillReturnRows(
		pgxmock.NewRows(availabilityColumns).
			AddRow("a-1", "doc-1", "Morning", start.Add(time.Hour), start.Add(3*time.Hour), start),
	)

	items, err := repo.List(context.Background(), "doc-1", &scheduling.Interval{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Morning", items[0].Title)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock, nil)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, doctor_id, title, start_time, end_time, created_at FROM availabilities WHERE doctor_id = $1 ORDER BY start_time ASC",
	)).WithArgs("doc-1").WillReturnRows(pgxmock.NewRows(availabilityColumns))

	items, err := repo.List(context.Background(), "doc-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryStartingWithin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock, nil)
	day := scheduling.Interval{
		Start: time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
	}
	mock.ExpectQuery("FROM availabilities\\s+WHERE doctor_id = \\$1 AND start_time >= \\$2 AND start_time < \\$3").
		WithArgs("doc-1", day.Start, day.End).
		WillReturnRows(pgxmock.NewRows(availabilityColumns).
			AddRow("a-1", "doc-1", "Morning", day.Start.Add(9*time.Hour), day.Start.Add(10*time.Hour), day.Start))

	items, err := repo.StartingWithin(context.Background(), "doc-1", day)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryCreateInsideDoctorLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	outbox := &recordingOutbox{}
	repo := newPostgresRepositoryWithExec(mock, outbox)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	a := &Availability{ID: uuid.NewString(), DoctorID: "doc-1", Title: "Morning", StartTime: start, EndTime: start.Add(2 * time.Hour)}
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT user_id FROM doctors").WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("doc-1"))
	mock.ExpectQuery("WHERE doctor_id = \\$1 AND start_time < \\$2 AND end_time > \\$3").
		WithArgs("doc-1", a.EndTime, a.StartTime).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO availabilities").
		WithArgs(a.ID, "doc-1", "Morning", a.StartTime, a.EndTime).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectCommit()

	err = repo.WithDoctorLock(context.Background(), "doc-1", func(tx TxRepository) error {
		existing, err := tx.FindOverlapping(context.Background(), "doc-1", a.Interval())
		if err != nil || existing != nil {
			t.Fatalf("unexpected overlap result %v %v", existing, err)
		}
		if err := tx.Insert(context.Background(), a); err != nil {
			return err
		}
		return tx.Publish(context.Background(), "doc-1", "availability.created.v1", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, created, a.CreatedAt)
	assert.Equal(t, []string{"availability.created.v1"}, outbox.types)
	assert.NotNil(t, outbox.via, "events are written through the open transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := newPostgresRepositoryWithExec(mock, nil)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT user_id FROM doctors").WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("doc-1"))
	mock.ExpectQuery("DELETE FROM availabilities").WithArgs("a-404", "doc-1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err = repo.WithDoctorLock(context.Background(), "doc-1", func(tx TxRepository) error {
		deleted, err := tx.Delete(context.Background(), "doc-1", "a-404")
		if err != nil {
			return err
		}
		if deleted == nil {
			return scheduling.ErrAvailabilityNotFound
		}
		return nil
	})
	assert.ErrorIs(t, err, scheduling.ErrAvailabilityNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

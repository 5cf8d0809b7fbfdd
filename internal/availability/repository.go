package availability

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/internal/store/postgres"
)

// Repository is the storage the service needs. Writes go through WithDoctorLock.
type Repository interface {
	WithDoctorLock(ctx context.Context, doctorID string, fn func(tx TxRepository) error) error
	List(ctx context.Context, doctorID string, within *scheduling.Interval) ([]Availability, error)
	StartingWithin(ctx context.Context, doctorID string, day scheduling.Interval) ([]Availability, error)
}

// TxRepository operates inside a doctor-locked transaction.
type TxRepository interface {
	FindOverlapping(ctx context.Context, doctorID string, iv scheduling.Interval) (*Availability, error)
	Insert(ctx context.Context, a *Availability) error
	// Delete removes the doctor's window and returns it, or nil when nothing matched.
	Delete(ctx context.Context, doctorID, id string) (*Availability, error)
	Publish(ctx context.Context, doctorID, eventType string, payload any) error
}

type outboxWriter interface {
	Insert(ctx context.Context, q postgres.Querier, doctorID string, eventType string, payload any) (uuid.UUID, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const columns = "id, doctor_id, title, start_time, end_time, created_at"

// PostgresRepository stores windows in the availabilities table.
type PostgresRepository struct {
	db     postgres.DB
	outbox outboxWriter
}

// NewPostgresRepository wires the repository; outbox may be nil to skip event publication.
func NewPostgresRepository(pool *pgxpool.Pool, outbox outboxWriter) *PostgresRepository {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return newPostgresRepositoryWithExec(pool, outbox)
}

func newPostgresRepositoryWithExec(db postgres.DB, outbox outboxWriter) *PostgresRepository {
	if db == nil {
		panic("availability: exec required")
	}
	return &PostgresRepository{db: db, outbox: outbox}
}

func (r *PostgresRepository) WithDoctorLock(ctx context.Context, doctorID string, fn func(tx TxRepository) error) error {
	return postgres.DoctorTx(ctx, r.db, doctorID, func(tx pgx.Tx) error {
		return fn(&txRepository{q: tx, outbox: r.outbox})
	})
}

func (r *PostgresRepository) List(ctx context.Context, doctorID string, within *scheduling.Interval) ([]Availability, error) {
	builder := psql.Select(columns).From("availabilities").Where(sq.Eq{"doctor_id": doctorID})
	if within != nil {
		builder = builder.Where(sq.Lt{"start_time": within.End}).Where(sq.Gt{"end_time": within.Start})
	}
	query, args, err := builder.OrderBy("start_time ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("availability: build list query: %w", err)
	}
	return queryAvailabilities(ctx, r.db, query, args...)
}

func (r *PostgresRepository) StartingWithin(ctx context.Context, doctorID string, day scheduling.Interval) ([]Availability, error) {
	query := `
		SELECT ` + columns + `
		FROM availabilities
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC
	`
	return queryAvailabilities(ctx, r.db, query, doctorID, day.Start, day.End)
}

type txRepository struct {
	q      postgres.Querier
	outbox outboxWriter
}

func (t *txRepository) FindOverlapping(ctx context.Context, doctorID string, iv scheduling.Interval) (*Availability, error) {
	query := `
		SELECT ` + columns + `
		FROM availabilities
		WHERE doctor_id = $1 AND start_time < $2 AND end_time > $3
		ORDER BY start_time ASC
		LIMIT 1
	`
	a, err := scanAvailability(t.q.QueryRow(ctx, query, doctorID, iv.End, iv.Start))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: find overlapping: %w", err)
	}
	return a, nil
}

func (t *txRepository) Insert(ctx context.Context, a *Availability) error {
	query := `
		INSERT INTO availabilities (id, doctor_id, title, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := t.q.QueryRow(ctx, query, a.ID, a.DoctorID, a.Title, a.StartTime, a.EndTime).Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("availability: insert: %w", err)
	}
	return nil
}

func (t *txRepository) Delete(ctx context.Context, doctorID, id string) (*Availability, error) {
	query := `
		DELETE FROM availabilities
		WHERE id = $1 AND doctor_id = $2
		RETURNING ` + columns
	a, err := scanAvailability(t.q.QueryRow(ctx, query, id, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: delete: %w", err)
	}
	return a, nil
}

func (t *txRepository) Publish(ctx context.Context, doctorID, eventType string, payload any) error {
	if t.outbox == nil {
		return nil
	}
	_, err := t.outbox.Insert(ctx, t.q, doctorID, eventType, payload)
	return err
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	if err := row.Scan(&a.ID, &a.DoctorID, &a.Title, &a.StartTime, &a.EndTime, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func queryAvailabilities(ctx context.Context, q postgres.Querier, query string, args ...any) ([]Availability, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("availability: query: %w", err)
	}
	defer rows.Close()

	items := make([]Availability, 0)
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan: %w", err)
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/internal/store/postgres"
)

// ListQuery is the storage form of a doctor agenda filter. A zero Status means any status;
// ExcludeStatus, when set, drops that status.
type ListQuery struct {
	Within        *scheduling.Interval
	Status        Status
	ExcludeStatus Status
}

// Repository is the storage the engine needs. Every mutation goes through WithDoctorLock.
type Repository interface {
	WithDoctorLock(ctx context.Context, doctorID string, fn func(tx TxRepository) error) error
	// ConfirmedOverlapping returns the intervals of CONFIRMED reservations overlapping within.
	ConfirmedOverlapping(ctx context.Context, doctorID string, within scheduling.Interval) ([]scheduling.Interval, error)
	List(ctx context.Context, doctorID string, q ListQuery) ([]Reservation, error)
	CountPending(ctx context.Context, doctorID string) (int, error)
	NextConfirmed(ctx context.Context, patientID string, after time.Time) (*Reservation, error)
	CountForPatient(ctx context.Context, doctorID, patientID string) (int, error)
	ListForPatient(ctx context.Context, patientID string, status Status) ([]Reservation, error)
	History(ctx context.Context, doctorID, patientID string, page Page) ([]Reservation, int, error)
	// Get returns the doctor's reservation in any state, or nil.
	Get(ctx context.Context, doctorID, id string) (*Reservation, error)
}

// TxRepository operates inside a doctor-locked transaction.
type TxRepository interface {
	// FindConfirmedOverlapping returns a CONFIRMED reservation other than excludeID overlapping iv, or nil.
	FindConfirmedOverlapping(ctx context.Context, doctorID string, iv scheduling.Interval, excludeID string) (*Reservation, error)
	CountForPatient(ctx context.Context, doctorID, patientID string) (int, error)
	// WindowsForDay returns the doctor's availability windows starting within day, ascending.
	WindowsForDay(ctx context.Context, doctorID string, day scheduling.Interval) ([]scheduling.Interval, error)
	Insert(ctx context.Context, r *Reservation) error
	// FindPending returns the doctor's reservation only while it is PENDING, or nil.
	FindPending(ctx context.Context, doctorID, id string) (*Reservation, error)
	// UpdateStatus moves r from one state to another and reports whether the row was in `from`.
	UpdateStatus(ctx context.Context, r *Reservation, from, to Status) (bool, error)
	Publish(ctx context.Context, doctorID, eventType string, payload any) error
}

type outboxWriter interface {
	Insert(ctx context.Context, q postgres.Querier, doctorID string, eventType string, payload any) (uuid.UUID, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	reservationColumns = "r.id, r.doctor_id, r.patient_id, r.visit_type_id, vt.name, r.start_date, r.end_date, r.status, r.created_at, r.updated_at"
	patientColumns     = "u.name, u.surname"
	reservationFrom    = "reservations r JOIN visit_types vt ON vt.id = r.visit_type_id"
	patientJoin        = "patients p ON p.id = r.patient_id JOIN users u ON u.id = p.user_id"
)

// PostgresRepository stores reservations in Postgres.
type PostgresRepository struct {
	db     postgres.DB
	outbox outboxWriter
}

// NewPostgresRepository wires the repository; outbox may be nil to skip event publication.
func NewPostgresRepository(pool *pgxpool.Pool, outbox outboxWriter) *PostgresRepository {
	if pool == nil {
		panic("reservation: pgx pool required")
	}
	return newPostgresRepositoryWithExec(pool, outbox)
}

func newPostgresRepositoryWithExec(db postgres.DB, outbox outboxWriter) *PostgresRepository {
	if db == nil {
		panic("reservation: exec required")
	}
	return &PostgresRepository{db: db, outbox: outbox}
}

func (r *PostgresRepository) WithDoctorLock(ctx context.Context, doctorID string, fn func(tx TxRepository) error) error {
	return postgres.DoctorTx(ctx, r.db, doctorID, func(tx pgx.Tx) error {
		return fn(&txRepository{q: tx, outbox: r.outbox})
	})
}

func (r *PostgresRepository) ConfirmedOverlapping(ctx context.Context, doctorID string, within scheduling.Interval) ([]scheduling.Interval, error) {
	query := `
		SELECT start_date, end_date
		FROM reservations
		WHERE doctor_id = $1 AND status = $2 AND start_date < $3 AND end_date > $4
		ORDER BY start_date ASC
	`
	rows, err := r.db.Query(ctx, query, doctorID, string(StatusConfirmed), within.End, within.Start)
	if err != nil {
		return nil, fmt.Errorf("reservation: query occupied: %w", err)
	}
	defer rows.Close()

	occupied := make([]scheduling.Interval, 0)
	for rows.Next() {
		var iv scheduling.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("reservation: scan occupied: %w", err)
		}
		occupied = append(occupied, iv)
	}
	return occupied, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, doctorID string, q ListQuery) ([]Reservation, error) {
	builder := psql.Select(reservationColumns, patientColumns).
		From(reservationFrom).
		Join(patientJoin).
		Where(sq.Eq{"r.doctor_id": doctorID})
	if q.Status != "" {
		builder = builder.Where(sq.Eq{"r.status": string(q.Status)})
	}
	if q.ExcludeStatus != "" {
		builder = builder.Where(sq.NotEq{"r.status": string(q.ExcludeStatus)})
	}
	if q.Within != nil {
		builder = builder.Where(sq.Lt{"r.start_date": q.Within.End}).Where(sq.Gt{"r.end_date": q.Within.Start})
	}
	query, args, err := builder.OrderBy("r.start_date DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("reservation: build list query: %w", err)
	}
	return queryReservations(ctx, r.db, scanWithPatient, query, args...)
}

func (r *PostgresRepository) CountPending(ctx context.Context, doctorID string) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM reservations WHERE doctor_id = $1 AND status = $2`
	if err := r.db.QueryRow(ctx, query, doctorID, string(StatusPending)).Scan(&total); err != nil {
		return 0, fmt.Errorf("reservation: count pending: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) NextConfirmed(ctx context.Context, patientID string, after time.Time) (*Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM ` + reservationFrom + `
		WHERE r.patient_id = $1 AND r.status = $2 AND r.start_date > $3
		ORDER BY r.start_date ASC
		LIMIT 1
	`
	res, err := scanReservation(r.db.QueryRow(ctx, query, patientID, string(StatusConfirmed), after))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: next confirmed: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) CountForPatient(ctx context.Context, doctorID, patientID string) (int, error) {
	return countForPatient(ctx, r.db, doctorID, patientID)
}

func (r *PostgresRepository) ListForPatient(ctx context.Context, patientID string, status Status) ([]Reservation, error) {
	builder := psql.Select(reservationColumns).
		From(reservationFrom).
		Where(sq.Eq{"r.patient_id": patientID})
	if status != "" {
		builder = builder.Where(sq.Eq{"r.status": string(status)})
	}
	query, args, err := builder.OrderBy("r.start_date DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("reservation: build patient list query: %w", err)
	}
	return queryReservations(ctx, r.db, scanReservation, query, args...)
}

func (r *PostgresRepository) History(ctx context.Context, doctorID, patientID string, page Page) ([]Reservation, int, error) {
	page = page.normalized()
	where := sq.And{sq.Eq{"r.doctor_id": doctorID}, sq.Eq{"r.patient_id": patientID}}
	if page.Search != "" {
		where = append(where, sq.ILike{"vt.name": "%" + page.Search + "%"})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(reservationFrom).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("reservation: build history count: %w", err)
	}
	var total int
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reservation: count history: %w", err)
	}

	query, args, err := psql.Select(reservationColumns).
		From(reservationFrom).
		Where(where).
		OrderBy("r.start_date DESC").
		Limit(uint64(page.Limit)).
		Offset(page.offset()).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("reservation: build history query: %w", err)
	}
	items, err := queryReservations(ctx, r.db, scanReservation, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) Get(ctx context.Context, doctorID, id string) (*Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM ` + reservationFrom + `
		WHERE r.id = $1 AND r.doctor_id = $2
	`
	res, err := scanReservation(r.db.QueryRow(ctx, query, id, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: get: %w", err)
	}
	return res, nil
}

type txRepository struct {
	q      postgres.Querier
	outbox outboxWriter
}

func (t *txRepository) FindConfirmedOverlapping(ctx context.Context, doctorID string, iv scheduling.Interval, excludeID string) (*Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM ` + reservationFrom + `
		WHERE r.doctor_id = $1 AND r.status = $2 AND r.start_date < $3 AND r.end_date > $4 AND r.id <> $5
		ORDER BY r.start_date ASC
		LIMIT 1
	`
	if excludeID == "" {
		excludeID = uuid.Nil.String()
	}
	res, err := scanReservation(t.q.QueryRow(ctx, query, doctorID, string(StatusConfirmed), iv.End, iv.Start, excludeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: find confirmed overlap: %w", err)
	}
	return res, nil
}

func (t *txRepository) CountForPatient(ctx context.Context, doctorID, patientID string) (int, error) {
	return countForPatient(ctx, t.q, doctorID, patientID)
}

func (t *txRepository) WindowsForDay(ctx context.Context, doctorID string, day scheduling.Interval) ([]scheduling.Interval, error) {
	query := `
		SELECT start_time, end_time
		FROM availabilities
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC
	`
	rows, err := t.q.Query(ctx, query, doctorID, day.Start, day.End)
	if err != nil {
		return nil, fmt.Errorf("reservation: query availability: %w", err)
	}
	defer rows.Close()

	windows := make([]scheduling.Interval, 0)
	for rows.Next() {
		var w scheduling.Interval
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, fmt.Errorf("reservation: scan availability: %w", err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, res *Reservation) error {
	query := `
		INSERT INTO reservations (id, doctor_id, patient_id, visit_type_id, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := t.q.QueryRow(ctx, query, res.ID, res.DoctorID, res.PatientID, res.VisitTypeID,
		res.StartDate, res.EndDate, string(res.Status)).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reservation: insert: %w", err)
	}
	return nil
}

func (t *txRepository) FindPending(ctx context.Context, doctorID, id string) (*Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM ` + reservationFrom + `
		WHERE r.id = $1 AND r.doctor_id = $2 AND r.status = $3
	`
	res, err := scanReservation(t.q.QueryRow(ctx, query, id, doctorID, string(StatusPending)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservation: find pending: %w", err)
	}
	return res, nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, res *Reservation, from, to Status) (bool, error) {
	query := `
		UPDATE reservations
		SET status = $1, updated_at = now()
		WHERE id = $2 AND doctor_id = $3 AND status = $4
		RETURNING updated_at
	`
	var updatedAt time.Time
	err := t.q.QueryRow(ctx, query, string(to), res.ID, res.DoctorID, string(from)).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reservation: update status: %w", err)
	}
	res.Status = to
	res.UpdatedAt = updatedAt
	return true, nil
}

func (t *txRepository) Publish(ctx context.Context, doctorID, eventType string, payload any) error {
	if t.outbox == nil {
		return nil
	}
	_, err := t.outbox.Insert(ctx, t.q, doctorID, eventType, payload)
	return err
}

func countForPatient(ctx context.Context, q postgres.Querier, doctorID, patientID string) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM reservations WHERE doctor_id = $1 AND patient_id = $2`
	if err := q.QueryRow(ctx, query, doctorID, patientID).Scan(&total); err != nil {
		return 0, fmt.Errorf("reservation: count for patient: %w", err)
	}
	return total, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	var status string
	if err := row.Scan(&res.ID, &res.DoctorID, &res.PatientID, &res.VisitTypeID, &res.VisitType,
		&res.StartDate, &res.EndDate, &status, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	res.Status = Status(status)
	return &res, nil
}

func scanWithPatient(row pgx.Row) (*Reservation, error) {
	var res Reservation
	var status string
	patient := PatientSummary{}
	if err := row.Scan(&res.ID, &res.DoctorID, &res.PatientID, &res.VisitTypeID, &res.VisitType,
		&res.StartDate, &res.EndDate, &status, &res.CreatedAt, &res.UpdatedAt,
		&patient.Name, &patient.Surname); err != nil {
		return nil, err
	}
	res.Status = Status(status)
	patient.ID = res.PatientID
	res.Patient = &patient
	return &res, nil
}

func queryReservations(ctx context.Context, q postgres.Querier, scan func(pgx.Row) (*Reservation, error), query string, args ...any) ([]Reservation, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reservation: query: %w", err)
	}
	defer rows.Close()

	items := make([]Reservation, 0)
	for rows.Next() {
		res, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("reservation: scan: %w", err)
		}
		items = append(items, *res)
	}
	return items, rows.Err()
}

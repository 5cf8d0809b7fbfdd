package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUser is returned when a token subject has no user row.
var ErrUnknownUser = errors.New("auth: unknown user")

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Contact is where notifications for a user go.
type Contact struct {
	Email string
	Name  string
}

// ProfileStore loads the doctor/patient linkage of a user from Postgres.
type ProfileStore struct {
	pool rowQuerier
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	if pool == nil {
		panic("auth: pgx pool required")
	}
	return &ProfileStore{pool: pool}
}

func newProfileStoreWithExec(exec rowQuerier) *ProfileStore {
	if exec == nil {
		panic("auth: exec required")
	}
	return &ProfileStore{pool: exec}
}

// Resolve builds the principal for userID.
func (s *ProfileStore) Resolve(ctx context.Context, userID string) (Principal, error) {
	query := `
		SELECT u.role, d.user_id, p.id, p.doctor_id
		FROM users u
		LEFT JOIN doctors d ON d.user_id = u.id
		LEFT JOIN patients p ON p.user_id = u.id
		WHERE u.id = $1
	`
	var role string
	var doctorID, patientID, patientDoctor *string
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&role, &doctorID, &patientID, &patientDoctor); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrUnknownUser
		}
		return Principal{}, fmt.Errorf("auth: resolve profile: %w", err)
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return Principal{}, fmt.Errorf("auth: user %s has unknown role %q", userID, role)
	}

	p := Principal{UserID: userID, Role: parsed}
	if doctorID != nil {
		p.Doctor = &DoctorProfile{ID: *doctorID}
	}
	if patientID != nil {
		p.Patient = &PatientProfile{ID: *patientID}
		if patientDoctor != nil {
			p.Patient.DoctorID = *patientDoctor
		}
	}
	return p, nil
}

// UserContact returns the e-mail contact of a user (doctors are addressed by user id).
func (s *ProfileStore) UserContact(ctx context.Context, userID string) (Contact, error) {
	return s.contact(ctx, `SELECT email, name, surname FROM users WHERE id = $1`, userID)
}

// PatientContact returns the e-mail contact behind a patient record id.
func (s *ProfileStore) PatientContact(ctx context.Context, patientID string) (Contact, error) {
	return s.contact(ctx, `
		SELECT u.email, u.name, u.surname
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, patientID)
}

func (s *ProfileStore) contact(ctx context.Context, query, id string) (Contact, error) {
	var email, name, surname string
	if err := s.pool.QueryRow(ctx, query, id).Scan(&email, &name, &surname); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrUnknownUser
		}
		return Contact{}, fmt.Errorf("auth: load contact: %w", err)
	}
	return Contact{Email: email, Name: strings.TrimSpace(name + " " + surname)}, nil
}

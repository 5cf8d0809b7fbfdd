package auth

import (
	"context"
	"errors"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProfileStoreResolvePatient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProfileStoreWithExec(mock)
	patientID, doctorID := "pat-1", "doc-1"
	mock.ExpectQuery("SELECT u.role").WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"role", "doctor", "patient", "patient_doctor"}).
			AddRow("PATIENT", nil, &patientID, &doctorID))

	p, err := store.Resolve(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Role != RolePatient || p.Patient == nil || p.Patient.ID != "pat-1" || p.Patient.DoctorID != "doc-1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if p.Doctor != nil {
		t.Fatalf("patient must not carry a doctor profile")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfileStoreResolveDoctor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProfileStoreWithExec(mock)
	doctorID := "user-9"
	mock.ExpectQuery("SELECT u.role").WithArgs("user-9").
		WillReturnRows(pgxmock.NewRows([]string{"role", "doctor", "patient", "patient_doctor"}).
			AddRow("DOCTOR", &doctorID, nil, nil))

	p, err := store.Resolve(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	id, err := p.DoctorID()
	if err != nil || id != "user-9" {
		t.Fatalf("expected doctor id user-9, got %q (%v)", id, err)
	}
}

func TestProfileStoreResolveUnknownUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProfileStoreWithExec(mock)
	mock.ExpectQuery("SELECT u.role").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)

	if _, err := store.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestProfileStorePatientContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProfileStoreWithExec(mock)
	mock.ExpectQuery("FROM patients p").WithArgs("pat-1").
		WillReturnRows(pgxmock.NewRows([]string{"email", "name", "surname"}).AddRow("maria@example.com", "Maria", "Rossi"))

	contact, err := store.PatientContact(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	if contact.Email != "maria@example.com" || contact.Name != "Maria Rossi" {
		t.Fatalf("unexpected contact: %+v", contact)
	}
}

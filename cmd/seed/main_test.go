package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

func rome(t *testing.T) scheduling.Zone {
	t.Helper()
	zone, err := scheduling.LoadZone("Europe/Rome")
	require.NoError(t, err)
	return zone
}

func TestWorkingWindowsSkipWeekends(t *testing.T) {
	zone := rome(t)
	// Thursday afternoon; the next three days are Friday, Saturday, Sunday.
	now := time.Date(2024, 6, 6, 15, 0, 0, 0, zone.Location())

	windows := workingWindows(zone, now, 3)
	require.Len(t, windows, 2)
	assert.Equal(t, "2024-06-07T09:00:00+02:00", zone.Format(windows[0].Start))
	assert.Equal(t, "2024-06-07T13:00:00+02:00", zone.Format(windows[0].End))
	assert.Equal(t, "2024-06-07T14:00:00+02:00", zone.Format(windows[1].Start))
	assert.Equal(t, "2024-06-07T18:00:00+02:00", zone.Format(windows[1].End))
}

func TestWorkingWindowsAcrossDSTChange(t *testing.T) {
	zone := rome(t)
	// Clocks go back on 2024-10-27; Monday hours still start at 09:00 local.
	now := time.Date(2024, 10, 26, 10, 0, 0, 0, zone.Location())

	windows := workingWindows(zone, now, 2)
	require.Len(t, windows, 2)
	assert.Equal(t, "2024-10-28T09:00:00+01:00", zone.Format(windows[0].Start))
}

func TestSeedPracticeWritesInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	zone := rome(t)
	now := time.Date(2024, 6, 6, 15, 0, 0, 0, zone.Location())
	insert := pgxmock.NewResult("INSERT", 1)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "DOCTOR").
		WillReturnResult(insert)
	mock.ExpectExec("INSERT INTO doctors").WithArgs(pgxmock.AnyArg()).WillReturnResult(insert)
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO availabilities").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Clinic hours", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(insert)
	}
	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "PATIENT").
		WillReturnResult(insert)
	mock.ExpectExec("INSERT INTO patients").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(insert)
	mock.ExpectCommit()
	mock.ExpectRollback()

	result, err := seedPractice(context.Background(), mock, zone, seedOptions{Doctors: 1, PatientsPerDoctor: 1, Days: 3}, now)
	require.NoError(t, err)
	require.Len(t, result.Doctors, 1)
	require.Len(t, result.Patients, 1)
	assert.Equal(t, 2, result.Windows)
	assert.Equal(t, auth.RoleDoctor, result.Doctors[0].Role)
	assert.True(t, strings.HasSuffix(result.Patients[0].Email, "@example.com"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedPracticeRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = seedPractice(context.Background(), mock, rome(t), seedOptions{Doctors: 1, Days: 1}, time.Now())
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintTokensCreatesVerifiableSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sessions := auth.NewSessionStore(client)
	tokens := auth.NewTokenManager("seed-secret", "medpractice")
	accounts := []account{{UserID: "user-1", Role: auth.RolePatient, Email: "ada@example.com"}}

	var out bytes.Buffer
	require.NoError(t, printTokens(context.Background(), &out, tokens, sessions, accounts, time.Hour))

	fields := strings.Fields(out.String())
	require.Len(t, fields, 3)
	assert.Equal(t, "PATIENT", fields[0])

	claims, err := tokens.Verify(fields[2])
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	active, err := sessions.Active(context.Background(), claims.SessionID, "user-1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestPrintTokensWithoutSessions(t *testing.T) {
	tokens := auth.NewTokenManager("seed-secret", "medpractice")
	var out bytes.Buffer
	err := printTokens(context.Background(), &out, tokens, nil, []account{{UserID: "doc-1", Role: auth.RoleDoctor, Email: "doc@example.com"}}, time.Hour)
	require.NoError(t, err)

	claims, err := tokens.Verify(strings.Fields(out.String())[2])
	require.NoError(t, err)
	assert.NotEmpty(t, claims.SessionID)
}

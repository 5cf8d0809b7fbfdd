package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medpractice-booking/internal/app/bootstrap"
	"github.com/wolfman30/medpractice-booking/internal/auth"
	appconfig "github.com/wolfman30/medpractice-booking/internal/config"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type sessionCreator interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (string, error)
}

type seedOptions struct {
	Doctors           int
	PatientsPerDoctor int
	Days              int
}

type account struct {
	UserID string
	Role   auth.Role
	Email  string
	Name   string
}

type seeded struct {
	Doctors  []account
	Patients []account
	Windows  int
}

// Morning and afternoon clinic hours, in practice-local time.
var clinicHours = [][2]int{{9, 13}, {14, 18}}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := seedOptions{}
	var issueTokens bool

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Populate a development database with doctors, patients and availability",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Doctors < 1 || opts.PatientsPerDoctor < 0 || opts.Days < 1 {
				return errors.New("doctors and days must be positive")
			}
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel)
			zone, err := scheduling.LoadZone(cfg.PracticeTimezone)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			result, err := seedPractice(ctx, pool, zone, opts, time.Now())
			if err != nil {
				return err
			}
			logger.Info("seed complete",
				"doctors", len(result.Doctors),
				"patients", len(result.Patients),
				"availability_windows", result.Windows,
			)

			if !issueTokens {
				return nil
			}
			var sessions sessionCreator
			if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
				defer func() { _ = redisClient.Close() }()
				sessions = auth.NewSessionStore(redisClient)
			}
			tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
			accounts := append(append([]account{}, result.Doctors...), result.Patients...)
			return printTokens(ctx, cmd.OutOrStdout(), tokens, sessions, accounts, cfg.SessionTTL)
		},
	}
	cmd.Flags().IntVar(&opts.Doctors, "doctors", 2, "number of doctors to create")
	cmd.Flags().IntVar(&opts.PatientsPerDoctor, "patients-per-doctor", 5, "patients assigned to each doctor")
	cmd.Flags().IntVar(&opts.Days, "days", 7, "days of availability to publish, starting tomorrow")
	cmd.Flags().BoolVar(&issueTokens, "tokens", false, "print a bearer token for every seeded account")
	return cmd
}

// seedPractice writes everything in a single transaction so a failed run leaves nothing behind.
func seedPractice(ctx context.Context, db txBeginner, zone scheduling.Zone, opts seedOptions, now time.Time) (seeded, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return seeded{}, fmt.Errorf("seed: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	windows := workingWindows(zone, now, opts.Days)
	var out seeded
	for i := 0; i < opts.Doctors; i++ {
		doctor, err := insertUser(ctx, tx, auth.RoleDoctor)
		if err != nil {
			return seeded{}, err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO doctors (user_id) VALUES ($1)`, doctor.UserID); err != nil {
			return seeded{}, fmt.Errorf("seed: insert doctor: %w", err)
		}
		out.Doctors = append(out.Doctors, doctor)

		for _, w := range windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO availabilities (id, doctor_id, title, start_time, end_time)
				VALUES ($1, $2, $3, $4, $5)
			`, uuid.NewString(), doctor.UserID, "Clinic hours", w.Start, w.End); err != nil {
				return seeded{}, fmt.Errorf("seed: insert availability: %w", err)
			}
			out.Windows++
		}

		for j := 0; j < opts.PatientsPerDoctor; j++ {
			patient, err := insertUser(ctx, tx, auth.RolePatient)
			if err != nil {
				return seeded{}, err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, doctor_id)
				VALUES ($1, $2, $3)
			`, uuid.NewString(), patient.UserID, doctor.UserID); err != nil {
				return seeded{}, fmt.Errorf("seed: insert patient: %w", err)
			}
			out.Patients = append(out.Patients, patient)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return seeded{}, fmt.Errorf("seed: commit: %w", err)
	}
	return out, nil
}

func insertUser(ctx context.Context, tx pgx.Tx, role auth.Role) (account, error) {
	first, last := gofakeit.FirstName(), gofakeit.LastName()
	a := account{
		UserID: uuid.NewString(),
		Role:   role,
		Email:  strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", first, last, gofakeit.Number(1000, 9999))),
		Name:   first + " " + last,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, name, surname, role)
		VALUES ($1, $2, $3, $4, $5)
	`, a.UserID, a.Email, first, last, string(role)); err != nil {
		return account{}, fmt.Errorf("seed: insert user: %w", err)
	}
	return a, nil
}

// workingWindows returns clinic hours for the next days calendar days after now, skipping weekends.
func workingWindows(zone scheduling.Zone, now time.Time, days int) []scheduling.Interval {
	loc := zone.Location()
	today := zone.DayBounds(now).Start
	var out []scheduling.Interval
	for d := 1; d <= days; d++ {
		day := today.AddDate(0, 0, d)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, hours := range clinicHours {
			out = append(out, scheduling.Interval{
				Start: time.Date(day.Year(), day.Month(), day.Day(), hours[0], 0, 0, 0, loc),
				End:   time.Date(day.Year(), day.Month(), day.Day(), hours[1], 0, 0, 0, loc),
			})
		}
	}
	return out
}

// printTokens issues one bearer token per account. Without a session store the session id is
// unregistered, so the tokens are accepted only by servers running without Redis.
func printTokens(ctx context.Context, w io.Writer, tokens *auth.TokenManager, sessions sessionCreator, accounts []account, ttl time.Duration) error {
	for _, a := range accounts {
		sessionID := uuid.NewString()
		if sessions != nil {
			id, err := sessions.Create(ctx, a.UserID, ttl)
			if err != nil {
				return fmt.Errorf("seed: create session: %w", err)
			}
			sessionID = id
		}
		token, err := tokens.Issue(a.UserID, a.Role, sessionID, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-8s %-40s %s\n", a.Role, a.Email, token)
	}
	return nil
}

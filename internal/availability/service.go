package availability

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/events"
	"github.com/wolfman30/medpractice-booking/internal/observability/metrics"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

var availabilityTracer = otel.Tracer("medpractice.internal.availability")

// DefaultMinDuration is the shortest window a doctor may open.
const DefaultMinDuration = 30 * time.Minute

// Service owns the availability rules: well-formed windows and no overlap per doctor.
type Service struct {
	repo        Repository
	zone        scheduling.Zone
	logger      *logging.Logger
	metrics     *metrics.SchedulingMetrics
	minDuration time.Duration
	now         func() time.Time
}

func NewService(repo Repository, zone scheduling.Zone, logger *logging.Logger) *Service {
	if repo == nil {
		panic("availability: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:        repo,
		zone:        zone,
		logger:      logger,
		minDuration: DefaultMinDuration,
		now:         time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// WithMinDuration overrides the minimum window length; non-positive values disable the check.
func (s *Service) WithMinDuration(d time.Duration) *Service {
	s.minDuration = d
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Create opens a window on the principal's calendar.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (created *Availability, err error) {
	start := s.now()
	defer func() { s.metrics.ObserveAvailability("create", scheduling.Outcome(err), time.Since(start).Seconds()) }()

	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	ctx, span := availabilityTracer.Start(ctx, "availability.create")
	defer span.End()
	span.SetAttributes(attribute.String("medpractice.doctor_id", doctorID))

	if err := s.validate(&in); err != nil {
		return nil, err
	}

	a := &Availability{
		ID:        uuid.NewString(),
		DoctorID:  doctorID,
		Title:     in.Title,
		StartTime: in.StartTime.UTC(),
		EndTime:   in.EndTime.UTC(),
	}
	err = s.repo.WithDoctorLock(ctx, doctorID, func(tx TxRepository) error {
		existing, err := tx.FindOverlapping(ctx, doctorID, a.Interval())
		if err != nil {
			return err
		}
		if existing != nil {
			return scheduling.ErrAvailabilityOverlap
		}
		if err := tx.Insert(ctx, a); err != nil {
			return err
		}
		return tx.Publish(ctx, doctorID, events.TypeAvailabilityCreated, s.event(a, p.UserID))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("availability created", "doctor_id", doctorID, "availability_id", a.ID,
		"start_time", a.StartTime, "end_time", a.EndTime)
	return a, nil
}

func (s *Service) validate(in *CreateInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return scheduling.Validation("title is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return scheduling.Validation("start and end time are required")
	}
	iv := scheduling.Interval{Start: in.StartTime, End: in.EndTime}
	if !iv.Valid() {
		return scheduling.ErrInvalidRange
	}
	if !s.zone.SameDay(in.StartTime, in.EndTime) {
		return scheduling.Validation("start and end time must be on the same day")
	}
	if s.minDuration > 0 && iv.Duration() < s.minDuration {
		return scheduling.Validation("availability must last at least " + s.minDuration.String())
	}
	return nil
}

// List returns the principal's windows grouped by practice-local day. A range, when given,
// keeps only windows overlapping it; both bounds are required together.
func (s *Service) List(ctx context.Context, p auth.Principal, from, to *time.Time) ([]DayGroup, error) {
	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	ctx, span := availabilityTracer.Start(ctx, "availability.list")
	defer span.End()

	var within *scheduling.Interval
	switch {
	case from == nil && to == nil:
	case from == nil || to == nil:
		return nil, scheduling.Validation("start and end must be provided together")
	default:
		within = &scheduling.Interval{Start: *from, End: *to}
		if !within.Valid() {
			return nil, scheduling.ErrInvalidRange
		}
	}

	items, err := s.repo.List(ctx, doctorID, within)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return GroupByDay(items, s.zone), nil
}

// Delete removes one of the principal's windows. Reservations inside it are left untouched,
// including confirmed ones.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) (err error) {
	start := s.now()
	defer func() { s.metrics.ObserveAvailability("delete", scheduling.Outcome(err), time.Since(start).Seconds()) }()

	doctorID, err := p.DoctorID()
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return scheduling.ErrAvailabilityNotFound
	}
	ctx, span := availabilityTracer.Start(ctx, "availability.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("medpractice.doctor_id", doctorID),
		attribute.String("medpractice.availability_id", id),
	)

	err = s.repo.WithDoctorLock(ctx, doctorID, func(tx TxRepository) error {
		deleted, err := tx.Delete(ctx, doctorID, id)
		if err != nil {
			return err
		}
		if deleted == nil {
			return scheduling.ErrAvailabilityNotFound
		}
		return tx.Publish(ctx, doctorID, events.TypeAvailabilityDeleted, s.event(deleted, p.UserID))
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("availability deleted", "doctor_id", doctorID, "availability_id", id)
	return nil
}

// WindowsForDay returns the doctor's windows starting on the practice-local day, ascending.
// The reservation engine tiles these into slots.
func (s *Service) WindowsForDay(ctx context.Context, doctorID string, day scheduling.Interval) ([]scheduling.Interval, error) {
	items, err := s.repo.StartingWithin(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	windows := make([]scheduling.Interval, 0, len(items))
	for _, a := range items {
		windows = append(windows, a.Interval())
	}
	return windows, nil
}

func (s *Service) event(a *Availability, actorID string) events.AvailabilityChangedV1 {
	return events.AvailabilityChangedV1{
		AvailabilityID: a.ID,
		DoctorID:       a.DoctorID,
		ActorID:        actorID,
		Title:          a.Title,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		OccurredAt:     s.now().UTC(),
	}
}

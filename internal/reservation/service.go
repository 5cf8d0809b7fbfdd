package reservation

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
	"github.com/wolfman30/medpractice-booking/internal/visittype"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

var reservationTracer = otel.Tracer("medpractice.internal.reservation")

// AvailabilitySource yields a doctor's windows that start on a practice-local day, ascending.
// It serves the read-only slot listing; Create reads windows through the locked transaction.
type AvailabilitySource interface {
	WindowsForDay(ctx context.Context, doctorID string, day scheduling.Interval) ([]scheduling.Interval, error)
}

// Service is the reservation engine.
type Service struct {
	repo         Repository
	availability AvailabilitySource
	catalog      visittype.Catalog
	zone         scheduling.Zone
	logger       *logging.Logger
	metrics      *metrics.SchedulingMetrics
	now          func() time.Time
}

func NewService(repo Repository, availability AvailabilitySource, catalog visittype.Catalog, zone scheduling.Zone, logger *logging.Logger) *Service {
	if repo == nil {
		panic("reservation: repository required")
	}
	if availability == nil {
		panic("reservation: availability source required")
	}
	if catalog == nil {
		panic("reservation: visit type catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:         repo,
		availability: availability,
		catalog:      catalog,
		zone:         zone,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// bookingDoctor is the calendar a principal books on: the treating doctor for patients,
// the admin's own calendar when the admin also holds a doctor profile.
func bookingDoctor(p auth.Principal) (string, error) {
	if p.Patient != nil {
		_, doctorID, err := p.PatientIDs()
		return doctorID, err
	}
	if p.HasRole(auth.RoleAdmin) && p.Doctor != nil {
		return p.DoctorID()
	}
	return "", scheduling.ErrNotPatient
}

// GetFreeSlots lists the bookable slots of visitType on date (YYYY-MM-DD in the practice zone).
// A day without availability yields an empty list.
func (s *Service) GetFreeSlots(ctx context.Context, p auth.Principal, date, visitType string) (slots []scheduling.Interval, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveReservation("slots", scheduling.Outcome(err), time.Since(started).Seconds()) }()

	doctorID, err := bookingDoctor(p)
	if err != nil {
		return nil, err
	}
	day, err := s.zone.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if visitType == "" {
		visitType = visittype.Control
	}

	ctx, span := reservationTracer.Start(ctx, "reservation.free_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("medpractice.doctor_id", doctorID),
		attribute.String("medpractice.date", date),
		attribute.String("medpractice.visit_type", visitType),
	)

	vt, err := s.catalog.FindByName(ctx, visitType)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	bounds := s.zone.DayBounds(day)
	windows, err := s.availability.WindowsForDay(ctx, doctorID, bounds)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(windows) == 0 {
		s.metrics.ObserveFreeSlots(0)
		return []scheduling.Interval{}, nil
	}

	reach := bounds
	for _, w := range windows {
		if w.End.After(reach.End) {
			reach.End = w.End
		}
	}
	occupied, err := s.repo.ConfirmedOverlapping(ctx, doctorID, reach)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slots = FreeSlots(windows, occupied, vt.Duration())
	s.metrics.ObserveFreeSlots(len(slots))
	return slots, nil
}

// Create books a PENDING reservation for the patient with their treating doctor. Several PENDING
// requests may target the same slot; the doctor settles them at confirmation.
func (s *Service) Create(ctx context.Context, p auth.Principal, in CreateInput) (created *Reservation, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveReservation("create", scheduling.Outcome(err), time.Since(started).Seconds()) }()

	patientID, doctorID, err := p.PatientIDs()
	if err != nil {
		return nil, err
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return nil, scheduling.Validation("start and end time are required")
	}

	ctx, span := reservationTracer.Start(ctx, "reservation.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("medpractice.doctor_id", doctorID),
		attribute.String("medpractice.patient_id", patientID),
	)

	vt, err := s.catalog.FindByName(ctx, in.VisitType)
	if err != nil {
		return nil, err
	}
	iv := scheduling.Interval{Start: in.StartTime.UTC(), End: in.EndTime.UTC()}
	if iv.Duration() != vt.Duration() {
		return nil, scheduling.ErrDurationMismatch
	}

	res := &Reservation{
		ID:          uuid.NewString(),
		DoctorID:    doctorID,
		PatientID:   patientID,
		VisitTypeID: vt.ID,
		VisitType:   vt.Name,
		StartDate:   iv.Start,
		EndDate:     iv.End,
		Status:      StatusPending,
	}
	err = s.repo.WithDoctorLock(ctx, doctorID, func(tx TxRepository) error {
		taken, err := tx.FindConfirmedOverlapping(ctx, doctorID, iv, "")
		if err != nil {
			return err
		}
		if taken != nil {
			return scheduling.ErrSlotTaken
		}

		windows, err := tx.WindowsForDay(ctx, doctorID, s.zone.DayBounds(iv.Start))
		if err != nil {
			return err
		}
		if !containedInAny(iv, windows) {
			return scheduling.ErrOutsideAvailability
		}

		if vt.IsFirstVisit() {
			count, err := tx.CountForPatient(ctx, doctorID, patientID)
			if err != nil {
				return err
			}
			if count > 0 {
				return scheduling.ErrNotFirstVisit
			}
		}

		if err := tx.Insert(ctx, res); err != nil {
			return err
		}
		return tx.Publish(ctx, doctorID, events.TypeReservationCreated, s.event(res, p.UserID, ""))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("reservation created", "doctor_id", doctorID, "patient_id", patientID,
		"reservation_id", res.ID, "visit_type", res.VisitType, "start_date", res.StartDate)
	return res, nil
}

func containedInAny(iv scheduling.Interval, windows []scheduling.Interval) bool {
	for _, w := range windows {
		if scheduling.Contains(w, iv) {
			return true
		}
	}
	return false
}

// Confirm accepts a PENDING reservation unless another CONFIRMED reservation of the doctor
// overlaps it. Colliding PENDING requests stay PENDING.
func (s *Service) Confirm(ctx context.Context, p auth.Principal, id string) (*Reservation, error) {
	return s.transition(ctx, p, id, StatusConfirmed, events.TypeReservationConfirmed)
}

// Decline rejects a PENDING reservation.
func (s *Service) Decline(ctx context.Context, p auth.Principal, id string) (*Reservation, error) {
	return s.transition(ctx, p, id, StatusDeclined, events.TypeReservationDeclined)
}

func (s *Service) transition(ctx context.Context, p auth.Principal, id string, to Status, eventType string) (res *Reservation, err error) {
	op := "confirm"
	if to == StatusDeclined {
		op = "decline"
	}
	started := s.now()
	defer func() { s.metrics.ObserveReservation(op, scheduling.Outcome(err), time.Since(started).Seconds()) }()

	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, scheduling.ErrReservationNotFound
	}

	ctx, span := reservationTracer.Start(ctx, "reservation."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("medpractice.doctor_id", doctorID),
		attribute.String("medpractice.reservation_id", id),
	)

	err = s.repo.WithDoctorLock(ctx, doctorID, func(tx TxRepository) error {
		pending, err := tx.FindPending(ctx, doctorID, id)
		if err != nil {
			return err
		}
		if pending == nil {
			return scheduling.ErrReservationNotFound
		}

		if to == StatusConfirmed {
			other, err := tx.FindConfirmedOverlapping(ctx, doctorID, pending.Interval(), pending.ID)
			if err != nil {
				return err
			}
			if other != nil {
				return scheduling.ErrConfirmConflict
			}
		}

		moved, err := tx.UpdateStatus(ctx, pending, StatusPending, to)
		if err != nil {
			return err
		}
		if !moved {
			return scheduling.ErrReservationNotFound
		}
		res = pending
		return tx.Publish(ctx, doctorID, eventType, s.event(pending, p.UserID, StatusPending))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("reservation status changed", "doctor_id", doctorID, "reservation_id", id,
		"patient_id", res.PatientID, "status", res.Status)
	return res, nil
}

// List returns the doctor's agenda newest first, grouped by practice-local day.
// Status: PENDING (default), CONFIRMED, DECLINED, or ALL meaning everything except DECLINED.
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter) ([]DayGroup, error) {
	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	q, err := listQueryFor(f)
	if err != nil {
		return nil, err
	}

	ctx, span := reservationTracer.Start(ctx, "reservation.list")
	defer span.End()
	items, err := s.repo.List(ctx, doctorID, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return GroupByDay(items, s.zone), nil
}

func listQueryFor(f Filter) (ListQuery, error) {
	var q ListQuery
	switch {
	case f.Start == nil && f.End == nil:
	case f.Start == nil || f.End == nil:
		return q, scheduling.Validation("start and end must be provided together")
	default:
		q.Within = &scheduling.Interval{Start: *f.Start, End: *f.End}
		if !q.Within.Valid() {
			return q, scheduling.ErrInvalidRange
		}
	}

	switch status := normalizeStatus(f.Status); status {
	case "":
		q.Status = StatusPending
	case StatusAll:
		q.ExcludeStatus = StatusDeclined
	default:
		parsed, err := ParseStatus(status)
		if err != nil {
			return q, err
		}
		q.Status = parsed
	}
	return q, nil
}

func normalizeStatus(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// CountPending is the number of requests awaiting the doctor's decision.
func (s *Service) CountPending(ctx context.Context, p auth.Principal) (int, error) {
	doctorID, err := p.DoctorID()
	if err != nil {
		return 0, err
	}
	return s.repo.CountPending(ctx, doctorID)
}

// Get returns one of the doctor's reservations in any state.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Reservation, error) {
	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, scheduling.ErrReservationNotFound
	}
	res, err := s.repo.Get(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, scheduling.ErrReservationNotFound
	}
	return res, nil
}

// Next is the patient's next upcoming CONFIRMED reservation, nil when there is none.
func (s *Service) Next(ctx context.Context, p auth.Principal) (*Reservation, error) {
	patientID, _, err := p.PatientIDs()
	if err != nil {
		return nil, err
	}
	return s.repo.NextConfirmed(ctx, patientID, s.now().UTC())
}

// IsFirstVisit reports whether the patient has never booked with their doctor.
func (s *Service) IsFirstVisit(ctx context.Context, p auth.Principal) (bool, error) {
	patientID, doctorID, err := p.PatientIDs()
	if err != nil {
		return false, err
	}
	count, err := s.repo.CountForPatient(ctx, doctorID, patientID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// ListForPatient returns the patient's own reservations, newest first. An empty status or ALL
// returns every state.
func (s *Service) ListForPatient(ctx context.Context, p auth.Principal, status string) ([]Reservation, error) {
	patientID, _, err := p.PatientIDs()
	if err != nil {
		return nil, err
	}
	var only Status
	if normalized := normalizeStatus(status); normalized != "" && normalized != StatusAll {
		if only, err = ParseStatus(normalized); err != nil {
			return nil, err
		}
	}
	return s.repo.ListForPatient(ctx, patientID, only)
}

// PatientHistory pages through one patient's reservations with the doctor, optionally
// searching by visit type name.
func (s *Service) PatientHistory(ctx context.Context, p auth.Principal, patientID string, page Page) (*HistoryPage, error) {
	doctorID, err := p.DoctorID()
	if err != nil {
		return nil, err
	}
	if patientID == "" {
		return nil, scheduling.Validation("patient id is required")
	}
	page = page.normalized()

	ctx, span := reservationTracer.Start(ctx, "reservation.patient_history")
	defer span.End()
	items, total, err := s.repo.History(ctx, doctorID, patientID, page)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &HistoryPage{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

func (s *Service) event(r *Reservation, actorID string, from Status) events.ReservationChangedV1 {
	return events.ReservationChangedV1{
		ReservationID: r.ID,
		DoctorID:      r.DoctorID,
		PatientID:     r.PatientID,
		ActorID:       actorID,
		VisitType:     r.VisitType,
		FromStatus:    string(from),
		ToStatus:      string(r.Status),
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		OccurredAt:    s.now().UTC(),
	}
}

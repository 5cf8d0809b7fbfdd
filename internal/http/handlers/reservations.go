package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medpractice-booking/internal/audit"
	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/reservation"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// ReservationService is the booking engine as seen by HTTP.
type ReservationService interface {
	GetFreeSlots(ctx context.Context, p auth.Principal, date, visitType string) ([]scheduling.Interval, error)
	Create(ctx context.Context, p auth.Principal, in reservation.CreateInput) (*reservation.Reservation, error)
	Confirm(ctx context.Context, p auth.Principal, id string) (*reservation.Reservation, error)
	Decline(ctx context.Context, p auth.Principal, id string) (*reservation.Reservation, error)
	List(ctx context.Context, p auth.Principal, f reservation.Filter) ([]reservation.DayGroup, error)
	CountPending(ctx context.Context, p auth.Principal) (int, error)
	Get(ctx context.Context, p auth.Principal, id string) (*reservation.Reservation, error)
	Next(ctx context.Context, p auth.Principal) (*reservation.Reservation, error)
	IsFirstVisit(ctx context.Context, p auth.Principal) (bool, error)
	ListForPatient(ctx context.Context, p auth.Principal, status string) ([]reservation.Reservation, error)
	PatientHistory(ctx context.Context, p auth.Principal, patientID string, page reservation.Page) (*reservation.HistoryPage, error)
}

// AuditTrail returns the recorded lifecycle of a reservation.
type AuditTrail interface {
	ForReservation(ctx context.Context, reservationID string) ([]audit.Entry, error)
}

// ReservationHandler serves /reservations.
type ReservationHandler struct {
	service ReservationService
	trail   AuditTrail
	zone    scheduling.Zone
	logger  *logging.Logger
}

// NewReservationHandler wires the handler; trail may be nil, which disables the history route.
func NewReservationHandler(service ReservationService, trail AuditTrail, zone scheduling.Zone, logger *logging.Logger) *ReservationHandler {
	if service == nil {
		panic("handlers: reservation service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReservationHandler{service: service, trail: trail, zone: zone, logger: logger}
}

type createReservationRequest struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	VisitType string    `json:"visitType"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// FreeSlots handles GET /reservations/slots?date&visitType.
func (h *ReservationHandler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	slots, err := h.service.GetFreeSlots(r.Context(), p, q.Get("date"), q.Get("visitType"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, renderIntervals(h.zone, slots))
}

// Create handles POST /reservations.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), p, reservation.CreateInput{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		VisitType: req.VisitType,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.local(*created))
}

// Confirm handles PATCH /reservations/{id}/confirm.
func (h *ReservationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Confirm, "Reservation confirmed successfully")
}

// Decline handles PATCH /reservations/{id}/decline.
func (h *ReservationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Decline, "Reservation declined successfully")
}

type decision func(ctx context.Context, p auth.Principal, id string) (*reservation.Reservation, error)

func (h *ReservationHandler) decide(w http.ResponseWriter, r *http.Request, fn decision, message string) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if _, err := fn(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

// List handles GET /reservations?start&end&status for the doctor's agenda.
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	from, to, err := rangeParams(h.zone, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	groups, err := h.service.List(r.Context(), p, reservation.Filter{
		Start:  from,
		End:    to,
		Status: r.URL.Query().Get("status"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	for i := range groups {
		groups[i].Reservations = h.localAll(groups[i].Reservations)
	}
	writeJSON(w, http.StatusOK, groups)
}

// CountPending handles GET /reservations/count.
func (h *ReservationHandler) CountPending(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.service.CountPending(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// History handles GET /reservations/{id}/history. Ownership is checked through the engine.
func (h *ReservationHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if h.trail == nil {
		jsonError(w, "audit trail not configured", http.StatusNotImplemented)
		return
	}
	res, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	entries, err := h.trail.ForReservation(r.Context(), res.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	for i := range entries {
		entries[i].OccurredAt = entries[i].OccurredAt.In(h.zone.Location())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reservation": h.local(*res),
		"events":      entries,
	})
}

// PatientHistory handles GET /reservations/patients/{patientID}?page&limit&search.
func (h *ReservationHandler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		jsonError(w, "invalid page", http.StatusBadRequest)
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		jsonError(w, "invalid limit", http.StatusBadRequest)
		return
	}

	result, err := h.service.PatientHistory(r.Context(), p, chi.URLParam(r, "patientID"), reservation.Page{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	result.Items = h.localAll(result.Items)
	writeJSON(w, http.StatusOK, result)
}

// ListForPatient handles GET /reservations/patient?status.
func (h *ReservationHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListForPatient(r.Context(), p, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.localAll(items))
}

// Next handles GET /reservations/next; the body is null when nothing is booked.
func (h *ReservationHandler) Next(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	next, err := h.service.Next(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if next == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.local(*next))
}

// FirstVisit handles GET /reservations/first-visit.
func (h *ReservationHandler) FirstVisit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	first, err := h.service.IsFirstVisit(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"firstVisit": first})
}

func (h *ReservationHandler) local(res reservation.Reservation) reservation.Reservation {
	loc := h.zone.Location()
	res.StartDate = res.StartDate.In(loc)
	res.EndDate = res.EndDate.In(loc)
	res.CreatedAt = res.CreatedAt.In(loc)
	res.UpdatedAt = res.UpdatedAt.In(loc)
	return res
}

func (h *ReservationHandler) localAll(items []reservation.Reservation) []reservation.Reservation {
	out := make([]reservation.Reservation, 0, len(items))
	for _, item := range items {
		out = append(out, h.local(item))
	}
	return out
}

func optionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

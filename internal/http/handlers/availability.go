package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/availability"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// AvailabilityService is the doctor-side calendar.
type AvailabilityService interface {
	Create(ctx context.Context, p auth.Principal, in availability.CreateInput) (*availability.Availability, error)
	List(ctx context.Context, p auth.Principal, from, to *time.Time) ([]availability.DayGroup, error)
	Delete(ctx context.Context, p auth.Principal, id string) error
}

// AvailabilityHandler serves /doctor/availability.
type AvailabilityHandler struct {
	service AvailabilityService
	zone    scheduling.Zone
	logger  *logging.Logger
}

func NewAvailabilityHandler(service AvailabilityService, zone scheduling.Zone, logger *logging.Logger) *AvailabilityHandler {
	if service == nil {
		panic("handlers: availability service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityHandler{service: service, zone: zone, logger: logger}
}

type createAvailabilityRequest struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Create handles POST /doctor/availability.
func (h *AvailabilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createAvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), p, availability.CreateInput{
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.local(*created))
}

// List handles GET /doctor/availability?start&end.
func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	from, to, err := rangeParams(h.zone, r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	groups, err := h.service.List(r.Context(), p, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	for i := range groups {
		for j := range groups[i].Slots {
			groups[i].Slots[j] = h.local(groups[i].Slots[j])
		}
	}
	writeJSON(w, http.StatusOK, groups)
}

// Delete handles DELETE /doctor/availability/{id}.
func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AvailabilityHandler) local(a availability.Availability) availability.Availability {
	loc := h.zone.Location()
	a.StartTime = a.StartTime.In(loc)
	a.EndTime = a.EndTime.In(loc)
	a.CreatedAt = a.CreatedAt.In(loc)
	return a
}

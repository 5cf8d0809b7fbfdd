// Package handlers exposes the scheduling services over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/scheduling"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the scheduling error kinds to HTTP statuses. Internal failures are
// logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	switch scheduling.Kind(err) {
	case scheduling.KindValidation:
		jsonError(w, err.Error(), http.StatusBadRequest)
	case scheduling.KindConflict:
		jsonError(w, err.Error(), http.StatusConflict)
	case scheduling.KindNotFound:
		jsonError(w, err.Error(), http.StatusNotFound)
	case scheduling.KindAuthorization:
		jsonError(w, err.Error(), http.StatusForbidden)
	default:
		logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
	}
	return p, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			jsonError(w, "request body is required", http.StatusBadRequest)
			return false
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// parseInstant accepts RFC 3339 or a bare YYYY-MM-DD date. An empty value is the zero time.
// A bare date is local midnight; with endOfDay it is the following midnight so the day is included.
func parseInstant(zone scheduling.Zone, value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := zone.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return zone.DayBounds(day).End, nil
	}
	return day, nil
}

// rangeParams reads optional start/end query parameters.
func rangeParams(zone scheduling.Zone, r *http.Request) (from, to *time.Time, err error) {
	start, err := parseInstant(zone, r.URL.Query().Get("start"), false)
	if err != nil {
		return nil, nil, err
	}
	end, err := parseInstant(zone, r.URL.Query().Get("end"), true)
	if err != nil {
		return nil, nil, err
	}
	if !start.IsZero() {
		from = &start
	}
	if !end.IsZero() {
		to = &end
	}
	return from, to, nil
}

// interval is a slot or window rendered in the practice zone.
type interval struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func renderIntervals(zone scheduling.Zone, items []scheduling.Interval) []interval {
	out := make([]interval, 0, len(items))
	for _, iv := range items {
		out = append(out, interval{StartTime: zone.Format(iv.Start), EndTime: zone.Format(iv.End)})
	}
	return out
}

package handlers

import (
	"context"
	"net/http"

	"github.com/wolfman30/medpractice-booking/internal/visittype"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

type VisitTypeLister interface {
	List(ctx context.Context) ([]visittype.VisitType, error)
}

// VisitTypeHandler serves GET /visit-types.
type VisitTypeHandler struct {
	catalog VisitTypeLister
	logger  *logging.Logger
}

func NewVisitTypeHandler(catalog VisitTypeLister, logger *logging.Logger) *VisitTypeHandler {
	if catalog == nil {
		panic("handlers: visit type catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VisitTypeHandler{catalog: catalog, logger: logger}
}

func (h *VisitTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if types == nil {
		types = []visittype.VisitType{}
	}
	writeJSON(w, http.StatusOK, types)
}

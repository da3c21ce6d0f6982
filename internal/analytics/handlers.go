package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes report endpoints for the signed-in employee.
type Handler struct {
	Svc *Service
}

// Routes mounts the report endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reports/sales", h.Sales)
}

// Sales handles GET /reports/sales. Either both from and to are given as
// RFC 3339 timestamps or the last `hours` hours are reported.
func (h *Handler) Sales(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	employeeID, ok := common.EmployeeID(r.Context())
	if !ok || employeeID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "employee identity required", nil)
		return
	}
	query := r.URL.Query()
	fromStr := query.Get("from")
	toStr := query.Get("to")
	var (
		from time.Time
		to   time.Time
		err  error
	)
	switch {
	case fromStr != "" && toStr != "":
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return
		}
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return
		}
	case fromStr != "" || toStr != "":
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from and to must be given together", nil)
		return
	default:
		hours := h.Svc.DefaultHours
		if hours <= 0 {
			hours = 12
		}
		if raw := query.Get("hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "hours must be a positive integer", nil)
				return
			}
			hours = parsed
		}
		to = h.Svc.now()
		from = to.Add(-time.Duration(hours) * time.Hour)
	}
	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
		return
	}
	report, err := h.Svc.Sales(r.Context(), employeeID, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "could not build report", nil)
		return
	}
	common.Data(w, http.StatusOK, report)
}

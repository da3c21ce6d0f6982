package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// IdempotencyHeader carries the commit id of a commit request.
const IdempotencyHeader = "Idempotency-Key"

var validate = validator.New(validator.WithRequiredStructEnabled())

type linesPayload struct {
	Lines []LineInput `json:"lines" validate:"dive"`
}

type redemptionPayload struct {
	Points int64 `json:"points"`
}

// Handler exposes checkout sessions over HTTP.
type Handler struct {
	Svc *Service
	// CommitLimit wraps the commit route when set.
	CommitLimit func(http.Handler) http.Handler
}

// Routes mounts the checkout endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkouts", h.Open)
	r.Route("/checkouts/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Abandon)
		r.Put("/lines", h.SetLines)
		r.Put("/context", h.SetContext)
		r.Get("/quote", h.Quote)
		r.Post("/redemption", h.PreviewRedemption)
		r.Post("/redemption/apply", h.ApplyRedemption)
		r.Delete("/redemption", h.CancelRedemption)
		commit := http.Handler(http.HandlerFunc(h.Commit))
		if h.CommitLimit != nil {
			commit = h.CommitLimit(commit)
		}
		r.Method(http.MethodPost, "/commit", commit)
	})
}

// Open handles POST /checkouts.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.Open(r.Context(), employeeID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{"sessionId": sess.ID, "session": sess})
}

// Get handles GET /checkouts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	sess, err := h.Svc.Get(r.Context(), employeeID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// SetLines handles PUT /checkouts/{id}/lines.
func (h *Handler) SetLines(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	var payload linesPayload
	if !decode(w, r, &payload) {
		return
	}
	sess, err := h.Svc.SetLines(r.Context(), employeeID, chi.URLParam(r, "id"), payload.Lines)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// SetContext handles PUT /checkouts/{id}/context.
func (h *Handler) SetContext(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	var payload ContextInput
	if !decode(w, r, &payload) {
		return
	}
	sess, err := h.Svc.SetContext(r.Context(), employeeID, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sess)
}

// Quote handles GET /checkouts/{id}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	q, err := h.Svc.Quote(r.Context(), employeeID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// PreviewRedemption handles POST /checkouts/{id}/redemption.
func (h *Handler) PreviewRedemption(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	var payload redemptionPayload
	if !decode(w, r, &payload) {
		return
	}
	req, err := h.Svc.PreviewRedemption(r.Context(), employeeID, chi.URLParam(r, "id"), payload.Points)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, req)
}

// ApplyRedemption handles POST /checkouts/{id}/redemption/apply.
func (h *Handler) ApplyRedemption(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	req, err := h.Svc.ApplyRedemption(r.Context(), employeeID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, req)
}

// CancelRedemption handles DELETE /checkouts/{id}/redemption.
func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	if _, err := h.Svc.CancelRedemption(r.Context(), employeeID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Commit handles POST /checkouts/{id}/commit.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	var payload CommitInput
	if !decode(w, r, &payload) {
		return
	}
	payload.CommitID = strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	sale, err := h.Svc.Commit(r.Context(), employeeID, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(IdempotencyHeader, sale.CommitID)
	common.Data(w, http.StatusCreated, sale)
}

// Abandon handles DELETE /checkouts/{id}.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := h.employee(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Abandon(r.Context(), employeeID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) employee(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	employeeID, ok := common.EmployeeID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return employeeID, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
			}
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "payload failed validation", map[string]any{"fields": fields})
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, ToAppError(err))
}

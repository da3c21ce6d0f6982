package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes the read-only menu to the register.
type Handler struct {
	Catalog Catalog
	Lister  Lister
}

// Routes mounts the menu endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/catalog/items", h.Items)
	r.Get("/catalog/items/{id}", h.Item)
}

// Items handles GET /catalog/items, optionally filtered by ?category=.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	rows, err := h.Lister.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(rows)))
	common.Data(w, http.StatusOK, rows)
}

// Item handles GET /catalog/items/{id}.
func (h *Handler) Item(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	entry, err := h.Catalog.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, entry)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "item not found", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

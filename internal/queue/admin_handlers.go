package queue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// AdminHandler exposes dead letter inspection and replay for one queue.
type AdminHandler struct {
	Inspector Inspector
	Queue     string
	PageSize  int
	Logger    zerolog.Logger
}

type deadItem struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Retried      int             `json:"retried"`
	MaxRetry     int             `json:"maxRetry"`
	LastError    string          `json:"lastError,omitempty"`
	LastFailedAt *time.Time      `json:"lastFailedAt,omitempty"`
}

type replayRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// Routes mounts the admin endpoints.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/queue/stats", h.Stats)
	r.Get("/queue/dlq", h.ListDLQ)
	r.Post("/queue/dlq/replay", h.ReplayDLQ)
}

// Stats handles GET /queue/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	stats, err := Snapshot(h.Inspector, h.Queue)
	if err != nil {
		h.Logger.Error().Err(err).Str("queue", h.Queue).Msg("queue stats failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue stats unavailable", nil)
		return
	}
	common.Data(w, http.StatusOK, stats)
}

// ListDLQ handles GET /queue/dlq?page=&limit=.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	page, limit := parsePagination(r, h.pageSize())
	tasks, err := h.Inspector.ListArchivedTasks(h.Queue, asynq.Page(page), asynq.PageSize(limit))
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		h.Logger.Error().Err(err).Str("queue", h.Queue).Msg("list archived tasks failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list dead tasks", nil)
		return
	}
	items := make([]deadItem, 0, len(tasks))
	for _, t := range tasks {
		item := deadItem{
			ID:        t.ID,
			Type:      t.Type,
			Retried:   t.Retried,
			MaxRetry:  t.MaxRetry,
			LastError: t.LastErr,
		}
		if json.Valid(t.Payload) {
			item.Payload = t.Payload
		}
		if !t.LastFailedAt.IsZero() {
			failed := t.LastFailedAt
			item.LastFailedAt = &failed
		}
		items = append(items, item)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "page": page, "limit": limit, "queue": h.Queue})
}

// ReplayDLQ handles POST /queue/dlq/replay with either a list of ids or all=true.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Inspector == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue inspector unavailable", nil)
		return
	}
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	ids := uniqueStrings(req.IDs)
	if len(ids) == 0 && !req.All {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or all required", nil)
		return
	}

	if req.All {
		n, err := h.Inspector.RunAllArchivedTasks(h.Queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			h.Logger.Error().Err(err).Str("queue", h.Queue).Msg("replay all failed")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "replay failed", nil)
			return
		}
		h.Logger.Info().Str("queue", h.Queue).Int("replayed", n).Msg("dead tasks replayed")
		common.JSON(w, http.StatusOK, map[string]any{"replayed": n})
		return
	}

	replayed := make([]string, 0, len(ids))
	failed := make(map[string]string)
	for _, id := range ids {
		if err := h.Inspector.RunTask(h.Queue, id); err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				failed[id] = "not found"
			} else {
				failed[id] = err.Error()
			}
			continue
		}
		replayed = append(replayed, id)
	}
	h.Logger.Info().Str("queue", h.Queue).Int("replayed", len(replayed)).Int("failed", len(failed)).Msg("dead tasks replayed")
	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

func parsePagination(r *http.Request, fallback int) (page, limit int) {
	page, limit = 1, fallback
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	return page, limit
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/risk"
	"github.com/hed1ad/accessguard/pkg/store"
)

// History is the read side of the run store.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetReport(ctx context.Context, runID string) (*risk.Report, error)
	EntityHistory(ctx context.Context, entityID string, limit int) ([]store.EntityScore, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *Service
	history History
	version string
	log     *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, history History, version string, log *zap.Logger) *Handler {
	return &Handler{svc: svc, history: history, version: version, log: log}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// LatestReport handles GET /reports/latest.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Latest()
	if report == nil {
		writeError(w, http.StatusNotFound, "no completed run yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// TriggerRun handles POST /runs by running the pipeline now.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunOnce(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errorutil.KindOf(err) != 0 {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// ListRuns handles GET /runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.history.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}

	report, err := h.history.GetReport(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.log.Error("get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// EntityHistory handles GET /entities/{id}/history.
func (h *Handler) EntityHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	scores, err := h.history.EntityHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.log.Error("entity history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load entity history")
		return
	}
	if scores == nil {
		scores = []store.EntityScore{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 20, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

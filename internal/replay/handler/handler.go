// Package handler exposes read-only replay queries for operator dashboards.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Ohseho81/autus-sub014/internal/replay"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
	"github.com/Ohseho81/autus-sub014/pkg/platform/httputil"
)

type Handler struct {
	engine *replay.Engine
	logger *slog.Logger
}

func New(engine *replay.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/entities/{entityID}", h.handleEntityState)
	r.Get("/risk", h.handleRisk)
	r.Get("/states", h.handleDistribution)
	return r
}

func (h *Handler) handleEntityState(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	state, err := h.engine.ReplayEntity(r.Context(), entityID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "replay entity failed", "error", err, "entity_id", entityID)
		httputil.WriteError(w, err)
		return
	}
	if state == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no events recorded for entity"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

func (h *Handler) handleRisk(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	entities, err := h.engine.EntitiesByRisk(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "risk query failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (h *Handler) handleDistribution(w http.ResponseWriter, r *http.Request) {
	distribution, err := h.engine.StateDistribution(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "state distribution failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, distribution)
}

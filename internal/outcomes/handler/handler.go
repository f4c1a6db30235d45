// Package handler exposes the outcome ingestion and policy evaluation
// endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ohseho81/autus-sub014/internal/outcomes"
	"github.com/Ohseho81/autus-sub014/internal/platform/middleware"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
	"github.com/Ohseho81/autus-sub014/pkg/platform/httputil"
)

type Handler struct {
	service  *outcomes.Service
	assessor *outcomes.Assessor
	logger   *slog.Logger
}

func New(service *outcomes.Service, assessor *outcomes.Assessor, logger *slog.Logger) *Handler {
	return &Handler{service: service, assessor: assessor, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleIngest)
	r.Post("/shadow-requests", h.handleShadow)
	r.Get("/entities/{entityID}/assessment", h.handleAssessment)
	return r
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req outcomes.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid outcome payload"))
		return
	}

	result, err := h.service.Ingest(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "outcome ingest failed",
			"error", err,
			"entity_id", req.EntityID,
			"outcome_type", req.OutcomeType,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleShadow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req outcomes.ShadowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid shadow request payload"))
		return
	}

	decision, err := h.service.EvaluateShadow(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "shadow evaluation failed",
			"error", err,
			"category", req.Category,
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entityID")

	assessment, err := h.assessor.Assess(ctx, entityID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "assessment failed", "error", err, "entity_id", entityID)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, assessment)
}

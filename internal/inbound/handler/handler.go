// Package handler exposes the gateway callback endpoint.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ohseho81/autus-sub014/internal/inbound"
	"github.com/Ohseho81/autus-sub014/internal/platform/middleware"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
	"github.com/Ohseho81/autus-sub014/pkg/platform/httputil"
)

type Handler struct {
	service   *inbound.Service
	validator middleware.TokenValidator
	logger    *slog.Logger
}

func New(service *inbound.Service, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, logger: logger}
}

// Routes mounts the callback endpoint behind gateway token auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireGateway(h.validator, h.logger))
	r.Post("/callbacks/gateway", h.handleCallback)
	return r
}

type callbackResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cb inbound.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid callback payload"))
		return
	}

	result, err := h.service.Handle(ctx, cb)
	if err != nil {
		h.logger.ErrorContext(ctx, "callback handling failed",
			"error", err,
			"message_id", cb.MessageID,
			"gateway_id", middleware.GetGatewayID(ctx),
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}
	httputil.WriteJSON(w, http.StatusOK, callbackResponse{Status: status})
}

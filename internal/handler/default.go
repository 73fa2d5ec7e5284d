package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/response"
)

// HealthChecker probes a downstream dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HomeHandler serves basic root and health endpoints.
type HomeHandler struct {
	provider HealthChecker
}

// NewHomeHandler returns a new HomeHandler reporting the provider's reachability.
func NewHomeHandler(provider HealthChecker) *HomeHandler {
	return &HomeHandler{provider: provider}
}

// Index godoc
// @Summary     Welcome endpoint
// @Description Simple root endpoint that returns a welcome message.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.WelcomeResponse
// @Router      / [get]
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	payload := response.WelcomePayload{
		Message: "Welcome to the outreach campaign messaging API",
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

// Health godoc
// @Summary     Health check
// @Description Reports that the API is running and whether the messaging provider is reachable.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.HealthResponse
// @Router      /health [get]
func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	payload := response.HealthPayload{
		Status:   "ok",
		Provider: "connected",
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.provider.Health(ctx); err != nil {
		payload.Provider = "unreachable"
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

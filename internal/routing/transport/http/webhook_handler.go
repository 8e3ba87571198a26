package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/textroute/smsrouter/internal/routing/app"
)

// ConfirmationHandler applies a provider delivery report to the matching
// outbound record. The retry scheduler implements it.
type ConfirmationHandler interface {
	HandleDeliveryConfirmation(ctx context.Context, providerMessageID, status string) (bool, error)
}

type WebhookHandler struct {
	engine        *app.RoutingEngine
	confirmations ConfirmationHandler
	logger        *slog.Logger
	validate      *validator.Validate
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(engine *app.RoutingEngine, confirmations ConfirmationHandler, logger *slog.Logger, validate *validator.Validate) *WebhookHandler {
	return &WebhookHandler{
		engine:        engine,
		confirmations: confirmations,
		logger:        logger.With("handler", "webhook"),
		validate:      validate,
	}
}

// HandleInboundMessage handles an inbound message callback from the SMS
// provider and responds with the reply segments to send back.
func (h *WebhookHandler) HandleInboundMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req InboundMessageRequest
	if !h.decodeAndValidate(w, r, logger, &req) {
		return
	}

	logger.InfoContext(ctx, "Received inbound message", "from", req.From, "length", len(req.Body))

	reply := h.engine.RouteInbound(ctx, req.From, req.Body)
	respondWithJSON(w, http.StatusOK, InboundMessageResponse{Segments: reply.Segments})
}

// HandleDeliveryConfirmation handles a DLR (delivery report) callback from
// the SMS provider.
func (h *WebhookHandler) HandleDeliveryConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req DeliveryConfirmationRequest
	if !h.decodeAndValidate(w, r, logger, &req) {
		return
	}

	logger.InfoContext(ctx, "Received delivery confirmation",
		"provider_message_id", req.ProviderMessageID, "status", req.Status)

	matched, err := h.confirmations.HandleDeliveryConfirmation(ctx, req.ProviderMessageID, req.Status)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to apply delivery confirmation",
			"provider_message_id", req.ProviderMessageID, "error", err)
		http.Error(w, "Failed to process delivery confirmation", http.StatusInternalServerError)
		return
	}
	if !matched {
		logger.WarnContext(ctx, "Delivery confirmation for unknown message",
			"provider_message_id", req.ProviderMessageID)
	}

	respondWithJSON(w, http.StatusAccepted, map[string]bool{"matched": matched})
}

// HandleSendMessage handles an internal request to send an outbound message.
func (h *WebhookHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendMessageRequest
	if !h.decodeAndValidate(w, r, logger, &req) {
		return
	}

	accepted := h.engine.SendOutbound(ctx, req.To, req.Message, req.UserID)
	status := http.StatusAccepted
	if !accepted {
		// The message was either rejected outright or handed to the retry
		// scheduler; either way it was not accepted on first attempt.
		status = http.StatusBadGateway
	}
	respondWithJSON(w, status, map[string]bool{"accepted": accepted})
}

// HandleHealth reports service health.
func (h *WebhookHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.engine.HealthCheck(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, status)
}

// HandleStats reports routing statistics.
func (h *WebhookHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.GetStats(r.Context()))
}

func (h *WebhookHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read request body", "error", err)
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		logger.WarnContext(ctx, "Failed to decode request JSON", "error", err)
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return false
	}

	if err := h.validate.StructCtx(ctx, dst); err != nil {
		logger.WarnContext(ctx, "Request validation failed", "error", err)
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

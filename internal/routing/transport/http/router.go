package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the service router: provider webhooks, the internal send
// endpoint, and the operational endpoints.
func NewRouter(handler *WebhookHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(PrometheusMetricsMiddleware)

	r.Route("/webhooks", func(wr chi.Router) {
		wr.Post("/inbound", handler.HandleInboundMessage)
		wr.Post("/dlr", handler.HandleDeliveryConfirmation)
	})

	r.Post("/messages/send", handler.HandleSendMessage)

	r.Get("/health", handler.HandleHealth)
	r.Get("/stats", handler.HandleStats)

	return r
}

// Package agent adapts the external conversational responder.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// Responder turns a cleaned inbound message into reply text.
type Responder interface {
	Respond(ctx context.Context, cleanedText string, ident domain.Identity) (string, error)
}

// HTTPResponder calls the responder service over HTTP.
type HTTPResponder struct {
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPResponder creates an HTTPResponder against baseURL with the given
// request timeout. token, when non-empty, is sent as a bearer credential.
func NewHTTPResponder(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPResponder {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPResponder{
		client: client,
		logger: logger.With("component", "agent_responder"),
	}
}

type respondRequest struct {
	Message string          `json:"message"`
	User    domain.Identity `json:"user"`
}

type respondResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// Respond sends the cleaned text and identity to the responder and returns
// its reply text. Timeouts and non-2xx answers surface as errors; the caller
// converts them into the generic error reply.
func (r *HTTPResponder) Respond(ctx context.Context, cleanedText string, ident domain.Identity) (string, error) {
	var out respondResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(respondRequest{Message: cleanedText, User: ident}).
		SetResult(&out).
		Post("")
	if err != nil {
		return "", fmt.Errorf("agent request failed: %w", err)
	}
	if resp.IsError() {
		r.logger.ErrorContext(ctx, "Agent returned error status",
			"status", resp.StatusCode(), "body", string(resp.Body()))
		return "", fmt.Errorf("agent returned status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("agent error: %s", out.Error)
	}
	return out.Reply, nil
}

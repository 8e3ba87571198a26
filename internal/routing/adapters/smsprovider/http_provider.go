package smsprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// HTTPProvider sends messages to the SMS gateway's JSON API.
type HTTPProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	senderID   string
}

// NewHTTPProvider creates an HTTPProvider. A nil httpClient gets a default
// with a 10s timeout.
func NewHTTPProvider(logger *slog.Logger, apiURL, apiKey, senderID string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{
		logger:     logger.With("provider", "http_gateway"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		senderID:   senderID,
	}
}

type sendRequestBody struct {
	Sender     string   `json:"sender"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

type sendResponseBody struct {
	MessageID string `json:"message_id"`
	Status    int    `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (p *HTTPProvider) Name() string { return "http_gateway" }

// Send submits one message. Gateway rejections and transport failures are
// returned as *domain.ProviderError carrying the classifiable code.
func (p *HTTPProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	reqBytes, err := json.Marshal(sendRequestBody{
		Sender:     p.senderID,
		Body:       req.Body,
		Recipients: []string{req.To},
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to create provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// Transport-level failure: surface as a provider-unavailable code so
		// the classifier schedules a retry.
		return SendResult{}, &domain.ProviderError{Code: "20503", Message: err.Error()}
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return SendResult{}, &domain.ProviderError{Code: "20503", Message: "failed to read provider response: " + err.Error()}
	}

	var resp sendResponseBody
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		p.logger.ErrorContext(ctx, "Unparseable provider response",
			"status_code", httpResp.StatusCode, "body", string(respBytes))
		return SendResult{}, &domain.ProviderError{
			Code:    strconv.Itoa(httpResp.StatusCode),
			Message: "unparseable provider response",
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || resp.ErrorCode != "" {
		code := resp.ErrorCode
		if code == "" {
			code = strconv.Itoa(httpResp.StatusCode)
		}
		p.logger.WarnContext(ctx, "Provider rejected send",
			"recipient", req.To, "error_code", code, "message", resp.Message)
		return SendResult{}, &domain.ProviderError{Code: code, Message: resp.Message}
	}

	p.logger.DebugContext(ctx, "Provider accepted send",
		"recipient", req.To, "provider_message_id", resp.MessageID)
	return SendResult{ProviderMessageID: resp.MessageID}, nil
}

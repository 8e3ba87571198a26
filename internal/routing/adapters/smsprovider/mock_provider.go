package smsprovider

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

// MockProvider is an in-memory Adapter for development and tests. It accepts
// every send unless a failure is injected for the recipient.
type MockProvider struct {
	logger *slog.Logger

	mu       sync.Mutex
	failures map[string]*domain.ProviderError
	sent     []SendRequest
}

// NewMockProvider creates a MockProvider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger:   logger.With("provider", "mock"),
		failures: make(map[string]*domain.ProviderError),
	}
}

func (p *MockProvider) Name() string { return "mock" }

// FailNext makes every send to recipient fail with the given code until cleared.
func (p *MockProvider) FailNext(recipient, code, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[recipient] = &domain.ProviderError{Code: code, Message: message}
}

// ClearFailure removes an injected failure.
func (p *MockProvider) ClearFailure(recipient string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, recipient)
}

// Sent returns a copy of all accepted requests.
func (p *MockProvider) Sent() []SendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SendRequest, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *MockProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pe, ok := p.failures[req.To]; ok {
		p.logger.DebugContext(ctx, "Mock provider failing send", "recipient", req.To, "code", pe.Code)
		return SendResult{}, pe
	}

	p.sent = append(p.sent, req)
	id := "mock-" + uuid.NewString()
	p.logger.DebugContext(ctx, "Mock provider accepted send", "recipient", req.To, "provider_message_id", id)
	return SendResult{ProviderMessageID: id}, nil
}

// Package smsprovider adapts the outbound SMS gateway contract.
package smsprovider

import "context"

// SendRequest carries one outbound message to the gateway.
type SendRequest struct {
	To   string
	Body string
}

// SendResult is the gateway's acceptance of a message.
type SendResult struct {
	ProviderMessageID string
}

// Adapter is the outbound send contract. Failures carry the provider's error
// code via *domain.ProviderError so they can be classified for retry.
type Adapter interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	Name() string
}

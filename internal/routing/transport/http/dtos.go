package http

// InboundMessageRequest is the provider webhook payload for a received message.
type InboundMessageRequest struct {
	From string `json:"from" validate:"required"`
	Body string `json:"body"`
}

// InboundMessageResponse carries the reply segments for the sender.
type InboundMessageResponse struct {
	Segments []string `json:"segments"`
}

// DeliveryConfirmationRequest is the provider webhook payload for a delivery report.
type DeliveryConfirmationRequest struct {
	ProviderMessageID string `json:"provider_message_id" validate:"required"`
	Status            string `json:"status" validate:"required"`
}

// SendMessageRequest is the internal API payload for an outbound send.
type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
	UserID  string `json:"user_id"`
}

package domain

import "time"

// InboundMessage is one webhook invocation's payload. Ephemeral: created per
// invocation and consumed within a single routing call.
type InboundMessage struct {
	FromPhone  string
	Body       string
	ReceivedAt time.Time
}

// Command is an instruction extracted from the leading part of a message,
// e.g. "/help" or "status: verbose".
type Command struct {
	Name string
	Args string
}

// ProcessedMessage is the deterministic result of cleaning and scoring one
// inbound message. Never persisted.
type ProcessedMessage struct {
	CleanedText string
	SpamScore   float64
	IsSpam      bool
	IsEmpty     bool
	Command     *Command
	// Content is the text to hand to the responder: a built-in command reply
	// when one matched, otherwise CleanedText unchanged.
	Content string
	// BuiltinReply is true when Content is already a final reply and the
	// external responder must not be invoked.
	BuiltinReply bool
}

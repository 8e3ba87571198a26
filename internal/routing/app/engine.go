// Package app orchestrates inbound routing and outbound sending.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/textroute/smsrouter/internal/routing/adapters/smsprovider"
	"github.com/textroute/smsrouter/internal/routing/domain"
	"github.com/textroute/smsrouter/internal/routing/formatter"
	"github.com/textroute/smsrouter/internal/routing/identity"
	"github.com/textroute/smsrouter/internal/routing/phone"
	"github.com/textroute/smsrouter/internal/routing/processor"
)

// IdentityResolver resolves raw phone strings to identities.
type IdentityResolver interface {
	Resolve(ctx context.Context, rawPhone string) (domain.Identity, error)
	Stats() identity.StoreStats
}

// Responder is the external agent contract.
type Responder interface {
	Respond(ctx context.Context, cleanedText string, ident domain.Identity) (string, error)
}

// RetryQueue is the slice of the retry scheduler the engine needs.
type RetryQueue interface {
	QueueForRetry(ctx context.Context, recordID, errorCode, errorMessage string) (bool, error)
}

// Reply is the formatted response to one inbound message: one or more
// wire-sized segments.
type Reply struct {
	Segments []string `json:"segments"`
}

// HealthStatus is the operational health summary.
type HealthStatus struct {
	Status     string       `json:"status"`   // "healthy" or "degraded"
	Database   string       `json:"database"` // "healthy" or "unhealthy: <reason>"
	Statistics RoutingStats `json:"statistics"`
}

// RoutingStats aggregates in-memory counters and recent store activity.
type RoutingStats struct {
	TotalProcessed  int64                `json:"total_processed"`
	Successful      int64                `json:"successful"`
	Failed          int64                `json:"failed"`
	AvgProcessingMs float64              `json:"avg_processing_ms"`
	Recent          domain.ActivityStats `json:"recent"`
	Cache           identity.StoreStats  `json:"cache"`
}

// RoutingEngine sequences identity resolution, filtering, response generation
// and formatting for inbound messages, and dispatch plus retry hand-off for
// outbound sends. Safe for concurrent use; running totals are atomics.
type RoutingEngine struct {
	resolver   IdentityResolver
	normalizer *phone.Normalizer
	processor  *processor.Processor
	formatter  *formatter.Formatter
	retryQueue RetryQueue
	records    domain.DeliveryRecordRepository
	provider   smsprovider.Adapter
	responder  Responder
	logger     *slog.Logger
	now        func() time.Time

	totalProcessed atomic.Int64
	successful     atomic.Int64
	failed         atomic.Int64
	totalLatencyMs atomic.Int64
}

// NewRoutingEngine wires the engine.
func NewRoutingEngine(
	resolver IdentityResolver,
	normalizer *phone.Normalizer,
	proc *processor.Processor,
	form *formatter.Formatter,
	retryQueue RetryQueue,
	records domain.DeliveryRecordRepository,
	provider smsprovider.Adapter,
	responder Responder,
	logger *slog.Logger,
) *RoutingEngine {
	return &RoutingEngine{
		resolver:   resolver,
		normalizer: normalizer,
		processor:  proc,
		formatter:  form,
		retryQueue: retryQueue,
		records:    records,
		provider:   provider,
		responder:  responder,
		logger:     logger.With("component", "routing_engine"),
		now:        time.Now,
	}
}

// RouteInbound handles one inbound message end to end. Every branch yields a
// well-formed reply and one logged inbound delivery record; no failure
// escapes to the caller.
func (e *RoutingEngine) RouteInbound(ctx context.Context, fromPhone, body string) (reply Reply) {
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "Panic while routing inbound message", "from", fromPhone, "panic", r)
			e.logInbound(ctx, fromPhone, body, false, "internal error", start)
			inboundProcessedCounter.WithLabelValues("error").Inc()
			reply = e.singleSegment(formatter.GenericError())
		}
	}()

	ident, err := e.resolver.Resolve(ctx, fromPhone)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPhoneFormat):
			e.logger.WarnContext(ctx, "Inbound from unparseable phone", "from", fromPhone)
			e.logInbound(ctx, fromPhone, body, false, "Invalid phone number format", start)
			inboundProcessedCounter.WithLabelValues("unknown_user").Inc()
			return e.singleSegment(formatter.UnknownUser())
		case errors.Is(err, domain.ErrIdentityNotFound):
			e.logger.InfoContext(ctx, "Inbound from unregistered phone", "from", fromPhone)
			e.logInbound(ctx, fromPhone, body, false, "User not found", start)
			inboundProcessedCounter.WithLabelValues("unknown_user").Inc()
			return e.singleSegment(formatter.UnknownUser())
		default:
			e.logger.ErrorContext(ctx, "Identity resolution failed", "from", fromPhone, "error", err)
			e.logInbound(ctx, fromPhone, body, false, "Identity resolution error: "+err.Error(), start)
			inboundProcessedCounter.WithLabelValues("error").Inc()
			return e.singleSegment(formatter.GenericError())
		}
	}

	if !ident.IsActive {
		e.logger.InfoContext(ctx, "Inbound from inactive account", "user_id", ident.ID)
		e.logInbound(ctx, ident.PhoneNumber, body, false, "User inactive", start)
		inboundProcessedCounter.WithLabelValues("inactive_user").Inc()
		return e.singleSegment(formatter.InactiveUser(ident.DisplayName))
	}

	msg := e.processor.Process(body, ident)

	if msg.IsEmpty {
		e.logInbound(ctx, ident.PhoneNumber, body, false, "Empty message", start)
		inboundProcessedCounter.WithLabelValues("empty").Inc()
		return e.singleSegment(formatter.EmptyMessage())
	}

	if msg.IsSpam {
		e.logger.InfoContext(ctx, "Inbound flagged as spam",
			"user_id", ident.ID, "spam_score", msg.SpamScore)
		e.logInbound(ctx, ident.PhoneNumber, body, false, "Spam detected", start)
		inboundProcessedCounter.WithLabelValues("spam").Inc()
		return e.singleSegment(formatter.SpamDetected())
	}

	replyText := msg.Content
	if !msg.BuiltinReply {
		agentStart := time.Now()
		replyText, err = e.responder.Respond(ctx, msg.Content, ident)
		agentRequestDurationHist.Observe(time.Since(agentStart).Seconds())
		if err != nil {
			e.logger.ErrorContext(ctx, "Agent call failed", "user_id", ident.ID, "error", err)
			e.logInbound(ctx, ident.PhoneNumber, body, false, "Agent failure: "+err.Error(), start)
			inboundProcessedCounter.WithLabelValues("error").Inc()
			return e.singleSegment(formatter.GenericError())
		}
	}

	segments := e.formatter.Format(replyText)
	segmentsProducedCounter.Add(float64(len(segments)))

	e.logInbound(ctx, ident.PhoneNumber, body, true, "", start)
	inboundProcessedCounter.WithLabelValues("answered").Inc()
	return Reply{Segments: segments}
}

// SendOutbound dispatches one message through the provider, logs the outbound
// record, and hands classified-retryable failures to the retry queue.
// Returns true when the provider accepted the message.
func (e *RoutingEngine) SendOutbound(ctx context.Context, toPhone, message, userID string) bool {
	normalized, err := e.normalizer.Normalize(toPhone)
	if err != nil {
		e.logger.WarnContext(ctx, "Outbound to unparseable phone", "to", toPhone, "user_id", userID)
		return false
	}

	rec := &domain.DeliveryRecord{
		PhoneNumber: normalized,
		Direction:   domain.DirectionOutbound,
		Content:     message,
	}

	providerStart := time.Now()
	res, sendErr := e.provider.Send(ctx, smsprovider.SendRequest{To: normalized, Body: message})
	providerRequestDurationHist.Observe(time.Since(providerStart).Seconds())

	if sendErr == nil {
		rec.Success = true
		rec.ProviderMessageID = &res.ProviderMessageID
		rec.FinalStatus = domain.FinalStatusSent
		if err := e.records.Create(ctx, rec); err != nil {
			e.logger.ErrorContext(ctx, "Failed to log outbound record", "to", normalized, "error", err)
		}
		outboundSentCounter.WithLabelValues("success").Inc()
		e.logger.InfoContext(ctx, "Outbound message sent",
			"to", normalized, "user_id", userID, "provider_message_id", res.ProviderMessageID)
		return true
	}

	code := "unknown"
	errMsg := sendErr.Error()
	if pe, ok := domain.AsProviderError(sendErr); ok {
		code = pe.Code
		errMsg = pe.Message
	}
	rec.ErrorCode = &code
	rec.ErrorMessage = &errMsg

	if err := e.records.Create(ctx, rec); err != nil {
		e.logger.ErrorContext(ctx, "Failed to log failed outbound record", "to", normalized, "error", err)
		outboundSentCounter.WithLabelValues("failed").Inc()
		return false
	}

	queued, qErr := e.retryQueue.QueueForRetry(ctx, rec.ID, code, errMsg)
	if qErr != nil {
		e.logger.ErrorContext(ctx, "Failed to queue outbound for retry", "record_id", rec.ID, "error", qErr)
	}
	if queued {
		outboundSentCounter.WithLabelValues("queued_for_retry").Inc()
	} else {
		outboundSentCounter.WithLabelValues("failed").Inc()
	}
	e.logger.WarnContext(ctx, "Outbound send failed",
		"to", normalized, "user_id", userID, "error_code", code, "queued_for_retry", queued)
	return false
}

// HealthCheck reports service health: degraded when the record store is
// unreachable. Read-only.
func (e *RoutingEngine) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "healthy", Database: "healthy"}
	if err := e.records.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Database = "unhealthy: " + err.Error()
	}
	status.Statistics = e.stats(ctx)
	return status
}

// GetStats returns routing totals and recent activity. Read-only.
func (e *RoutingEngine) GetStats(ctx context.Context) RoutingStats {
	return e.stats(ctx)
}

func (e *RoutingEngine) stats(ctx context.Context) RoutingStats {
	stats := RoutingStats{
		TotalProcessed: e.totalProcessed.Load(),
		Successful:     e.successful.Load(),
		Failed:         e.failed.Load(),
		Cache:          e.resolver.Stats(),
	}
	if stats.TotalProcessed > 0 {
		stats.AvgProcessingMs = float64(e.totalLatencyMs.Load()) / float64(stats.TotalProcessed)
	}

	recent, err := e.records.RecentStats(ctx, e.now().Add(-24*time.Hour))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load recent activity stats", "error", err)
	} else {
		stats.Recent = recent
	}
	return stats
}

// logInbound writes the one inbound delivery record every routing branch
// produces, and updates the running totals.
func (e *RoutingEngine) logInbound(ctx context.Context, phoneNumber, body string, success bool, reason string, start time.Time) {
	elapsed := e.now().Sub(start).Milliseconds()

	rec := &domain.DeliveryRecord{
		PhoneNumber:      phoneNumber,
		Direction:        domain.DirectionInbound,
		Content:          body,
		Success:          success,
		ProcessingTimeMs: elapsed,
	}
	if !success && reason != "" {
		rec.ErrorMessage = &reason
	}
	if err := e.records.Create(ctx, rec); err != nil {
		e.logger.ErrorContext(ctx, "Failed to log inbound record", "phone", phoneNumber, "error", err)
	}

	e.totalProcessed.Add(1)
	e.totalLatencyMs.Add(elapsed)
	if success {
		e.successful.Add(1)
	} else {
		e.failed.Add(1)
	}
}

func (e *RoutingEngine) singleSegment(text string) Reply {
	return Reply{Segments: []string{text}}
}

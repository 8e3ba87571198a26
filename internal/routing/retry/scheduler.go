package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/textroute/smsrouter/internal/routing/adapters/smsprovider"
	"github.com/textroute/smsrouter/internal/routing/domain"
)

var (
	sweepRecordsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "routing",
			Name:      "retry_sweep_records_total",
			Help:      "Retry sweep outcomes per record.",
		},
		[]string{"outcome"}, // "sent", "rescheduled", "exhausted"
	)
	sweepDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "routing",
			Name:      "retry_sweep_duration_seconds",
			Help:      "Duration of one retry sweep.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

const (
	// DefaultBatchSize bounds how many records one sweep claims.
	DefaultBatchSize = 50
	// DefaultClaimTTL is how long a claim marks a record in-flight before a
	// recovery sweep may re-claim it.
	DefaultClaimTTL = 5 * time.Minute
	// fallbackBaseDelay seeds the backoff for failures whose error code has
	// no classification (legacy fixed schedule).
	fallbackBaseDelay = 60 * time.Second
)

// SweepResult summarizes one pass over the retry queue.
type SweepResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Scheduler owns the lifecycle of failed outbound sends: enqueue, batched
// sweep, backoff computation, confirmation application and stale cleanup.
// Safe to run concurrently with inbound routing and with other sweep workers;
// the repository's claim step serializes record ownership.
type Scheduler struct {
	records    domain.DeliveryRecordRepository
	provider   smsprovider.Adapter
	classifier *Classifier
	logger     *slog.Logger
	batchSize  int
	claimTTL   time.Duration
	now        func() time.Time
}

// NewScheduler creates a Scheduler. Non-positive batchSize/claimTTL fall back
// to the defaults.
func NewScheduler(
	records domain.DeliveryRecordRepository,
	provider smsprovider.Adapter,
	classifier *Classifier,
	logger *slog.Logger,
	batchSize int,
	claimTTL time.Duration,
) *Scheduler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Scheduler{
		records:    records,
		provider:   provider,
		classifier: classifier,
		logger:     logger.With("component", "retry_scheduler"),
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		now:        time.Now,
	}
}

// QueueForRetry arms retry scheduling on a failed outbound record. Returns
// false without scheduling when the error code is non-retryable; the record
// is then marked terminally failed.
func (s *Scheduler) QueueForRetry(ctx context.Context, recordID, errorCode, errorMessage string) (bool, error) {
	policy, ok := s.classifier.Policy(errorCode)
	if !ok {
		s.logger.InfoContext(ctx, "Error is not retryable, marking record failed",
			"record_id", recordID, "error_code", errorCode)
		if err := s.records.SetFinalStatus(ctx, recordID, domain.FinalStatusFailed); err != nil {
			return false, fmt.Errorf("failed to mark record %s terminal: %w", recordID, err)
		}
		return false, nil
	}

	nextRetryAt := s.now().UTC().Add(s.classifier.Delay(errorCode, 0))
	if err := s.records.ScheduleRetry(ctx, recordID, errorCode, errorMessage, policy.MaxRetries, nextRetryAt); err != nil {
		return false, fmt.Errorf("failed to schedule retry for record %s: %w", recordID, err)
	}

	s.logger.InfoContext(ctx, "Queued record for retry",
		"record_id", recordID,
		"error_code", errorCode,
		"strategy", string(policy.Strategy),
		"max_retries", policy.MaxRetries,
		"next_retry_at", nextRetryAt.Format(time.RFC3339),
	)
	return true, nil
}

// ProcessRetryQueue claims a batch of due records and re-attempts delivery.
// On failure the next delay follows the error's classified strategy; records
// whose budget is exhausted become terminally failed.
func (s *Scheduler) ProcessRetryQueue(ctx context.Context) (SweepResult, error) {
	start := s.now()
	defer func() { sweepDurationHist.Observe(time.Since(start).Seconds()) }()

	var result SweepResult

	claimed, err := s.records.ClaimDueRetries(ctx, s.now().UTC(), s.batchSize, s.claimTTL)
	if err != nil {
		return result, fmt.Errorf("failed to claim due retries: %w", err)
	}
	if len(claimed) == 0 {
		s.logger.DebugContext(ctx, "No due retries in this sweep")
		return result, nil
	}

	s.logger.InfoContext(ctx, "Processing retry batch", "count", len(claimed))

	for _, rec := range claimed {
		// Re-check right before sending: a concurrent confirmation may have
		// resolved this record after the claim.
		if rec.Success {
			continue
		}
		result.Processed++

		sendRes, sendErr := s.provider.Send(ctx, smsprovider.SendRequest{To: rec.PhoneNumber, Body: rec.Content})
		if sendErr == nil {
			if err := s.records.MarkSent(ctx, rec.ID, sendRes.ProviderMessageID); err != nil {
				s.logger.ErrorContext(ctx, "Retry send succeeded but record update failed",
					"record_id", rec.ID, "error", err)
				result.Failed++
				continue
			}
			result.Successful++
			sweepRecordsCounter.WithLabelValues("sent").Inc()
			s.logger.InfoContext(ctx, "Retry send succeeded",
				"record_id", rec.ID, "provider_message_id", sendRes.ProviderMessageID, "attempt", rec.RetryCount+1)
			continue
		}

		result.Failed++
		code, message := errorCodeOf(sendErr)
		newCount := rec.RetryCount + 1
		terminal := newCount >= rec.MaxRetries

		var nextRetryAt *time.Time
		if terminal {
			sweepRecordsCounter.WithLabelValues("exhausted").Inc()
			s.logger.WarnContext(ctx, "Retry budget exhausted, marking record failed",
				"record_id", rec.ID, "retry_count", newCount, "max_retries", rec.MaxRetries, "error_code", code)
		} else {
			t := s.now().UTC().Add(s.nextDelay(code, newCount))
			nextRetryAt = &t
			sweepRecordsCounter.WithLabelValues("rescheduled").Inc()
			s.logger.InfoContext(ctx, "Retry send failed, rescheduling",
				"record_id", rec.ID, "retry_count", newCount, "error_code", code,
				"next_retry_at", t.Format(time.RFC3339))
		}

		if err := s.records.RecordFailure(ctx, rec.ID, code, message, nextRetryAt, terminal); err != nil {
			s.logger.ErrorContext(ctx, "Failed to persist retry failure", "record_id", rec.ID, "error", err)
		}
	}

	return result, nil
}

// nextDelay follows the classified strategy for code; unknown codes fall back
// to the fixed exponential schedule seeded at 60s.
func (s *Scheduler) nextDelay(code string, attemptIndex int) time.Duration {
	if s.classifier.IsRetryable(code) {
		return s.classifier.Delay(code, attemptIndex)
	}
	shift := attemptIndex - 1
	if shift < 0 {
		shift = 0
	}
	return fallbackBaseDelay * time.Duration(1<<uint(shift))
}

// HandleDeliveryConfirmation applies a provider delivery-status callback to
// the matching record. Returns false when no record matches.
func (s *Scheduler) HandleDeliveryConfirmation(ctx context.Context, providerMessageID, status string) (bool, error) {
	rec, err := s.records.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			s.logger.WarnContext(ctx, "Delivery confirmation for unknown message",
				"provider_message_id", providerMessageID, "status", status)
			return false, nil
		}
		return false, fmt.Errorf("failed to look up record for confirmation: %w", err)
	}

	final := mapConfirmationStatus(status)
	if err := s.records.SetFinalStatus(ctx, rec.ID, final); err != nil {
		return false, fmt.Errorf("failed to apply confirmation to record %s: %w", rec.ID, err)
	}

	s.logger.InfoContext(ctx, "Applied delivery confirmation",
		"record_id", rec.ID, "provider_message_id", providerMessageID, "final_status", string(final))
	return true, nil
}

func mapConfirmationStatus(status string) domain.FinalStatus {
	switch status {
	case "delivered":
		return domain.FinalStatusDelivered
	case "sent", "accepted":
		return domain.FinalStatusSent
	case "failed", "undelivered", "rejected", "expired":
		return domain.FinalStatusFailed
	default:
		return domain.FinalStatusUnknown
	}
}

// CleanupOldRetries clears scheduling on unresolved records older than the
// given age (default 7 days when zero), forcing them to failed. Returns the
// number of records cleared.
func (s *Scheduler) CleanupOldRetries(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = 7 * 24 * time.Hour
	}
	cutoff := s.now().UTC().Add(-olderThan)

	count, err := s.records.ClearStaleSchedules(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear stale retry schedules: %w", err)
	}
	if count > 0 {
		s.logger.InfoContext(ctx, "Cleared stale retry schedules", "count", count, "cutoff", cutoff.Format(time.RFC3339))
	}
	return count, nil
}

// Run sweeps the retry queue on every tick of interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Retry sweep started", "interval", interval.String(), "batch_size", s.batchSize)
	for {
		select {
		case <-ticker.C:
			res, err := s.ProcessRetryQueue(ctx)
			if err != nil {
				s.logger.Error("Retry sweep failed", "error", err)
				continue
			}
			if res.Processed > 0 {
				s.logger.Info("Retry sweep finished",
					"processed", res.Processed, "successful", res.Successful, "failed", res.Failed)
			}
		case <-ctx.Done():
			s.logger.Info("Retry sweep stopping")
			return ctx.Err()
		}
	}
}

func errorCodeOf(err error) (code, message string) {
	if pe, ok := domain.AsProviderError(err); ok {
		return pe.Code, pe.Message
	}
	return "unknown", err.Error()
}

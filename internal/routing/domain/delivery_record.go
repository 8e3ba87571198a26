package domain

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"
)

// Direction marks whether a delivery record describes a received or a sent message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Value implements driver.Valuer for Direction.
func (d Direction) Value() (driver.Value, error) { return string(d), nil }

// Scan implements sql.Scanner for Direction.
func (d *Direction) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return fmt.Errorf("failed to scan Direction: %w", err)
	}
	*d = Direction(s)
	switch *d {
	case DirectionInbound, DirectionOutbound:
		return nil
	default:
		return fmt.Errorf("unknown Direction value: %s", s)
	}
}

// FinalStatus is the terminal delivery state of an outbound record as confirmed
// by the provider, or "unknown" while no confirmation has arrived.
type FinalStatus string

const (
	FinalStatusSent      FinalStatus = "sent"
	FinalStatusDelivered FinalStatus = "delivered"
	FinalStatusFailed    FinalStatus = "failed"
	FinalStatusUnknown   FinalStatus = "unknown"
)

// Value implements driver.Valuer for FinalStatus.
func (fs FinalStatus) Value() (driver.Value, error) { return string(fs), nil }

// Scan implements sql.Scanner for FinalStatus.
func (fs *FinalStatus) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return fmt.Errorf("failed to scan FinalStatus: %w", err)
	}
	*fs = FinalStatus(s)
	switch *fs {
	case FinalStatusSent, FinalStatusDelivered, FinalStatusFailed, FinalStatusUnknown:
		return nil
	default:
		return fmt.Errorf("unknown FinalStatus value: %s", s)
	}
}

func scanEnumString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("value is not string or []byte, it is %T", value)
	}
}

// DeliveryRecord is the durable unit of message usage and retry state. Created
// at send time (outbound) or webhook-receipt time (inbound); mutated by the
// retry scheduler on each attempt and by delivery confirmations; never deleted.
type DeliveryRecord struct {
	ID                string      `json:"id"` // UUID
	PhoneNumber       string      `json:"phone_number"`
	Direction         Direction   `json:"direction"`
	Content           string      `json:"content"`
	Length            int         `json:"length"`
	Success           bool        `json:"success"`
	ProcessingTimeMs  int64       `json:"processing_time_ms"`
	ErrorCode         *string     `json:"error_code,omitempty"`
	ErrorMessage      *string     `json:"error_message,omitempty"`
	ProviderMessageID *string     `json:"provider_message_id,omitempty"`
	RetryCount        int         `json:"retry_count"`
	MaxRetries        int         `json:"max_retries"`
	NextRetryAt       *time.Time  `json:"next_retry_at,omitempty"`
	ClaimedAt         *time.Time  `json:"claimed_at,omitempty"`
	FinalStatus       FinalStatus `json:"final_status"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Eligible reports whether the record can still be swept for a retry.
// NextRetryAt is non-nil exactly when this holds.
func (r *DeliveryRecord) Eligible() bool {
	return !r.Success && r.RetryCount < r.MaxRetries && r.NextRetryAt != nil
}

// ActivityStats summarizes recent delivery records for the operational surface.
type ActivityStats struct {
	InboundCount    int64   `json:"inbound_count"`
	OutboundCount   int64   `json:"outbound_count"`
	FailedCount     int64   `json:"failed_count"`
	PendingRetries  int64   `json:"pending_retries"`
	AvgProcessingMs float64 `json:"avg_processing_ms"`
	WindowHours     int     `json:"window_hours"`
}

// DeliveryRecordRepository is the single source of truth for retry state.
// ClaimDueRetries must atomically select-and-mark so concurrent sweeps never
// double-claim a record.
type DeliveryRecordRepository interface {
	Create(ctx context.Context, rec *DeliveryRecord) error
	GetByID(ctx context.Context, id string) (*DeliveryRecord, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*DeliveryRecord, error)

	// ScheduleRetry arms the retry-scheduling fields on a failed record.
	ScheduleRetry(ctx context.Context, id, errorCode, errorMessage string, maxRetries int, nextRetryAt time.Time) error

	// ClaimDueRetries selects up to limit unclaimed records with
	// success=false, retry_count < max_retries and next_retry_at <= now,
	// stamps claimed_at and returns them. Records whose previous claim is
	// younger than claimTTL are skipped (in-flight elsewhere).
	ClaimDueRetries(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*DeliveryRecord, error)

	// MarkSent records a successful provider send and clears scheduling.
	MarkSent(ctx context.Context, id, providerMessageID string) error

	// RecordFailure increments retry_count, stores the error, and either
	// re-arms next_retry_at or (terminal) clears scheduling and sets
	// final_status=failed.
	RecordFailure(ctx context.Context, id, errorCode, errorMessage string, nextRetryAt *time.Time, terminal bool) error

	// SetFinalStatus applies a delivery confirmation by record ID.
	SetFinalStatus(ctx context.Context, id string, status FinalStatus) error

	// ClearStaleSchedules clears next_retry_at on unresolved records created
	// before cutoff, forcing them to failed. Returns the number cleared.
	ClearStaleSchedules(ctx context.Context, cutoff time.Time) (int, error)

	RecentStats(ctx context.Context, since time.Time) (ActivityStats, error)
	Ping(ctx context.Context) error
}

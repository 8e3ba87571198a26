// Package postgres implements the delivery-record store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textroute/smsrouter/internal/routing/domain"
)

const recordColumns = `
	id, phone_number, direction, content, length, success, processing_time_ms,
	error_code, error_message, provider_message_id, retry_count, max_retries,
	next_retry_at, claimed_at, final_status, created_at`

type deliveryRecordRepository struct {
	db *pgxpool.Pool
}

// NewDeliveryRecordRepository creates the PostgreSQL-backed record store.
func NewDeliveryRecordRepository(db *pgxpool.Pool) domain.DeliveryRecordRepository {
	return &deliveryRecordRepository{db: db}
}

func (r *deliveryRecordRepository) Create(ctx context.Context, rec *domain.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.FinalStatus == "" {
		rec.FinalStatus = domain.FinalStatusUnknown
	}
	rec.Length = len(rec.Content)

	query := `
		INSERT INTO delivery_records (
			id, phone_number, direction, content, length, success, processing_time_ms,
			error_code, error_message, provider_message_id, retry_count, max_retries,
			next_retry_at, claimed_at, final_status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.PhoneNumber, rec.Direction, rec.Content, rec.Length, rec.Success, rec.ProcessingTimeMs,
		rec.ErrorCode, rec.ErrorMessage, rec.ProviderMessageID, rec.RetryCount, rec.MaxRetries,
		rec.NextRetryAt, rec.ClaimedAt, rec.FinalStatus, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{}
	err := row.Scan(
		&rec.ID, &rec.PhoneNumber, &rec.Direction, &rec.Content, &rec.Length, &rec.Success, &rec.ProcessingTimeMs,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.ProviderMessageID, &rec.RetryCount, &rec.MaxRetries,
		&rec.NextRetryAt, &rec.ClaimedAt, &rec.FinalStatus, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *deliveryRecordRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE id = $1`
	return scanRecord(r.db.QueryRow(ctx, query, id))
}

func (r *deliveryRecordRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE provider_message_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanRecord(r.db.QueryRow(ctx, query, providerMessageID))
}

func (r *deliveryRecordRepository) ScheduleRetry(ctx context.Context, id, errorCode, errorMessage string, maxRetries int, nextRetryAt time.Time) error {
	query := `
		UPDATE delivery_records
		SET error_code = $2, error_message = $3, max_retries = $4, next_retry_at = $5, claimed_at = NULL
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, errorCode, errorMessage, maxRetries, nextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// ClaimDueRetries selects eligible records and stamps claimed_at in one
// statement so concurrent sweeps never pick up the same record.
// FOR UPDATE SKIP LOCKED keeps workers from blocking each other.
func (r *deliveryRecordRepository) ClaimDueRetries(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*domain.DeliveryRecord, error) {
	staleBefore := now.Add(-claimTTL)
	query := `
		UPDATE delivery_records
		SET claimed_at = $1
		WHERE id IN (
			SELECT id FROM delivery_records
			WHERE success = false
			  AND retry_count < max_retries
			  AND next_retry_at IS NOT NULL
			  AND next_retry_at <= $1
			  AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY next_retry_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + recordColumns

	rows, err := r.db.Query(ctx, query, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due retries: %w", err)
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		rec := &domain.DeliveryRecord{}
		err := rows.Scan(
			&rec.ID, &rec.PhoneNumber, &rec.Direction, &rec.Content, &rec.Length, &rec.Success, &rec.ProcessingTimeMs,
			&rec.ErrorCode, &rec.ErrorMessage, &rec.ProviderMessageID, &rec.RetryCount, &rec.MaxRetries,
			&rec.NextRetryAt, &rec.ClaimedAt, &rec.FinalStatus, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claimed record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *deliveryRecordRepository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	query := `
		UPDATE delivery_records
		SET success = true, provider_message_id = $2, final_status = $3,
		    next_retry_at = NULL, claimed_at = NULL, error_code = NULL, error_message = NULL
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, providerMessageID, domain.FinalStatusSent)
	if err != nil {
		return fmt.Errorf("failed to mark record sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *deliveryRecordRepository) RecordFailure(ctx context.Context, id, errorCode, errorMessage string, nextRetryAt *time.Time, terminal bool) error {
	var query string
	var err error
	var tag pgconn.CommandTag

	if terminal {
		query = `
			UPDATE delivery_records
			SET retry_count = retry_count + 1, error_code = $2, error_message = $3,
			    next_retry_at = NULL, claimed_at = NULL, final_status = $4
			WHERE id = $1
		`
		tag, err = r.db.Exec(ctx, query, id, errorCode, errorMessage, domain.FinalStatusFailed)
	} else {
		query = `
			UPDATE delivery_records
			SET retry_count = retry_count + 1, error_code = $2, error_message = $3,
			    next_retry_at = $4, claimed_at = NULL
			WHERE id = $1
		`
		tag, err = r.db.Exec(ctx, query, id, errorCode, errorMessage, nextRetryAt)
	}
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *deliveryRecordRepository) SetFinalStatus(ctx context.Context, id string, status domain.FinalStatus) error {
	query := `
		UPDATE delivery_records
		SET final_status = $2,
		    next_retry_at = CASE WHEN $2 IN ('delivered', 'failed', 'sent') THEN NULL ELSE next_retry_at END,
		    claimed_at = NULL
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to set final status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *deliveryRecordRepository) ClearStaleSchedules(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE delivery_records
		SET next_retry_at = NULL, claimed_at = NULL, final_status = $2
		WHERE next_retry_at IS NOT NULL
		  AND success = false
		  AND created_at < $1
	`
	tag, err := r.db.Exec(ctx, query, cutoff, domain.FinalStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to clear stale schedules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *deliveryRecordRepository) RecentStats(ctx context.Context, since time.Time) (domain.ActivityStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE direction = 'inbound'),
			COUNT(*) FILTER (WHERE direction = 'outbound'),
			COUNT(*) FILTER (WHERE success = false),
			COUNT(*) FILTER (WHERE next_retry_at IS NOT NULL),
			COALESCE(AVG(processing_time_ms), 0)
		FROM delivery_records
		WHERE created_at >= $1
	`
	var stats domain.ActivityStats
	err := r.db.QueryRow(ctx, query, since).Scan(
		&stats.InboundCount, &stats.OutboundCount, &stats.FailedCount,
		&stats.PendingRetries, &stats.AvgProcessingMs,
	)
	if err != nil {
		return domain.ActivityStats{}, fmt.Errorf("failed to query recent stats: %w", err)
	}
	stats.WindowHours = int(time.Since(since).Hours())
	return stats, nil
}

func (r *deliveryRecordRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

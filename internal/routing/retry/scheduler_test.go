package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/textroute/smsrouter/internal/routing/adapters/smsprovider"
	"github.com/textroute/smsrouter/internal/routing/domain"
)

// --- Mocks ---

type MockDeliveryRecordRepository struct {
	mock.Mock
}

func (m *MockDeliveryRecordRepository) Create(ctx context.Context, rec *domain.DeliveryRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDeliveryRecordRepository) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRecordRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryRecord, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRecordRepository) ScheduleRetry(ctx context.Context, id, errorCode, errorMessage string, maxRetries int, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, errorCode, errorMessage, maxRetries, nextRetryAt)
	return args.Error(0)
}

func (m *MockDeliveryRecordRepository) ClaimDueRetries(ctx context.Context, now time.Time, limit int, claimTTL time.Duration) ([]*domain.DeliveryRecord, error) {
	args := m.Called(ctx, now, limit, claimTTL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DeliveryRecord), args.Error(1)
}

func (m *MockDeliveryRecordRepository) MarkSent(ctx context.Context, id, providerMessageID string) error {
	args := m.Called(ctx, id, providerMessageID)
	return args.Error(0)
}

func (m *MockDeliveryRecordRepository) RecordFailure(ctx context.Context, id, errorCode, errorMessage string, nextRetryAt *time.Time, terminal bool) error {
	args := m.Called(ctx, id, errorCode, errorMessage, nextRetryAt, terminal)
	return args.Error(0)
}

func (m *MockDeliveryRecordRepository) SetFinalStatus(ctx context.Context, id string, status domain.FinalStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockDeliveryRecordRepository) ClearStaleSchedules(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockDeliveryRecordRepository) RecentStats(ctx context.Context, since time.Time) (domain.ActivityStats, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(domain.ActivityStats), args.Error(1)
}

func (m *MockDeliveryRecordRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockProviderAdapter struct {
	mock.Mock
}

func (m *MockProviderAdapter) Send(ctx context.Context, req smsprovider.SendRequest) (smsprovider.SendResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(smsprovider.SendResult), args.Error(1)
}

func (m *MockProviderAdapter) Name() string { return "mock" }

// --- Setup ---

var fixedNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func newTestScheduler(repo *MockDeliveryRecordRepository, provider *MockProviderAdapter) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(repo, provider, NewClassifier(), logger, 50, 5*time.Minute)
	s.now = func() time.Time { return fixedNow }
	return s
}

// --- Tests ---

func TestQueueForRetry_RetryableSchedulesFirstAttempt(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	// Exponential, base 60s: first retry at now+60s.
	repo.On("ScheduleRetry", mock.Anything, "rec-1", "30001", "queue overflow", 3, fixedNow.Add(60*time.Second)).
		Return(nil).Once()

	queued, err := s.QueueForRetry(context.Background(), "rec-1", "30001", "queue overflow")
	assert.NoError(t, err)
	assert.True(t, queued)
	repo.AssertExpectations(t)
}

func TestQueueForRetry_NonRetryableMarksTerminal(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	repo.On("SetFinalStatus", mock.Anything, "rec-2", domain.FinalStatusFailed).Return(nil).Once()

	queued, err := s.QueueForRetry(context.Background(), "rec-2", "21211", "invalid number")
	assert.NoError(t, err)
	assert.False(t, queued)
	repo.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestProcessRetryQueue_EmptyBatch(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{}, nil).Once()

	res, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestProcessRetryQueue_SuccessfulResend(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	rec := &domain.DeliveryRecord{
		ID: "rec-1", PhoneNumber: "+15551234567", Content: "hello",
		RetryCount: 1, MaxRetries: 3,
	}
	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{rec}, nil).Once()
	provider.On("Send", mock.Anything, smsprovider.SendRequest{To: "+15551234567", Body: "hello"}).
		Return(smsprovider.SendResult{ProviderMessageID: "pm-9"}, nil).Once()
	repo.On("MarkSent", mock.Anything, "rec-1", "pm-9").Return(nil).Once()

	res, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Successful: 1}, res)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestProcessRetryQueue_FailureFollowsClassifiedBackoff(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	// Second attempt (retry_count 1 -> 2) of an exponential 60s code:
	// next delay is 60 * 2^2 = 240s.
	rec := &domain.DeliveryRecord{
		ID: "rec-1", PhoneNumber: "+15551234567", Content: "hello",
		RetryCount: 1, MaxRetries: 3,
	}
	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{rec}, nil).Once()
	provider.On("Send", mock.Anything, mock.Anything).
		Return(smsprovider.SendResult{}, &domain.ProviderError{Code: "30001", Message: "still overflowing"}).Once()

	expectedNext := fixedNow.Add(240 * time.Second)
	repo.On("RecordFailure", mock.Anything, "rec-1", "30001", "still overflowing", &expectedNext, false).
		Return(nil).Once()

	res, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Failed: 1}, res)
	repo.AssertExpectations(t)
}

func TestProcessRetryQueue_BudgetExhaustionIsTerminal(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	rec := &domain.DeliveryRecord{
		ID: "rec-1", PhoneNumber: "+15551234567", Content: "hello",
		RetryCount: 2, MaxRetries: 3,
	}
	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{rec}, nil).Once()
	provider.On("Send", mock.Anything, mock.Anything).
		Return(smsprovider.SendResult{}, &domain.ProviderError{Code: "30001", Message: "no luck"}).Once()

	// retry_count reaches max_retries: terminal, no next_retry_at.
	repo.On("RecordFailure", mock.Anything, "rec-1", "30001", "no luck",
		(*time.Time)(nil), true).Return(nil).Once()

	res, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Failed: 1}, res)
	repo.AssertExpectations(t)
}

func TestProcessRetryQueue_UnclassifiedErrorUsesFallbackSchedule(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	rec := &domain.DeliveryRecord{
		ID: "rec-1", PhoneNumber: "+15551234567", Content: "hello",
		RetryCount: 0, MaxRetries: 3,
	}
	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{rec}, nil).Once()
	provider.On("Send", mock.Anything, mock.Anything).
		Return(smsprovider.SendResult{}, errors.New("connection reset")).Once()

	// Unknown code: fallback 60 * 2^(n-1) with n=1.
	expectedNext := fixedNow.Add(60 * time.Second)
	repo.On("RecordFailure", mock.Anything, "rec-1", "unknown", "connection reset", &expectedNext, false).
		Return(nil).Once()

	_, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessRetryQueue_SkipsAlreadySucceededRecords(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	rec := &domain.DeliveryRecord{ID: "rec-1", PhoneNumber: "+15551234567", Success: true}
	repo.On("ClaimDueRetries", mock.Anything, fixedNow, 50, 5*time.Minute).
		Return([]*domain.DeliveryRecord{rec}, nil).Once()

	res, err := s.ProcessRetryQueue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
	provider.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandleDeliveryConfirmation(t *testing.T) {
	testCases := []struct {
		status string
		want   domain.FinalStatus
	}{
		{"delivered", domain.FinalStatusDelivered},
		{"sent", domain.FinalStatusSent},
		{"failed", domain.FinalStatusFailed},
		{"undelivered", domain.FinalStatusFailed},
		{"weird", domain.FinalStatusUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			repo := new(MockDeliveryRecordRepository)
			provider := new(MockProviderAdapter)
			s := newTestScheduler(repo, provider)

			rec := &domain.DeliveryRecord{ID: "rec-1"}
			repo.On("GetByProviderMessageID", mock.Anything, "pm-1").Return(rec, nil).Once()
			repo.On("SetFinalStatus", mock.Anything, "rec-1", tc.want).Return(nil).Once()

			ok, err := s.HandleDeliveryConfirmation(context.Background(), "pm-1", tc.status)
			require.NoError(t, err)
			assert.True(t, ok)
			repo.AssertExpectations(t)
		})
	}
}

func TestHandleDeliveryConfirmation_UnknownMessage(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	repo.On("GetByProviderMessageID", mock.Anything, "pm-missing").
		Return(nil, domain.ErrRecordNotFound).Once()

	ok, err := s.HandleDeliveryConfirmation(context.Background(), "pm-missing", "delivered")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupOldRetries(t *testing.T) {
	repo := new(MockDeliveryRecordRepository)
	provider := new(MockProviderAdapter)
	s := newTestScheduler(repo, provider)

	cutoff := fixedNow.Add(-7 * 24 * time.Hour)
	repo.On("ClearStaleSchedules", mock.Anything, cutoff).Return(4, nil).Once()

	count, err := s.CleanupOldRetries(context.Background(), 0)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
	repo.AssertExpectations(t)
}

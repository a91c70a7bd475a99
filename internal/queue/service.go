// Package queue owns the authoritative waiting count. Every mutation is
// persisted first, then a fresh snapshot is derived from the store and
// handed to the broadcaster.
package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
	"queuesync/internal/hours"
	"queuesync/internal/logfields"
	"queuesync/internal/metrics"
	"queuesync/internal/models"
	"queuesync/internal/tracing"
	"queuesync/internal/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, id int64) (*models.QueueEntry, error)
	CompleteQueueEntry(ctx context.Context, id int64, actualDurationMinutes int, completedAt time.Time) error
	CountWaiting(ctx context.Context) (int, error)
	ListWaiting(ctx context.Context) ([]*models.QueueEntry, error)
	OldestWaiting(ctx context.Context) (*models.QueueEntry, error)
	AverageActualDuration(ctx context.Context, from, to time.Time) (float64, int, error)
	UpsertQueueAnalytics(ctx context.Context, a *models.QueueAnalytics) error
	ListQueueAnalytics(ctx context.Context, day string) ([]*models.QueueAnalytics, error)
}

// Broadcaster receives every recomputed snapshot. It reports how many
// connections accepted it and never fails the caller.
type Broadcaster interface {
	BroadcastQueueUpdate(snapshot *models.QueueSnapshot) int
}

type StatusOracle interface {
	Status(now time.Time) models.BusinessStatus
	Schedule() hours.Schedule
}

type Service struct {
	store       Store
	broadcaster Broadcaster
	oracle      StatusOracle
	logger      *logrus.Logger
	errLogger   *errors.Logger
	metrics     *metrics.Metrics

	waitUnit         int
	waitSpread       int
	interval         time.Duration
	analyticsEnabled bool
	now              func() time.Time

	// mu serializes mutations so that store write, recompute and
	// broadcast finish before the next mutation starts.
	mu sync.Mutex
}

func NewService(store Store, broadcaster Broadcaster, oracle StatusOracle, cfg models.QueueConfig, logger *logrus.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Service{
		store:            store,
		broadcaster:      broadcaster,
		oracle:           oracle,
		logger:           logger,
		errLogger:        errors.NewLogger(logger),
		metrics:          m,
		waitUnit:         cfg.WaitUnitMinutes,
		waitSpread:       cfg.WaitSpreadMinutes,
		interval:         time.Duration(cfg.SnapshotIntervalSec) * time.Second,
		analyticsEnabled: cfg.AnalyticsEnabled,
		now:              time.Now,
	}
	if s.waitUnit <= 0 {
		s.waitUnit = constants.DefaultWaitUnitMinutes
	}
	if s.waitSpread < 0 {
		s.waitSpread = constants.DefaultWaitSpreadMinutes
	}
	if s.interval <= 0 {
		s.interval = constants.DefaultSnapshotIntervalSec * time.Second
	}
	return s
}

// Enqueue adds a waiting customer and publishes the new snapshot.
func (s *Service) Enqueue(ctx context.Context, serviceType string, estimatedDurationMinutes int) (*models.QueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.enqueue",
		attribute.Int("queue.estimated_minutes", estimatedDurationMinutes))
	defer span.End()

	trimmed, err := validation.ValidateServiceType(serviceType)
	if err != nil {
		return nil, s.fail(ctx, "enqueue", err)
	}
	if err := validation.ValidateEstimatedDuration(estimatedDurationMinutes); err != nil {
		return nil, s.fail(ctx, "enqueue", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &models.QueueEntry{
		ServiceType:              trimmed,
		EstimatedDurationMinutes: estimatedDurationMinutes,
		CreatedAt:                s.now(),
	}
	if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
		return nil, s.fail(ctx, "enqueue", err)
	}

	tracing.AddSpanAttributes(ctx, attribute.Int64("queue.entry_id", entry.ID))
	s.metrics.QueueOperation("enqueue", "success")
	s.logger.WithFields(logrus.Fields{
		logfields.EntryID:   entry.ID,
		logfields.Operation: "enqueue",
	}).Info("Customer added to queue")

	s.publishLocked(ctx)
	return entry, nil
}

// Complete marks the entry completed with its observed duration. Exactly
// one of several concurrent callers for the same id succeeds; the others
// get an ALREADY_COMPLETED error.
func (s *Service) Complete(ctx context.Context, entryID int64, actualDurationMinutes int) error {
	ctx, span := tracing.StartSpan(ctx, "queue.complete",
		attribute.Int64("queue.entry_id", entryID),
		attribute.Int("queue.actual_minutes", actualDurationMinutes))
	defer span.End()

	if err := validation.ValidateActualDuration(actualDurationMinutes); err != nil {
		return s.fail(ctx, "complete", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.completeLocked(ctx, entryID, actualDurationMinutes); err != nil {
		return s.fail(ctx, "complete", err)
	}
	s.metrics.QueueOperation("complete", "success")
	s.publishLocked(ctx)
	return nil
}

// CompleteOldest completes whoever has waited longest. It returns a
// NOT_FOUND error when nobody is waiting.
func (s *Service) CompleteOldest(ctx context.Context, actualDurationMinutes int) (*models.QueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.complete_oldest",
		attribute.Int("queue.actual_minutes", actualDurationMinutes))
	defer span.End()

	if err := validation.ValidateActualDuration(actualDurationMinutes); err != nil {
		return nil, s.fail(ctx, "complete_oldest", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldest, err := s.store.OldestWaiting(ctx)
	if err != nil {
		return nil, s.fail(ctx, "complete_oldest", err)
	}
	if oldest == nil {
		return nil, s.fail(ctx, "complete_oldest", errors.NewNotFoundError("queue entry", "oldest waiting"))
	}
	if err := s.completeLocked(ctx, oldest.ID, actualDurationMinutes); err != nil {
		return nil, s.fail(ctx, "complete_oldest", err)
	}

	completed, err := s.store.GetQueueEntry(ctx, oldest.ID)
	if err != nil || completed == nil {
		// The mutation went through; report what we know.
		completed = oldest
		completed.Completed = true
		actual := actualDurationMinutes
		completed.ActualDurationMinutes = &actual
	}

	s.metrics.QueueOperation("complete_oldest", "success")
	s.publishLocked(ctx)
	return completed, nil
}

func (s *Service) completeLocked(ctx context.Context, entryID int64, actualDurationMinutes int) error {
	if err := s.store.CompleteQueueEntry(ctx, entryID, actualDurationMinutes, s.now()); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		logfields.EntryID:   entryID,
		logfields.Operation: "complete",
		"actual_minutes":    actualDurationMinutes,
	}).Info("Queue entry completed")
	return nil
}

// CurrentSnapshot re-derives the snapshot from the store. Business status
// is evaluated at call time.
func (s *Service) CurrentSnapshot(ctx context.Context) (*models.QueueSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.snapshot")
	defer span.End()

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return snapshot, nil
}

func (s *Service) ListWaiting(ctx context.Context) ([]*models.QueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.list_waiting")
	defer span.End()

	entries, err := s.store.ListWaiting(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return entries, nil
}

// Analytics lists the hourly samples of one day (2006-01-02).
func (s *Service) Analytics(ctx context.Context, day string) ([]*models.QueueAnalytics, error) {
	if _, err := validation.ValidateDay(day); err != nil {
		return nil, err
	}
	return s.store.ListQueueAnalytics(ctx, day)
}

// Refresh broadcasts a freshly derived snapshot without mutating anything.
func (s *Service) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(ctx)
}

func (s *Service) snapshot(ctx context.Context) (*models.QueueSnapshot, error) {
	count, err := s.store.CountWaiting(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.QueueSnapshot{
		Count:          count,
		EstimatedWait:  EstimateWait(count, s.waitUnit, s.waitSpread),
		BusinessStatus: s.oracle.Status(now),
		LastUpdate:     now.UTC(),
	}, nil
}

// publishLocked recomputes and broadcasts. Failures are logged only; the
// mutation that triggered it has already been persisted and the periodic
// refresh will catch up.
func (s *Service) publishLocked(ctx context.Context) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		s.errLogger.LogWarn(err, "Failed to recompute queue snapshot")
		return
	}
	s.metrics.SetQueueLength(snapshot.Count)

	if s.broadcaster == nil {
		return
	}
	delivered := s.broadcaster.BroadcastQueueUpdate(snapshot)
	s.logger.WithFields(logrus.Fields{
		logfields.Count:   snapshot.Count,
		logfields.Clients: delivered,
	}).Debug("Queue snapshot broadcast")
}

func (s *Service) fail(ctx context.Context, operation string, err error) error {
	tracing.RecordError(ctx, err)
	s.metrics.QueueOperation(operation, outcome(err))
	if errors.IsValidation(err) || errors.IsNotFound(err) || errors.IsAlreadyCompleted(err) {
		s.logger.WithError(err).WithField(logfields.Operation, operation).Debug("Queue operation rejected")
	} else {
		s.errLogger.LogError(err, "Queue operation failed", logrus.Fields{logfields.Operation: operation})
	}
	return err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(errors.GetCode(err)))
}

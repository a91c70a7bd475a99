package queue

import (
	"context"
	"math"
	"time"

	"queuesync/internal/logfields"
	"queuesync/internal/models"

	"github.com/sirupsen/logrus"
)

// Run re-broadcasts a fresh snapshot on every tick until ctx is done, so a
// crash between persist and broadcast or an opening-hours boundary is
// reflected within one interval. During business hours each tick also
// refreshes the current hour's analytics sample when enabled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting queue snapshot ticker")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Queue snapshot ticker stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	s.Refresh(ctx)
	if !s.analyticsEnabled {
		return
	}
	if err := s.SampleAnalytics(ctx); err != nil {
		s.errLogger.LogWarn(err, "Failed to record queue analytics")
	}
}

// SampleAnalytics upserts the sample for the current local hour. Outside
// business hours it does nothing.
func (s *Service) SampleAnalytics(ctx context.Context) error {
	now := s.now()
	if !s.oracle.Status(now).IsOpen {
		return nil
	}

	loc := s.oracle.Schedule().Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)

	count, err := s.store.CountWaiting(ctx)
	if err != nil {
		return err
	}
	avg, _, err := s.store.AverageActualDuration(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		return err
	}

	sample := &models.QueueAnalytics{
		Day:                local.Format("2006-01-02"),
		Hour:               local.Hour(),
		DayOfWeek:          int(local.Weekday()),
		QueueLength:        count,
		AverageWaitMinutes: int(math.Round(avg)),
		CreatedAt:          now,
	}
	if err := s.store.UpsertQueueAnalytics(ctx, sample); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		logfields.Count: count,
		"hour":          sample.Hour,
	}).Debug("Queue analytics sampled")
	return nil
}

package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RecordCleaner removes rows older than the retention window
type RecordCleaner interface {
	CleanupOldRecords(retentionDays int) error
}

// Scheduler runs retention cleanup on a fixed interval
type Scheduler struct {
	cleaner       RecordCleaner
	retentionDays int
	interval      time.Duration
	logger        *logrus.Logger
	stopCh        chan struct{}
}

const defaultCleanupInterval = 24 * time.Hour

func NewScheduler(cleaner RecordCleaner, retentionDays int, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &Scheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting cleanup scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	s.logger.WithField("retention_days", s.retentionDays).Info("Running scheduled cleanup")

	if err := s.cleaner.CleanupOldRecords(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to cleanup old records")
	} else {
		s.logger.Info("Successfully completed cleanup")
	}
}

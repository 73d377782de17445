package service

import (
	"context"
	"time"

	"watgbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler drives the periodic maintenance jobs: staged-media cleanup,
// the topic liveness sweep and the contact directory refresh.
type Scheduler struct {
	bridge        *Bridge
	topics        *TopicManager
	contacts      *ContactService
	retentionDays int
	cleanupHours  int
	verifyMin     int
	syncHours     int
	logger        *logrus.Logger
	stopCh        chan struct{}
}

func NewScheduler(bridge *Bridge, topics *TopicManager, contacts *ContactService, retentionDays, cleanupHours int, logger *logrus.Logger) *Scheduler {
	if cleanupHours <= 0 {
		cleanupHours = constants.CleanupSchedulerIntervalHours
	}
	return &Scheduler{
		bridge:        bridge,
		topics:        topics,
		contacts:      contacts,
		retentionDays: retentionDays,
		cleanupHours:  cleanupHours,
		verifyMin:     constants.TopicVerifyIntervalMin,
		syncHours:     constants.ContactSyncIntervalHours,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	cleanupTicker := time.NewTicker(time.Duration(s.cleanupHours) * time.Hour)
	defer cleanupTicker.Stop()
	verifyTicker := time.NewTicker(time.Duration(s.verifyMin) * time.Minute)
	defer verifyTicker.Stop()
	syncTicker := time.NewTicker(time.Duration(s.syncHours) * time.Hour)
	defer syncTicker.Stop()

	s.logger.Info("Starting maintenance scheduler")

	s.runCleanup()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-cleanupTicker.C:
			s.runCleanup()
		case <-verifyTicker.C:
			s.topics.VerifyTopics(ctx)
		case <-syncTicker.C:
			s.runContactSync(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runCleanup() {
	s.logger.WithField("retentionDays", s.retentionDays).Info("Running scheduled media cleanup")

	if err := s.bridge.CleanupOldFiles(s.retentionDays); err != nil {
		s.logger.WithError(err).Error("Failed to clean up staged media")
	} else {
		s.logger.Info("Completed media cleanup")
	}
}

func (s *Scheduler) runContactSync(ctx context.Context) {
	count, err := s.contacts.SyncFromDirectory(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed scheduled contact sync")
		return
	}
	if count > 0 {
		s.topics.RefreshTopicNames(ctx)
	}
	s.logger.WithField("updated", count).Info("Completed scheduled contact sync")
}

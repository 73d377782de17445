package service

import (
	"context"
	"sync"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	"watgbridge/internal/privacy"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// PresenceCoordinator mirrors operator activity to WhatsApp: typing in a
// topic becomes a composing presence, and replies mark the chat's pending
// messages read. Presence sends are throttled per chat and read receipts
// batched per chat.
type PresenceCoordinator struct {
	waClient watypes.WAClient
	flags    FlagChecker
	logger   *logrus.Logger

	mu          sync.Mutex
	lastSent    map[string]time.Time      // chat JID -> last presence send
	pauseTimers map[string]*time.Timer    // chat JID -> pending auto-pause
	pendingRead map[string]*readBatch     // chat JID -> batched receipts
	now         func() time.Time
}

type readBatch struct {
	keys  []watypes.MessageKey
	timer *time.Timer
}

func NewPresenceCoordinator(waClient watypes.WAClient, flags FlagChecker, logger *logrus.Logger) *PresenceCoordinator {
	return &PresenceCoordinator{
		waClient:    waClient,
		flags:       flags,
		logger:      logger,
		lastSent:    make(map[string]time.Time),
		pauseTimers: make(map[string]*time.Timer),
		pendingRead: make(map[string]*readBatch),
		now:         time.Now,
	}
}

// NotifyTyping reports operator typing in a chat's topic. Repeated calls
// inside the throttle window are dropped; each accepted call re-arms the
// auto-pause.
func (pc *PresenceCoordinator) NotifyTyping(ctx context.Context, chatJID string) {
	if !pc.flags.IsEnabled(features.FlagPresenceUpdates) {
		return
	}

	pc.mu.Lock()
	now := pc.now()
	if last, ok := pc.lastSent[chatJID]; ok && now.Sub(last) < time.Duration(constants.PresenceThrottleMs)*time.Millisecond {
		pc.rearmPauseLocked(chatJID)
		pc.mu.Unlock()
		return
	}
	pc.lastSent[chatJID] = now
	pc.rearmPauseLocked(chatJID)
	pc.mu.Unlock()

	if err := pc.waClient.SendPresenceUpdate(ctx, chatJID, watypes.PresenceComposing); err != nil {
		pc.logger.WithError(err).WithField("chat", privacy.MaskJID(chatJID)).Debug("Failed to send composing presence")
	}
}

// rearmPauseLocked schedules (or reschedules) the automatic paused
// presence after the composing window lapses.
func (pc *PresenceCoordinator) rearmPauseLocked(chatJID string) {
	if timer, ok := pc.pauseTimers[chatJID]; ok {
		timer.Stop()
	}
	pc.pauseTimers[chatJID] = time.AfterFunc(time.Duration(constants.ComposingAutoPauseSec)*time.Second, func() {
		pc.mu.Lock()
		delete(pc.pauseTimers, chatJID)
		pc.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pc.waClient.SendPresenceUpdate(ctx, chatJID, watypes.PresencePaused); err != nil {
			pc.logger.WithError(err).WithField("chat", privacy.MaskJID(chatJID)).Debug("Failed to send paused presence")
		}
	})
}

// QueueRead batches a message key for acknowledgement. The chat's batch is
// flushed in one call once the window closes.
func (pc *PresenceCoordinator) QueueRead(chatJID string, key watypes.MessageKey) {
	if !pc.flags.IsEnabled(features.FlagReadReceipts) {
		return
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	batch, ok := pc.pendingRead[chatJID]
	if !ok {
		batch = &readBatch{}
		batch.timer = time.AfterFunc(time.Duration(constants.ReadReceiptBatchWindowSec)*time.Second, func() {
			pc.flushReads(chatJID)
		})
		pc.pendingRead[chatJID] = batch
	}
	batch.keys = append(batch.keys, key)
}

func (pc *PresenceCoordinator) flushReads(chatJID string) {
	pc.mu.Lock()
	batch, ok := pc.pendingRead[chatJID]
	if !ok {
		pc.mu.Unlock()
		return
	}
	delete(pc.pendingRead, chatJID)
	keys := batch.keys
	pc.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pc.waClient.ReadMessages(ctx, keys); err != nil {
		pc.logger.WithError(err).WithFields(logrus.Fields{
			"chat":  privacy.MaskJID(chatJID),
			"count": len(keys),
		}).Warn("Failed to send read receipts")
		return
	}

	pc.logger.WithFields(logrus.Fields{
		"chat":  privacy.MaskJID(chatJID),
		"count": len(keys),
	}).Debug("Read receipts sent")
}

// Stop cancels all pending timers. Called on shutdown.
func (pc *PresenceCoordinator) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for jid, timer := range pc.pauseTimers {
		timer.Stop()
		delete(pc.pauseTimers, jid)
	}
	for jid, batch := range pc.pendingRead {
		batch.timer.Stop()
		delete(pc.pendingRead, jid)
	}
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	"watgbridge/internal/privacy"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// TopicManager creates and repairs the forum topics chats are bound to.
type TopicManager struct {
	bridge   *Bridge
	waClient watypes.WAClient
	tgClient tgtypes.BotClient
	flags    FlagChecker
	logger   *logrus.Logger

	supergroupID int64

	mu         sync.Mutex
	creating   map[string]*sync.WaitGroup
	lastVerify time.Time
	now        func() time.Time
	probeDelay time.Duration
}

func NewTopicManager(bridge *Bridge, waClient watypes.WAClient, tgClient tgtypes.BotClient, flags FlagChecker, supergroupID int64, logger *logrus.Logger) *TopicManager {
	return &TopicManager{
		bridge:       bridge,
		waClient:     waClient,
		tgClient:     tgClient,
		flags:        flags,
		logger:       logger,
		supergroupID: supergroupID,
		creating:     make(map[string]*sync.WaitGroup),
		now:          time.Now,
		probeDelay:   time.Duration(constants.TopicProbeDelayMs) * time.Millisecond,
	}
}

// EnsureTopic returns the topic bound to jid, creating one when none
// exists. Concurrent calls for the same chat collapse into one creation.
func (tm *TopicManager) EnsureTopic(ctx context.Context, jid string) (int64, error) {
	if topicID, ok := tm.bridge.TopicForJID(jid); ok {
		return topicID, nil
	}

	tm.mu.Lock()
	if wg, inProgress := tm.creating[jid]; inProgress {
		tm.mu.Unlock()
		wg.Wait()
		if topicID, ok := tm.bridge.TopicForJID(jid); ok {
			return topicID, nil
		}
		return 0, fmt.Errorf("topic creation for %s failed in another goroutine", jid)
	}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	tm.creating[jid] = wg
	tm.mu.Unlock()

	defer func() {
		tm.mu.Lock()
		delete(tm.creating, jid)
		tm.mu.Unlock()
		wg.Done()
	}()

	// Another goroutine may have bound the chat between the cache miss and
	// taking the creation slot.
	if topicID, ok := tm.bridge.TopicForJID(jid); ok {
		return topicID, nil
	}

	return tm.createTopic(ctx, jid)
}

func (tm *TopicManager) createTopic(ctx context.Context, jid string) (int64, error) {
	name, iconColor := tm.topicTitle(ctx, jid)

	topic, err := tm.tgClient.CreateForumTopic(ctx, tm.supergroupID, name, iconColor)
	if err != nil {
		return 0, fmt.Errorf("failed to create forum topic: %w", err)
	}

	if err := tm.bridge.BindChat(ctx, jid, topic.MessageThreadID); err != nil {
		return 0, fmt.Errorf("failed to bind chat to topic: %w", err)
	}
	tm.bridge.metrics.TopicCreated()

	tm.logger.WithFields(logrus.Fields{
		"jid":   privacy.MaskJID(jid),
		"topic": topic.MessageThreadID,
		"name":  name,
	}).Info("Created forum topic")

	tm.decorateTopic(ctx, jid, topic.MessageThreadID, name)

	return topic.MessageThreadID, nil
}

// decorateTopic posts the pinned welcome message and profile picture for a
// freshly created topic. Failures are cosmetic and only logged.
func (tm *TopicManager) decorateTopic(ctx context.Context, jid string, topicID int64, name string) {
	if jid == constants.StatusBroadcastJID || jid == constants.CallBroadcastJID {
		return
	}

	if tm.flags.IsEnabled(features.FlagSendWelcome) {
		welcome := tm.welcomeText(ctx, jid, name)
		msg, err := tm.tgClient.SendMessage(ctx, tm.supergroupID, welcome, &tgtypes.SendOptions{MessageThreadID: topicID})
		if err != nil {
			tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Warn("Failed to send welcome message")
		} else if err := tm.tgClient.PinChatMessage(ctx, tm.supergroupID, msg.MessageID); err != nil {
			tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Warn("Failed to pin welcome message")
		}
	}

	if tm.flags.IsEnabled(features.FlagProfilePicSync) {
		tm.attachProfilePicture(ctx, jid, topicID)
	}
}

func (tm *TopicManager) welcomeText(ctx context.Context, jid, name string) string {
	if watypes.IsGroupJID(jid) {
		return fmt.Sprintf("💬 Group: %s\n🆔 %s", name, jid)
	}
	text := fmt.Sprintf("💬 Chat with %s\n📱 +%s", name, watypes.PhoneFromJID(jid))
	if status, err := tm.waClient.FetchStatus(ctx, jid); err == nil && status.Status != "" {
		text += fmt.Sprintf("\n📝 %s", status.Status)
	}
	return text
}

func (tm *TopicManager) attachProfilePicture(ctx context.Context, jid string, topicID int64) {
	url, err := tm.waClient.ProfilePictureURL(ctx, jid)
	if err != nil || url == "" {
		return
	}

	data, err := tm.bridge.media.Fetch(ctx, url)
	if err != nil {
		tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Debug("Failed to fetch profile picture")
		return
	}

	path, err := tm.bridge.media.Stage(data, "jpg")
	if err != nil {
		tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Debug("Failed to stage profile picture")
		return
	}
	defer tm.bridge.media.Discard(path)

	if _, err := tm.tgClient.SendPhoto(ctx, tm.supergroupID, path, "", &tgtypes.SendOptions{MessageThreadID: topicID}); err != nil {
		tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Debug("Failed to send profile picture")
	}
}

// topicTitle resolves the display name and icon color for a chat's topic.
// Pseudo chats take fixed names, groups take their subject, user chats the
// best known contact name.
func (tm *TopicManager) topicTitle(ctx context.Context, jid string) (string, int) {
	switch {
	case jid == constants.StatusBroadcastJID:
		return constants.StatusTopicName, constants.StatusTopicIconColor
	case jid == constants.CallBroadcastJID:
		return constants.CallTopicName, constants.CallTopicIconColor
	case watypes.IsGroupJID(jid):
		subject := "Group Chat"
		if meta, err := tm.waClient.GroupMetadata(ctx, jid); err == nil && meta.Subject != "" {
			subject = meta.Subject
		}
		return subject, constants.GroupTopicIconColor
	default:
		phone := watypes.PhoneFromJID(jid)
		if name, ok := tm.bridge.ContactName(phone); ok && name != "" {
			return name, constants.ChatTopicIconColor
		}
		if name := tm.bridge.DisplayNameForJID(jid); name != phone && name != "" {
			return name, constants.ChatTopicIconColor
		}
		return "+" + phone, constants.ChatTopicIconColor
	}
}

// VerifyTopics probes every bound topic and rebinds chats whose topic was
// deleted on the Telegram side. Sweeps are rate limited by a cooldown.
func (tm *TopicManager) VerifyTopics(ctx context.Context) {
	tm.mu.Lock()
	if tm.now().Sub(tm.lastVerify) < time.Duration(constants.TopicVerifyCooldownSec)*time.Second {
		tm.mu.Unlock()
		return
	}
	tm.lastVerify = tm.now()
	tm.mu.Unlock()

	mappings := tm.bridge.ChatMappings()
	repaired := 0

	for _, m := range mappings {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := tm.tgClient.SendChatAction(ctx, tm.supergroupID, m.TelegramTopicID, "typing")
		if err != nil && tgtypes.IsThreadNotFound(err) {
			tm.repairTopic(ctx, m.WhatsAppJID, m.TelegramTopicID)
			repaired++
		}

		time.Sleep(tm.probeDelay)
	}

	if repaired > 0 {
		tm.logger.WithField("repaired", repaired).Info("Topic verification sweep finished")
	}
}

// repairTopic drops a dead binding and creates a fresh topic. Messages
// relayed into the dead topic before the sweep are not replayed.
func (tm *TopicManager) repairTopic(ctx context.Context, jid string, deadTopicID int64) {
	tm.logger.WithFields(logrus.Fields{
		"jid":       privacy.MaskJID(jid),
		"deadTopic": deadTopicID,
	}).Warn("Bound topic no longer exists, recreating")

	if err := tm.bridge.UnbindChat(ctx, jid); err != nil {
		tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Error("Failed to unbind dead topic")
		return
	}

	if _, err := tm.createTopic(ctx, jid); err != nil {
		tm.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Error("Failed to recreate topic")
		return
	}
	tm.bridge.metrics.TopicRepaired()
}

// RefreshTopicNames renames user-chat topics whose resolved contact name
// changed since creation.
func (tm *TopicManager) RefreshTopicNames(ctx context.Context) int {
	if !tm.flags.IsEnabled(features.FlagAutoUpdateTopicNames) {
		return 0
	}

	updated := 0
	for _, m := range tm.bridge.ChatMappings() {
		if watypes.IsGroupJID(m.WhatsAppJID) ||
			m.WhatsAppJID == constants.StatusBroadcastJID ||
			m.WhatsAppJID == constants.CallBroadcastJID {
			continue
		}

		name, _ := tm.topicTitle(ctx, m.WhatsAppJID)
		if name == "+"+watypes.PhoneFromJID(m.WhatsAppJID) {
			// No better name known than the one the topic started with.
			continue
		}
		if err := tm.tgClient.EditForumTopic(ctx, tm.supergroupID, m.TelegramTopicID, name); err != nil {
			tm.logger.WithError(err).WithFields(logrus.Fields{
				"jid":   privacy.MaskJID(m.WhatsAppJID),
				"topic": m.TelegramTopicID,
			}).Debug("Failed to rename topic")
			continue
		}
		updated++
	}
	return updated
}

// RenameTopic applies a new name to the topic bound to jid, if any.
func (tm *TopicManager) RenameTopic(ctx context.Context, jid, name string) {
	topicID, ok := tm.bridge.TopicForJID(jid)
	if !ok {
		return
	}
	if err := tm.tgClient.EditForumTopic(ctx, tm.supergroupID, topicID, name); err != nil {
		tm.logger.WithError(err).WithFields(logrus.Fields{
			"jid":  privacy.MaskJID(jid),
			"name": name,
		}).Warn("Failed to rename topic")
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/metrics"
	"watgbridge/internal/models"
	"watgbridge/internal/privacy"
	"watgbridge/internal/tracing"
	"watgbridge/pkg/media"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// DatabaseService is the persistence surface the bridge needs. Mappings are
// held in memory and written through on every change.
type DatabaseService interface {
	LoadAll(ctx context.Context) (*models.MappingSnapshot, error)
	UpsertChat(ctx context.Context, mapping *models.ChatMapping) error
	DeleteChat(ctx context.Context, whatsappJID string) error
	TouchChatActivity(ctx context.Context, mapping *models.ChatMapping) error
	UpsertUser(ctx context.Context, mapping *models.UserMapping) error
	UpsertContact(ctx context.Context, mapping *models.ContactMapping) error
}

// FlagChecker is the read side of the feature flag manager.
type FlagChecker interface {
	IsEnabled(flagName string) bool
}

// Bridge owns the mapping caches and the platform clients. All relay paths
// run through it so failures in one chat never stall another.
type Bridge struct {
	waClient   watypes.WAClient
	tgClient   tgtypes.BotClient
	db         DatabaseService
	media      media.Handler
	transcoder *media.Transcoder
	flags      FlagChecker
	metrics    *metrics.BridgeMetrics
	logger     *logrus.Logger

	supergroupID int64
	ownerID      int64

	mu       sync.RWMutex
	chats    map[string]*models.ChatMapping // whatsapp JID -> mapping
	topics   map[int64]string               // telegram topic -> whatsapp JID
	users    map[string]*models.UserMapping // whatsapp ID -> profile
	contacts map[string]string              // phone -> contact name

	// statusMessages routes replies in the status topic back to the poster.
	// Bounded FIFO: the oldest tracked entry is evicted past the cap.
	statusMessages map[int]string // telegram message ID -> poster JID
	statusOrder    []int
}

func NewBridge(
	waClient watypes.WAClient,
	tgClient tgtypes.BotClient,
	db DatabaseService,
	mediaHandler media.Handler,
	transcoder *media.Transcoder,
	flags FlagChecker,
	bridgeMetrics *metrics.BridgeMetrics,
	cfg models.TelegramConfig,
	logger *logrus.Logger,
) *Bridge {
	return &Bridge{
		waClient:       waClient,
		tgClient:       tgClient,
		db:             db,
		media:          mediaHandler,
		transcoder:     transcoder,
		flags:          flags,
		metrics:        bridgeMetrics,
		logger:         logger,
		supergroupID:   cfg.SupergroupID,
		ownerID:        cfg.OwnerID,
		chats:          make(map[string]*models.ChatMapping),
		topics:         make(map[int64]string),
		users:          make(map[string]*models.UserMapping),
		contacts:       make(map[string]string),
		statusMessages: make(map[int]string),
	}
}

// Warm loads the persisted mapping tables into the in-memory caches. Called
// once at startup before any event is processed.
func (b *Bridge) Warm(ctx context.Context) error {
	snapshot, err := b.db.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mapping snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range snapshot.Chats {
		m := snapshot.Chats[i]
		b.chats[m.WhatsAppJID] = &m
		b.topics[m.TelegramTopicID] = m.WhatsAppJID
	}
	for i := range snapshot.Users {
		m := snapshot.Users[i]
		b.users[m.WhatsAppID] = &m
	}
	for _, m := range snapshot.Contacts {
		b.contacts[m.Phone] = m.Name
	}

	b.logger.WithFields(logrus.Fields{
		"chats":    len(b.chats),
		"users":    len(b.users),
		"contacts": len(b.contacts),
	}).Info("Mapping caches warmed from database")

	return nil
}

// TopicForJID returns the bound topic for a chat, if any.
func (b *Bridge) TopicForJID(jid string) (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.chats[jid]
	if !ok {
		return 0, false
	}
	return m.TelegramTopicID, true
}

// JIDForTopic returns the chat bound to a topic, if any.
func (b *Bridge) JIDForTopic(topicID int64) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jid, ok := b.topics[topicID]
	return jid, ok
}

// ChatMappings returns a copy of all chat bindings.
func (b *Bridge) ChatMappings() []models.ChatMapping {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]models.ChatMapping, 0, len(b.chats))
	for _, m := range b.chats {
		result = append(result, *m)
	}
	return result
}

// BindChat records a new chat to topic binding in cache and database.
func (b *Bridge) BindChat(ctx context.Context, jid string, topicID int64) error {
	now := time.Now()
	mapping := &models.ChatMapping{
		WhatsAppJID:     jid,
		TelegramTopicID: topicID,
		CreatedAt:       now,
		LastActivity:    now,
	}

	if err := b.db.UpsertChat(ctx, mapping); err != nil {
		return err
	}

	b.mu.Lock()
	if old, ok := b.chats[jid]; ok {
		delete(b.topics, old.TelegramTopicID)
	}
	b.chats[jid] = mapping
	b.topics[topicID] = jid
	b.mu.Unlock()

	return nil
}

// UnbindChat drops a chat binding from cache and database.
func (b *Bridge) UnbindChat(ctx context.Context, jid string) error {
	b.mu.Lock()
	if m, ok := b.chats[jid]; ok {
		delete(b.topics, m.TelegramTopicID)
		delete(b.chats, jid)
	}
	b.mu.Unlock()

	return b.db.DeleteChat(ctx, jid)
}

// TouchChat bumps a chat's last activity timestamp.
func (b *Bridge) TouchChat(ctx context.Context, jid string) {
	b.mu.Lock()
	m, ok := b.chats[jid]
	if ok {
		m.LastActivity = time.Now()
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	if err := b.db.TouchChatActivity(ctx, m); err != nil {
		b.logger.WithError(err).WithField("jid", privacy.MaskJID(jid)).Warn("Failed to persist chat activity")
	}
}

// RecordSender updates the sender profile for a message and returns the
// profile. The message count only grows.
func (b *Bridge) RecordSender(ctx context.Context, senderJID, pushName string) *models.UserMapping {
	now := time.Now()

	b.mu.Lock()
	user, ok := b.users[senderJID]
	if !ok {
		user = &models.UserMapping{
			WhatsAppID: senderJID,
			Phone:      watypes.PhoneFromJID(senderJID),
			FirstSeen:  now,
		}
		b.users[senderJID] = user
	}
	if pushName != "" {
		user.Name = pushName
	}
	user.LastSeen = now
	user.MessageCount++
	snapshot := *user
	b.mu.Unlock()

	if err := b.db.UpsertUser(ctx, &snapshot); err != nil {
		b.logger.WithError(err).WithField("sender", privacy.MaskJID(senderJID)).Warn("Failed to persist user mapping")
	}
	return &snapshot
}

// ContactName returns the saved contact name for a phone, if known.
func (b *Bridge) ContactName(phone string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	name, ok := b.contacts[phone]
	return name, ok
}

// ContactCount returns the number of saved contact names.
func (b *Bridge) ContactCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.contacts)
}

// SetContactName stores a contact name in cache and database.
func (b *Bridge) SetContactName(ctx context.Context, phone, name string) error {
	b.mu.Lock()
	b.contacts[phone] = name
	b.mu.Unlock()

	return b.db.UpsertContact(ctx, &models.ContactMapping{
		Phone:     phone,
		Name:      name,
		UpdatedAt: time.Now(),
	})
}

// DisplayNameForJID resolves the best human name for a chat or sender:
// saved contact name first, then the last push name, then the bare phone.
func (b *Bridge) DisplayNameForJID(jid string) string {
	phone := watypes.PhoneFromJID(jid)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if name, ok := b.contacts[phone]; ok && name != "" {
		return name
	}
	if user, ok := b.users[jid]; ok && user.Name != "" {
		return user.Name
	}
	return phone
}

// TrackStatusMessage remembers which contact posted the status relayed as
// the given Telegram message, so replies can be routed back as DMs.
func (b *Bridge) TrackStatusMessage(telegramMessageID int, posterJID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, tracked := b.statusMessages[telegramMessageID]; !tracked {
		b.statusOrder = append(b.statusOrder, telegramMessageID)
	}
	b.statusMessages[telegramMessageID] = posterJID
	for len(b.statusOrder) > constants.MaxTrackedStatusMessages {
		oldest := b.statusOrder[0]
		b.statusOrder = b.statusOrder[1:]
		delete(b.statusMessages, oldest)
	}
}

// StatusPoster returns the contact behind a relayed status message.
func (b *Bridge) StatusPoster(telegramMessageID int) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	jid, ok := b.statusMessages[telegramMessageID]
	return jid, ok
}

// relayToTelegram wraps one WhatsApp to Telegram delivery attempt with
// uniform logging, metrics and a span. Errors are reported, not propagated,
// so one failed chat never blocks the event loop.
func (b *Bridge) relayToTelegram(ctx context.Context, chatJID string, fn func(ctx context.Context) error) {
	ctx, span := tracing.StartSpan(ctx, "bridge.relay_to_telegram",
		attribute.String("relay.direction", "wa_to_tg"),
		attribute.String("relay.chat", privacy.MaskJID(chatJID)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		b.metrics.RelayFailed("wa_to_tg")
		b.logger.WithFields(logrus.Fields{
			"chat":  privacy.MaskJID(chatJID),
			"error": err,
		}).Error("Failed to relay WhatsApp message to Telegram")
		return
	}
	b.metrics.RelayDelivered("wa_to_tg", time.Since(start))
}

// relayToWhatsApp wraps one Telegram to WhatsApp delivery attempt. The
// returned error lets the caller react on the originating message.
func (b *Bridge) relayToWhatsApp(ctx context.Context, chatJID string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "bridge.relay_to_whatsapp",
		attribute.String("relay.direction", "tg_to_wa"),
		attribute.String("relay.chat", privacy.MaskJID(chatJID)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		b.metrics.RelayFailed("tg_to_wa")
		b.logger.WithFields(logrus.Fields{
			"chat":  privacy.MaskJID(chatJID),
			"error": err,
		}).Error("Failed to relay Telegram message to WhatsApp")
		return err
	}
	b.metrics.RelayDelivered("tg_to_wa", time.Since(start))
	return nil
}

// CleanupOldFiles removes staged media older than the retention window.
func (b *Bridge) CleanupOldFiles(retentionDays int) error {
	return b.media.CleanupOldFiles(int64(retentionDays * 24 * 60 * 60))
}

// phoneDigits strips everything but digits from a phone-ish string.
func phoneDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

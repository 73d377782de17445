package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	"watgbridge/internal/privacy"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// WhatsAppHandler consumes gateway events and relays them into the bound
// forum topics.
type WhatsAppHandler struct {
	bridge   *Bridge
	topics   *TopicManager
	contacts *ContactService
	presence *PresenceCoordinator
	flags    FlagChecker
	inflight *leaseGuard
	logger   *logrus.Logger

	supergroupID int64
	ownerID      int64

	mu          sync.Mutex
	recentCalls map[string]time.Time // caller+call ID -> first seen
	now         func() time.Time
}

func NewWhatsAppHandler(bridge *Bridge, topics *TopicManager, contacts *ContactService, presence *PresenceCoordinator, flags FlagChecker, supergroupID, ownerID int64, logger *logrus.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		bridge:       bridge,
		topics:       topics,
		contacts:     contacts,
		presence:     presence,
		flags:        flags,
		inflight:     newLeaseGuard(),
		logger:       logger,
		supergroupID: supergroupID,
		ownerID:      ownerID,
		recentCalls:  make(map[string]time.Time),
		now:          time.Now,
	}
}

var _ watypes.EventHandler = (*WhatsAppHandler)(nil)

// HandleEvent dispatches one gateway event. Relay failures are absorbed
// here so the event loop keeps draining.
func (h *WhatsAppHandler) HandleEvent(ctx context.Context, event *watypes.Event) error {
	switch event.Type {
	case watypes.EventMessage:
		var raw watypes.RawMessage
		if err := json.Unmarshal(event.Payload, &raw); err != nil {
			return fmt.Errorf("failed to decode message payload: %w", err)
		}
		h.handleMessage(ctx, watypes.ClassifyMessage(&raw))
		return nil

	case watypes.EventCall:
		var call watypes.CallEvent
		if err := json.Unmarshal(event.Payload, &call); err != nil {
			return fmt.Errorf("failed to decode call payload: %w", err)
		}
		h.handleCall(ctx, &call)
		return nil

	case watypes.EventContactsUpdate:
		var updates []watypes.ContactUpdate
		if err := json.Unmarshal(event.Payload, &updates); err != nil {
			return fmt.Errorf("failed to decode contacts payload: %w", err)
		}
		h.handleContactsUpdate(ctx, updates)
		return nil

	case watypes.EventGroupUpdate:
		var update watypes.GroupUpdate
		if err := json.Unmarshal(event.Payload, &update); err != nil {
			return fmt.Errorf("failed to decode group payload: %w", err)
		}
		if update.Subject != "" {
			h.topics.RenameTopic(ctx, update.JID, update.Subject)
		}
		return nil

	case watypes.EventProfilePicUpdate:
		var update watypes.ProfilePictureUpdate
		if err := json.Unmarshal(event.Payload, &update); err != nil {
			return fmt.Errorf("failed to decode profile picture payload: %w", err)
		}
		h.handleProfilePicUpdate(ctx, &update)
		return nil

	case watypes.EventConnectionUpdate:
		var update watypes.ConnectionUpdate
		if err := json.Unmarshal(event.Payload, &update); err != nil {
			return fmt.Errorf("failed to decode connection payload: %w", err)
		}
		h.logger.WithField("state", update.State).Info("WhatsApp connection state changed")
		h.notifyConnectionState(ctx, update.State)
		return nil

	default:
		h.logger.WithField("type", event.Type).Debug("Ignoring unknown event type")
		return nil
	}
}

// notifyConnectionState posts a short banner to the operator's private
// chat when the gateway session opens or closes.
func (h *WhatsAppHandler) notifyConnectionState(ctx context.Context, state string) {
	if h.ownerID == 0 {
		return
	}
	var banner string
	switch state {
	case "open":
		banner = "🟢 WhatsApp connected"
	case "close":
		banner = "🔴 WhatsApp disconnected"
	default:
		return
	}
	if _, err := h.bridge.tgClient.SendMessage(ctx, h.ownerID, banner, nil); err != nil {
		h.logger.WithError(err).Warn("Failed to deliver connection banner")
	}
}

func (h *WhatsAppHandler) handleMessage(ctx context.Context, msg *watypes.Message) {
	if msg == nil || msg.Content.Kind == watypes.ContentUnknown {
		h.bridge.metrics.EventDropped("unsupported")
		return
	}

	// Historical backfill replayed by the gateway is not relayed.
	if h.now().Sub(msg.Timestamp) > time.Duration(constants.MessageStalenessSec)*time.Second {
		h.bridge.metrics.EventDropped("stale")
		h.logger.WithFields(logrus.Fields{
			"chat": privacy.MaskJID(msg.ChatJID()),
			"age":  h.now().Sub(msg.Timestamp).Round(time.Second),
		}).Debug("Dropping stale message")
		return
	}

	chatJID := msg.ChatJID()
	if chatJID == constants.StatusBroadcastJID && !h.flags.IsEnabled(features.FlagStatusSync) {
		return
	}

	// Own messages synced from the phone follow the bidirectional toggle,
	// run outside the per-participant lease and never open a topic.
	if msg.Key.FromMe {
		if !h.flags.IsEnabled(features.FlagBiDirectional) {
			return
		}
		topicID, ok := h.bridge.TopicForJID(chatJID)
		if !ok {
			h.bridge.metrics.EventDropped("unmapped")
			return
		}
		h.bridge.relayToTelegram(ctx, chatJID, func(ctx context.Context) error {
			return h.deliverToTopic(ctx, msg, chatJID, topicID)
		})
		h.bridge.TouchChat(ctx, chatJID)
		return
	}

	// One event per participant at a time; colliding duplicates are
	// dropped, matching gateway retry behavior.
	leaseKey := chatJID + "|" + msg.SenderJID()
	if !h.inflight.Acquire(leaseKey) {
		h.bridge.metrics.EventDropped("inflight")
		h.logger.WithField("key", privacy.MaskJID(leaseKey)).Debug("Dropping colliding event for participant")
		return
	}
	defer h.inflight.Release(leaseKey)

	h.bridge.RecordSender(ctx, msg.SenderJID(), msg.PushName)

	topicID, err := h.topics.EnsureTopic(ctx, chatJID)
	if err != nil {
		h.bridge.metrics.RelayFailed("wa_to_tg")
		h.logger.WithError(err).WithField("chat", privacy.MaskJID(chatJID)).Error("Failed to ensure topic for chat")
		return
	}

	h.bridge.relayToTelegram(ctx, chatJID, func(ctx context.Context) error {
		return h.deliverToTopic(ctx, msg, chatJID, topicID)
	})

	if chatJID != constants.StatusBroadcastJID {
		h.presence.QueueRead(chatJID, msg.Key)
	}
	h.bridge.TouchChat(ctx, chatJID)
}

// deliverToTopic sends one classified message into its topic.
func (h *WhatsAppHandler) deliverToTopic(ctx context.Context, msg *watypes.Message, chatJID string, topicID int64) error {
	prefix := h.messagePrefix(msg, chatJID)
	opts := &tgtypes.SendOptions{MessageThreadID: topicID}
	if msg.Content.ViewOnce {
		opts.HasSpoiler = true
	}

	sent, err := h.sendContent(ctx, msg, prefix, opts)
	if err != nil {
		return err
	}

	// Replies to a relayed status must reach the poster as a DM, so the
	// relayed message is remembered against the poster.
	if chatJID == constants.StatusBroadcastJID && sent != nil {
		h.bridge.TrackStatusMessage(sent.MessageID, msg.SenderJID())
	}
	return nil
}

// messagePrefix renders the sender attribution line. Own messages synced
// from the phone are attributed to the operator, group messages to the
// participant.
func (h *WhatsAppHandler) messagePrefix(msg *watypes.Message, chatJID string) string {
	if msg.Key.FromMe {
		return "📤 You: "
	}
	if chatJID == constants.StatusBroadcastJID {
		name := h.bridge.DisplayNameForJID(msg.SenderJID())
		return fmt.Sprintf("📱 Status from %s:\n", name)
	}
	if watypes.IsGroupJID(chatJID) {
		name := h.bridge.DisplayNameForJID(msg.SenderJID())
		return fmt.Sprintf("👤 %s:\n", name)
	}
	return ""
}

func (h *WhatsAppHandler) sendContent(ctx context.Context, msg *watypes.Message, prefix string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	content := msg.Content

	switch content.Kind {
	case watypes.ContentText:
		return h.bridge.tgClient.SendMessage(ctx, h.supergroupID, prefix+content.Text, opts)

	case watypes.ContentLocation:
		if prefix != "" || content.Location.Name != "" {
			text := prefix + "📍 " + content.Location.Name
			if _, err := h.bridge.tgClient.SendMessage(ctx, h.supergroupID, text, opts); err != nil {
				return nil, err
			}
		}
		return h.bridge.tgClient.SendLocation(ctx, h.supergroupID, content.Location.Latitude, content.Location.Longitude, opts)

	case watypes.ContentContact:
		phone := vcardPhone(content.ContactCard.VCard)
		return h.bridge.tgClient.SendContact(ctx, h.supergroupID, phone, content.ContactCard.DisplayName, opts)
	}

	// Everything else carries media that must be pulled off the gateway
	// and staged to a file first.
	path, err := h.stageMedia(ctx, content.Media)
	if err != nil {
		// Degrade to a text note so the conversation stays coherent.
		h.logger.WithError(err).WithField("chat", privacy.MaskJID(msg.ChatJID())).Warn("Media unavailable, relaying placeholder")
		note := prefix + "⚠️ Media could not be retrieved"
		if content.Text != "" {
			note += "\n" + content.Text
		}
		return h.bridge.tgClient.SendMessage(ctx, h.supergroupID, note, opts)
	}
	defer h.bridge.media.Discard(path)

	caption := prefix + content.Text

	switch content.Kind {
	case watypes.ContentImage:
		return h.bridge.tgClient.SendPhoto(ctx, h.supergroupID, path, caption, opts)

	case watypes.ContentVideo:
		if content.GifPlayback {
			return h.bridge.tgClient.SendAnimation(ctx, h.supergroupID, path, caption, opts)
		}
		return h.bridge.tgClient.SendVideo(ctx, h.supergroupID, path, caption, opts)

	case watypes.ContentVideoNote:
		return h.bridge.tgClient.SendVideoNote(ctx, h.supergroupID, path, opts)

	case watypes.ContentVoice:
		return h.bridge.tgClient.SendVoice(ctx, h.supergroupID, path, caption, opts)

	case watypes.ContentAudio:
		return h.bridge.tgClient.SendAudio(ctx, h.supergroupID, path, caption, content.Title, opts)

	case watypes.ContentDocument:
		return h.bridge.tgClient.SendDocument(ctx, h.supergroupID, path, caption, opts)

	case watypes.ContentSticker:
		sent, err := h.bridge.tgClient.SendSticker(ctx, h.supergroupID, path, opts)
		if err == nil {
			return sent, nil
		}
		// Not every webp passes as a Telegram sticker; retry as a still.
		pngPath := h.bridge.transcoder.ToPNG(ctx, path)
		if pngPath != path {
			defer h.bridge.media.Discard(pngPath)
		}
		return h.bridge.tgClient.SendPhoto(ctx, h.supergroupID, pngPath, caption, opts)

	default:
		return nil, fmt.Errorf("unsupported content kind %v", content.Kind)
	}
}

func (h *WhatsAppHandler) stageMedia(ctx context.Context, ref *watypes.MediaRef) (string, error) {
	if ref == nil {
		return "", fmt.Errorf("message has no media reference")
	}

	data, err := h.bridge.waClient.DownloadContent(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to download media: %w", err)
	}

	ext := mediaExt(ref)
	return h.bridge.media.Stage(data, ext)
}

func (h *WhatsAppHandler) handleCall(ctx context.Context, call *watypes.CallEvent) {
	if !h.flags.IsEnabled(features.FlagCallLogs) {
		return
	}

	// The gateway replays call events on reconnect; suppress repeats.
	dedupKey := call.From + "|" + call.ID
	h.mu.Lock()
	now := h.now()
	if seen, ok := h.recentCalls[dedupKey]; ok && now.Sub(seen) < time.Duration(constants.CallDedupWindowSec)*time.Second {
		h.mu.Unlock()
		h.bridge.metrics.EventDropped("call_dup")
		return
	}
	h.recentCalls[dedupKey] = now
	for key, seen := range h.recentCalls {
		if now.Sub(seen) > time.Duration(constants.CallDedupWindowSec)*time.Second {
			delete(h.recentCalls, key)
		}
	}
	h.mu.Unlock()

	topicID, err := h.topics.EnsureTopic(ctx, constants.CallBroadcastJID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to ensure call log topic")
		return
	}

	name := h.bridge.DisplayNameForJID(call.From)
	text := fmt.Sprintf("📞 %s\n%s at %s", name, callStatusLine(call.Status), h.now().Format("15:04:05"))

	h.bridge.relayToTelegram(ctx, constants.CallBroadcastJID, func(ctx context.Context) error {
		_, err := h.bridge.tgClient.SendMessage(ctx, h.supergroupID, text, &tgtypes.SendOptions{MessageThreadID: topicID})
		return err
	})
}

func (h *WhatsAppHandler) handleContactsUpdate(ctx context.Context, updates []watypes.ContactUpdate) {
	accepted := h.contacts.HandleContactsUpdate(ctx, updates)
	if accepted == 0 || !h.flags.IsEnabled(features.FlagAutoUpdateTopicNames) {
		return
	}

	// A better name may rename an existing topic right away.
	for _, u := range updates {
		if name, ok := h.bridge.ContactName(watypes.PhoneFromJID(u.JID)); ok {
			h.topics.RenameTopic(ctx, u.JID, name)
		}
	}
}

func (h *WhatsAppHandler) handleProfilePicUpdate(ctx context.Context, update *watypes.ProfilePictureUpdate) {
	if !h.flags.IsEnabled(features.FlagProfilePicSync) {
		return
	}
	topicID, ok := h.bridge.TopicForJID(update.JID)
	if !ok || update.URL == "" {
		return
	}

	data, err := h.bridge.media.Fetch(ctx, update.URL)
	if err != nil {
		h.logger.WithError(err).WithField("jid", privacy.MaskJID(update.JID)).Debug("Failed to fetch updated profile picture")
		return
	}
	path, err := h.bridge.media.Stage(data, "jpg")
	if err != nil {
		return
	}
	defer h.bridge.media.Discard(path)

	name := h.bridge.DisplayNameForJID(update.JID)
	caption := fmt.Sprintf("🖼 %s updated their profile picture", name)
	if _, err := h.bridge.tgClient.SendPhoto(ctx, h.supergroupID, path, caption, &tgtypes.SendOptions{MessageThreadID: topicID}); err != nil {
		h.logger.WithError(err).WithField("jid", privacy.MaskJID(update.JID)).Debug("Failed to relay profile picture update")
	}
}

func callStatusLine(status string) string {
	switch status {
	case "offer", "incoming":
		return "Incoming call"
	case "timeout", "missed":
		return "Missed call"
	case "reject":
		return "Call rejected"
	case "accept":
		return "Call answered"
	default:
		return "Call " + status
	}
}

// vcardPhone pulls the first TEL number out of a vCard body.
func vcardPhone(vcard string) string {
	for _, line := range strings.Split(vcard, "\n") {
		if !strings.HasPrefix(strings.ToUpper(line), "TEL") {
			continue
		}
		if i := strings.IndexByte(line, ':'); i >= 0 {
			return strings.TrimSpace(line[i+1:])
		}
	}
	return ""
}

// mediaExt picks a staging extension from the media reference.
func mediaExt(ref *watypes.MediaRef) string {
	if ext := constants.ExtForMimeType(ref.MimeType); ext != "" {
		return ext[1:]
	}
	if ref.FileName != "" {
		for i := len(ref.FileName) - 1; i >= 0; i-- {
			if ref.FileName[i] == '.' {
				return ref.FileName[i+1:]
			}
		}
	}
	return "bin"
}

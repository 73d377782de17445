package service

import (
	"context"
	"fmt"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	"watgbridge/internal/privacy"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// TelegramHandler consumes Bot API updates: operator commands and topic
// messages relayed back into WhatsApp.
type TelegramHandler struct {
	bridge   *Bridge
	presence *PresenceCoordinator
	commands *CommandRouter
	flags    FlagChecker
	logger   *logrus.Logger

	supergroupID int64
	ownerID      int64
}

func NewTelegramHandler(bridge *Bridge, presence *PresenceCoordinator, commands *CommandRouter, flags FlagChecker, supergroupID, ownerID int64, logger *logrus.Logger) *TelegramHandler {
	return &TelegramHandler{
		bridge:       bridge,
		presence:     presence,
		commands:     commands,
		flags:        flags,
		logger:       logger,
		supergroupID: supergroupID,
		ownerID:      ownerID,
	}
}

// HandleUpdate processes one long-poll update.
func (h *TelegramHandler) HandleUpdate(ctx context.Context, update *tgtypes.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}

	// Only the operator drives the bridge.
	if msg.From.ID != h.ownerID {
		h.logger.WithFields(logrus.Fields{
			"from": msg.From.ID,
			"chat": msg.Chat.ID,
		}).Debug("Ignoring update from unauthorized user")
		return nil
	}

	if msg.IsCommand() {
		return h.commands.Handle(ctx, msg)
	}

	if msg.Chat.ID != h.supergroupID || msg.MessageThreadID == 0 {
		return nil
	}

	targetJID, ok := h.resolveTarget(msg)
	if !ok {
		h.logger.WithField("thread", msg.MessageThreadID).Warn("No WhatsApp chat bound to topic")
		h.react(ctx, msg, "❌")
		return nil
	}

	if !h.flags.IsEnabled(features.FlagBiDirectional) {
		h.logger.WithField("chat", privacy.MaskJID(targetJID)).Debug("Outbound relay disabled, dropping topic message")
		return nil
	}

	h.presence.NotifyTyping(ctx, targetJID)

	err := h.bridge.relayToWhatsApp(ctx, targetJID, func(ctx context.Context) error {
		return h.deliverToWhatsApp(ctx, msg, targetJID)
	})
	if err != nil {
		h.react(ctx, msg, "❌")
		return nil
	}
	h.react(ctx, msg, "✅")
	h.bridge.TouchChat(ctx, targetJID)
	return nil
}

// resolveTarget maps a topic message to its WhatsApp destination. Replies
// inside the status topic go to the poster as a direct message.
func (h *TelegramHandler) resolveTarget(msg *tgtypes.Message) (string, bool) {
	jid, ok := h.bridge.JIDForTopic(msg.MessageThreadID)
	if !ok {
		return "", false
	}
	if jid == constants.StatusBroadcastJID {
		if msg.ReplyToMessage == nil {
			return "", false
		}
		poster, ok := h.bridge.StatusPoster(msg.ReplyToMessage.MessageID)
		if !ok {
			return "", false
		}
		return poster, true
	}
	return jid, true
}

func (h *TelegramHandler) deliverToWhatsApp(ctx context.Context, msg *tgtypes.Message, jid string) error {
	switch {
	case len(msg.Photo) > 0:
		// The Bot API lists sizes ascending; take the original.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		path, err := h.stageFile(ctx, fileID, "jpg")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		_, err = h.bridge.waClient.SendImage(ctx, jid, path, msg.Caption, msg.HasSpoiler())
		return err

	case msg.Video != nil:
		path, err := h.stageFile(ctx, msg.Video.FileID, "mp4")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		sendPath := h.bridge.transcoder.ToMP4(ctx, path)
		if sendPath != path {
			defer h.bridge.media.Discard(sendPath)
		}
		_, err = h.bridge.waClient.SendVideo(ctx, jid, sendPath, msg.Caption, watypes.VideoOptions{ViewOnce: msg.HasSpoiler()})
		return err

	case msg.Animation != nil:
		path, err := h.stageFile(ctx, msg.Animation.FileID, "mp4")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		sendPath := h.bridge.transcoder.ToMP4(ctx, path)
		if sendPath != path {
			defer h.bridge.media.Discard(sendPath)
		}
		_, err = h.bridge.waClient.SendVideo(ctx, jid, sendPath, msg.Caption, watypes.VideoOptions{GifPlayback: true})
		return err

	case msg.VideoNote != nil:
		path, err := h.stageFile(ctx, msg.VideoNote.FileID, "mp4")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		sendPath := h.bridge.transcoder.ToVideoNote(ctx, path)
		if sendPath != path {
			defer h.bridge.media.Discard(sendPath)
		}
		_, err = h.bridge.waClient.SendVideo(ctx, jid, sendPath, "", watypes.VideoOptions{VideoNote: true})
		return err

	case msg.Voice != nil:
		path, err := h.stageFile(ctx, msg.Voice.FileID, "ogg")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		sendPath := h.bridge.transcoder.ToVoice(ctx, path)
		if sendPath != path {
			defer h.bridge.media.Discard(sendPath)
		}
		_, err = h.bridge.waClient.SendAudio(ctx, jid, sendPath, true)
		return err

	case msg.Audio != nil:
		ext := "mp3"
		if e := constants.ExtForMimeType(msg.Audio.MIMEType); e != "" {
			ext = e[1:]
		}
		path, err := h.stageFile(ctx, msg.Audio.FileID, ext)
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		_, err = h.bridge.waClient.SendAudio(ctx, jid, path, false)
		return err

	case msg.Document != nil:
		ext := "bin"
		if e := constants.ExtForMimeType(msg.Document.MIMEType); e != "" {
			ext = e[1:]
		}
		path, err := h.stageFile(ctx, msg.Document.FileID, ext)
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		_, err = h.bridge.waClient.SendDocument(ctx, jid, path, msg.Document.FileName, msg.Caption)
		return err

	case msg.Sticker != nil:
		if msg.Sticker.IsAnimated || msg.Sticker.IsVideo {
			// Animated stickers have no WhatsApp equivalent; relay the
			// emoji instead of a broken attachment.
			_, err := h.bridge.waClient.SendText(ctx, jid, msg.Sticker.Emoji)
			return err
		}
		path, err := h.stageFile(ctx, msg.Sticker.FileID, "webp")
		if err != nil {
			return err
		}
		defer h.bridge.media.Discard(path)
		_, err = h.bridge.waClient.SendSticker(ctx, jid, path)
		return err

	case msg.Location != nil:
		_, err := h.bridge.waClient.SendLocation(ctx, jid, msg.Location.Latitude, msg.Location.Longitude)
		return err

	case msg.Contact != nil:
		name := msg.Contact.FirstName
		if msg.Contact.LastName != "" {
			name += " " + msg.Contact.LastName
		}
		vcard := fmt.Sprintf("BEGIN:VCARD\nVERSION:3.0\nFN:%s\nTEL;type=CELL:%s\nEND:VCARD", name, msg.Contact.PhoneNumber)
		_, err := h.bridge.waClient.SendContact(ctx, jid, name, vcard)
		return err

	case msg.Text != "":
		_, err := h.bridge.waClient.SendText(ctx, jid, msg.Text)
		return err

	default:
		return fmt.Errorf("unsupported telegram message content")
	}
}

// stageFile downloads a Bot API file and stages it for a gateway upload.
func (h *TelegramHandler) stageFile(ctx context.Context, fileID, ext string) (string, error) {
	data, err := h.bridge.tgClient.DownloadFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to download telegram file: %w", err)
	}
	return h.bridge.media.Stage(data, ext)
}

// react sets delivery feedback on the originating message. Reaction
// failures are not worth surfacing.
func (h *TelegramHandler) react(ctx context.Context, msg *tgtypes.Message, emoji string) {
	if err := h.bridge.tgClient.SetMessageReaction(ctx, msg.Chat.ID, msg.MessageID, emoji); err != nil {
		h.logger.WithError(err).Debug("Failed to set message reaction")
	}
}

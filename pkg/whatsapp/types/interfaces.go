package types

import "context"

// WAClient is the send/fetch surface of the WhatsApp gateway.
type WAClient interface {
	SendText(ctx context.Context, jid, text string) (*SendResult, error)
	SendImage(ctx context.Context, jid, imagePath, caption string, viewOnce bool) (*SendResult, error)
	SendVideo(ctx context.Context, jid, videoPath, caption string, opts VideoOptions) (*SendResult, error)
	SendAudio(ctx context.Context, jid, audioPath string, voiceNote bool) (*SendResult, error)
	SendDocument(ctx context.Context, jid, docPath, fileName, caption string) (*SendResult, error)
	SendSticker(ctx context.Context, jid, stickerPath string) (*SendResult, error)
	SendLocation(ctx context.Context, jid string, latitude, longitude float64) (*SendResult, error)
	SendContact(ctx context.Context, jid, displayName, vcard string) (*SendResult, error)

	DownloadContent(ctx context.Context, ref *MediaRef) ([]byte, error)
	GroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error)
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	FetchStatus(ctx context.Context, jid string) (*UserStatus, error)
	ReadMessages(ctx context.Context, keys []MessageKey) error
	SendPresenceUpdate(ctx context.Context, jid string, presence PresenceType) error

	FetchContacts(ctx context.Context) ([]ContactUpdate, error)
	FetchChats(ctx context.Context) ([]ChatListEntry, error)
	Connected() bool
}

// VideoOptions selects the variant of a WhatsApp video send.
type VideoOptions struct {
	VideoNote   bool // ptv round video
	GifPlayback bool
	ViewOnce    bool
}

// EventHandler consumes decoded gateway events. One handler invocation per
// event; implementations must not block on long work.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

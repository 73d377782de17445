package types

import "context"

// BotClient is the Bot API surface the bridge consumes. Media sends take
// local file paths and upload via multipart, mirroring how the WhatsApp
// gateway client works.
type BotClient interface {
	GetMe(ctx context.Context) (*User, error)
	GetUpdates(ctx context.Context, offset int64, limit, timeoutSec int) ([]Update, error)

	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (*Message, error)
	SendPhoto(ctx context.Context, chatID int64, photoPath, caption string, opts *SendOptions) (*Message, error)
	SendVideo(ctx context.Context, chatID int64, videoPath, caption string, opts *SendOptions) (*Message, error)
	SendVideoNote(ctx context.Context, chatID int64, videoPath string, opts *SendOptions) (*Message, error)
	SendAnimation(ctx context.Context, chatID int64, animationPath, caption string, opts *SendOptions) (*Message, error)
	SendAudio(ctx context.Context, chatID int64, audioPath, caption, title string, opts *SendOptions) (*Message, error)
	SendVoice(ctx context.Context, chatID int64, voicePath, caption string, opts *SendOptions) (*Message, error)
	SendDocument(ctx context.Context, chatID int64, docPath, caption string, opts *SendOptions) (*Message, error)
	SendSticker(ctx context.Context, chatID int64, stickerPath string, opts *SendOptions) (*Message, error)
	SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, opts *SendOptions) (*Message, error)
	SendContact(ctx context.Context, chatID int64, phoneNumber, firstName string, opts *SendOptions) (*Message, error)

	CreateForumTopic(ctx context.Context, chatID int64, name string, iconColor int) (*ForumTopic, error)
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error
	SendChatAction(ctx context.Context, chatID, threadID int64, action string) error
	SetMessageReaction(ctx context.Context, chatID int64, messageID int, emoji string) error
	PinChatMessage(ctx context.Context, chatID int64, messageID int) error

	GetFile(ctx context.Context, fileID string) (*File, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

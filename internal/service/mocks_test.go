package service

import (
	"context"
	"io"

	"watgbridge/internal/metrics"
	"watgbridge/internal/models"
	"watgbridge/pkg/media"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type mockWAClient struct {
	mock.Mock
}

func (m *mockWAClient) SendText(ctx context.Context, jid, text string) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, text)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendImage(ctx context.Context, jid, imagePath, caption string, viewOnce bool) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, imagePath, caption, viewOnce)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendVideo(ctx context.Context, jid, videoPath, caption string, opts watypes.VideoOptions) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, videoPath, caption, opts)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendAudio(ctx context.Context, jid, audioPath string, voiceNote bool) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, audioPath, voiceNote)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendDocument(ctx context.Context, jid, docPath, fileName, caption string) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, docPath, fileName, caption)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendSticker(ctx context.Context, jid, stickerPath string) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, stickerPath)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendLocation(ctx context.Context, jid string, latitude, longitude float64) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, latitude, longitude)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) SendContact(ctx context.Context, jid, displayName, vcard string) (*watypes.SendResult, error) {
	args := m.Called(ctx, jid, displayName, vcard)
	return resultOrNil(args), args.Error(1)
}

func (m *mockWAClient) DownloadContent(ctx context.Context, ref *watypes.MediaRef) ([]byte, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockWAClient) GroupMetadata(ctx context.Context, jid string) (*watypes.GroupMetadata, error) {
	args := m.Called(ctx, jid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*watypes.GroupMetadata), args.Error(1)
}

func (m *mockWAClient) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	args := m.Called(ctx, jid)
	return args.String(0), args.Error(1)
}

func (m *mockWAClient) FetchStatus(ctx context.Context, jid string) (*watypes.UserStatus, error) {
	args := m.Called(ctx, jid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*watypes.UserStatus), args.Error(1)
}

func (m *mockWAClient) ReadMessages(ctx context.Context, keys []watypes.MessageKey) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *mockWAClient) SendPresenceUpdate(ctx context.Context, jid string, presence watypes.PresenceType) error {
	args := m.Called(ctx, jid, presence)
	return args.Error(0)
}

func (m *mockWAClient) FetchContacts(ctx context.Context) ([]watypes.ContactUpdate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]watypes.ContactUpdate), args.Error(1)
}

func (m *mockWAClient) FetchChats(ctx context.Context) ([]watypes.ChatListEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]watypes.ChatListEntry), args.Error(1)
}

func (m *mockWAClient) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func resultOrNil(args mock.Arguments) *watypes.SendResult {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*watypes.SendResult)
}

type mockBotClient struct {
	mock.Mock
}

func (m *mockBotClient) GetMe(ctx context.Context) (*tgtypes.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgtypes.User), args.Error(1)
}

func (m *mockBotClient) GetUpdates(ctx context.Context, offset int64, limit, timeoutSec int) ([]tgtypes.Update, error) {
	args := m.Called(ctx, offset, limit, timeoutSec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]tgtypes.Update), args.Error(1)
}

func (m *mockBotClient) SendMessage(ctx context.Context, chatID int64, text string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, text, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendPhoto(ctx context.Context, chatID int64, photoPath, caption string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, photoPath, caption, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendVideo(ctx context.Context, chatID int64, videoPath, caption string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, videoPath, caption, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendVideoNote(ctx context.Context, chatID int64, videoPath string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, videoPath, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendAnimation(ctx context.Context, chatID int64, animationPath, caption string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, animationPath, caption, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendAudio(ctx context.Context, chatID int64, audioPath, caption, title string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, audioPath, caption, title, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendVoice(ctx context.Context, chatID int64, voicePath, caption string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, voicePath, caption, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendDocument(ctx context.Context, chatID int64, docPath, caption string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, docPath, caption, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendSticker(ctx context.Context, chatID int64, stickerPath string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, stickerPath, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, latitude, longitude, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) SendContact(ctx context.Context, chatID int64, phoneNumber, firstName string, opts *tgtypes.SendOptions) (*tgtypes.Message, error) {
	args := m.Called(ctx, chatID, phoneNumber, firstName, opts)
	return messageOrNil(args), args.Error(1)
}

func (m *mockBotClient) CreateForumTopic(ctx context.Context, chatID int64, name string, iconColor int) (*tgtypes.ForumTopic, error) {
	args := m.Called(ctx, chatID, name, iconColor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgtypes.ForumTopic), args.Error(1)
}

func (m *mockBotClient) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	args := m.Called(ctx, chatID, threadID, name)
	return args.Error(0)
}

func (m *mockBotClient) SendChatAction(ctx context.Context, chatID, threadID int64, action string) error {
	args := m.Called(ctx, chatID, threadID, action)
	return args.Error(0)
}

func (m *mockBotClient) SetMessageReaction(ctx context.Context, chatID int64, messageID int, emoji string) error {
	args := m.Called(ctx, chatID, messageID, emoji)
	return args.Error(0)
}

func (m *mockBotClient) PinChatMessage(ctx context.Context, chatID int64, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *mockBotClient) GetFile(ctx context.Context, fileID string) (*tgtypes.File, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tgtypes.File), args.Error(1)
}

func (m *mockBotClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func messageOrNil(args mock.Arguments) *tgtypes.Message {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*tgtypes.Message)
}

type mockDatabase struct {
	mock.Mock
}

func (m *mockDatabase) LoadAll(ctx context.Context) (*models.MappingSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MappingSnapshot), args.Error(1)
}

func (m *mockDatabase) UpsertChat(ctx context.Context, mapping *models.ChatMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockDatabase) DeleteChat(ctx context.Context, whatsappJID string) error {
	args := m.Called(ctx, whatsappJID)
	return args.Error(0)
}

func (m *mockDatabase) TouchChatActivity(ctx context.Context, mapping *models.ChatMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockDatabase) UpsertUser(ctx context.Context, mapping *models.UserMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

func (m *mockDatabase) UpsertContact(ctx context.Context, mapping *models.ContactMapping) error {
	args := m.Called(ctx, mapping)
	return args.Error(0)
}

type mockMediaHandler struct {
	mock.Mock
}

func (m *mockMediaHandler) Stage(data []byte, ext string) (string, error) {
	args := m.Called(data, ext)
	return args.String(0), args.Error(1)
}

func (m *mockMediaHandler) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	args := m.Called(ctx, mediaURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockMediaHandler) Discard(path string) {
	m.Called(path)
}

func (m *mockMediaHandler) CleanupOldFiles(maxAgeSec int64) error {
	args := m.Called(maxAgeSec)
	return args.Error(0)
}

func (m *mockMediaHandler) TempDir() string {
	args := m.Called()
	return args.String(0)
}

var _ media.Handler = (*mockMediaHandler)(nil)

// flagStub answers IsEnabled from a fixed map; unlisted flags are enabled.
type flagStub struct {
	disabled map[string]bool
}

func (f *flagStub) IsEnabled(flagName string) bool {
	return !f.disabled[flagName]
}

func allFlagsOn() *flagStub {
	return &flagStub{disabled: map[string]bool{}}
}

func flagsOff(names ...string) *flagStub {
	disabled := make(map[string]bool, len(names))
	for _, n := range names {
		disabled[n] = true
	}
	return &flagStub{disabled: disabled}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestBridge builds a bridge over mocks with permissive defaults for the
// persistence calls every path makes.
func newTestBridge(wa *mockWAClient, tg *mockBotClient, db *mockDatabase, mediaHandler *mockMediaHandler) *Bridge {
	registry := metrics.NewRegistry()
	cfg := models.TelegramConfig{SupergroupID: -100200300, OwnerID: 777}
	return NewBridge(wa, tg, db, mediaHandler, nil, allFlagsOn(), metrics.NewBridgeMetrics(registry), cfg, testLogger())
}

package service

import (
	"context"
	"testing"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	"watgbridge/internal/models"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSupergroup int64 = -100200300
	testOwner      int64 = 777
)

type tgHandlerFixture struct {
	wa      *mockWAClient
	tg      *mockBotClient
	db      *mockDatabase
	media   *mockMediaHandler
	bridge  *Bridge
	handler *TelegramHandler
}

func newTestTGHandler(t *testing.T, flags FlagChecker) *tgHandlerFixture {
	t.Helper()
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	mediaHandler := &mockMediaHandler{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil).Maybe()
	db.On("DeleteChat", mock.Anything, mock.Anything).Return(nil).Maybe()
	db.On("TouchChatActivity", mock.Anything, mock.Anything).Return(nil).Maybe()

	bridge := newTestBridge(wa, tg, db, mediaHandler)
	bridge.flags = flags
	topics := NewTopicManager(bridge, wa, tg, flags, testSupergroup, testLogger())
	topics.probeDelay = 0
	contacts := NewContactService(bridge, wa, testLogger())
	presence := NewPresenceCoordinator(wa, flags, testLogger())
	t.Cleanup(presence.Stop)
	commands := NewCommandRouter(bridge, topics, contacts, features.NewFlagManager(models.FeatureConfig{}), testLogger())
	h := NewTelegramHandler(bridge, presence, commands, flags, testSupergroup, testOwner, testLogger())

	return &tgHandlerFixture{
		wa:      wa,
		tg:      tg,
		db:      db,
		media:   mediaHandler,
		bridge:  bridge,
		handler: h,
	}
}

func topicMessage(threadID int64, text string) *tgtypes.Update {
	return &tgtypes.Update{
		UpdateID: 1,
		Message: &tgtypes.Message{
			MessageID:       500,
			From:            &tgtypes.User{ID: testOwner, FirstName: "Op"},
			Chat:            tgtypes.Chat{ID: testSupergroup, Type: "supergroup"},
			Date:            time.Now().Unix(),
			Text:            text,
			MessageThreadID: threadID,
			IsTopicMessage:  true,
		},
	}
}

func TestTelegramHandler_TopicReply_RelaysText(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	jid := "15551234567@s.whatsapp.net"
	require.NoError(t, f.bridge.BindChat(ctx, jid, 42))

	f.wa.On("SendPresenceUpdate", mock.Anything, jid, watypes.PresenceComposing).Return(nil)
	f.wa.On("SendText", mock.Anything, jid, "on my way").Return(&watypes.SendResult{}, nil)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "✅").Return(nil)

	require.NoError(t, f.handler.HandleUpdate(ctx, topicMessage(42, "on my way")))

	f.wa.AssertExpectations(t)
	f.tg.AssertExpectations(t)
}

func TestTelegramHandler_IgnoresStrangers(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	require.NoError(t, f.bridge.BindChat(context.Background(), "15551234567@s.whatsapp.net", 42))

	update := topicMessage(42, "hijack attempt")
	update.Message.From.ID = 999999
	require.NoError(t, f.handler.HandleUpdate(context.Background(), update))

	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelegramHandler_IgnoresBots(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	update := topicMessage(42, "beep")
	update.Message.From.IsBot = true
	require.NoError(t, f.handler.HandleUpdate(context.Background(), update))
	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelegramHandler_UnboundTopic_ReactsWithFailure(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "❌").Return(nil)

	require.NoError(t, f.handler.HandleUpdate(context.Background(), topicMessage(42, "into the void")))

	f.tg.AssertExpectations(t)
	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelegramHandler_RelayFailure_ReactsWithFailure(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	jid := "15551234567@s.whatsapp.net"
	require.NoError(t, f.bridge.BindChat(ctx, jid, 42))

	f.wa.On("SendPresenceUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.wa.On("SendText", mock.Anything, jid, mock.Anything).Return(nil, assert.AnError)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "❌").Return(nil)

	require.NoError(t, f.handler.HandleUpdate(ctx, topicMessage(42, "gone")))

	f.tg.AssertExpectations(t)
}

func TestTelegramHandler_BiDirectionalDisabled_DropsMessage(t *testing.T) {
	f := newTestTGHandler(t, flagsOff(features.FlagBiDirectional))
	require.NoError(t, f.bridge.BindChat(context.Background(), "15551234567@s.whatsapp.net", 42))

	require.NoError(t, f.handler.HandleUpdate(context.Background(), topicMessage(42, "not going out")))

	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

func TestTelegramHandler_StatusTopicReply_TargetsPoster(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	require.NoError(t, f.bridge.BindChat(ctx, constants.StatusBroadcastJID, 7))
	f.bridge.TrackStatusMessage(1234, "15551234567@s.whatsapp.net")

	f.wa.On("SendPresenceUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.wa.On("SendText", mock.Anything, "15551234567@s.whatsapp.net", "nice view!").Return(&watypes.SendResult{}, nil)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "✅").Return(nil)

	update := topicMessage(7, "nice view!")
	update.Message.ReplyToMessage = &tgtypes.Message{MessageID: 1234}
	require.NoError(t, f.handler.HandleUpdate(ctx, update))

	f.wa.AssertExpectations(t)
}

func TestTelegramHandler_StatusTopicMessage_WithoutReply_Fails(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	require.NoError(t, f.bridge.BindChat(context.Background(), constants.StatusBroadcastJID, 7))
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "❌").Return(nil)

	require.NoError(t, f.handler.HandleUpdate(context.Background(), topicMessage(7, "who am I talking to")))

	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
	f.tg.AssertExpectations(t)
}

func TestTelegramHandler_Photo_StagedAndSent(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	jid := "15551234567@s.whatsapp.net"
	require.NoError(t, f.bridge.BindChat(ctx, jid, 42))

	payload := []byte{0xFF, 0xD8}
	f.wa.On("SendPresenceUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.tg.On("DownloadFile", mock.Anything, "photo-big").Return(payload, nil)
	f.media.On("Stage", payload, "jpg").Return("/tmp/stage/out.jpg", nil)
	f.media.On("Discard", "/tmp/stage/out.jpg").Return()
	f.wa.On("SendImage", mock.Anything, jid, "/tmp/stage/out.jpg", "check this", false).Return(&watypes.SendResult{}, nil)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "✅").Return(nil)

	update := topicMessage(42, "")
	update.Message.Caption = "check this"
	update.Message.Photo = []tgtypes.PhotoSize{
		{FileID: "photo-small", Width: 90, Height: 90},
		{FileID: "photo-big", Width: 1280, Height: 1280},
	}
	require.NoError(t, f.handler.HandleUpdate(ctx, update))

	f.wa.AssertExpectations(t)
	f.media.AssertExpectations(t)
}

func TestTelegramHandler_AnimatedSticker_FallsBackToEmoji(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	jid := "15551234567@s.whatsapp.net"
	require.NoError(t, f.bridge.BindChat(ctx, jid, 42))

	f.wa.On("SendPresenceUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.wa.On("SendText", mock.Anything, jid, "😂").Return(&watypes.SendResult{}, nil)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "✅").Return(nil)

	update := topicMessage(42, "")
	update.Message.Sticker = &tgtypes.Sticker{FileID: "stick-1", Emoji: "😂", IsAnimated: true}
	require.NoError(t, f.handler.HandleUpdate(ctx, update))

	f.wa.AssertExpectations(t)
}

func TestTelegramHandler_Contact_BuildsVCard(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	ctx := context.Background()
	jid := "15551234567@s.whatsapp.net"
	require.NoError(t, f.bridge.BindChat(ctx, jid, 42))

	f.wa.On("SendPresenceUpdate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.wa.On("SendContact", mock.Anything, jid, "Alice Smith",
		mock.MatchedBy(func(vcard string) bool {
			return vcardPhone(vcard) == "+15552223333"
		})).Return(&watypes.SendResult{}, nil)
	f.tg.On("SetMessageReaction", mock.Anything, testSupergroup, 500, "✅").Return(nil)

	update := topicMessage(42, "")
	update.Message.Contact = &tgtypes.Contact{PhoneNumber: "+15552223333", FirstName: "Alice", LastName: "Smith"}
	require.NoError(t, f.handler.HandleUpdate(ctx, update))

	f.wa.AssertExpectations(t)
}

func TestTelegramHandler_MessageOutsideSupergroup_Ignored(t *testing.T) {
	f := newTestTGHandler(t, allFlagsOn())
	update := topicMessage(42, "hello")
	update.Message.Chat.ID = 123456
	require.NoError(t, f.handler.HandleUpdate(context.Background(), update))
	f.wa.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything)
}

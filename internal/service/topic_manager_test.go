package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/features"
	tgtypes "watgbridge/pkg/telegram/types"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestTopicManager(wa *mockWAClient, tg *mockBotClient, db *mockDatabase, flags FlagChecker) (*TopicManager, *Bridge) {
	bridge := newTestBridge(wa, tg, db, &mockMediaHandler{})
	tm := NewTopicManager(bridge, wa, tg, flags, bridge.supergroupID, testLogger())
	tm.probeDelay = 0
	return tm, bridge
}

func TestTopicManager_TopicTitle(t *testing.T) {
	wa := &mockWAClient{}
	wa.On("GroupMetadata", mock.Anything, "120363000000000001@g.us").
		Return(&watypes.GroupMetadata{JID: "120363000000000001@g.us", Subject: "Book Club"}, nil)
	wa.On("GroupMetadata", mock.Anything, "120363000000000002@g.us").
		Return(nil, assert.AnError)

	db := &mockDatabase{}
	db.On("UpsertUser", mock.Anything, mock.Anything).Return(nil)
	db.On("UpsertContact", mock.Anything, mock.Anything).Return(nil)

	tm, bridge := newTestTopicManager(wa, &mockBotClient{}, db, allFlagsOn())
	ctx := context.Background()

	bridge.RecordSender(ctx, "15550001111@s.whatsapp.net", "Pushy")
	require.NoError(t, bridge.SetContactName(ctx, "15552223333", "Saved Name"))

	tests := []struct {
		name      string
		jid       string
		wantTitle string
		wantColor int
	}{
		{"status pseudo chat", constants.StatusBroadcastJID, constants.StatusTopicName, constants.StatusTopicIconColor},
		{"call pseudo chat", constants.CallBroadcastJID, constants.CallTopicName, constants.CallTopicIconColor},
		{"group with subject", "120363000000000001@g.us", "Book Club", constants.GroupTopicIconColor},
		{"group metadata unavailable", "120363000000000002@g.us", "Group Chat", constants.GroupTopicIconColor},
		{"saved contact name", "15552223333@s.whatsapp.net", "Saved Name", constants.ChatTopicIconColor},
		{"push name fallback", "15550001111@s.whatsapp.net", "Pushy", constants.ChatTopicIconColor},
		{"unknown user", "15559998888@s.whatsapp.net", "+15559998888", constants.ChatTopicIconColor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, color := tm.topicTitle(ctx, tt.jid)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantColor, color)
		})
	}
}

func TestTopicManager_EnsureTopic_CreatesAndDecorates(t *testing.T) {
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)

	tg.On("CreateForumTopic", mock.Anything, mock.Anything, "+15551234567", constants.ChatTopicIconColor).
		Return(&tgtypes.ForumTopic{MessageThreadID: 404, Name: "+15551234567"}, nil)
	wa.On("FetchStatus", mock.Anything, "15551234567@s.whatsapp.net").
		Return(&watypes.UserStatus{Status: "Out riding"}, nil)
	// The pinned welcome carries the contact's bio line.
	tg.On("SendMessage", mock.Anything, mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "💬 Chat with") && strings.Contains(text, "📝 Out riding")
	}), mock.Anything).Return(&tgtypes.Message{MessageID: 88}, nil)
	tg.On("PinChatMessage", mock.Anything, mock.Anything, 88).Return(nil)

	flags := flagsOff(features.FlagProfilePicSync)
	tm, bridge := newTestTopicManager(wa, tg, db, flags)

	topicID, err := tm.EnsureTopic(context.Background(), "15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, int64(404), topicID)

	tg.AssertExpectations(t)

	// Binding is recorded both ways.
	bound, ok := bridge.TopicForJID("15551234567@s.whatsapp.net")
	require.True(t, ok)
	assert.Equal(t, int64(404), bound)
	jid, ok := bridge.JIDForTopic(404)
	require.True(t, ok)
	assert.Equal(t, "15551234567@s.whatsapp.net", jid)
}

func TestTopicManager_EnsureTopic_ReturnsExisting(t *testing.T) {
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)

	tm, bridge := newTestTopicManager(wa, tg, db, allFlagsOn())
	require.NoError(t, bridge.BindChat(context.Background(), "15551234567@s.whatsapp.net", 42))

	topicID, err := tm.EnsureTopic(context.Background(), "15551234567@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, int64(42), topicID)
	tg.AssertNotCalled(t, "CreateForumTopic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopicManager_EnsureTopic_CollapsesConcurrentCreates(t *testing.T) {
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)

	tg.On("CreateForumTopic", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&tgtypes.ForumTopic{MessageThreadID: 500}, nil).
		After(20 * time.Millisecond)

	flags := flagsOff(features.FlagSendWelcome, features.FlagProfilePicSync)
	tm, _ := newTestTopicManager(wa, tg, db, flags)

	var wg sync.WaitGroup
	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topicID, err := tm.EnsureTopic(context.Background(), "15551234567@s.whatsapp.net")
			require.NoError(t, err)
			results[i] = topicID
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, int64(500), r)
	}
	tg.AssertNumberOfCalls(t, "CreateForumTopic", 1)
}

func TestTopicManager_VerifyTopics_RepairsDeadTopic(t *testing.T) {
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)
	db.On("DeleteChat", mock.Anything, mock.Anything).Return(nil)

	threadGone := &tgtypes.APIError{Code: 400, Description: "Bad Request: message thread not found"}
	tg.On("SendChatAction", mock.Anything, mock.Anything, int64(42), "typing").Return(threadGone)
	tg.On("CreateForumTopic", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&tgtypes.ForumTopic{MessageThreadID: 43}, nil)

	flags := flagsOff(features.FlagSendWelcome, features.FlagProfilePicSync)
	tm, bridge := newTestTopicManager(wa, tg, db, flags)
	require.NoError(t, bridge.BindChat(context.Background(), "15551234567@s.whatsapp.net", 42))

	tm.VerifyTopics(context.Background())

	topicID, ok := bridge.TopicForJID("15551234567@s.whatsapp.net")
	require.True(t, ok)
	assert.Equal(t, int64(43), topicID)
}

func TestTopicManager_VerifyTopics_CooldownSkipsSweep(t *testing.T) {
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)

	tm, bridge := newTestTopicManager(&mockWAClient{}, tg, db, allFlagsOn())
	require.NoError(t, bridge.BindChat(context.Background(), "15551234567@s.whatsapp.net", 42))

	now := time.Now()
	tm.now = func() time.Time { return now }
	tm.lastVerify = now.Add(-time.Second)

	tm.VerifyTopics(context.Background())
	tg.AssertNotCalled(t, "SendChatAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopicManager_RefreshTopicNames(t *testing.T) {
	wa := &mockWAClient{}
	tg := &mockBotClient{}
	db := &mockDatabase{}
	db.On("UpsertChat", mock.Anything, mock.Anything).Return(nil)
	db.On("UpsertContact", mock.Anything, mock.Anything).Return(nil)

	tg.On("EditForumTopic", mock.Anything, mock.Anything, int64(42), "Alice Saved").Return(nil)

	tm, bridge := newTestTopicManager(wa, tg, db, allFlagsOn())
	ctx := context.Background()

	// Chat with a resolvable name gets renamed, the unnamed one is skipped.
	require.NoError(t, bridge.BindChat(ctx, "15551234567@s.whatsapp.net", 42))
	require.NoError(t, bridge.BindChat(ctx, "15559990000@s.whatsapp.net", 43))
	require.NoError(t, bridge.SetContactName(ctx, "15551234567", "Alice Saved"))

	updated := tm.RefreshTopicNames(ctx)
	assert.Equal(t, 1, updated)
	tg.AssertNumberOfCalls(t, "EditForumTopic", 1)
}

func TestTopicManager_RenameTopic_NoBindingIsNoop(t *testing.T) {
	tg := &mockBotClient{}
	tm, _ := newTestTopicManager(&mockWAClient{}, tg, &mockDatabase{}, allFlagsOn())

	tm.RenameTopic(context.Background(), "nobody@s.whatsapp.net", "New Name")
	tg.AssertNotCalled(t, "EditForumTopic", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

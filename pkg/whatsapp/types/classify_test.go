package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMessage_Conversation(t *testing.T) {
	raw := &RawMessage{
		Key:              MessageKey{ID: "M1", RemoteJID: "15551234567@s.whatsapp.net"},
		PushName:         "Alice",
		MessageTimestamp: 1740000000,
		Message:          &RawContent{Conversation: "hello"},
	}
	msg := ClassifyMessage(raw)

	assert.Equal(t, ContentText, msg.Content.Kind)
	assert.Equal(t, "hello", msg.Content.Text)
	assert.Equal(t, "Alice", msg.PushName)
	assert.Equal(t, time.Unix(1740000000, 0), msg.Timestamp)
}

func TestClassifyMessage_ExtendedText(t *testing.T) {
	raw := &RawMessage{Message: &RawContent{ExtendedText: &RawExtendedText{Text: "check https://example.com"}}}
	msg := ClassifyMessage(raw)

	assert.Equal(t, ContentText, msg.Content.Kind)
	assert.Equal(t, "check https://example.com", msg.Content.Text)
}

func TestClassifyMessage_Image(t *testing.T) {
	raw := &RawMessage{Message: &RawContent{ImageMessage: &RawMediaContent{
		MediaRef: MediaRef{URL: "https://gw/media/1", MimeType: "image/jpeg"},
		Caption:  "the beach",
		ViewOnce: true,
	}}}
	msg := ClassifyMessage(raw)

	assert.Equal(t, ContentImage, msg.Content.Kind)
	assert.Equal(t, "the beach", msg.Content.Text)
	assert.True(t, msg.Content.ViewOnce)
	require.NotNil(t, msg.Content.Media)
	assert.Equal(t, "image/jpeg", msg.Content.Media.MimeType)
}

func TestClassifyMessage_VideoVariants(t *testing.T) {
	gif := &RawMessage{Message: &RawContent{VideoMessage: &RawVideoContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u"}},
		GifPlayback:     true,
	}}}
	assert.Equal(t, ContentVideo, ClassifyMessage(gif).Content.Kind)
	assert.True(t, ClassifyMessage(gif).Content.GifPlayback)

	// A ptv-flagged video is a video note, whichever field carries it.
	flagged := &RawMessage{Message: &RawContent{VideoMessage: &RawVideoContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u"}},
		PTV:             true,
	}}}
	assert.Equal(t, ContentVideoNote, ClassifyMessage(flagged).Content.Kind)

	dedicated := &RawMessage{Message: &RawContent{PtvMessage: &RawVideoContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u"}},
	}}}
	assert.Equal(t, ContentVideoNote, ClassifyMessage(dedicated).Content.Kind)
}

func TestClassifyMessage_AudioVariants(t *testing.T) {
	voice := &RawMessage{Message: &RawContent{AudioMessage: &RawAudioContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u", MimeType: "audio/ogg"}},
		PTT:             true,
	}}}
	assert.Equal(t, ContentVoice, ClassifyMessage(voice).Content.Kind)

	track := &RawMessage{Message: &RawContent{AudioMessage: &RawAudioContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u", MimeType: "audio/mpeg"}},
		Title:           "Song Title",
	}}}
	msg := ClassifyMessage(track)
	assert.Equal(t, ContentAudio, msg.Content.Kind)
	assert.Equal(t, "Song Title", msg.Content.Title)
}

func TestClassifyMessage_DocumentFileNameFallback(t *testing.T) {
	raw := &RawMessage{Message: &RawContent{DocumentMessage: &RawDocumentContent{
		RawMediaContent: RawMediaContent{MediaRef: MediaRef{URL: "u", MimeType: "application/pdf"}},
		FileName:        "invoice.pdf",
	}}}
	msg := ClassifyMessage(raw)

	assert.Equal(t, ContentDocument, msg.Content.Kind)
	require.NotNil(t, msg.Content.Media)
	assert.Equal(t, "invoice.pdf", msg.Content.Media.FileName)
}

func TestClassifyMessage_LocationAndContact(t *testing.T) {
	loc := &RawMessage{Message: &RawContent{LocationMessage: &Location{Latitude: 51.5, Longitude: -0.12, Name: "London"}}}
	msg := ClassifyMessage(loc)
	assert.Equal(t, ContentLocation, msg.Content.Kind)
	require.NotNil(t, msg.Content.Location)
	assert.Equal(t, "London", msg.Content.Location.Name)

	card := &RawMessage{Message: &RawContent{ContactMessage: &ContactCard{DisplayName: "Alice", VCard: "BEGIN:VCARD"}}}
	msg = ClassifyMessage(card)
	assert.Equal(t, ContentContact, msg.Content.Kind)
	require.NotNil(t, msg.Content.ContactCard)
	assert.Equal(t, "Alice", msg.Content.ContactCard.DisplayName)
}

func TestClassifyMessage_Unknown(t *testing.T) {
	assert.Equal(t, ContentUnknown, ClassifyMessage(&RawMessage{}).Content.Kind)
	assert.Equal(t, ContentUnknown, ClassifyMessage(&RawMessage{Message: &RawContent{}}).Content.Kind)

	// Reaction and protocol messages decode to an empty envelope.
	var raw RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"key":{"id":"M1"},"message":{"reactionMessage":{"text":"👍"}}}`), &raw))
	assert.Equal(t, ContentUnknown, ClassifyMessage(&raw).Content.Kind)
}

func TestJIDHelpers(t *testing.T) {
	assert.True(t, IsUserJID("15551234567@s.whatsapp.net"))
	assert.False(t, IsUserJID("120363000000000001@g.us"))
	assert.True(t, IsGroupJID("120363000000000001@g.us"))
	assert.Equal(t, "15551234567", PhoneFromJID("15551234567@s.whatsapp.net"))
	assert.Equal(t, "bare", PhoneFromJID("bare"))
}

func TestMessageSenderJID(t *testing.T) {
	direct := &Message{Key: MessageKey{RemoteJID: "15551234567@s.whatsapp.net"}}
	assert.Equal(t, "15551234567@s.whatsapp.net", direct.SenderJID())

	group := &Message{Key: MessageKey{
		RemoteJID:   "120363000000000001@g.us",
		Participant: "15552223333@s.whatsapp.net",
	}}
	assert.Equal(t, "15552223333@s.whatsapp.net", group.SenderJID())
	assert.Equal(t, "120363000000000001@g.us", group.ChatJID())
}

package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ClientConfig holds the settings for the gateway REST client.
type ClientConfig struct {
	BaseURL     string
	APIKey      string
	SessionName string
	Timeout     time.Duration
	RetryCount  int
}

// MessageKey identifies a WhatsApp message for receipts and replies.
type MessageKey struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	Participant string `json:"participant,omitempty"`
	FromMe      bool   `json:"fromMe"`
}

// SendResult is returned by every send primitive.
type SendResult struct {
	Key       MessageKey `json:"key"`
	Timestamp int64      `json:"timestamp"`
}

// GroupMetadata describes a WhatsApp group.
type GroupMetadata struct {
	JID          string `json:"jid"`
	Subject      string `json:"subject"`
	Participants int    `json:"participants"`
	Creation     int64  `json:"creation"`
}

// UserStatus is the about/bio text of a contact.
type UserStatus struct {
	Status string `json:"status"`
	SetAt  int64  `json:"setAt"`
}

// PresenceType mirrors the gateway's presence states.
type PresenceType string

const (
	PresenceAvailable PresenceType = "available"
	PresenceComposing PresenceType = "composing"
	PresencePaused    PresenceType = "paused"
)

// ContentKind is the closed set of inbound message content kinds. Every
// consumer switches over it exhaustively; unknown content is routed to
// ContentUnknown by the classifier, never invented downstream.
type ContentKind string

const (
	ContentText      ContentKind = "text"
	ContentImage     ContentKind = "image"
	ContentVideo     ContentKind = "video"
	ContentVideoNote ContentKind = "video_note"
	ContentAudio     ContentKind = "audio"
	ContentVoice     ContentKind = "voice"
	ContentDocument  ContentKind = "document"
	ContentSticker   ContentKind = "sticker"
	ContentLocation  ContentKind = "location"
	ContentContact   ContentKind = "contact"
	ContentUnknown   ContentKind = "unknown"
)

// MediaRef points at downloadable attachment content on the gateway.
type MediaRef struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileLength,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}

// Location is a shared geographic position.
type Location struct {
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
	Name      string  `json:"name,omitempty"`
}

// ContactCard is a shared vCard.
type ContactCard struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard"`
}

// MessageContent is the tagged variant produced by ClassifyMessage. Exactly
// the fields implied by Kind are set.
type MessageContent struct {
	Kind        ContentKind
	Text        string // body for text, caption for media
	Media       *MediaRef
	Location    *Location
	ContactCard *ContactCard
	GifPlayback bool
	ViewOnce    bool
	Title       string // audio title when the sender supplied one
}

// Message is one inbound WhatsApp message after classification.
type Message struct {
	Key       MessageKey
	PushName  string
	Timestamp time.Time
	Content   MessageContent
}

// ChatJID returns the conversation the message belongs to.
func (m *Message) ChatJID() string {
	return m.Key.RemoteJID
}

// SenderJID returns the participant that authored the message. In direct
// chats the participant field is empty and the chat JID is the sender.
func (m *Message) SenderJID() string {
	if m.Key.Participant != "" {
		return m.Key.Participant
	}
	return m.Key.RemoteJID
}

// CallEvent is an incoming call notification.
type CallEvent struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	Status string `json:"status"`
}

// ContactUpdate is one entry from any of the contact discovery signals.
type ContactUpdate struct {
	JID          string `json:"jid"`
	Name         string `json:"name,omitempty"`
	Notify       string `json:"notify,omitempty"`
	VerifiedName string `json:"verifiedName,omitempty"`
}

// ChatListEntry is one conversation from the gateway's chat overview.
type ChatListEntry struct {
	JID  string `json:"jid"`
	Name string `json:"name,omitempty"`
}

// GroupUpdate signals a change to group metadata.
type GroupUpdate struct {
	JID     string `json:"jid"`
	Subject string `json:"subject,omitempty"`
}

// ProfilePictureUpdate signals a changed avatar.
type ProfilePictureUpdate struct {
	JID string `json:"jid"`
	URL string `json:"url,omitempty"`
}

// ConnectionUpdate reports gateway session state transitions.
type ConnectionUpdate struct {
	State string `json:"state"` // connecting, open, close
}

// Event envelope delivered over the webhook or the websocket stream.
type Event struct {
	Type    string          `json:"event"`
	Session string          `json:"session,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Event types carried in the envelope.
const (
	EventMessage          = "message"
	EventCall             = "call"
	EventContactsUpdate   = "contacts.update"
	EventGroupUpdate      = "groups.update"
	EventProfilePicUpdate = "profile-picture.update"
	EventConnectionUpdate = "connection.update"
)

// IsGroupJID reports whether the JID addresses a group conversation.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// IsUserJID reports whether the JID addresses an individual.
func IsUserJID(jid string) bool {
	return strings.HasSuffix(jid, "@s.whatsapp.net")
}

// PhoneFromJID strips the domain suffix, leaving the bare phone number.
func PhoneFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}

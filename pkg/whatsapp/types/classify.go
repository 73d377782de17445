package types

import "time"

// RawMessage is the loosely-typed message shape the gateway emits. It is
// decoded once and immediately classified into a Message; nothing outside
// this file inspects the optional sub-message fields.
type RawMessage struct {
	Key              MessageKey  `json:"key"`
	PushName         string      `json:"pushName,omitempty"`
	MessageTimestamp int64       `json:"messageTimestamp"`
	Message          *RawContent `json:"message,omitempty"`
}

// RawContent mirrors the gateway's protobuf-derived content envelope: at most
// one of the sub-messages is populated.
type RawContent struct {
	Conversation    string              `json:"conversation,omitempty"`
	ExtendedText    *RawExtendedText    `json:"extendedTextMessage,omitempty"`
	ImageMessage    *RawMediaContent    `json:"imageMessage,omitempty"`
	VideoMessage    *RawVideoContent    `json:"videoMessage,omitempty"`
	PtvMessage      *RawVideoContent    `json:"ptvMessage,omitempty"`
	AudioMessage    *RawAudioContent    `json:"audioMessage,omitempty"`
	DocumentMessage *RawDocumentContent `json:"documentMessage,omitempty"`
	StickerMessage  *RawMediaContent    `json:"stickerMessage,omitempty"`
	LocationMessage *Location           `json:"locationMessage,omitempty"`
	ContactMessage  *ContactCard        `json:"contactMessage,omitempty"`
}

type RawExtendedText struct {
	Text string `json:"text"`
}

type RawMediaContent struct {
	MediaRef
	Caption  string `json:"caption,omitempty"`
	ViewOnce bool   `json:"viewOnce,omitempty"`
}

type RawVideoContent struct {
	RawMediaContent
	GifPlayback bool `json:"gifPlayback,omitempty"`
	PTV         bool `json:"ptv,omitempty"`
}

type RawAudioContent struct {
	RawMediaContent
	PTT   bool   `json:"ptt,omitempty"`
	Title string `json:"title,omitempty"`
}

type RawDocumentContent struct {
	RawMediaContent
	FileName string `json:"fileName,omitempty"`
}

// ClassifyMessage converts the gateway's loose message shape into the closed
// MessageContent variant. It is the only place that probes the optional
// sub-message fields; order matters because ptv videos must win over plain
// videos and voice notes over plain audio.
func ClassifyMessage(raw *RawMessage) *Message {
	msg := &Message{
		Key:       raw.Key,
		PushName:  raw.PushName,
		Timestamp: time.Unix(raw.MessageTimestamp, 0),
	}

	c := raw.Message
	switch {
	case c == nil:
		msg.Content = MessageContent{Kind: ContentUnknown}
	case c.PtvMessage != nil:
		msg.Content = MessageContent{
			Kind:     ContentVideoNote,
			Text:     c.PtvMessage.Caption,
			Media:    &c.PtvMessage.MediaRef,
			ViewOnce: c.PtvMessage.ViewOnce,
		}
	case c.VideoMessage != nil && c.VideoMessage.PTV:
		msg.Content = MessageContent{
			Kind:     ContentVideoNote,
			Text:     c.VideoMessage.Caption,
			Media:    &c.VideoMessage.MediaRef,
			ViewOnce: c.VideoMessage.ViewOnce,
		}
	case c.ImageMessage != nil:
		msg.Content = MessageContent{
			Kind:     ContentImage,
			Text:     c.ImageMessage.Caption,
			Media:    &c.ImageMessage.MediaRef,
			ViewOnce: c.ImageMessage.ViewOnce,
		}
	case c.VideoMessage != nil:
		msg.Content = MessageContent{
			Kind:        ContentVideo,
			Text:        c.VideoMessage.Caption,
			Media:       &c.VideoMessage.MediaRef,
			GifPlayback: c.VideoMessage.GifPlayback,
			ViewOnce:    c.VideoMessage.ViewOnce,
		}
	case c.AudioMessage != nil && c.AudioMessage.PTT:
		msg.Content = MessageContent{
			Kind:  ContentVoice,
			Media: &c.AudioMessage.MediaRef,
		}
	case c.AudioMessage != nil:
		msg.Content = MessageContent{
			Kind:  ContentAudio,
			Text:  c.AudioMessage.Caption,
			Media: &c.AudioMessage.MediaRef,
			Title: c.AudioMessage.Title,
		}
	case c.DocumentMessage != nil:
		media := c.DocumentMessage.MediaRef
		if media.FileName == "" {
			media.FileName = c.DocumentMessage.FileName
		}
		msg.Content = MessageContent{
			Kind:  ContentDocument,
			Text:  c.DocumentMessage.Caption,
			Media: &media,
		}
	case c.StickerMessage != nil:
		msg.Content = MessageContent{
			Kind:  ContentSticker,
			Media: &c.StickerMessage.MediaRef,
		}
	case c.LocationMessage != nil:
		msg.Content = MessageContent{
			Kind:     ContentLocation,
			Location: c.LocationMessage,
		}
	case c.ContactMessage != nil:
		msg.Content = MessageContent{
			Kind:        ContentContact,
			ContactCard: c.ContactMessage,
		}
	case c.Conversation != "":
		msg.Content = MessageContent{Kind: ContentText, Text: c.Conversation}
	case c.ExtendedText != nil && c.ExtendedText.Text != "":
		msg.Content = MessageContent{Kind: ContentText, Text: c.ExtendedText.Text}
	default:
		msg.Content = MessageContent{Kind: ContentUnknown}
	}

	return msg
}

package models

import "time"

// ChatMapping associates one WhatsApp conversation with one Telegram forum
// topic. The JID is the natural key; at most one live mapping exists per JID.
type ChatMapping struct {
	WhatsAppJID     string    `json:"whatsappJid"`
	TelegramTopicID int64     `json:"telegramTopicId"`
	CreatedAt       time.Time `json:"createdAt"`
	LastActivity    time.Time `json:"lastActivity"`
}

// UserMapping tracks a WhatsApp participant independent of which chat they
// post in. In groups many participants share one chat mapping.
type UserMapping struct {
	WhatsAppID   string    `json:"whatsappId"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone"`
	FirstSeen    time.Time `json:"firstSeen"`
	MessageCount int       `json:"messageCount"`
	LastSeen     time.Time `json:"lastSeen"`
}

// ContactMapping is a phone-to-display-name association learned from the
// contact discovery signals. Keyed by bare phone number, no domain suffix.
type ContactMapping struct {
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MappingSnapshot is the result of a bulk load at startup, used to warm the
// in-memory caches. All slices may be empty on a fresh install.
type MappingSnapshot struct {
	Chats    []ChatMapping
	Users    []UserMapping
	Contacts []ContactMapping
}

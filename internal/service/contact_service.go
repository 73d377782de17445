package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"watgbridge/internal/constants"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// ContactService discovers human-readable contact names and feeds accepted
// ones into the bridge's contact table. Discovery signals run isolated, so
// one failing source never blocks the others.
type ContactService struct {
	bridge   *Bridge
	waClient watypes.WAClient
	logger   *logrus.Logger
}

func NewContactService(bridge *Bridge, waClient watypes.WAClient, logger *logrus.Logger) *ContactService {
	return &ContactService{
		bridge:   bridge,
		waClient: waClient,
		logger:   logger,
	}
}

// AcceptCandidate decides whether a discovered name is worth storing for a
// phone. Names that are empty, phone-shaped, too short, or identical to the
// stored name are rejected.
func (cs *ContactService) AcceptCandidate(phone, name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= 2 {
		return false
	}
	if strings.HasPrefix(name, "+") {
		return false
	}
	if name == phone || phoneDigits(name) == phone {
		return false
	}
	if current, ok := cs.bridge.ContactName(phone); ok && current == name {
		return false
	}
	return true
}

// Accept stores a candidate name if it passes the filter. Reports whether
// the name was taken.
func (cs *ContactService) Accept(ctx context.Context, phone, name string) bool {
	if !cs.AcceptCandidate(phone, name) {
		return false
	}
	if err := cs.bridge.SetContactName(ctx, phone, strings.TrimSpace(name)); err != nil {
		cs.logger.WithError(err).WithField("phone", phone).Warn("Failed to store contact name")
		return false
	}
	return true
}

// HandleContactsUpdate processes a push of changed contacts from the
// gateway, one of the three discovery signals.
func (cs *ContactService) HandleContactsUpdate(ctx context.Context, updates []watypes.ContactUpdate) int {
	accepted := 0
	for _, u := range updates {
		if !watypes.IsUserJID(u.JID) {
			continue
		}
		phone := watypes.PhoneFromJID(u.JID)
		if cs.acceptFirst(ctx, phone, u.Name, u.VerifiedName, u.Notify) {
			accepted++
		}
	}
	if accepted > 0 {
		cs.bridge.metrics.ContactsSynced(accepted)
	}
	return accepted
}

// SyncFromDirectory pulls the gateway's full contact list, the second
// discovery signal. Used by the operator sync command and at startup.
func (cs *ContactService) SyncFromDirectory(ctx context.Context) (int, error) {
	contacts, err := cs.waClient.FetchContacts(ctx)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, u := range contacts {
		if !watypes.IsUserJID(u.JID) {
			continue
		}
		phone := watypes.PhoneFromJID(u.JID)
		if cs.acceptFirst(ctx, phone, u.Name, u.VerifiedName, u.Notify) {
			accepted++
		}
		// Small pause keeps a large directory from monopolizing the DB.
		select {
		case <-ctx.Done():
			return accepted, ctx.Err()
		case <-time.After(time.Duration(constants.DefaultContactSyncDelayMs) * time.Millisecond):
		}
	}

	if accepted > 0 {
		cs.bridge.metrics.ContactsSynced(accepted)
	}
	cs.logger.WithFields(logrus.Fields{
		"scanned":  len(contacts),
		"accepted": accepted,
	}).Info("Contact directory sync finished")
	return accepted, nil
}

// SyncFromChatList harvests names off the open chat list, the third
// discovery signal. Chat names are lower quality, so the same filter gates
// them.
func (cs *ContactService) SyncFromChatList(ctx context.Context) (int, error) {
	chats, err := cs.waClient.FetchChats(ctx)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, chat := range chats {
		if !watypes.IsUserJID(chat.JID) {
			continue
		}
		phone := watypes.PhoneFromJID(chat.JID)
		if cs.Accept(ctx, phone, chat.Name) {
			accepted++
		}
	}

	if accepted > 0 {
		cs.bridge.metrics.ContactsSynced(accepted)
	}
	return accepted, nil
}

// Search finds stored contacts whose name or phone contains the query,
// case-insensitively.
func (cs *ContactService) Search(query string) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	cs.bridge.mu.RLock()
	defer cs.bridge.mu.RUnlock()

	var results []SearchResult
	for phone, name := range cs.bridge.contacts {
		if strings.Contains(strings.ToLower(name), query) || strings.Contains(phone, query) {
			results = append(results, SearchResult{Phone: phone, Name: name})
		}
	}
	return results
}

// SearchResult is one contact directory hit.
type SearchResult struct {
	Phone string
	Name  string
}

// acceptFirst tries discovery signals in trust order (address book name,
// verified business name, self-set notify name) and stores the first one
// that passes the filter. A phone-shaped name in a stronger signal must
// not shadow a usable weaker one.
func (cs *ContactService) acceptFirst(ctx context.Context, phone string, names ...string) bool {
	for _, name := range names {
		if cs.Accept(ctx, phone, name) {
			return true
		}
	}
	return false
}

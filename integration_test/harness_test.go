package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"watgbridge/internal/database"
	"watgbridge/internal/features"
	"watgbridge/internal/metrics"
	"watgbridge/internal/models"
	"watgbridge/internal/service"
	"watgbridge/pkg/media"
	"watgbridge/pkg/telegram"
	"watgbridge/pkg/whatsapp"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testSupergroupID = int64(-1001234567890)
	testOwnerID      = int64(424242)
	testBotToken     = "test-token"
)

// recordedCall is one request captured by a fake upstream.
type recordedCall struct {
	Method string
	Fields map[string]interface{}
}

// fakeTelegram emulates the Bot API surface the bridge touches.
type fakeTelegram struct {
	srv *httptest.Server

	mu            sync.Mutex
	calls         []recordedCall
	nextThreadID  int64
	nextMessageID int
	// failThreads answers "message thread not found" for these thread IDs.
	failThreads map[int64]bool
}

func newFakeTelegram() *fakeTelegram {
	ft := &fakeTelegram{
		nextThreadID:  100,
		nextMessageID: 1000,
		failThreads:   make(map[int64]bool),
	}
	ft.srv = httptest.NewServer(http.HandlerFunc(ft.handle))
	return ft
}

func (ft *fakeTelegram) handle(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	fields := decodeRequest(r)

	ft.mu.Lock()
	ft.calls = append(ft.calls, recordedCall{Method: method, Fields: fields})

	threadID := numField(fields, "message_thread_id")
	if ft.failThreads[threadID] && method != "createForumTopic" {
		ft.mu.Unlock()
		writeJSON(w, map[string]interface{}{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: message thread not found",
		})
		return
	}

	var result interface{}
	switch method {
	case "createForumTopic":
		ft.nextThreadID++
		result = map[string]interface{}{
			"message_thread_id": ft.nextThreadID,
			"name":              fields["name"],
			"icon_color":        fields["icon_color"],
		}
	case "sendMessage", "sendPhoto", "sendVideo", "sendVideoNote", "sendAnimation",
		"sendAudio", "sendVoice", "sendDocument", "sendSticker", "sendLocation", "sendContact":
		ft.nextMessageID++
		result = map[string]interface{}{
			"message_id":        ft.nextMessageID,
			"chat":              map[string]interface{}{"id": testSupergroupID, "type": "supergroup"},
			"message_thread_id": threadID,
		}
	default:
		result = true
	}
	ft.mu.Unlock()

	writeJSON(w, map[string]interface{}{"ok": true, "result": result})
}

// callsFor returns the captured calls for one Bot API method.
func (ft *fakeTelegram) callsFor(method string) []recordedCall {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []recordedCall
	for _, c := range ft.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (ft *fakeTelegram) markThreadDead(threadID int64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.failThreads[threadID] = true
}

// fakeGateway emulates the WhatsApp gateway REST surface.
type fakeGateway struct {
	srv *httptest.Server

	mu       sync.Mutex
	calls    []recordedCall
	nextID   int
	groups   map[string]string // jid -> subject
	contacts []watypes.ContactUpdate
}

func newFakeGateway() *fakeGateway {
	fg := &fakeGateway{
		groups: make(map[string]string),
	}
	fg.srv = httptest.NewServer(http.HandlerFunc(fg.handle))
	return fg
}

func (fg *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	fields := decodeRequest(r)

	fg.mu.Lock()
	fg.calls = append(fg.calls, recordedCall{Method: r.URL.Path, Fields: fields})

	switch r.URL.Path {
	case "/api/contacts":
		contacts := fg.contacts
		fg.mu.Unlock()
		writeJSON(w, contacts)
	case "/api/chats":
		fg.mu.Unlock()
		writeJSON(w, []watypes.ChatListEntry{})
	case "/api/groupMetadata":
		subject := fg.groups[r.URL.Query().Get("jid")]
		fg.mu.Unlock()
		writeJSON(w, watypes.GroupMetadata{
			JID:          r.URL.Query().Get("jid"),
			Subject:      subject,
			Participants: 3,
		})
	default:
		fg.nextID++
		id := fmt.Sprintf("WA%04d", fg.nextID)
		jid, _ := fields["jid"].(string)
		fg.mu.Unlock()
		writeJSON(w, watypes.SendResult{
			Key:       watypes.MessageKey{ID: id, RemoteJID: jid, FromMe: true},
			Timestamp: time.Now().Unix(),
		})
	}
}

func (fg *fakeGateway) callsFor(path string) []recordedCall {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	var out []recordedCall
	for _, c := range fg.calls {
		if c.Method == path {
			out = append(out, c)
		}
	}
	return out
}

// harness wires real service components against fake upstreams and a real
// sqlite database.
type harness struct {
	t  *testing.T
	tg *fakeTelegram
	wa *fakeGateway

	db        *database.Database
	bridge    *service.Bridge
	topics    *service.TopicManager
	contacts  *service.ContactService
	presence  *service.PresenceCoordinator
	waHandler *service.WhatsAppHandler
	tgHandler *service.TelegramHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tg := newFakeTelegram()
	t.Cleanup(tg.srv.Close)
	wa := newFakeGateway()
	t.Cleanup(wa.srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.New(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	waClient := whatsapp.NewClient(watypes.ClientConfig{
		BaseURL:     wa.srv.URL,
		APIKey:      "test-key",
		SessionName: "default",
		Timeout:     5 * time.Second,
	})
	tgClient := telegram.NewClient(testBotToken, tg.srv.URL, 5*time.Second)

	mediaCfg := models.MediaConfig{TempDir: t.TempDir()}
	mediaHandler, err := media.NewHandler(mediaCfg, wa.srv.URL, "test-key", logger)
	require.NoError(t, err)
	transcoder := media.NewTranscoder("", mediaCfg.TempDir, logger)

	// Profile picture sync would pull media on every topic creation; keep
	// the fake surface small.
	off := false
	flags := features.NewFlagManager(models.FeatureConfig{ProfilePicSync: &off})

	registry := metrics.NewRegistry()
	bridgeMetrics := metrics.NewBridgeMetrics(registry)

	tgCfg := models.TelegramConfig{SupergroupID: testSupergroupID, OwnerID: testOwnerID}
	bridge := service.NewBridge(waClient, tgClient, db, mediaHandler, transcoder, flags, bridgeMetrics, tgCfg, logger)
	require.NoError(t, bridge.Warm(context.Background()))

	topics := service.NewTopicManager(bridge, waClient, tgClient, flags, testSupergroupID, logger)
	contacts := service.NewContactService(bridge, waClient, logger)
	presence := service.NewPresenceCoordinator(waClient, flags, logger)
	t.Cleanup(presence.Stop)

	commands := service.NewCommandRouter(bridge, topics, contacts, flags, logger)
	waHandler := service.NewWhatsAppHandler(bridge, topics, contacts, presence, flags, testSupergroupID, testOwnerID, logger)
	tgHandler := service.NewTelegramHandler(bridge, presence, commands, flags, testSupergroupID, testOwnerID, logger)

	return &harness{
		t:         t,
		tg:        tg,
		wa:        wa,
		db:        db,
		bridge:    bridge,
		topics:    topics,
		contacts:  contacts,
		presence:  presence,
		waHandler: waHandler,
		tgHandler: tgHandler,
	}
}

// inboundText delivers a gateway text message event to the WhatsApp handler.
func (h *harness) inboundText(chatJID, senderJID, pushName, text string) {
	h.t.Helper()

	raw := watypes.RawMessage{
		Key: watypes.MessageKey{
			ID:        fmt.Sprintf("IN%d", time.Now().UnixNano()),
			RemoteJID: chatJID,
		},
		PushName:         pushName,
		MessageTimestamp: time.Now().Unix(),
		Message:          &watypes.RawContent{Conversation: text},
	}
	if senderJID != chatJID {
		raw.Key.Participant = senderJID
	}

	payload, err := json.Marshal(raw)
	require.NoError(h.t, err)

	err = h.waHandler.HandleEvent(context.Background(), &watypes.Event{
		Type:    watypes.EventMessage,
		Session: "default",
		Payload: payload,
	})
	require.NoError(h.t, err)
}

func decodeRequest(r *http.Request) map[string]interface{} {
	fields := make(map[string]interface{})
	ct := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(ct, "application/json"):
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &fields)
	case strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				if len(v) > 0 {
					fields[k] = v[0]
				}
			}
		}
	}
	return fields
}

func numField(fields map[string]interface{}, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case string:
		var n int64
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	default:
		return 0
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

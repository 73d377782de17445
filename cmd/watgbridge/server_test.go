package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"watgbridge/internal/metrics"
	"watgbridge/internal/models"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWAClient struct {
	watypes.WAClient
	connected bool
}

func (s *stubWAClient) Connected() bool { return s.connected }

type recordingHandler struct {
	events []*watypes.Event
	err    error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *watypes.Event) error {
	h.events = append(h.events, event)
	return h.err
}

func newTestServer(secret string, handler *recordingHandler) *Server {
	cfg := &models.Config{}
	cfg.WhatsApp.WebhookSecret = secret
	cfg.Server.Port = 0
	cfg.Server.RateLimitPerMinute = 100

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewServer(cfg, handler, &stubWAClient{connected: true}, metrics.NewRegistry(), logger)
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestServer_Health(t *testing.T) {
	s := newTestServer("", &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Connected)
	assert.NotEmpty(t, resp.Build.GoVersion)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer("", &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot metrics.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
}

func TestServer_Webhook_DispatchesEvent(t *testing.T) {
	handler := &recordingHandler{}
	secret := "0123456789abcdef0123456789abcdef"
	s := newTestServer(secret, handler)

	body := []byte(`{"event":"message","session":"default","payload":{"id":"m1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Hmac", signBody(body, secret))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, handler.events, 1)
	assert.Equal(t, "message", handler.events[0].Type)
}

func TestServer_Webhook_RejectsBadSignature(t *testing.T) {
	handler := &recordingHandler{}
	s := newTestServer("0123456789abcdef0123456789abcdef", handler)

	body := []byte(`{"event":"message","session":"default"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Hmac", "deadbeef")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, handler.events)
}

func TestServer_Webhook_RejectsMalformedBody(t *testing.T) {
	handler := &recordingHandler{}
	s := newTestServer("", handler)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, handler.events)
}

func TestServer_Webhook_RateLimited(t *testing.T) {
	handler := &recordingHandler{}
	s := newTestServer("", handler)
	s.limiter = NewRateLimiter(2, time.Minute)

	body := []byte(`{"event":"message","session":"default"}`)
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.9:4411"
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_Webhook_HandlerFailure(t *testing.T) {
	handler := &recordingHandler{err: assert.AnError}
	s := newTestServer("", handler)

	body := []byte(`{"event":"message","session":"default"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

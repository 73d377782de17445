package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/httputil"
	"watgbridge/internal/metrics"
	"watgbridge/internal/middleware"
	"watgbridge/internal/models"
	"watgbridge/internal/validation"
	"watgbridge/internal/version"
	"watgbridge/pkg/whatsapp"
	watypes "watgbridge/pkg/whatsapp/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP surface of the bridge: gateway webhook intake plus
// health and metrics endpoints.
type Server struct {
	router    *mux.Router
	server    *http.Server
	cfg       *models.Config
	events    watypes.EventHandler
	waClient  watypes.WAClient
	registry  *metrics.Registry
	limiter   *RateLimiter
	logger    *logrus.Logger
	startedAt time.Time
}

func NewServer(cfg *models.Config, events watypes.EventHandler, waClient watypes.WAClient, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		events:    events,
		waClient:  waClient,
		registry:  registry,
		limiter:   NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute),
		logger:    logger,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.registry, s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	webhook := middleware.WebhookObservability(s.registry, s.logger, "whatsapp")(s.handleWhatsAppWebhook())
	s.router.Handle("/webhook/whatsapp", s.rateLimited(webhook)).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// rateLimited rejects webhook calls over the per-IP budget before any body
// parsing happens.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.limiter.Allow(ip) {
			s.logger.WithField("remote_ip", ip).Warn("Webhook rate limit exceeded")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status    string       `json:"status"`
	Connected bool         `json:"whatsappConnected"`
	UptimeSec int64        `json:"uptimeSec"`
	Build     version.Info `json:"build"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Connected: s.waClient.Connected(),
			UptimeSec: int64(time.Since(s.startedAt).Seconds()),
			Build:     version.Get(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.WithError(err).Error("Failed to encode health response")
		}
	}
}

func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, constants.MaxWebhookBodyBytes); err != nil {
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}

		event, err := whatsapp.DecodeWebhook(r, s.cfg.WhatsApp.WebhookSecret)
		if err != nil {
			status := http.StatusBadRequest
			if strings.Contains(err.Error(), "signature") {
				status = http.StatusUnauthorized
			}
			s.logger.WithError(err).Warn("Rejected gateway webhook")
			http.Error(w, http.StatusText(status), status)
			return
		}

		if err := s.events.HandleEvent(r.Context(), event); err != nil {
			s.logger.WithFields(logrus.Fields{
				"event_type": event.Type,
				"error":      err,
			}).Error("Failed to handle gateway event")
			http.Error(w, "Event handling failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	}
}

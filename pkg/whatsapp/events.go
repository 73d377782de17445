package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"watgbridge/pkg/whatsapp/types"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// EventStream consumes the gateway's websocket event feed and dispatches each
// decoded envelope to the handler. It reconnects with a capped backoff and
// tracks the session connection state reported by connection.update events.
type EventStream struct {
	url     string
	apiKey  string
	handler types.EventHandler
	logger  *logrus.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	open    bool
	backoff time.Duration
}

const (
	initialStreamBackoff = time.Second
	maxStreamBackoff     = 30 * time.Second
)

func NewEventStream(baseURL, apiKey string, handler types.EventHandler, logger *logrus.Logger) *EventStream {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws/events"
	return &EventStream{
		url:     wsURL,
		apiKey:  apiKey,
		handler: handler,
		logger:  logger,
		backoff: initialStreamBackoff,
	}
}

// Start launches the read loop. Returns an error only if already running.
func (s *EventStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("event stream is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *EventStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Connected reports whether the gateway session is currently open.
func (s *EventStream) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

func (s *EventStream) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := s.readLoop(ctx)
		s.setOpen(false)
		if ctx.Err() != nil {
			return
		}

		s.logger.WithError(err).Warn("Event stream disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextDelay(connected)):
		}
	}
}

// nextDelay returns the wait before the next dial. A successful connection
// rewinds the backoff so a healthy stream never pays the full penalty for
// disconnects long past.
func (s *EventStream) nextDelay(connected bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connected {
		s.backoff = initialStreamBackoff
	}
	delay := s.backoff
	s.backoff *= 2
	if s.backoff > maxStreamBackoff {
		s.backoff = maxStreamBackoff
	}
	return delay
}

// readLoop dials the stream and pumps events until the connection drops.
// Reports whether the dial itself succeeded.
func (s *EventStream) readLoop(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if s.apiKey != "" {
		opts.HTTPHeader = http.Header{"X-Api-Key": []string{s.apiKey}}
	}

	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return false, fmt.Errorf("failed to dial event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	s.logger.Info("Connected to WhatsApp event stream")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("event stream read failed: %w", err)
		}

		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.WithError(err).Warn("Skipping undecodable event")
			continue
		}

		if event.Type == types.EventConnectionUpdate {
			s.trackConnection(&event)
		}

		if err := s.handler.HandleEvent(ctx, &event); err != nil {
			s.logger.WithError(err).WithField("event", event.Type).Error("Event handler failed")
		}
	}
}

func (s *EventStream) trackConnection(event *types.Event) {
	var update types.ConnectionUpdate
	if err := json.Unmarshal(event.Payload, &update); err != nil {
		return
	}
	s.setOpen(update.State == "open")
}

func (s *EventStream) setOpen(open bool) {
	s.mu.Lock()
	s.open = open
	s.mu.Unlock()
}

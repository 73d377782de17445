package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watgbridge/internal/models"
	"watgbridge/pkg/circuitbreaker"
	"watgbridge/pkg/telegram/types"

	"github.com/sirupsen/logrus"
)

// UpdateHandler receives every update pulled off the Bot API.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *types.Update) error
}

// Poller drives the Bot API long-poll loop and dispatches updates in order.
type Poller struct {
	client  types.BotClient
	handler UpdateHandler
	config  models.TelegramConfig
	breaker *circuitbreaker.Breaker
	logger  *logrus.Logger

	offset  int64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewPoller(client types.BotClient, handler UpdateHandler, cfg models.TelegramConfig, logger *logrus.Logger) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		config:  cfg,
		breaker: circuitbreaker.New("telegram-poll", 5, 30*time.Second, logger),
		logger:  logger,
	}
}

// Start begins the background polling process
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("telegram poller is already running")
	}

	if !p.config.PollingEnabled {
		p.logger.Info("Telegram polling is disabled in configuration")
		return nil
	}

	// Verify the bot token before spinning up the loop
	me, err := p.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Telegram before starting poller: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.pollLoop()

	p.logger.WithFields(logrus.Fields{
		"bot":     me.Username,
		"timeout": p.config.PollTimeoutSec,
	}).Info("Telegram poller started successfully")

	return nil
}

// Stop gracefully stops the polling process
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.logger.Info("Stopping Telegram poller...")
	p.cancel()
	p.wg.Wait()
	p.running = false
	p.logger.Info("Telegram poller stopped")
}

// IsRunning returns whether the poller is currently active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if err := p.pollOnce(); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.WithError(err).Warn("Telegram poll failed")
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// pollOnce runs a single getUpdates cycle behind the circuit breaker so a
// persistently failing Bot API does not get hammered.
func (p *Poller) pollOnce() error {
	timeout := time.Duration(p.config.PollTimeoutSec+10) * time.Second
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	return p.breaker.Do(ctx, func(ctx context.Context) error {
		updates, err := p.client.GetUpdates(ctx, p.offset, p.config.PollLimit, p.config.PollTimeoutSec)
		if err != nil {
			return err
		}

		for i := range updates {
			update := &updates[i]
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			if err := p.handler.HandleUpdate(ctx, update); err != nil {
				p.logger.WithFields(logrus.Fields{
					"update_id": update.UpdateID,
					"error":     err,
				}).Error("Failed to handle Telegram update")
			}
		}
		return nil
	})
}

// Package circuitbreaker guards calls to flaky upstreams. After a run of
// consecutive failures the breaker opens and rejects calls until a cooldown
// elapses, then lets a few probe calls through before fully closing again.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the breaker's current mode.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const probeQuota = 3

// Breaker tracks call outcomes for one named upstream.
type Breaker struct {
	name     string
	limit    uint32
	cooldown time.Duration
	logger   *logrus.Logger

	mu        sync.Mutex
	state     State
	failures  uint32
	probes    uint32
	probeWins uint32
	openedAt  time.Time

	now func() time.Time
}

// New returns a closed breaker that opens after limit consecutive failures
// and stays open for cooldown before probing.
func New(name string, limit uint32, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:     name,
		limit:    limit,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Do runs fn unless the breaker is open. The fn's error is returned as-is;
// a rejected call returns *OpenError.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err == nil)
	return err
}

// State reports the breaker's mode, moving open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeProbe()

	switch b.state {
	case Closed:
		return nil
	case HalfOpen:
		if b.probes < probeQuota {
			b.probes++
			return nil
		}
	}
	return &OpenError{Name: b.name, State: b.state}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		switch b.state {
		case Closed:
			b.failures = 0
		case HalfOpen:
			b.probeWins++
			if b.probeWins >= probeQuota {
				b.state = Closed
				b.failures = 0
				b.logger.WithField("breaker", b.name).Info("Circuit breaker closed after recovery")
			}
		}
		return
	}

	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.limit {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// trip moves to open; caller holds the lock.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.logger.WithFields(logrus.Fields{
		"breaker":  b.name,
		"failures": b.failures,
	}).Warn("Circuit breaker opened")
}

// maybeProbe moves open to half-open once the cooldown passes; caller holds
// the lock.
func (b *Breaker) maybeProbe() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = HalfOpen
		b.probes = 0
		b.probeWins = 0
		b.logger.WithField("breaker", b.name).Info("Circuit breaker half-open, probing")
	}
}

// OpenError is returned for calls rejected by an open breaker.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s", e.Name, e.State)
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

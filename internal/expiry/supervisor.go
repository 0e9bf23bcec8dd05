// Package expiry owns the sender-side countdown for an outstanding payload.
// A payload is armed when generated and races two outcomes: the countdown
// reaching zero (expired) against a matching payment_received event
// (completed). Whichever happens first wins; the other path is a no-op.
package expiry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/offlinepay/relay/internal/bus"
	"github.com/offlinepay/relay/internal/models"
	"github.com/offlinepay/relay/internal/models/events"
)

// State of the countdown for one payload. Completed and Expired are terminal
// and mutually exclusive.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateCompleted
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCompleted:
		return "completed"
	case StateExpired:
		return "expired"
	default:
		return "idle"
	}
}

// Supervisor runs at most one live countdown per generator instance. Arming a
// new payload cancels any prior countdown first.
type Supervisor struct {
	logger *slog.Logger
	bus    *bus.Bus
	window time.Duration
	tick   time.Duration

	mu      sync.Mutex
	current *countdown
}

// Option adjusts Supervisor construction.
type Option func(*Supervisor)

// WithTickInterval overrides the one-second countdown tick, mainly for tests.
func WithTickInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.tick = d }
}

// NewSupervisor builds a Supervisor publishing to and subscribing on b.
func NewSupervisor(logger *slog.Logger, b *bus.Bus, window time.Duration, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger: logger,
		bus:    b,
		window: window,
		tick:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts the countdown for tx's payload, cancelling any countdown still
// live from a previous payload.
func (s *Supervisor) Arm(tx models.Transaction) {
	ticks := int(s.window / s.tick)
	if ticks < 1 {
		ticks = 1
	}
	c := &countdown{
		tx:        tx,
		state:     StateArmed,
		remaining: ticks,
		stop:      make(chan struct{}),
	}
	c.unsubscribe = s.bus.Subscribe(events.PaymentReceived, func(ev events.PaymentEvent) {
		if ev.TransactionID != tx.ID {
			return
		}
		if c.finalize(StateCompleted) {
			s.logger.Info("payload completed before expiry", "transaction_id", tx.ID)
		}
	})

	s.mu.Lock()
	prev := s.current
	s.current = c
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	go s.run(c)
	s.logger.Info("payload armed",
		"transaction_id", tx.ID,
		"window", s.window.String(),
	)
}

func (s *Supervisor) run(c *countdown) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if c.decrement() > 0 {
				continue
			}
			if c.finalize(StateExpired) {
				s.logger.Info("payload expired", "transaction_id", c.tx.ID)
				s.bus.Publish(events.PayloadExpired, events.FromTransaction(events.PayloadExpired, c.tx))
			}
			return
		}
	}
}

// Cancel stops the current countdown without publishing anything. It is safe
// to call when nothing is armed, after expiry, and more than once.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c != nil {
		c.cancel()
	}
}

// State reports the state of the most recently armed payload.
func (s *Supervisor) State() State {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return StateIdle
	}
	return c.currentState()
}

// Remaining reports how much of the validity window is left.
func (s *Supervisor) Remaining() time.Duration {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateArmed {
		return 0
	}
	return time.Duration(c.remaining) * s.tick
}

// countdown is the per-payload state cell. Both the timer path and the
// event-arrival path funnel through finalize, which performs a single guarded
// check-and-set so exactly one terminal transition ever happens.
type countdown struct {
	tx          models.Transaction
	unsubscribe func()
	stop        chan struct{}

	mu        sync.Mutex
	state     State
	remaining int
}

func (c *countdown) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *countdown) decrement() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateArmed {
		return c.remaining
	}
	c.remaining--
	return c.remaining
}

func (c *countdown) finalize(to State) bool {
	c.mu.Lock()
	if c.state != StateArmed {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()

	close(c.stop)
	c.unsubscribe()
	return true
}

// cancel tears the countdown down without marking it expired or publishing.
func (c *countdown) cancel() {
	c.mu.Lock()
	if c.state != StateArmed {
		c.mu.Unlock()
		return
	}
	c.state = StateCompleted
	c.mu.Unlock()

	close(c.stop)
	c.unsubscribe()
}

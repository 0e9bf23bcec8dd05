// Package bus implements the in-process publish/subscribe registry and its
// cross-context relay. A Bus is explicitly constructed and passed by reference
// to whichever component composes the sender/receiver pipelines; there is no
// process-wide singleton.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/offlinepay/relay/internal/interfaces"
	"github.com/offlinepay/relay/internal/models/events"
)

// DefaultRecordHorizon is how long a cross-context record survives before the
// publishing bus deletes it, whether or not any other context consumed it.
const DefaultRecordHorizon = 30 * time.Second

// Handler receives events published on the bus. Handlers run synchronously on
// the publisher's goroutine and must not re-publish their own trigger.
type Handler func(events.PaymentEvent)

type subscription struct {
	kind    events.Kind
	handler Handler
}

// Bus fans events out to local subscribers and relays them to other execution
// contexts through a short-lived keyed record. Cross-context delivery is
// best effort: records may be duplicated or lost, so subscribers must be
// idempotent per transaction id.
type Bus struct {
	logger    *slog.Logger
	transport interfaces.Transport
	horizon   time.Duration
	origin    string

	mu     sync.Mutex
	subs   map[events.Kind][]*subscription
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Option adjusts Bus construction.
type Option func(*Bus)

// WithRecordHorizon overrides the cross-context record deletion horizon.
func WithRecordHorizon(d time.Duration) Option {
	return func(b *Bus) { b.horizon = d }
}

// New builds a Bus. The transport may be nil, in which case events stay within
// this process. When a transport is supplied the bus watches it for records
// written by other contexts and replays them through local fan-out.
func New(logger *slog.Logger, transport interfaces.Transport, opts ...Option) *Bus {
	b := &Bus{
		logger:    logger,
		transport: transport,
		horizon:   DefaultRecordHorizon,
		origin:    uuid.New().String(),
		subs:      make(map[events.Kind][]*subscription),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if transport == nil {
		close(b.done)
		return b
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	ready := make(chan struct{})
	go b.watch(ctx, ready)
	// Wait for the watcher to register with the transport so records written
	// by other contexts after New returns cannot be missed.
	<-ready
	return b
}

// Subscribe registers handler for events of kind and returns its revocation
// handle. The handle deregisters exactly this registration and no other, and
// calling it more than once is a no-op.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) (unsubscribe func()) {
	sub := &subscription{kind: kind, handler: handler}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.kind]
	for i, s := range list {
		if s == sub {
			b.subs[sub.kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish invokes every currently-registered handler for kind in registration
// order on the calling goroutine, then records the event for cross-context
// delivery and schedules that record's deletion after the horizon.
func (b *Bus) Publish(kind events.Kind, ev events.PaymentEvent) {
	ev.Kind = kind
	b.dispatch(kind, ev)
	b.record(kind, ev)
}

// dispatch performs local fan-out only. Handlers run outside the registry
// lock so a handler may publish a different kind without deadlocking. A
// handler that panics is isolated: its failure is logged and the remaining
// handlers still run.
func (b *Bus) dispatch(kind events.Kind, ev events.PaymentEvent) {
	b.mu.Lock()
	list := make([]*subscription, len(b.subs[kind]))
	copy(list, b.subs[kind])
	b.mu.Unlock()

	for _, sub := range list {
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub *subscription, ev events.PaymentEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler failed",
				"kind", string(ev.Kind),
				"transaction_id", ev.TransactionID,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	sub.handler(ev)
}

// record writes the durable cross-context record and arms its deletion. The
// key is scoped to the kind and the transaction id, falling back to the event
// timestamp when the id is empty.
func (b *Bus) record(kind events.Kind, ev events.PaymentEvent) {
	if b.transport == nil {
		return
	}
	rec := interfaces.Record{
		Key:    RecordKey(kind, ev),
		Origin: b.origin,
		Event:  ev,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.transport.Put(ctx, rec, b.horizon); err != nil {
		b.logger.Error("cross-context record write failed", "key", rec.Key, "error", err)
		return
	}
	time.AfterFunc(b.horizon, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.transport.Delete(ctx, rec.Key); err != nil {
			b.logger.Warn("cross-context record cleanup failed", "key", rec.Key, "error", err)
		}
	})
}

// RecordKey derives the transport key for an event.
func RecordKey(kind events.Kind, ev events.PaymentEvent) string {
	if ev.TransactionID != "" {
		return fmt.Sprintf("%s:%s", kind, ev.TransactionID)
	}
	return fmt.Sprintf("%s:%d", kind, ev.OccurredAt.UnixNano())
}

// watch replays externally-originated records through local fan-out. Replayed
// events are not re-recorded, which is what stops infinite propagation.
func (b *Bus) watch(ctx context.Context, ready chan<- struct{}) {
	defer close(b.done)

	ch, err := b.transport.Watch(ctx)
	close(ready)
	if err != nil {
		b.logger.Error("cross-context watch failed", "error", err)
		return
	}
	for rec := range ch {
		if rec.Origin == b.origin {
			continue
		}
		b.dispatch(rec.Event.Kind, rec.Event)
	}
}

// Close stops the cross-context watcher. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-b.done
	return nil
}

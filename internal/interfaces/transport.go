package interfaces

import (
	"context"
	"time"

	"github.com/offlinepay/relay/internal/models/events"
)

// Record is one keyed, TTL-bounded event record written to the cross-context
// transport. Origin identifies the bus instance that produced it so watchers
// can skip their own writes.
type Record struct {
	Key    string              `json:"key"`
	Origin string              `json:"origin"`
	Event  events.PaymentEvent `json:"event"`
}

// Transport is the cross-context side channel used by the event bus: any
// medium that lets one execution context write a small keyed record and lets
// another context observe that write. It is a best-effort broadcast, not a
// queue; records may be duplicated or lost.
type Transport interface {
	// Put writes or replaces the record. The ttl is advisory; the bus also
	// schedules its own Delete after the horizon elapses.
	Put(ctx context.Context, rec Record, ttl time.Duration) error
	// Delete removes the record with the given key. Deleting a missing or
	// already-expired record is not an error.
	Delete(ctx context.Context, key string) error
	// Watch returns a channel of records written by other contexts. The
	// channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan Record, error)
}

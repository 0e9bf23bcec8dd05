// Package relay provides cross-context transport implementations for the
// event bus: an in-memory transport for tests and single-process demos, and a
// file-backed transport for co-located processes. The Kafka transport lives in
// the nested kafka package.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/offlinepay/relay/internal/interfaces"
)

// Memory is an in-memory Transport. Multiple buses sharing one Memory instance
// simulate multiple execution contexts sharing a keyed namespace.
type Memory struct {
	mu       sync.Mutex
	records  map[string]interfaces.Record
	watchers map[chan interfaces.Record]struct{}
}

var _ interfaces.Transport = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]interfaces.Record),
		watchers: make(map[chan interfaces.Record]struct{}),
	}
}

func (m *Memory) Put(ctx context.Context, rec interfaces.Record, ttl time.Duration) error {
	m.mu.Lock()
	m.records[rec.Key] = rec
	// Notify while holding the lock so a send can never race the close of a
	// watcher channel being torn down. Sends are non-blocking: a watcher that
	// is not keeping up just misses the record, per the best-effort contract.
	for ch := range m.watchers {
		select {
		case ch <- rec:
		default:
		}
	}
	m.mu.Unlock()

	if ttl > 0 {
		time.AfterFunc(ttl, func() {
			m.mu.Lock()
			if cur, ok := m.records[rec.Key]; ok && cur.Origin == rec.Origin {
				delete(m.records, rec.Key)
			}
			m.mu.Unlock()
		})
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Watch(ctx context.Context) (<-chan interfaces.Record, error) {
	ch := make(chan interfaces.Record, 64)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Deregister and close under the same lock hold as Put's sends, so
		// no publisher can observe the channel between removal and close.
		m.mu.Lock()
		delete(m.watchers, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// Get returns the live record for key, if any. Used by tests and by the demo
// to inspect the shared namespace.
func (m *Memory) Get(key string) (interfaces.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	return rec, ok
}

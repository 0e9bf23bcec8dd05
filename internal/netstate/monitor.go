// Package netstate holds the process-wide network reachability snapshot. Only
// the external connectivity collaborator writes it; the core reads it.
package netstate

import (
	"sync"
	"time"

	"github.com/offlinepay/relay/internal/models"
)

// Monitor is the readable snapshot of connectivity.
type Monitor struct {
	mu    sync.RWMutex
	state models.NetworkState
}

func NewMonitor(reachable bool) *Monitor {
	return &Monitor{state: models.NetworkState{Reachable: reachable}}
}

// Snapshot returns the current network state.
func (m *Monitor) Snapshot() models.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetReachable is called by the connectivity collaborator on link changes.
func (m *Monitor) SetReachable(reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Reachable = reachable
}

// MarkSynced records the time of the last successful remote sync.
func (m *Monitor) MarkSynced(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastSyncAt = at
}

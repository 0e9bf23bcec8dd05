package models

import "time"

// NetworkState is a point-in-time snapshot of connectivity as reported by the
// external connectivity collaborator. The core only ever reads it.
type NetworkState struct {
	Reachable  bool      `json:"reachable"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

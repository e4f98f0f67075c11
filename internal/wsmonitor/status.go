package wsmonitor

import (
	"context"
	"encoding/json"
	"time"
)

// EquipmentStatus is the coarse-grained status the derived-status endpoint
// reports for a piece of equipment.
type EquipmentStatus string

const (
	StatusRunning      EquipmentStatus = "running"
	StatusIdle         EquipmentStatus = "idle"
	StatusStopped      EquipmentStatus = "stopped"
	StatusError        EquipmentStatus = "error"
	StatusDisconnected EquipmentStatus = "disconnected"
)

// StatusSnapshot is one broadcast unit on the derived-status endpoint.
type StatusSnapshot struct {
	MachineCode string          `json:"machineCode"`
	Status      EquipmentStatus `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
}

// DeriveFunc computes the current status snapshot(s) from whatever tag
// values and connection health the engine wires in; the broadcaster itself
// has no opinion on how status is derived.
type DeriveFunc func() []StatusSnapshot

const defaultStatusInterval = time.Second

// StatusBroadcaster periodically calls a DeriveFunc and pushes the result
// to its Hub.
type StatusBroadcaster struct {
	hub      *Hub
	derive   DeriveFunc
	interval time.Duration
}

// NewStatusBroadcaster constructs a StatusBroadcaster publishing to hub
// every interval (defaulting to 1s if interval <= 0).
func NewStatusBroadcaster(hub *Hub, derive DeriveFunc, interval time.Duration) *StatusBroadcaster {
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &StatusBroadcaster{hub: hub, derive: derive, interval: interval}
}

// Run publishes a derived snapshot every interval until ctx is done.
func (b *StatusBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshots := b.derive()
			data, err := json.Marshal(snapshots)
			if err != nil {
				continue
			}
			b.hub.Broadcast(data)
		}
	}
}

// internal/status/snapshot.go
package status

import (
	"encoding/json"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/dispatcher"
	"github.com/tamzrod/uarm-bridge/internal/publisher"
	"github.com/tamzrod/uarm-bridge/internal/settings"
)

// Snapshot is the runtime status of the bridge at one instant.
type Snapshot struct {
	At time.Time `json:"at"`

	Health         uint16 `json:"health"`
	HealthName     string `json:"health_name"`
	LastErrorCode  uint16 `json:"last_error_code"`
	SecondsInError uint16 `json:"seconds_in_error"`

	Dispatcher LoopStatus[dispatcher.Stats] `json:"dispatcher"`
	Publisher  LoopStatus[publisher.Stats]  `json:"publisher"`

	Paused bool            `json:"paused"`
	Queues QueueDepths     `json:"queues"`
	Poll   settings.Params `json:"polling"`
}

// LoopStatus is the state and counters of one loop.
type LoopStatus[S any] struct {
	State string `json:"state"`
	Stats S      `json:"stats"`
}

// QueueDepths are the current queue lengths.
type QueueDepths struct {
	Commands  int `json:"commands"`
	Telemetry int `json:"telemetry"`
}

// sameHealth reports whether a and b agree on the health fields.
func sameHealth(a, b Snapshot) bool {
	return a.Health == b.Health &&
		a.LastErrorCode == b.LastErrorCode &&
		a.SecondsInError == b.SecondsInError
}

// Encode renders s as JSON.
func Encode(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

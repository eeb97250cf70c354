// internal/publisher/types.go
package publisher

import (
	"context"
	"errors"
	"time"
)

// Sink delivers one message to the bus.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Terminator is asked to stop the whole system. Calls after the first are no-ops.
type Terminator interface {
	Terminate(reason string)
}

// Topics are the outbound destinations. An empty topic is not published.
type Topics struct {
	Raw         string
	Position    string
	JointAngles string
	Analog      string
	Digital     string
}

// DefaultIdleInterval is the wait between polls of an empty queue.
const DefaultIdleInterval = 10 * time.Millisecond

// Config is the runtime config the publisher needs.
type Config struct {
	Topics       Topics
	IdleInterval time.Duration
}

// ErrRawChannel marks a failed publish on the raw channel, which is fatal.
var ErrRawChannel = errors.New("publisher: raw channel publish failed")

// ErrHardware is returned by Run after a HardwareError result.
var ErrHardware = errors.New("publisher: hardware error")

// State is the loop lifecycle.
type State int32

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// Stats are monotonically increasing counters.
type Stats struct {
	Results       uint64 `json:"results"`
	Messages      uint64 `json:"messages"`
	FieldFailures uint64 `json:"field_failures"`
}

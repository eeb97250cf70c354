// internal/dispatcher/types.go
package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/command"
)

// State is the loop lifecycle: Running -> Draining -> Stopped.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Default timings.
const (
	DefaultSettleInterval = 500 * time.Millisecond
	DefaultPollRate       = 10.0
)

// Config is the runtime config the dispatcher needs.
type Config struct {
	// SettleInterval is how long polling stays paused after Stop.
	SettleInterval time.Duration
	// PollRate caps poll cycles per second. Zero or less disables pacing.
	PollRate float64
}

// ErrLinkFailure is returned by Run when the device link is lost.
var ErrLinkFailure = errors.New("dispatcher: device link failure")

// FieldError is a failed read of one telemetry field. The field is omitted
// from the cycle's result; other fields are still delivered.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("dispatcher: read %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// CommandError is a failed device write. It is logged and never retried.
type CommandError struct {
	Command command.Command
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("dispatcher: execute %s: %v", command.Encode(e.Command), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Stats are monotonically increasing counters.
type Stats struct {
	Polls          uint64 `json:"polls"`
	Commands       uint64 `json:"commands"`
	CommandErrors  uint64 `json:"command_errors"`
	FieldErrors    uint64 `json:"field_errors"`
	StopsProcessed uint64 `json:"stops"`
}

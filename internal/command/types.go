// internal/command/types.go
package command

import "github.com/tamzrod/uarm-bridge/internal/arm"

// Command is one unit of work for the dispatcher.
// The set of implementations is closed: only this package can add variants.
type Command interface {
	isCommand()
}

// Poll requests one telemetry read cycle.
type Poll struct{}

// Move sets the absolute end effector position.
type Move struct {
	X, Y, Z float64
}

// SetJointAngles drives all four servos.
type SetJointAngles struct {
	Angles arm.JointAngles
}

// SetServoAngle drives a single servo.
type SetServoAngle struct {
	Index int
	Angle float64
}

// RelativeMove shifts the end effector along z only.
type RelativeMove struct {
	DZ float64
}

// Beep sounds the buzzer. Frequency in Hz, Duration in seconds.
type Beep struct {
	Frequency float64
	Duration  float64
}

type (
	PumpOn   struct{}
	PumpOff  struct{}
	Attach   struct{}
	Detach   struct{}
	Stop     struct{}
	ClearAll struct{}
	Shutdown struct{}
)

func (Poll) isCommand()           {}
func (Move) isCommand()           {}
func (SetJointAngles) isCommand() {}
func (SetServoAngle) isCommand()  {}
func (RelativeMove) isCommand()   {}
func (Beep) isCommand()           {}
func (PumpOn) isCommand()         {}
func (PumpOff) isCommand()        {}
func (Attach) isCommand()         {}
func (Detach) isCommand()         {}
func (Stop) isCommand()           {}
func (ClearAll) isCommand()       {}
func (Shutdown) isCommand()       {}

// Default beep used when a BEEP payload cannot be parsed.
const (
	DefaultBeepFrequency = 10000
	DefaultBeepDuration  = 0.1
)

// IsPoll reports whether c is a Poll.
func IsPoll(c Command) bool {
	_, ok := c.(Poll)
	return ok
}

// IsStoppable reports whether c is purged by Stop: pending polls and joint moves.
func IsStoppable(c Command) bool {
	switch c.(type) {
	case Poll, SetJointAngles:
		return true
	}
	return false
}

// internal/device/device.go
package device

import (
	"errors"

	"github.com/tamzrod/uarm-bridge/internal/arm"
)

// ErrLinkDown marks errors after which the connection to the arm is unusable.
// Adapters wrap it; callers test with errors.Is.
var ErrLinkDown = errors.New("device: link down")

// Reader is the telemetry side of the arm.
type Reader interface {
	Position() (arm.Position, error)
	JointAngles() (arm.JointAngles, error)
	Analog(pin int) (float64, error)
	Digital(pin int) (int, error)
}

// Writer is the actuation side of the arm.
type Writer interface {
	MoveTo(x, y, z float64) error
	MoveRelative(dz float64) error
	SetServoAngle(index int, angle float64) error
	SetPump(on bool) error
	Attach() error
	Detach() error
	Beep(frequency, duration float64) error
}

// Adapter is everything the dispatcher needs from the arm.
// Calls are blocking and not safe for concurrent use: the device protocol is half duplex.
type Adapter interface {
	Reader
	Writer
	Close() error
}

// IsLinkDown reports whether err signals a lost connection.
func IsLinkDown(err error) bool {
	return errors.Is(err, ErrLinkDown)
}

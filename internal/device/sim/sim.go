// internal/device/sim/sim.go
package sim

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/tamzrod/uarm-bridge/internal/arm"
	"github.com/tamzrod/uarm-bridge/internal/device"
)

// Operation names used for fault injection and the call log.
const (
	OpPosition     = "position"
	OpJointAngles  = "joint_angles"
	OpAnalog       = "analog"
	OpDigital      = "digital"
	OpMove         = "move"
	OpMoveRelative = "move_relative"
	OpServo        = "servo"
	OpPump         = "pump"
	OpAttach       = "attach"
	OpDetach       = "detach"
	OpBeep         = "beep"
)

// Arm is an in-memory arm. Reads return what the last write set.
// Safe for concurrent use so tests can inspect it while a dispatcher runs.
type Arm struct {
	mu sync.Mutex

	pos      arm.Position
	joints   arm.JointAngles
	analog   map[int]float64
	digital  map[int]int
	pump     bool
	attached bool
	beeps    int

	faults map[string]error
	hang   map[string]chan struct{}
	calls  []string
	closed bool
}

var _ device.Adapter = (*Arm)(nil)

// New returns a simulated arm parked at home.
func New() *Arm {
	return &Arm{
		pos:      arm.NewPosition(0, 150, 150),
		joints:   arm.JointAngles{90, 90, 90, 90},
		analog:   make(map[int]float64),
		digital:  make(map[int]int),
		attached: true,
		faults:   make(map[string]error),
		hang:     make(map[string]chan struct{}),
	}
}

// Fail makes every following call of op return err. A nil err clears the fault.
func (a *Arm) Fail(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.faults, op)
		return
	}
	a.faults[op] = err
}

// Hang makes the next calls of op block until release is called.
func (a *Arm) Hang(op string) (release func()) {
	ch := make(chan struct{})
	a.mu.Lock()
	a.hang[op] = ch
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.hang, op)
			a.mu.Unlock()
			close(ch)
		})
	}
}

// SetAnalog sets the value an analog pin reports.
func (a *Arm) SetAnalog(pin int, v float64) {
	a.mu.Lock()
	a.analog[pin] = v
	a.mu.Unlock()
}

// SetDigital sets the value a digital pin reports.
func (a *Arm) SetDigital(pin int, v int) {
	a.mu.Lock()
	a.digital[pin] = v
	a.mu.Unlock()
}

// Calls returns the operations executed so far, in order.
func (a *Arm) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Pump reports the pump state.
func (a *Arm) Pump() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pump
}

// Attached reports whether the servos are attached.
func (a *Arm) Attached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attached
}

// Closed reports whether Close was called.
func (a *Arm) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// enter records op and applies faults. The returned unlock must be called
// when the operation is done with the state.
func (a *Arm) enter(op string) (unlock func(), err error) {
	a.mu.Lock()
	ch := a.hang[op]
	a.mu.Unlock()
	if ch != nil {
		<-ch
	}

	a.mu.Lock()
	a.calls = append(a.calls, op)
	if a.closed {
		a.mu.Unlock()
		return nil, errors.Wrap(device.ErrLinkDown, "sim: closed")
	}
	if err := a.faults[op]; err != nil {
		a.mu.Unlock()
		return nil, errors.Wrapf(err, "sim: %s", op)
	}
	return a.mu.Unlock, nil
}

func (a *Arm) Position() (arm.Position, error) {
	unlock, err := a.enter(OpPosition)
	if err != nil {
		return arm.Position{}, err
	}
	defer unlock()
	return a.pos, nil
}

func (a *Arm) JointAngles() (arm.JointAngles, error) {
	unlock, err := a.enter(OpJointAngles)
	if err != nil {
		return arm.JointAngles{}, err
	}
	defer unlock()
	return a.joints, nil
}

func (a *Arm) Analog(pin int) (float64, error) {
	unlock, err := a.enter(OpAnalog)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return a.analog[pin], nil
}

func (a *Arm) Digital(pin int) (int, error) {
	unlock, err := a.enter(OpDigital)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return a.digital[pin], nil
}

func (a *Arm) MoveTo(x, y, z float64) error {
	unlock, err := a.enter(OpMove)
	if err != nil {
		return err
	}
	defer unlock()
	a.pos = arm.NewPosition(x, y, z)
	return nil
}

func (a *Arm) MoveRelative(dz float64) error {
	unlock, err := a.enter(OpMoveRelative)
	if err != nil {
		return err
	}
	defer unlock()
	a.pos.Z += dz
	return nil
}

func (a *Arm) SetServoAngle(index int, angle float64) error {
	unlock, err := a.enter(OpServo)
	if err != nil {
		return err
	}
	defer unlock()
	if index < 0 || index >= len(a.joints) {
		return fmt.Errorf("sim: servo index %d out of range", index)
	}
	a.joints[index] = angle
	return nil
}

func (a *Arm) SetPump(on bool) error {
	unlock, err := a.enter(OpPump)
	if err != nil {
		return err
	}
	defer unlock()
	a.pump = on
	return nil
}

func (a *Arm) Attach() error {
	unlock, err := a.enter(OpAttach)
	if err != nil {
		return err
	}
	defer unlock()
	a.attached = true
	return nil
}

func (a *Arm) Detach() error {
	unlock, err := a.enter(OpDetach)
	if err != nil {
		return err
	}
	defer unlock()
	a.attached = false
	return nil
}

func (a *Arm) Beep(frequency, duration float64) error {
	unlock, err := a.enter(OpBeep)
	if err != nil {
		return err
	}
	defer unlock()
	a.beeps++
	return nil
}

// Close disconnects the arm. Further calls fail with a link error.
func (a *Arm) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

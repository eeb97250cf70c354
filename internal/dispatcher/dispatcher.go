// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/device"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/settings"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Dispatcher is the single consumer of the command queue and the only
// component that talks to the device.
type Dispatcher struct {
	cfg      Config
	adapter  device.Adapter
	commands *queue.Queue[command.Command]
	results  *queue.Queue[telemetry.Result]
	polling  *settings.Polling
	gate     *Gate
	log      *slog.Logger

	pacer *rate.Limiter

	// settleUntil is non-zero while a Stop settle window is open.
	// Only the loop goroutine touches it.
	settleUntil time.Time

	// stalled is set when the loop dropped the poll cycle while paused.
	// Whoever clears it queues the next Poll.
	stalled atomic.Bool

	state atomic.Int32
	done  chan struct{}

	polls         atomic.Uint64
	executed      atomic.Uint64
	commandErrors atomic.Uint64
	fieldErrors   atomic.Uint64
	stops         atomic.Uint64
}

// New creates a dispatcher. Nothing runs until Run is called.
func New(
	cfg Config,
	adapter device.Adapter,
	commands *queue.Queue[command.Command],
	results *queue.Queue[telemetry.Result],
	polling *settings.Polling,
	gate *Gate,
	log *slog.Logger,
) (*Dispatcher, error) {
	if adapter == nil {
		return nil, errors.New("dispatcher: adapter required")
	}
	if commands == nil || results == nil {
		return nil, errors.New("dispatcher: command and result queues required")
	}
	if polling == nil {
		return nil, errors.New("dispatcher: polling config required")
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = DefaultSettleInterval
	}
	if gate == nil {
		gate = &Gate{}
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{
		cfg:      cfg,
		adapter:  adapter,
		commands: commands,
		results:  results,
		polling:  polling,
		gate:     gate,
		log:      log,
		done:     make(chan struct{}),
	}
	if cfg.PollRate > 0 {
		d.pacer = rate.NewLimiter(rate.Limit(cfg.PollRate), 1)
	}
	gate.setOnResume(d.resume)
	return d, nil
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Done is closed when Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Gate returns the pause flags.
func (d *Dispatcher) Gate() *Gate {
	return d.gate
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Polls:          d.polls.Load(),
		Commands:       d.executed.Load(),
		CommandErrors:  d.commandErrors.Load(),
		FieldErrors:    d.fieldErrors.Load(),
		StopsProcessed: d.stops.Load(),
	}
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// ---- command execution ----

// execute performs one write command. Failures are logged and counted.
func (d *Dispatcher) execute(c command.Command) {
	d.executed.Add(1)

	var err error
	switch v := c.(type) {
	case command.Move:
		err = d.adapter.MoveTo(v.X, v.Y, v.Z)
	case command.SetJointAngles:
		err = d.setJointAngles(v)
	case command.SetServoAngle:
		err = d.adapter.SetServoAngle(v.Index, v.Angle)
	case command.RelativeMove:
		err = d.adapter.MoveRelative(v.DZ)
	case command.Beep:
		err = d.adapter.Beep(v.Frequency, v.Duration)
	case command.PumpOn:
		err = d.adapter.SetPump(true)
	case command.PumpOff:
		err = d.adapter.SetPump(false)
	case command.Attach:
		err = d.adapter.Attach()
	case command.Detach:
		err = d.adapter.Detach()
	default:
		err = errors.New("unsupported command")
	}

	if err != nil {
		d.commandErrors.Add(1)
		cerr := &CommandError{Command: c, Err: err}
		d.log.Error("command failed", "command", command.Encode(c), "err", cerr)
	}
}

// setJointAngles drives each servo in index order and stops at the first failure.
func (d *Dispatcher) setJointAngles(c command.SetJointAngles) error {
	for i, a := range c.Angles {
		if err := d.adapter.SetServoAngle(i, a); err != nil {
			return err
		}
	}
	return nil
}

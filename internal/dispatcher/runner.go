// internal/dispatcher/runner.go
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Run consumes the command queue until a Shutdown sentinel, a link failure
// or ctx cancellation. One goroutine only. It never tears down the device.
//
// A link failure pushes a HardwareError result and returns ErrLinkFailure.
// Shutdown and cancellation return nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.setState(StateRunning)
	defer func() {
		d.setState(StateStopped)
		close(d.done)
	}()

	d.log.Info("dispatcher started")

	for {
		if d.settling() && !time.Now().Before(d.settleUntil) {
			d.endSettle()
		}

		cmd, err := d.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.setState(StateDraining)
				d.log.Info("dispatcher cancelled")
				return nil
			}
			// settle window elapsed with nothing queued
			continue
		}

		switch cmd.(type) {
		case command.Shutdown:
			d.setState(StateDraining)
			d.log.Info("dispatcher received shutdown")
			return nil

		case command.Stop:
			d.stop()
			continue

		case command.ClearAll:
			// the drained items include the pending Poll; reenqueue restores it
			n := len(d.commands.DrainAll())
			d.log.Info("command queue cleared", "removed", n)

		case command.Poll:
			if err := d.pollCycle(ctx); err != nil {
				if ctx.Err() != nil {
					d.setState(StateDraining)
					return nil
				}
				d.setState(StateDraining)
				d.results.Push(telemetry.HardwareError(err), queue.PriorityNormal)
				d.log.Error("device link lost", "err", err)
				return fmt.Errorf("%w: %v", ErrLinkFailure, err)
			}

		default:
			d.execute(cmd)
		}

		d.reenqueue()
	}
}

// next pops one command. While a settle window is open the wait is bounded
// by the window end.
func (d *Dispatcher) next(ctx context.Context) (command.Command, error) {
	if !d.settling() {
		return d.commands.Pop(ctx)
	}
	wctx, cancel := context.WithDeadline(ctx, d.settleUntil)
	defer cancel()
	return d.commands.Pop(wctx)
}

// pollCycle paces, reads and forwards one telemetry result.
func (d *Dispatcher) pollCycle(ctx context.Context) error {
	if d.pacer != nil {
		if err := d.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	res, err := d.PollOnce()
	if err != nil {
		return err
	}
	d.results.Push(res, queue.PriorityNormal)
	return nil
}

// stop purges pending polls and joint moves and opens the settle window.
func (d *Dispatcher) stop() {
	d.stops.Add(1)
	// endSettle owns the restart from here on
	d.stalled.Store(false)
	n := d.commands.FilterRemove(command.IsStoppable)
	d.settleUntil = time.Now().Add(d.cfg.SettleInterval)
	d.log.Info("stop: purged pending polls and joint moves", "removed", n, "settle", d.cfg.SettleInterval)
}

func (d *Dispatcher) settling() bool {
	return !d.settleUntil.IsZero()
}

// endSettle closes the settle window and restarts the poll cycle.
func (d *Dispatcher) endSettle() {
	d.settleUntil = time.Time{}
	if d.gate.Paused() {
		d.stall()
		return
	}
	d.commands.Push(command.Poll{}, queue.PriorityNormal)
	d.log.Debug("settle window closed, polling resumed")
}

// reenqueue pushes exactly one Poll unless polling is paused.
func (d *Dispatcher) reenqueue() {
	if d.settling() {
		return
	}
	if d.gate.Paused() {
		d.stall()
		return
	}
	d.commands.Push(command.Poll{}, queue.PriorityNormal)
}

// RestorePoll puts back a Poll that was taken off the queue outside the
// loop. While paused it is queued on resume instead.
func (d *Dispatcher) RestorePoll() {
	if d.gate.Paused() {
		d.stall()
		return
	}
	d.commands.Push(command.Poll{}, queue.PriorityNormal)
}

// stall parks the poll cycle until the gate opens. The gate may open
// between the caller's check and the store.
func (d *Dispatcher) stall() {
	d.stalled.Store(true)
	if !d.gate.Paused() {
		d.resume()
	}
}

// resume queues the one Poll of a parked cycle. Safe from any goroutine.
func (d *Dispatcher) resume() {
	if d.stalled.CompareAndSwap(true, false) {
		d.commands.Push(command.Poll{}, queue.PriorityNormal)
		d.log.Debug("gate opened, polling resumed")
	}
}

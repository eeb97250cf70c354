// internal/publisher/runner.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Run drains the telemetry queue until a terminal result, a fatal publish
// failure, stop or ctx. The queue is polled without blocking so stop is seen
// within one idle interval.
//
// Returns nil for a normal shutdown, otherwise the fatal reason.
func (p *Publisher) Run(ctx context.Context, stop <-chan struct{}) error {
	p.state.Store(int32(StateRunning))
	defer func() {
		p.state.Store(int32(StateStopped))
		close(p.done)
	}()

	idle := time.NewTimer(p.cfg.IdleInterval)
	defer idle.Stop()

	for {
		res, ok := p.results.TryPop()
		if !ok {
			idle.Reset(p.cfg.IdleInterval)
			select {
			case <-ctx.Done():
				return nil
			case <-stop:
				return nil
			case <-idle.C:
			}
			continue
		}
		p.handled.Add(1)

		switch res.Kind {
		case telemetry.KindShutdown:
			p.log.Info("publisher received shutdown")
			p.term.Terminate("shutdown requested")
			return nil

		case telemetry.KindHardwareError:
			err := fmt.Errorf("%w: %v", ErrHardware, res.Err)
			p.log.Error("hardware error, terminating", "err", res.Err)
			p.term.Terminate(err.Error())
			return err

		default:
			if err := p.Write(ctx, res); err != nil {
				if errors.Is(err, ErrRawChannel) {
					p.log.Error("raw channel publish failed, terminating", "err", err)
					p.term.Terminate(err.Error())
					return err
				}
				p.log.Warn("telemetry publish incomplete", "err", err)
			}
		}
	}
}

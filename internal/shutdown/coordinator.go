// internal/shutdown/coordinator.go
package shutdown

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Default protocol timings.
const (
	DefaultRetryInterval = 500 * time.Millisecond
	DefaultTimeout       = 5 * time.Second
)

// Config bounds the shutdown protocol.
type Config struct {
	// RetryInterval is how often sentinels are re-sent while loops are alive.
	RetryInterval time.Duration
	// Timeout is the overall bound. Loops still alive after it are abandoned.
	Timeout time.Duration
}

type watched struct {
	name string
	done <-chan struct{}
}

// Coordinator runs the shutdown protocol exactly once: it sends urgent
// Shutdown sentinels into both queues until every watched loop has exited
// or the timeout passes, then closes the device.
type Coordinator struct {
	cfg      Config
	commands *queue.Queue[command.Command]
	results  *queue.Queue[telemetry.Result]
	device   io.Closer
	log      *slog.Logger

	mu      sync.Mutex
	loops   []watched
	reason  string
	started bool

	once      sync.Once
	triggered chan struct{}
	stopped   chan struct{}
	timedOut  atomic.Bool
}

// New creates an idle coordinator.
func New(cfg Config, commands *queue.Queue[command.Command], results *queue.Queue[telemetry.Result], device io.Closer, log *slog.Logger) *Coordinator {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		commands:  commands,
		results:   results,
		device:    device,
		log:       log,
		triggered: make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Watch registers a loop whose exit the protocol waits for.
// Loops registered after Terminate are not waited for.
func (c *Coordinator) Watch(name string, done <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		c.log.Warn("loop registered after shutdown started", "loop", name)
		return
	}
	c.loops = append(c.loops, watched{name: name, done: done})
}

// Terminate starts the protocol. Only the first call has an effect.
func (c *Coordinator) Terminate(reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.started = true
		c.reason = reason
		loops := append([]watched(nil), c.loops...)
		c.mu.Unlock()

		c.log.Info("shutdown started", "reason", reason)
		close(c.triggered)
		go c.run(loops)
	})
}

// Triggered is closed once Terminate has been called.
func (c *Coordinator) Triggered() <-chan struct{} {
	return c.triggered
}

// Stopped is closed when the protocol has completed.
func (c *Coordinator) Stopped() <-chan struct{} {
	return c.stopped
}

// Reason returns the reason given to the first Terminate call.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// TimedOut reports whether some loop was still alive when the bound passed.
func (c *Coordinator) TimedOut() bool {
	return c.timedOut.Load()
}

func (c *Coordinator) run(loops []watched) {
	defer close(c.stopped)

	allDone := make(chan struct{})
	go func() {
		for _, l := range loops {
			<-l.done
		}
		close(allDone)
	}()

	deadline := time.NewTimer(c.cfg.Timeout)
	defer deadline.Stop()
	retry := time.NewTicker(c.cfg.RetryInterval)
	defer retry.Stop()

loop:
	for {
		if len(alive(loops)) == 0 {
			break
		}
		c.commands.Push(command.Shutdown{}, queue.PriorityUrgent)
		c.results.Push(telemetry.Shutdown(), queue.PriorityUrgent)

		select {
		case <-allDone:
			break loop
		case <-deadline.C:
			c.timedOut.Store(true)
			c.log.Error("shutdown timed out, abandoning loops", "alive", alive(loops))
			break loop
		case <-retry.C:
		}
	}

	c.closeDevice()
	c.log.Info("shutdown complete", "timed_out", c.TimedOut())
}

// closeDevice closes the device, waiting at most one retry interval:
// a wedged call may hold the device.
func (c *Coordinator) closeDevice() {
	if c.device == nil {
		return
	}
	errc := make(chan error, 1)
	go func() { errc <- c.device.Close() }()

	select {
	case err := <-errc:
		if err != nil {
			c.log.Warn("device close failed", "err", err)
		}
	case <-time.After(c.cfg.RetryInterval):
		c.log.Warn("device close did not return in time")
	}
}

func alive(loops []watched) []string {
	var out []string
	for _, l := range loops {
		select {
		case <-l.done:
		default:
			out = append(out, l.name)
		}
	}
	return out
}

// internal/status/collector.go
package status

import (
	"sync"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/dispatcher"
	"github.com/tamzrod/uarm-bridge/internal/publisher"
	"github.com/tamzrod/uarm-bridge/internal/settings"
)

// DispatcherView is what the collector reads from the dispatcher.
type DispatcherView interface {
	State() dispatcher.State
	Stats() dispatcher.Stats
	Gate() *dispatcher.Gate
}

// PublisherView is what the collector reads from the publisher.
type PublisherView interface {
	State() publisher.State
	Stats() publisher.Stats
}

// Lengther is a queue depth source.
type Lengther interface {
	Len() int
}

// Collector derives health from loop counters. It owns the health state;
// Tick advances it once per second.
type Collector struct {
	dispatcher DispatcherView
	publisher  PublisherView
	commands   Lengther
	telemetry  Lengther
	polling    *settings.Polling

	mu        sync.Mutex
	health    uint16
	lastErr   uint16
	inError   uint16
	lastStats dispatcher.Stats
}

// NewCollector returns a collector in the unknown state.
func NewCollector(d DispatcherView, p PublisherView, commands, telemetry Lengther, polling *settings.Polling) *Collector {
	return &Collector{
		dispatcher: d,
		publisher:  p,
		commands:   commands,
		telemetry:  telemetry,
		polling:    polling,
		health:     HealthUnknown,
	}
}

// Tick recomputes health from the counters accumulated since the previous tick.
// SecondsInError counts ticks spent neither OK nor disabled.
func (c *Collector) Tick() {
	stats := c.dispatcher.Stats()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.lastStats
	c.lastStats = stats

	switch {
	case c.dispatcher.State() != dispatcher.StateRunning || c.publisher.State() != publisher.StateRunning:
		c.health = HealthDisabled

	case stats.FieldErrors > prev.FieldErrors:
		c.health = HealthError
		c.lastErr = ErrorCodeFieldRead

	case stats.CommandErrors > prev.CommandErrors:
		c.health = HealthError
		c.lastErr = ErrorCodeCommand

	case stats.Polls > prev.Polls:
		c.health = HealthOK
		c.lastErr = ErrorCodeNone

	case c.dispatcher.Gate().Paused():
		// no polls expected; keep the previous health

	default:
		c.health = HealthStale
	}

	switch c.health {
	case HealthOK:
		c.inError = 0
	case HealthDisabled:
	default:
		if c.inError < MaxSecondsInError {
			c.inError++
		}
	}
}

// Snapshot returns the current status.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	health, lastErr, inError := c.health, c.lastErr, c.inError
	c.mu.Unlock()

	return Snapshot{
		At:             time.Now(),
		Health:         health,
		HealthName:     HealthName(health),
		LastErrorCode:  lastErr,
		SecondsInError: inError,
		Dispatcher: LoopStatus[dispatcher.Stats]{
			State: c.dispatcher.State().String(),
			Stats: c.dispatcher.Stats(),
		},
		Publisher: LoopStatus[publisher.Stats]{
			State: c.publisher.State().String(),
			Stats: c.publisher.Stats(),
		},
		Paused: c.dispatcher.Gate().Paused(),
		Queues: QueueDepths{
			Commands:  c.commands.Len(),
			Telemetry: c.telemetry.Len(),
		},
		Poll: c.polling.Snapshot(),
	}
}

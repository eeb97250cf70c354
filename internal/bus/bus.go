// internal/bus/bus.go
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// Topic suffixes, appended to the configured prefix.
const (
	// inbound
	StringWrite      = "string_write"
	PositionWrite    = "position_write"
	JointAnglesWrite = "joint_angles_write"
	Pump             = "pump"
	AttachTopic      = "attach"
	BeepTopic        = "beep"
	Params           = "params"

	// outbound
	StringRead      = "string_read"
	PositionRead    = "position_read"
	JointAnglesRead = "joint_angles_read"
	AnalogRead      = "analog_inputs_read"
	DigitalRead     = "digital_inputs_read"
	Status          = "status"
)

// DefaultPrefix is the topic namespace used when none is configured.
const DefaultPrefix = "uarm_metal/"

// Topics builds full topic names.
type Topics struct {
	Prefix string
}

// Name returns the full topic for suffix.
func (t Topics) Name(suffix string) string {
	return t.Prefix + suffix
}

// Handler processes one inbound payload. A returned error is logged.
type Handler func(payload []byte) error

// Bus is a message bus connection.
type Bus interface {
	// Handle registers h for an exact topic. Must be called before Start.
	Handle(topic string, h Handler)
	// Start connects and subscribes. It does not block.
	Start(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// router maps exact topics to handlers. Shared by the implementations.
type router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *slog.Logger
}

func newRouter(log *slog.Logger) *router {
	if log == nil {
		log = slog.Default()
	}
	return &router{handlers: make(map[string]Handler), log: log}
}

func (r *router) Handle(topic string, h Handler) {
	r.mu.Lock()
	r.handlers[topic] = h
	r.mu.Unlock()
}

func (r *router) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// route calls the handler for topic, if any.
func (r *router) route(topic string, payload []byte) {
	r.mu.RLock()
	h := r.handlers[topic]
	r.mu.RUnlock()

	if h == nil {
		r.log.Debug("no handler for topic", "topic", topic)
		return
	}
	if err := h(payload); err != nil {
		r.log.Warn("inbound message rejected", "topic", topic, "err", err)
	}
}

// internal/publisher/publisher.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Publisher is the single consumer of the telemetry queue.
type Publisher struct {
	cfg     Config
	results *queue.Queue[telemetry.Result]
	sink    Sink
	term    Terminator
	log     *slog.Logger

	state atomic.Int32
	done  chan struct{}

	handled       atomic.Uint64
	messages      atomic.Uint64
	fieldFailures atomic.Uint64
}

// New creates a publisher. Nothing runs until Run is called.
func New(cfg Config, results *queue.Queue[telemetry.Result], sink Sink, term Terminator, log *slog.Logger) (*Publisher, error) {
	if results == nil {
		return nil, errors.New("publisher: result queue required")
	}
	if sink == nil {
		return nil, errors.New("publisher: sink required")
	}
	if term == nil {
		return nil, errors.New("publisher: terminator required")
	}
	if cfg.Topics.Raw == "" {
		return nil, errors.New("publisher: raw topic required")
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		cfg:     cfg,
		results: results,
		sink:    sink,
		term:    term,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

// Done is closed when Run has returned.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// Stats returns a copy of the counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Results:       p.handled.Load(),
		Messages:      p.messages.Load(),
		FieldFailures: p.fieldFailures.Load(),
	}
}

// Write publishes one reading. The raw string goes first; if it fails the
// error wraps ErrRawChannel and nothing else is sent. Per-field failures are
// collected and returned together after every field was attempted.
func (p *Publisher) Write(ctx context.Context, res telemetry.Result) error {
	if err := p.sink.Publish(ctx, p.cfg.Topics.Raw, []byte(res.Raw())); err != nil {
		return fmt.Errorf("%w: %v", ErrRawChannel, err)
	}
	p.messages.Add(1)

	var errs []string
	send := func(topic string, payload []byte) {
		if topic == "" {
			return
		}
		if err := p.sink.Publish(ctx, topic, payload); err != nil {
			p.fieldFailures.Add(1)
			errs = append(errs, fmt.Sprintf("topic=%s err=%v", topic, err))
			return
		}
		p.messages.Add(1)
	}

	if res.Position != nil {
		b, err := telemetry.EncodePosition(*res.Position)
		if err != nil {
			errs = append(errs, fmt.Sprintf("encode position: %v", err))
		} else {
			send(p.cfg.Topics.Position, b)
		}
	}
	if res.Joints != nil {
		b, err := telemetry.EncodeJointAngles(*res.Joints)
		if err != nil {
			errs = append(errs, fmt.Sprintf("encode joint angles: %v", err))
		} else {
			send(p.cfg.Topics.JointAngles, b)
		}
	}
	if len(res.Analog) > 0 {
		send(p.cfg.Topics.Analog, []byte(res.AnalogString()))
	}
	if len(res.Digital) > 0 {
		send(p.cfg.Topics.Digital, []byte(res.DigitalString()))
	}

	if len(errs) > 0 {
		return errors.New("publisher: " + strings.Join(errs, " | "))
	}
	return nil
}

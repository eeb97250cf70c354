// internal/bridge/handlers.go
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/uarm-bridge/internal/bus"
	"github.com/tamzrod/uarm-bridge/internal/command"
	"github.com/tamzrod/uarm-bridge/internal/queue"
	"github.com/tamzrod/uarm-bridge/internal/settings"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// ErrShuttingDown rejects requests that arrive after shutdown has started.
var ErrShuttingDown = errors.New("bridge: shutting down")

// BeepRequest is the beep topic payload. Duration is in seconds.
type BeepRequest struct {
	Frequency float64 `json:"frequency"`
	Duration  float64 `json:"duration"`
}

// ParamsRequest is the params topic payload. Absent fields keep their
// current value.
type ParamsRequest struct {
	Position    *bool  `json:"position"`
	JointAngles *bool  `json:"joint_angles"`
	AnalogPins  *[]int `json:"analog_pins"`
	DigitalPins *[]int `json:"digital_pins"`
}

func (b *Bridge) registerHandlers() {
	b.bus.Handle(b.topics.Name(bus.StringWrite), b.onString)
	b.bus.Handle(b.topics.Name(bus.PositionWrite), b.onPosition)
	b.bus.Handle(b.topics.Name(bus.JointAnglesWrite), b.onJointAngles)
	b.bus.Handle(b.topics.Name(bus.Pump), b.onPump)
	b.bus.Handle(b.topics.Name(bus.AttachTopic), b.onAttach)
	b.bus.Handle(b.topics.Name(bus.BeepTopic), b.onBeep)
	if b.params != nil {
		b.bus.Handle(b.topics.Name(bus.Params), b.onParams)
	}
}

// Inject applies the string command conventions: CLEAR empties both
// queues, a leading "!" is urgent, anything else is normal priority.
func (b *Bridge) Inject(text string) error {
	if b.shuttingDown() {
		return ErrShuttingDown
	}
	req, err := command.ParseRequest(text)
	if err != nil {
		return err
	}
	if req.Clear {
		b.clear()
		return nil
	}
	b.commands.Push(req.Command, req.Priority)
	return nil
}

// clear empties both queues. A Poll removed from the command queue is
// put back so the poll cycle keeps exactly one pending Poll.
func (b *Bridge) clear() {
	removed := b.commands.DrainAll()
	dropped := b.results.DrainAll()

	hadPoll := false
	for _, c := range removed {
		if command.IsPoll(c) {
			hadPoll = true
			break
		}
	}
	if hadPoll {
		b.dispatcher.RestorePoll()
	}

	for _, r := range dropped {
		// a terminal result must still reach the publisher
		if r.Kind != telemetry.KindReading {
			b.results.Push(r, queue.PriorityUrgent)
		}
	}
	b.log.Info("queues cleared", "commands", len(removed), "telemetry", len(dropped))
}

func (b *Bridge) enqueue(c command.Command) error {
	if b.shuttingDown() {
		return ErrShuttingDown
	}
	b.commands.Push(c, queue.PriorityNormal)
	return nil
}

// ---- bus handlers ----

func (b *Bridge) onString(payload []byte) error {
	return b.Inject(string(payload))
}

func (b *Bridge) onPosition(payload []byte) error {
	var m telemetry.PositionMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("position_write: %w", err)
	}
	return b.enqueue(command.Move{X: m.X, Y: m.Y, Z: m.Z})
}

func (b *Bridge) onJointAngles(payload []byte) error {
	var m telemetry.JointAnglesMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("joint_angles_write: %w", err)
	}
	return b.enqueue(command.SetJointAngles{Angles: m.Angles()})
}

func (b *Bridge) onPump(payload []byte) error {
	on, err := parseBool(payload)
	if err != nil {
		return fmt.Errorf("pump: %w", err)
	}
	if on {
		b.log.Info("pump on")
		return b.enqueue(command.PumpOn{})
	}
	b.log.Info("pump off")
	return b.enqueue(command.PumpOff{})
}

func (b *Bridge) onAttach(payload []byte) error {
	on, err := parseBool(payload)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if on {
		b.log.Info("attach")
		return b.enqueue(command.Attach{})
	}
	b.log.Info("detach")
	return b.enqueue(command.Detach{})
}

func (b *Bridge) onBeep(payload []byte) error {
	var m BeepRequest
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("beep: %w", err)
	}
	return b.enqueue(command.Beep{Frequency: m.Frequency, Duration: m.Duration})
}

// onParams merges a partial update into the runtime store. The refresher
// applies it on its next tick.
func (b *Bridge) onParams(payload []byte) error {
	var m ParamsRequest
	if err := json.Unmarshal(payload, &m); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	p, err := b.params.Update(func(p *settings.Params) {
		if m.Position != nil {
			p.Position = *m.Position
		}
		if m.JointAngles != nil {
			p.JointAngles = *m.JointAngles
		}
		if m.AnalogPins != nil {
			p.AnalogPins = *m.AnalogPins
		}
		if m.DigitalPins != nil {
			p.DigitalPins = *m.DigitalPins
		}
	})
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	b.log.Info("polling params updated", "params", p)
	return nil
}

// parseBool accepts true/false/1/0 and a JSON {"data": bool} wrapper.
func parseBool(payload []byte) (bool, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var m struct {
			Data bool `json:"data"`
		}
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return false, err
		}
		return m.Data, nil
	}
	return strconv.ParseBool(s)
}

// internal/settings/polling.go
package settings

import (
	"fmt"
	"slices"
	"sync/atomic"
)

// Params is the tunable polling selection.
// An empty pin list disables that category.
type Params struct {
	Position    bool  `yaml:"position" json:"position"`
	JointAngles bool  `yaml:"joint_angles" json:"joint_angles"`
	AnalogPins  []int `yaml:"analog_pins" json:"analog_pins"`
	DigitalPins []int `yaml:"digital_pins" json:"digital_pins"`
}

// Validate rejects pin numbers the device cannot address.
func (p Params) Validate() error {
	for _, pin := range p.AnalogPins {
		if pin < 0 {
			return fmt.Errorf("settings: analog pin %d: must be >= 0", pin)
		}
	}
	for _, pin := range p.DigitalPins {
		if pin < 0 {
			return fmt.Errorf("settings: digital pin %d: must be >= 0", pin)
		}
	}
	return nil
}

// Polling is the live polling selection. Each field is stored independently:
// a reader may see a mix of old and new fields mid update, never a torn field.
type Polling struct {
	position atomic.Bool
	joints   atomic.Bool
	analog   atomic.Pointer[[]int]
	digital  atomic.Pointer[[]int]
}

// NewPolling returns a Polling holding p.
func NewPolling(p Params) *Polling {
	pc := &Polling{}
	pc.Apply(p)
	return pc
}

// Apply replaces every field with the values in p.
func (pc *Polling) Apply(p Params) {
	pc.position.Store(p.Position)
	pc.joints.Store(p.JointAngles)
	pc.analog.Store(pinList(p.AnalogPins))
	pc.digital.Store(pinList(p.DigitalPins))
}

// Position reports whether position is polled.
func (pc *Polling) Position() bool { return pc.position.Load() }

// JointAngles reports whether joint angles are polled.
func (pc *Polling) JointAngles() bool { return pc.joints.Load() }

// AnalogPins returns the polled analog pins, nil when disabled.
func (pc *Polling) AnalogPins() []int { return load(&pc.analog) }

// DigitalPins returns the polled digital pins, nil when disabled.
func (pc *Polling) DigitalPins() []int { return load(&pc.digital) }

// Snapshot returns the current values as Params.
func (pc *Polling) Snapshot() Params {
	return Params{
		Position:    pc.Position(),
		JointAngles: pc.JointAngles(),
		AnalogPins:  pc.AnalogPins(),
		DigitalPins: pc.DigitalPins(),
	}
}

// pinList stores a private copy; nil means disabled.
func pinList(pins []int) *[]int {
	if len(pins) == 0 {
		return nil
	}
	cp := slices.Clone(pins)
	return &cp
}

func load(p *atomic.Pointer[[]int]) []int {
	v := p.Load()
	if v == nil {
		return nil
	}
	return *v
}

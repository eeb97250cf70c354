// internal/telemetry/encode.go
package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tamzrod/uarm-bridge/internal/arm"
)

const separator = ", "

// Raw flattens every present field in the order position, joints, analog, digital.
func (r Result) Raw() string {
	var parts []string
	if r.Position != nil {
		parts = append(parts, ff(r.Position.X), ff(r.Position.Y), ff(r.Position.Z))
	}
	if r.Joints != nil {
		for _, v := range r.Joints {
			parts = append(parts, ff(v))
		}
	}
	for _, v := range r.Analog {
		parts = append(parts, ff(v))
	}
	for _, v := range r.Digital {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, separator)
}

// AnalogString joins the analog values.
func (r Result) AnalogString() string {
	parts := make([]string, len(r.Analog))
	for i, v := range r.Analog {
		parts[i] = ff(v)
	}
	return strings.Join(parts, separator)
}

// DigitalString joins the digital values.
func (r Result) DigitalString() string {
	parts := make([]string, len(r.Digital))
	for i, v := range r.Digital {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, separator)
}

// PositionMessage is the wire form of a position.
type PositionMessage struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// JointAnglesMessage is the wire form of joint angles.
type JointAnglesMessage struct {
	J0 float64 `json:"j0"`
	J1 float64 `json:"j1"`
	J2 float64 `json:"j2"`
	J3 float64 `json:"j3"`
}

// EncodePosition renders p as JSON.
func EncodePosition(p arm.Position) ([]byte, error) {
	return json.Marshal(PositionMessage{X: p.X, Y: p.Y, Z: p.Z})
}

// EncodeJointAngles renders ja as JSON.
func EncodeJointAngles(ja arm.JointAngles) ([]byte, error) {
	return json.Marshal(JointAnglesMessage{J0: ja[0], J1: ja[1], J2: ja[2], J3: ja[3]})
}

// Angles converts the message back to joint angles.
func (m JointAnglesMessage) Angles() arm.JointAngles {
	return arm.JointAngles{m.J0, m.J1, m.J2, m.J3}
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// internal/command/codec.go
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/uarm-bridge/internal/arm"
)

// Wire keywords. Prefix dispatch is case-sensitive.
const (
	textPoll     = "READ"
	textShutdown = "SHUTDOWN"
	textStop     = "STOP"
	textClear    = "CLEAR"
	textPumpOn   = "PUMP_ON"
	textPumpOff  = "PUMP_OFF"
	textAttach   = "ATT"
	textDetach   = "DET"

	prefixMove     = "POS"
	prefixJoints   = "JA"
	prefixServo    = "WR"
	prefixRelative = "REL"
	prefixBeep     = "BEEP"
)

// DecodeError reports text that does not map to a command.
type DecodeError struct {
	Text   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("command: cannot decode %q: %s", e.Text, e.Reason)
}

// Encode renders c in the wire format.
func Encode(c Command) string {
	switch v := c.(type) {
	case Poll:
		return textPoll
	case Move:
		return prefixMove + joinFloats(v.X, v.Y, v.Z)
	case SetJointAngles:
		return prefixJoints + joinFloats(v.Angles[:]...)
	case SetServoAngle:
		return prefixServo + formatFloat(v.Angle)
	case RelativeMove:
		return prefixRelative + formatFloat(v.DZ)
	case Beep:
		return prefixBeep + joinFloats(v.Frequency, v.Duration)
	case PumpOn:
		return textPumpOn
	case PumpOff:
		return textPumpOff
	case Attach:
		return textAttach
	case Detach:
		return textDetach
	case Stop:
		return textStop
	case ClearAll:
		return textClear
	case Shutdown:
		return textShutdown
	default:
		return fmt.Sprintf("%T", c)
	}
}

// Decode parses one wire-format command.
func Decode(text string) (Command, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, &DecodeError{Text: text, Reason: "empty"}
	}

	// exact keywords first: "PUMP_ON" must not be taken as a prefix of something else
	switch s {
	case textPoll:
		return Poll{}, nil
	case textShutdown:
		return Shutdown{}, nil
	case textStop:
		return Stop{}, nil
	case textClear:
		return ClearAll{}, nil
	case textPumpOn:
		return PumpOn{}, nil
	case textPumpOff:
		return PumpOff{}, nil
	case textAttach:
		return Attach{}, nil
	case textDetach:
		return Detach{}, nil
	}

	switch {
	case strings.HasPrefix(s, prefixMove):
		v, err := parseFloats(s[len(prefixMove):], 3)
		if err != nil {
			return nil, &DecodeError{Text: text, Reason: err.Error()}
		}
		return Move{X: v[0], Y: v[1], Z: v[2]}, nil

	case strings.HasPrefix(s, prefixJoints):
		v, err := parseFloats(s[len(prefixJoints):], 4)
		if err != nil {
			return nil, &DecodeError{Text: text, Reason: err.Error()}
		}
		var ja arm.JointAngles
		copy(ja[:], v)
		return SetJointAngles{Angles: ja}, nil

	case strings.HasPrefix(s, prefixServo):
		v, err := parseFloats(s[len(prefixServo):], 1)
		if err != nil {
			return nil, &DecodeError{Text: text, Reason: err.Error()}
		}
		return SetServoAngle{Index: arm.WristServo, Angle: v[0]}, nil

	case strings.HasPrefix(s, prefixRelative):
		v, err := parseFloats(s[len(prefixRelative):], 1)
		if err != nil {
			return nil, &DecodeError{Text: text, Reason: err.Error()}
		}
		return RelativeMove{DZ: v[0]}, nil

	case strings.HasPrefix(s, prefixBeep):
		// a garbled payload still beeps, with the default tone
		v, err := parseFloats(s[len(prefixBeep):], 2)
		if err != nil {
			return Beep{Frequency: DefaultBeepFrequency, Duration: DefaultBeepDuration}, nil
		}
		return Beep{Frequency: v[0], Duration: v[1]}, nil
	}

	return nil, &DecodeError{Text: text, Reason: "unknown command"}
}

func parseFloats(payload string, n int) ([]float64, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ",")
}

// internal/telemetry/result.go
package telemetry

import (
	"math"
	"time"

	"github.com/tamzrod/uarm-bridge/internal/arm"
)

// Kind classifies a Result.
type Kind int

const (
	// KindReading carries zero or more telemetry fields.
	KindReading Kind = iota
	// KindHardwareError reports a lost device link. It is terminal.
	KindHardwareError
	// KindShutdown is the termination sentinel.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindReading:
		return "reading"
	case KindHardwareError:
		return "hardware_error"
	case KindShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Result is one unit of telemetry produced by a poll cycle.
// A nil or empty field was not read this cycle.
type Result struct {
	Kind Kind
	At   time.Time

	Position *arm.Position
	Joints   *arm.JointAngles
	Analog   []float64
	Digital  []int

	// Err is set for KindHardwareError.
	Err error
}

// HardwareError builds the terminal result for a lost link.
func HardwareError(err error) Result {
	return Result{Kind: KindHardwareError, At: time.Now(), Err: err}
}

// Shutdown builds the termination sentinel.
func Shutdown() Result {
	return Result{Kind: KindShutdown, At: time.Now()}
}

// Empty reports whether a reading has no fields at all.
func (r Result) Empty() bool {
	return r.Position == nil && r.Joints == nil && len(r.Analog) == 0 && len(r.Digital) == 0
}

// RoundAnalog rounds an analog reading to 3 decimals.
func RoundAnalog(v float64) float64 {
	return math.Round(v*1000) / 1000
}

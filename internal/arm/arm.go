// internal/arm/arm.go
package arm

import "github.com/golang/geo/r3"

// Position is the end effector position in millimetres.
type Position = r3.Vector

// JointAngles holds the four servo angles in degrees, base first.
type JointAngles [4]float64

// WristServo is the servo index driven by single-servo writes.
const WristServo = 3

// NewPosition is shorthand for building a Position.
func NewPosition(x, y, z float64) Position {
	return r3.Vector{X: x, Y: y, Z: z}
}

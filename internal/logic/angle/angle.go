// Package angle maps logical pan/tilt requests onto servo commands.
//
// Logical pan covers 0-360°. Two physical setups are supported: a 0-180°
// positional pan servo that reaches the far half by flipping the pane over
// the tilt axis, and a continuous-rotation pan servo that only knows speed.
// Everything here is pure; execution and state live in the motion package.
package angle

import (
	"fmt"
	"time"
)

const (
	// PanMax is the largest logical pan angle. Pan is kept modulo PanMax+1.
	PanMax = 360
	// TiltMax is the hardware tilt ceiling and the flip boundary for pan.
	TiltMax = 180
)

// Axis is one of the two actuated axes.
type Axis int

const (
	Pan Axis = iota
	Tilt
)

func (a Axis) String() string {
	switch a {
	case Pan:
		return "pan"
	case Tilt:
		return "tilt"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Kind selects how a command value is interpreted by the servo.
type Kind int

const (
	// Angle is a target position in degrees (0-180).
	Angle Kind = iota
	// Speed is a continuous-rotation speed, centered on the stop value.
	Speed
)

func (k Kind) String() string {
	if k == Speed {
		return "speed"
	}
	return "angle"
}

// Orientation is the logical pose of the pane.
type Orientation struct {
	Pan  int `json:"pan"`
	Tilt int `json:"tilt"`
}

// Command is one physical write followed by a wait.
// Commit marks the write after which the plan's logical pan is reached.
type Command struct {
	Axis   Axis
	Kind   Kind
	Value  int
	Wait   time.Duration
	Commit bool
}

// Plan is the ordered list of commands that moves the pane to Pan.
type Plan struct {
	Commands []Command
	Pan      int
}

// Strategy resolves a logical pan target into servo commands.
// Implementations are pure: same inputs, same plan.
type Strategy interface {
	Name() string
	ResolvePan(cur Orientation, target int) Plan
}

// NormalizePan wraps any integer into [0, PanMax] (361 -> 0, -1 -> 360).
func NormalizePan(a int) int {
	m := a % (PanMax + 1)
	if m < 0 {
		m += PanMax + 1
	}
	return m
}

// ValidTilt reports whether t is within the hardware tilt range.
func ValidTilt(t int) bool {
	return t >= 0 && t <= TiltMax
}

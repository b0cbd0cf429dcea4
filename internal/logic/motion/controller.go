package motion

import (
	"fmt"
	"time"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/power"
	"github.com/cjeanneret/SunGo/internal/logic/angle"
)

// Actuator issues physical servo commands.
type Actuator interface {
	WriteAngle(axis angle.Axis, value int) error
	WriteSpeed(axis angle.Axis, value int) error
}

// ServoWriter is a single servo accepting 0-180 values.
type ServoWriter interface {
	Write(value int) error
}

// ServoActuator routes axis commands to two servos. Angle and speed are the
// same pulse on the wire; only the servo type gives them meaning.
type ServoActuator struct {
	Pan  ServoWriter
	Tilt ServoWriter
}

func (s *ServoActuator) servo(axis angle.Axis) (ServoWriter, error) {
	switch axis {
	case angle.Pan:
		return s.Pan, nil
	case angle.Tilt:
		return s.Tilt, nil
	default:
		return nil, fmt.Errorf("unknown axis %v", axis)
	}
}

func (s *ServoActuator) WriteAngle(axis angle.Axis, value int) error {
	w, err := s.servo(axis)
	if err != nil {
		return err
	}
	return w.Write(value)
}

func (s *ServoActuator) WriteSpeed(axis angle.Axis, value int) error {
	w, err := s.servo(axis)
	if err != nil {
		return err
	}
	return w.Write(value)
}

// Controller orchestrates pan/tilt movements. It's the only owner of the
// pane orientation: every write goes through it and it records the pose
// after each successful command. A failed write leaves the last recorded
// pose in place and is returned to the caller, never retried.
type Controller struct {
	act      Actuator
	strategy angle.Strategy
	sleeper  power.Sleeper
	large    time.Duration
	o        angle.Orientation
}

// NewController creates a facade over act. large is the settle delay used
// after big motions (homing, turning around, forcing the search tilt).
func NewController(act Actuator, strategy angle.Strategy, sleeper power.Sleeper, large time.Duration) *Controller {
	return &Controller{
		act:      act,
		strategy: strategy,
		sleeper:  sleeper,
		large:    large,
	}
}

// Orientation returns the last recorded pose.
func (c *Controller) Orientation() angle.Orientation {
	return c.o
}

// Strategy returns the pan strategy chosen at configuration time.
func (c *Controller) Strategy() angle.Strategy {
	return c.strategy
}

// SetPan moves to a logical pan angle through the active strategy.
func (c *Controller) SetPan(target int) error {
	plan := c.strategy.ResolvePan(c.o, target)
	debug.Verbose("Pan %d -> %d via %s (%d commands)", c.o.Pan, plan.Pan, c.strategy.Name(), len(plan.Commands))
	return c.execute(plan)
}

// NudgePan moves pan by delta degrees.
func (c *Controller) NudgePan(delta int) error {
	return c.SetPan(c.o.Pan + delta)
}

// SetTilt writes a tilt angle. Targets outside 0-180 are ignored: no
// command, no state change, no error.
func (c *Controller) SetTilt(target int) error {
	if !angle.ValidTilt(target) {
		debug.Verbose("Tilt %d rejected (range 0-%d)", target, angle.TiltMax)
		return nil
	}
	return c.execute(angle.Plan{
		Pan:      c.o.Pan,
		Commands: []angle.Command{{Axis: angle.Tilt, Kind: angle.Angle, Value: target}},
	})
}

// NudgeTilt moves tilt by delta degrees, subject to the SetTilt range rule.
func (c *Controller) NudgeTilt(delta int) error {
	return c.SetTilt(c.o.Tilt + delta)
}

// Settle waits for a large motion to finish.
func (c *Controller) Settle() {
	c.sleeper.Sleep(c.large)
}

// Home drives both axes to their start position and waits for them.
func (c *Controller) Home(pan, tilt int) error {
	if err := c.SetPan(pan); err != nil {
		return err
	}
	if err := c.SetTilt(tilt); err != nil {
		return err
	}
	c.Settle()
	return nil
}

// MovePanTilt performs a combined movement (tilt first, then pan).
// Tilt goes first so that a pan flip inverts the new tilt.
func (c *Controller) MovePanTilt(pan, tilt int) error {
	if err := c.SetTilt(tilt); err != nil {
		return err
	}
	return c.SetPan(pan)
}

func (c *Controller) execute(p angle.Plan) error {
	for _, cmd := range p.Commands {
		var err error
		switch cmd.Kind {
		case angle.Speed:
			err = c.act.WriteSpeed(cmd.Axis, cmd.Value)
		default:
			err = c.act.WriteAngle(cmd.Axis, cmd.Value)
		}
		if err != nil {
			return fmt.Errorf("write %s %s=%d: %w", cmd.Axis, cmd.Kind, cmd.Value, err)
		}
		debug.Move(cmd.Axis.String(), cmd.Value, cmd.Kind.String())

		if cmd.Axis == angle.Tilt {
			c.o.Tilt = cmd.Value
		}
		c.sleeper.Sleep(cmd.Wait)
		if cmd.Commit {
			c.o.Pan = p.Pan
		}
	}
	return nil
}

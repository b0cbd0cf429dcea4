package servo

import (
	"fmt"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/gpio"
)

const (
	// FrameHz is the servo refresh rate (20 ms frame).
	FrameHz = 50
	// FrameTicks is the PWM cycle length; one tick is one microsecond.
	FrameTicks = 20000

	// Arduino Servo library defaults.
	DefaultMinPulseUs = 544
	DefaultMaxPulseUs = 2400

	// MaxValue is the top of the 0-180 command range, for both
	// positional (degrees) and continuous (speed, 90 = stop) servos.
	MaxValue = 180
)

// Config holds the hardware configuration for a hobby servo.
type Config struct {
	Pin        int // BCM pin with hardware PWM
	MinPulseUs int // pulse width for value 0. 0 = DefaultMinPulseUs.
	MaxPulseUs int // pulse width for value 180. 0 = DefaultMaxPulseUs.
}

// Servo drives a positional or continuous-rotation servo from a PWM pin.
// Values follow the Arduino Servo.write convention: 0-180, clamped.
type Servo struct {
	gpio  gpio.Driver
	cfg   Config
	value int
}

// New configures the PWM pin and returns a servo controller.
// No pulse is emitted until the first Write.
func New(g gpio.Driver, cfg Config) (*Servo, error) {
	if cfg.MinPulseUs <= 0 {
		cfg.MinPulseUs = DefaultMinPulseUs
	}
	if cfg.MaxPulseUs <= 0 {
		cfg.MaxPulseUs = DefaultMaxPulseUs
	}
	if cfg.MaxPulseUs <= cfg.MinPulseUs {
		return nil, fmt.Errorf("servo pin %d: max pulse %dus must exceed min pulse %dus", cfg.Pin, cfg.MaxPulseUs, cfg.MinPulseUs)
	}
	if err := g.SetupPWM(cfg.Pin, FrameHz*FrameTicks); err != nil {
		return nil, fmt.Errorf("servo pin %d: %w", cfg.Pin, err)
	}
	return &Servo{gpio: g, cfg: cfg, value: -1}, nil
}

// PulseWidth maps a 0-180 value onto the configured pulse range (microseconds).
func (s *Servo) PulseWidth(value int) int {
	value = clamp(value)
	return s.cfg.MinPulseUs + value*(s.cfg.MaxPulseUs-s.cfg.MinPulseUs)/MaxValue
}

// Write commands the servo. For a positional servo value is the angle,
// for a continuous servo it is the speed.
func (s *Servo) Write(value int) error {
	value = clamp(value)
	pw := s.PulseWidth(value)
	debug.Trace("Servo pin %d: value=%d pulse=%dus", s.cfg.Pin, value, pw)
	if err := s.gpio.WriteDuty(s.cfg.Pin, uint32(pw), FrameTicks); err != nil {
		return fmt.Errorf("servo pin %d: %w", s.cfg.Pin, err)
	}
	s.value = value
	return nil
}

// Value returns the last value successfully written, or -1 before the first write.
func (s *Servo) Value() int {
	return s.value
}

// Release stops emitting pulses. A positional servo goes limp,
// a continuous servo stops.
func (s *Servo) Release() error {
	return s.gpio.WriteDuty(s.cfg.Pin, 0, FrameTicks)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

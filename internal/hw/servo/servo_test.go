package servo

import (
	"errors"
	"testing"

	"github.com/cjeanneret/SunGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls    []gpioCall
	failDuty error
}

type gpioCall struct {
	op    string // "setup", "pwm", "duty"
	pin   int
	freq  int
	duty  uint32
	cycle uint32
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error { return nil }

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) { return gpio.Low, nil }

func (d *recordingDriver) SetupPWM(pin int, freq int) error {
	d.calls = append(d.calls, gpioCall{op: "pwm", pin: pin, freq: freq})
	return nil
}

func (d *recordingDriver) WriteDuty(pin int, duty, cycle uint32) error {
	if d.failDuty != nil {
		return d.failDuty
	}
	d.calls = append(d.calls, gpioCall{op: "duty", pin: pin, duty: duty, cycle: cycle})
	return nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) dutyCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "duty" {
			result = append(result, c)
		}
	}
	return result
}

func TestServo_NewSetsUpPWM(t *testing.T) {
	drv := &recordingDriver{}
	s, err := New(drv, Config{Pin: 18})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(drv.calls) != 1 || drv.calls[0].op != "pwm" || drv.calls[0].pin != 18 {
		t.Fatalf("expected one SetupPWM on pin 18, got %v", drv.calls)
	}
	if drv.calls[0].freq != FrameHz*FrameTicks {
		t.Errorf("freq = %d, want %d", drv.calls[0].freq, FrameHz*FrameTicks)
	}
	if s.Value() != -1 {
		t.Errorf("Value before first write = %d, want -1", s.Value())
	}
}

func TestServo_InvalidPulseRange(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := New(drv, Config{Pin: 18, MinPulseUs: 2000, MaxPulseUs: 1000}); err == nil {
		t.Error("expected error for inverted pulse range")
	}
}

func TestServo_PulseWidth(t *testing.T) {
	s, _ := New(&recordingDriver{}, Config{Pin: 18, MinPulseUs: 1000, MaxPulseUs: 2800})
	cases := []struct {
		value int
		want  int
	}{
		{0, 1000},
		{90, 1900},
		{180, 2800},
		{-10, 1000}, // clamped
		{250, 2800}, // clamped
	}
	for _, tc := range cases {
		if got := s.PulseWidth(tc.value); got != tc.want {
			t.Errorf("PulseWidth(%d) = %d, want %d", tc.value, got, tc.want)
		}
	}
}

func TestServo_WriteEmitsDuty(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := New(drv, Config{Pin: 13})
	drv.calls = nil // reset after init

	if err := s.Write(90); err != nil {
		t.Fatalf("Write: %v", err)
	}
	duty := drv.dutyCalls()
	if len(duty) != 1 {
		t.Fatalf("expected 1 duty write, got %d", len(duty))
	}
	if duty[0].pin != 13 || duty[0].cycle != FrameTicks {
		t.Errorf("unexpected duty call %+v", duty[0])
	}
	if int(duty[0].duty) != s.PulseWidth(90) {
		t.Errorf("duty = %d, want %d", duty[0].duty, s.PulseWidth(90))
	}
	if s.Value() != 90 {
		t.Errorf("Value = %d, want 90", s.Value())
	}
}

func TestServo_WriteFailureKeepsValue(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := New(drv, Config{Pin: 13})
	if err := s.Write(45); err != nil {
		t.Fatalf("Write: %v", err)
	}

	drv.failDuty = errors.New("bus error")
	if err := s.Write(120); err == nil {
		t.Fatal("expected error from failing driver")
	}
	if s.Value() != 45 {
		t.Errorf("Value after failed write = %d, want 45", s.Value())
	}
}

func TestServo_Release(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := New(drv, Config{Pin: 12})
	drv.calls = nil

	if err := s.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	duty := drv.dutyCalls()
	if len(duty) != 1 || duty[0].duty != 0 {
		t.Errorf("Release should write zero duty, got %v", duty)
	}
}

package power

import (
	"fmt"
	"time"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/adc"
)

// Sleeper suspends the caller for d. Implementations block until d has
// elapsed and cannot be interrupted; callers stay responsive only by
// keeping d bounded.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SystemSleeper blocks the control goroutine with time.Sleep.
type SystemSleeper struct{}

func (SystemSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	debug.Trace("sleep %v", d)
	time.Sleep(d)
}

// MeterConfig describes the DC current sensor front-end.
type MeterConfig struct {
	Channel    int     // ADC channel of the sensor output
	VRef       float64 // converter reference voltage
	SenseOhms  float64 // sense resistor (Rs)
	OutputOhms float64 // output/load resistor seen by the ADC
}

// Meter converts one ADC reading into generated power (watts).
// It is observational only; nothing in the control loop consumes it.
type Meter struct {
	sampler adc.Sampler
	cfg     MeterConfig
}

// NewMeter creates a power meter. Zero fields take the values of the
// reference front-end (5 V reference, 100 Ω sense, 1 kΩ output).
func NewMeter(s adc.Sampler, cfg MeterConfig) *Meter {
	if cfg.VRef <= 0 {
		cfg.VRef = 5.0
	}
	if cfg.SenseOhms <= 0 {
		cfg.SenseOhms = 100
	}
	if cfg.OutputOhms <= 0 {
		cfg.OutputOhms = 1000
	}
	return &Meter{sampler: s, cfg: cfg}
}

// Watts computes power from a raw ADC value:
// Vout = raw * VRef / 1023, I = Vout / Rs, U = Vout / Rout, P = I * U.
func (m *Meter) Watts(raw int) float64 {
	vout := float64(raw) * m.cfg.VRef / adc.MaxRaw
	current := vout / m.cfg.SenseOhms
	voltage := vout / m.cfg.OutputOhms
	return current * voltage
}

// Read samples the sensor and returns the generated power.
func (m *Meter) Read() (float64, error) {
	raw, err := m.sampler.Read(m.cfg.Channel)
	if err != nil {
		return 0, fmt.Errorf("read power sensor: %w", err)
	}
	w := m.Watts(raw)
	debug.Verbose("Power generated: %.6f W (raw=%d)", w, raw)
	return w, nil
}

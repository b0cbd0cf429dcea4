package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/SunGo/internal/config"
	"github.com/cjeanneret/SunGo/internal/hw/adc"
	"github.com/cjeanneret/SunGo/internal/hw/gpio"
	"github.com/cjeanneret/SunGo/internal/hw/power"
	"github.com/cjeanneret/SunGo/internal/hw/servo"
	"github.com/cjeanneret/SunGo/internal/logic/angle"
	"github.com/cjeanneret/SunGo/internal/logic/motion"
	"github.com/cjeanneret/SunGo/internal/logic/sensor"
	"github.com/cjeanneret/SunGo/internal/logic/tracker"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_Unset(t *testing.T) {
	if err := validateCLIOverrides(overrides{DebugLevel: -1}); err != nil {
		t.Errorf("unset overrides should be valid, got: %v", err)
	}
}

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []overrides{
		{PanMode: "flip", DebugLevel: 0},
		{PanMode: "continuous", DebugLevel: 4},
		{DebugLevel: 2, Mock: true},
	}
	for _, o := range cases {
		if err := validateCLIOverrides(o); err != nil {
			t.Errorf("%+v: expected valid, got: %v", o, err)
		}
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	cases := map[string]overrides{
		"pan_mode":    {PanMode: "stepper", DebugLevel: -1},
		"debug_high":  {DebugLevel: 5},
		"debug_below": {DebugLevel: -2},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			if err := validateCLIOverrides(o); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- applyOverrides ----------

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("sensors:\n  adc: mcp3008\ndefaults:\n  debug_level: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestApplyOverrides_Set(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, overrides{PanMode: "continuous", DebugLevel: 3, Mock: true})

	if cfg.Pan.Mode != "continuous" {
		t.Errorf("pan.mode = %q", cfg.Pan.Mode)
	}
	if cfg.Defaults.DebugLevel != 3 {
		t.Errorf("debug_level = %d, want 3", cfg.Defaults.DebugLevel)
	}
	if !cfg.Defaults.MockGPIO || cfg.Sensors.ADC != config.ADCMock {
		t.Errorf("mock should force mock GPIO and mock ADC, got %v/%q", cfg.Defaults.MockGPIO, cfg.Sensors.ADC)
	}
}

func TestApplyOverrides_UnsetLeavesConfig(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, overrides{DebugLevel: -1})

	if cfg.Pan.Mode != config.PanModeFlip || cfg.Defaults.DebugLevel != 1 || cfg.Sensors.ADC != config.ADCMCP3008 {
		t.Errorf("config changed: %+v %+v %+v", cfg.Pan, cfg.Defaults, cfg.Sensors)
	}
}

// ---------- wiring ----------

func TestNewStrategy(t *testing.T) {
	cfg := newTestConfig(t)
	flip, ok := newStrategy(cfg).(angle.FlipStrategy)
	if !ok {
		t.Fatalf("flip mode should build a FlipStrategy")
	}
	if flip.Large != time.Second || flip.Small != 500*time.Millisecond {
		t.Errorf("flip delays = %+v", flip)
	}

	cfg.Pan.Mode = config.PanModeContinuous
	speed, ok := newStrategy(cfg).(angle.SpeedStrategy)
	if !ok {
		t.Fatalf("continuous mode should build a SpeedStrategy")
	}
	if speed.Speeds != angle.DefaultSpeeds || speed.SearchRate != 120 || speed.SearchStep != 10 {
		t.Errorf("speed strategy = %+v", speed)
	}
}

func TestNewSampler(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Defaults.MockGPIO = true
	if _, err := newSampler(cfg); err == nil {
		t.Error("mcp3008 on mock GPIO should fail")
	}

	cfg.Sensors.ADC = config.ADCMock
	s, err := newSampler(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if v, _ := s.Read(2); v != 600 {
		t.Errorf("mock level = %d, want 600", v)
	}
}

func TestTrackerParams(t *testing.T) {
	cfg := newTestConfig(t)
	if got, want := trackerParams(cfg), tracker.DefaultParams(); got != want {
		t.Errorf("params from default config = %+v, want %+v", got, want)
	}
}

// ---------- status LED & button ----------

// pinDriver is a gpio.Driver with scriptable input levels.
type pinDriver struct {
	gpio.MockDriver
	mu     sync.Mutex
	writes map[int][]gpio.Level
	inputs []gpio.Level
}

func (p *pinDriver) WritePin(pin int, level gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writes == nil {
		p.writes = map[int][]gpio.Level{}
	}
	p.writes[pin] = append(p.writes[pin], level)
	return nil
}

func (p *pinDriver) ReadPin(pin int) (gpio.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.inputs) == 0 {
		return gpio.High, nil
	}
	l := p.inputs[0]
	p.inputs = p.inputs[1:]
	return l, nil
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

// newMockTracker wires the real packages on mock hardware.
func newMockTracker(t *testing.T, g gpio.Driver, level int) (*tracker.Controller, *motion.Controller) {
	t.Helper()
	pan, err := servo.New(g, servo.Config{Pin: 18})
	if err != nil {
		t.Fatal(err)
	}
	tilt, err := servo.New(g, servo.Config{Pin: 13})
	if err != nil {
		t.Fatal(err)
	}
	fusion := sensor.NewFusion(adc.NewMockSampler(level), sensor.DefaultChannels)
	facade := motion.NewController(&motion.ServoActuator{Pan: pan, Tilt: tilt},
		angle.FlipStrategy{}, noSleep{}, 0)
	ctrl, err := tracker.NewController(fusion, facade, noSleep{}, tracker.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	return ctrl, facade
}

func TestWireStatusLED(t *testing.T) {
	drv := &pinDriver{}
	ctrl, _ := newMockTracker(t, drv, 600)
	if err := wireStatusLED(drv, 21, ctrl); err != nil {
		t.Fatal(err)
	}

	if err := ctrl.Cycle(); err != nil { // light found
		t.Fatal(err)
	}
	if err := ctrl.Submit(tracker.Off); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Cycle(); err != nil {
		t.Fatal(err)
	}

	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low}
	got := drv.writes[21]
	if len(got) != len(want) {
		t.Fatalf("LED writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("LED write %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWatchButton_FallingEdge(t *testing.T) {
	drv := &pinDriver{inputs: []gpio.Level{
		gpio.High, // initial
		gpio.High, gpio.Low, gpio.Low, gpio.High, gpio.Low,
	}}
	var mu sync.Mutex
	presses := 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchButton(ctx, drv, 5, time.Millisecond, func() {
			mu.Lock()
			presses++
			mu.Unlock()
		})
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		drv.mu.Lock()
		left := len(drv.inputs)
		drv.mu.Unlock()
		if left == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if presses != 2 {
		t.Errorf("presses = %d, want 2", presses)
	}
}

// ---------- end to end on mock hardware ----------

func TestMockRig_SearchThenTrack(t *testing.T) {
	ctrl, facade := newMockTracker(t, &gpio.MockDriver{}, 600)
	if err := facade.Home(0, 135); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Cycle(); err != nil {
		t.Fatal(err)
	}
	if s := ctrl.Snapshot(); s.State != tracker.Tracking || s.Readings != (sensor.Readings{600, 600, 600, 600}) {
		t.Errorf("snapshot = %+v", s)
	}
	// Equal readings sit in the dead band: no movement.
	before := facade.Orientation()
	if err := ctrl.Cycle(); err != nil {
		t.Fatal(err)
	}
	if facade.Orientation() != before {
		t.Errorf("orientation moved from %+v to %+v", before, facade.Orientation())
	}
}

func TestMockRig_DarkSweepsAndSleeps(t *testing.T) {
	ctrl, facade := newMockTracker(t, &gpio.MockDriver{}, 100)
	if err := facade.Home(0, 135); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Cycle(); err != nil {
		t.Fatal(err)
	}
	if ctrl.State() != tracker.SleepOn {
		t.Errorf("state = %s, want sleep_on", ctrl.State())
	}
	// 2 sweeps of 37 steps of 10° from 0: 740 = 2*361 + 18.
	if got := facade.Orientation().Pan; got != 18 {
		t.Errorf("pan after search = %d, want 18", got)
	}
}

func TestPowerMeterOnMockSampler(t *testing.T) {
	m := power.NewMeter(adc.NewMockSampler(1023), power.MeterConfig{Channel: 4})
	w, err := m.Read()
	if err != nil {
		t.Fatal(err)
	}
	// 5 V / 100 Ω * 5 V / 1000 Ω
	if w < 0.000249 || w > 0.000251 {
		t.Errorf("watts = %v, want 0.00025", w)
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyUsesDefault(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatal(err)
	}
	if w.port() != 8080 {
		t.Errorf("port = %d, want 8080", w.port())
	}
}

func TestWebPortFlag_Ports(t *testing.T) {
	for _, s := range []string{"1", "3000", "8980", "65535"} {
		w := &webPortFlag{defaultPort: 8080}
		if err := w.Set(s); err != nil {
			t.Errorf("Set(%q): %v", s, err)
			continue
		}
		if w.String() != s {
			t.Errorf("String() = %q, want %q", w.String(), s)
		}
	}
	for _, s := range []string{"0", "65536", "-1", "web", "80.5"} {
		w := &webPortFlag{defaultPort: 8080}
		if err := w.Set(s); err == nil {
			t.Errorf("Set(%q) should fail", s)
		}
		if w.port() != 0 {
			t.Errorf("Set(%q) left port %d", s, w.port())
		}
	}
}

func TestWebPortFlag_Disabled(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if w.String() != "0" || w.port() != 0 {
		t.Errorf("unset flag = %q/%d, want disabled", w.String(), w.port())
	}
}

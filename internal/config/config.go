package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/SunGo/internal/hw/adc"
)

// MaxConfigFileBytes caps the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Pan modes.
const (
	PanModeFlip       = "flip"       // 0-180° positional pan servo, flips the pane for the far half
	PanModeContinuous = "continuous" // continuous-rotation pan servo driven by speed
)

// ADC types.
const (
	ADCMCP3008 = "mcp3008"
	ADCSerial  = "serial"
	ADCMock    = "mock"
)

// ServoConfig holds the configuration for one hobby servo.
type ServoConfig struct {
	Pin        int `yaml:"pin"`          // BCM pin with hardware PWM (12, 13, 18, 19)
	MinPulseUs int `yaml:"min_pulse_us"` // pulse for value 0 (default 544)
	MaxPulseUs int `yaml:"max_pulse_us"` // pulse for value 180 (default 2400)
}

// PanConfig selects how logical 0-360° pan reaches the pan servo.
type PanConfig struct {
	Mode string `yaml:"mode"` // "flip" or "continuous"

	// Continuous mode only.
	StopSpeed     int     `yaml:"stop_speed"`      // servo value that holds still (default 90)
	SearchSpeed   int     `yaml:"search_speed"`    // sweep speed (default 85)
	TrackCWSpeed  int     `yaml:"track_cw_speed"`  // clockwise nudge (default 70)
	TrackCCWSpeed int     `yaml:"track_ccw_speed"` // counter-clockwise nudge (default 110)
	SearchRateDeg float64 `yaml:"search_rate_deg"` // °/s at search speed (default 120)
	TrackRateDeg  float64 `yaml:"track_rate_deg"`  // °/s at track speeds (default 240)
}

// SerialConfig describes the microcontroller ADC bridge.
type SerialConfig struct {
	Path            string `yaml:"path"` // e.g. /dev/ttyUSB0
	adc.PortOptions `yaml:",inline"`
	ReadTimeoutMs   int `yaml:"read_timeout_ms"`
}

// SensorsConfig describes where the four LDRs are read from.
type SensorsConfig struct {
	ADC        string       `yaml:"adc"`          // "mcp3008", "serial" or "mock"
	Channels   [4]int       `yaml:"channels"`     // NW, NE, SW, SE
	SPIChip    int          `yaml:"spi_chip"`     // MCP3008 chip select (CE0=0, CE1=1)
	SPISpeedHz int          `yaml:"spi_speed_hz"` // MCP3008 clock (default 1 MHz)
	Serial     SerialConfig `yaml:"serial"`
	MockLevel  int          `yaml:"mock_level"` // reading returned by the mock sampler (default 600)
}

// PowerConfig describes the optional DC current sensor.
type PowerConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Channel    int     `yaml:"channel"`
	VRef       float64 `yaml:"vref"`        // default 5.0
	SenseOhms  float64 `yaml:"sense_ohms"`  // default 100
	OutputOhms float64 `yaml:"output_ohms"` // default 1000
}

// TrackerConfig holds the control loop tuning. Thresholds are raw ADC units.
type TrackerConfig struct {
	SearchTol          int   `yaml:"search_tol"`
	TrackDiff          int   `yaml:"track_diff"`
	LowRead            int   `yaml:"low_read"`
	LowTimes           int   `yaml:"low_times"`
	SearchStep         int   `yaml:"search_step"`
	SearchLoops        int   `yaml:"search_loops"`
	TrackStep          int   `yaml:"track_step"`
	SearchTilt         int   `yaml:"search_tilt"`
	HomePan            int   `yaml:"home_pan"`
	NorthIncreasesTilt *bool `yaml:"north_increases_tilt"` // nil = true
	LargeDelayMs       int   `yaml:"large_delay_ms"`
	SmallDelayMs       int   `yaml:"small_delay_ms"`
	ReadDelayMs        int   `yaml:"read_delay_ms"`
	SleepOnMs          int   `yaml:"sleep_on_ms"`
	SleepOffMs         int   `yaml:"sleep_off_ms"`
}

// LogConfig selects the log rendering.
type LogConfig struct {
	JSON   bool `yaml:"json"`
	Colors bool `yaml:"colors"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel    int  `yaml:"debug_level"`     // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO      bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	StatusLEDPin  int  `yaml:"status_led_pin"`  // lit while tracking. 0 = not used.
	WakeButtonPin int  `yaml:"wake_button_pin"` // active-low push button sending "search". 0 = not used.
}

// Config aggregates all application configuration.
type Config struct {
	PanServo  ServoConfig    `yaml:"pan_servo"`
	TiltServo ServoConfig    `yaml:"tilt_servo"`
	Pan       PanConfig      `yaml:"pan"`
	Sensors   SensorsConfig  `yaml:"sensors"`
	Power     PowerConfig    `yaml:"power"`
	Tracker   TrackerConfig  `yaml:"tracker"`
	Log       LogConfig      `yaml:"log"`
	Defaults  DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath only accepts .yaml files directly inside a configs/
// directory, with no ".." element.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PanServo.Pin == 0 {
		c.PanServo.Pin = 18
	}
	if c.TiltServo.Pin == 0 {
		c.TiltServo.Pin = 13
	}

	if c.Pan.Mode == "" {
		c.Pan.Mode = PanModeFlip
	}
	if c.Pan.StopSpeed == 0 {
		c.Pan.StopSpeed = 90
	}
	if c.Pan.SearchSpeed == 0 {
		c.Pan.SearchSpeed = 85
	}
	if c.Pan.TrackCWSpeed == 0 {
		c.Pan.TrackCWSpeed = 70
	}
	if c.Pan.TrackCCWSpeed == 0 {
		c.Pan.TrackCCWSpeed = 110
	}
	if c.Pan.SearchRateDeg <= 0 {
		c.Pan.SearchRateDeg = 120
	}
	if c.Pan.TrackRateDeg <= 0 {
		c.Pan.TrackRateDeg = 240
	}

	if c.Sensors.ADC == "" {
		c.Sensors.ADC = ADCMock
	}
	if c.Sensors.Channels == [4]int{} {
		c.Sensors.Channels = [4]int{0, 1, 2, 3}
	}
	if c.Sensors.MockLevel <= 0 {
		c.Sensors.MockLevel = 600
	}
	if c.Sensors.SPISpeedHz <= 0 {
		c.Sensors.SPISpeedHz = 1_000_000
	}
	if c.Sensors.Serial.ReadTimeoutMs <= 0 {
		c.Sensors.Serial.ReadTimeoutMs = 500
	}
	c.Sensors.Serial.ReadTimeout = time.Duration(c.Sensors.Serial.ReadTimeoutMs) * time.Millisecond

	if c.Power.VRef <= 0 {
		c.Power.VRef = 5.0
	}
	if c.Power.SenseOhms <= 0 {
		c.Power.SenseOhms = 100
	}
	if c.Power.OutputOhms <= 0 {
		c.Power.OutputOhms = 1000
	}

	t := &c.Tracker
	setInt(&t.SearchTol, 500)
	setInt(&t.TrackDiff, 50)
	setInt(&t.LowRead, 350)
	setInt(&t.LowTimes, 10)
	setInt(&t.SearchStep, 10)
	setInt(&t.SearchLoops, 2)
	setInt(&t.TrackStep, 1)
	setInt(&t.SearchTilt, 135)
	setInt(&t.LargeDelayMs, 1000)
	setInt(&t.SmallDelayMs, 500)
	setInt(&t.ReadDelayMs, 1000)
	setInt(&t.SleepOnMs, 3000)
	setInt(&t.SleepOffMs, 10000)
	if t.NorthIncreasesTilt == nil {
		v := true
		t.NorthIncreasesTilt = &v
	}
}

// setInt replaces an unset (zero) value with def.
func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// Validate checks ranges after defaults have been applied.
func (c *Config) Validate() error {
	var errs []error

	switch c.Pan.Mode {
	case PanModeFlip, PanModeContinuous:
	default:
		errs = append(errs, fmt.Errorf("pan.mode must be %q or %q, got %q", PanModeFlip, PanModeContinuous, c.Pan.Mode))
	}
	for name, s := range map[string]ServoConfig{"pan_servo": c.PanServo, "tilt_servo": c.TiltServo} {
		if s.Pin < 0 || s.Pin > 27 {
			errs = append(errs, fmt.Errorf("%s.pin must be a BCM pin 0-27, got %d", name, s.Pin))
		}
		if s.MinPulseUs < 0 || s.MaxPulseUs < 0 || (s.MaxPulseUs != 0 && s.MinPulseUs >= s.MaxPulseUs) {
			errs = append(errs, fmt.Errorf("%s pulse range %d-%d us is invalid", name, s.MinPulseUs, s.MaxPulseUs))
		}
	}
	if c.PanServo.Pin == c.TiltServo.Pin {
		errs = append(errs, fmt.Errorf("pan_servo and tilt_servo share pin %d", c.PanServo.Pin))
	}
	for _, v := range []int{c.Pan.StopSpeed, c.Pan.SearchSpeed, c.Pan.TrackCWSpeed, c.Pan.TrackCCWSpeed} {
		if v < 0 || v > 180 {
			errs = append(errs, fmt.Errorf("pan speeds must be in 0-180, got %d", v))
			break
		}
	}

	switch c.Sensors.ADC {
	case ADCMCP3008:
		if c.Sensors.SPIChip != 0 && c.Sensors.SPIChip != 1 {
			errs = append(errs, fmt.Errorf("sensors.spi_chip must be 0 or 1, got %d", c.Sensors.SPIChip))
		}
		for _, ch := range c.Sensors.Channels {
			if ch < 0 || ch >= adc.MCP3008Channels {
				errs = append(errs, fmt.Errorf("sensors.channels must be 0-%d, got %d", adc.MCP3008Channels-1, ch))
				break
			}
		}
	case ADCSerial:
		if c.Sensors.Serial.Path == "" {
			errs = append(errs, errors.New("sensors.serial.path is required for the serial adc"))
		}
		if _, err := c.Sensors.Serial.PortOptions.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("sensors.serial: %w", err))
		}
	case ADCMock:
	default:
		errs = append(errs, fmt.Errorf("sensors.adc must be mcp3008, serial or mock, got %q", c.Sensors.ADC))
	}
	seen := map[int]bool{}
	for _, ch := range c.Sensors.Channels {
		if seen[ch] {
			errs = append(errs, fmt.Errorf("sensors.channels has duplicate channel %d", ch))
			break
		}
		seen[ch] = true
	}
	if c.Power.Enabled && seen[c.Power.Channel] {
		errs = append(errs, fmt.Errorf("power.channel %d is already used by a light sensor", c.Power.Channel))
	}

	t := c.Tracker
	if t.SearchStep < 1 || t.SearchStep > 360 {
		errs = append(errs, fmt.Errorf("tracker.search_step must be between 1 and 360, got %d", t.SearchStep))
	}
	if t.SearchTilt < 0 || t.SearchTilt > 180 {
		errs = append(errs, fmt.Errorf("tracker.search_tilt must be between 0 and 180, got %d", t.SearchTilt))
	}
	if t.HomePan < 0 || t.HomePan > 360 {
		errs = append(errs, fmt.Errorf("tracker.home_pan must be between 0 and 360, got %d", t.HomePan))
	}
	if t.SearchLoops < 1 || t.LowTimes < 1 || t.TrackStep < 1 {
		errs = append(errs, errors.New("tracker.search_loops, low_times and track_step must be >= 1"))
	}
	for _, ms := range []int{t.LargeDelayMs, t.SmallDelayMs, t.ReadDelayMs, t.SleepOnMs, t.SleepOffMs} {
		if ms < 0 {
			errs = append(errs, errors.New("tracker delays must not be negative"))
			break
		}
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		errs = append(errs, fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel))
	}
	return errors.Join(errs...)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// LargeDelay returns the settle time after a flip or a big move.
func (c *Config) LargeDelay() time.Duration {
	return ms(c.Tracker.LargeDelayMs)
}

// SmallDelay returns the settle time after a small move.
func (c *Config) SmallDelay() time.Duration {
	return ms(c.Tracker.SmallDelayMs)
}

// ReadDelay returns the pause between two tracking cycles.
func (c *Config) ReadDelay() time.Duration {
	return ms(c.Tracker.ReadDelayMs)
}

// SleepOn returns the sleep duration after a failed search.
func (c *Config) SleepOn() time.Duration {
	return ms(c.Tracker.SleepOnMs)
}

// SleepOff returns the per-cycle sleep while switched off.
func (c *Config) SleepOff() time.Duration {
	return ms(c.Tracker.SleepOffMs)
}

// NorthIncreasesTilt reports the vertical tracking sign.
func (c *Config) NorthIncreasesTilt() bool {
	return c.Tracker.NorthIncreasesTilt == nil || *c.Tracker.NorthIncreasesTilt
}

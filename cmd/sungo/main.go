package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/SunGo/internal/config"
	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/adc"
	"github.com/cjeanneret/SunGo/internal/hw/gpio"
	"github.com/cjeanneret/SunGo/internal/hw/power"
	"github.com/cjeanneret/SunGo/internal/hw/servo"
	"github.com/cjeanneret/SunGo/internal/logic/angle"
	"github.com/cjeanneret/SunGo/internal/logic/motion"
	"github.com/cjeanneret/SunGo/internal/logic/sensor"
	"github.com/cjeanneret/SunGo/internal/logic/tracker"
	"github.com/cjeanneret/SunGo/internal/web"
)

// buttonPoll is how often the wake button is sampled.
const buttonPoll = 50 * time.Millisecond

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	panMode := flag.String("pan_mode", "", "override pan mode (flip or continuous)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	mock := flag.Bool("mock", false, "force mock GPIO and mock light sensors")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	o := overrides{PanMode: *panMode, DebugLevel: *debugLevel, Mock: *mock}
	if err := validateCLIOverrides(o); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, o)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// Initialize debug system
	session := uuid.NewString()
	debug.Init(cfg.Defaults.DebugLevel, debug.Options{
		JSON:    cfg.Log.JSON,
		Colors:  cfg.Log.Colors,
		Session: session,
	})
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Session", session)
	debug.Value("Debug level", debug.Level())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize servos
	debug.Step(2, "Initializing servos")
	panServo, err := servo.New(gpioDriver, servoConfig(cfg.PanServo))
	if err != nil {
		log.Fatalf("init pan servo failed: %v", err)
	}
	defer panServo.Release()
	debug.PrintStruct("Pan servo config", cfg.PanServo)
	tiltServo, err := servo.New(gpioDriver, servoConfig(cfg.TiltServo))
	if err != nil {
		log.Fatalf("init tilt servo failed: %v", err)
	}
	defer tiltServo.Release()
	debug.PrintStruct("Tilt servo config", cfg.TiltServo)

	// Initialize light sensors
	debug.Step(3, "Initializing light sensors")
	sampler, err := newSampler(cfg)
	if err != nil {
		log.Fatalf("init sensors failed: %v", err)
	}
	defer sampler.Close()
	debug.Value("ADC", cfg.Sensors.ADC)
	debug.Value("Channels (NW NE SW SE)", cfg.Sensors.Channels)
	fusion := sensor.NewFusion(sampler, sensor.Channels(cfg.Sensors.Channels))

	// Home the pane
	debug.Step(4, "Homing")
	strategy := newStrategy(cfg)
	debug.Value("Pan mode", strategy.Name())
	sleeper := power.SystemSleeper{}
	facade := motion.NewController(
		&motion.ServoActuator{Pan: panServo, Tilt: tiltServo},
		strategy,
		sleeper,
		cfg.LargeDelay(),
	)
	if err := facade.Home(cfg.Tracker.HomePan, cfg.Tracker.SearchTilt); err != nil {
		log.Fatalf("homing failed: %v", err)
	}

	// Build the controller
	debug.Step(5, "Creating tracker")
	params := trackerParams(cfg)
	debug.PrintStruct("Tracker params", params)
	ctrl, err := tracker.NewController(fusion, facade, sleeper, params)
	if err != nil {
		log.Fatalf("create tracker failed: %v", err)
	}
	if cfg.Power.Enabled {
		ctrl.AttachMeter(power.NewMeter(sampler, power.MeterConfig{
			Channel:    cfg.Power.Channel,
			VRef:       cfg.Power.VRef,
			SenseOhms:  cfg.Power.SenseOhms,
			OutputOhms: cfg.Power.OutputOhms,
		}))
		debug.Value("Power channel", cfg.Power.Channel)
	}
	if pin := cfg.Defaults.StatusLEDPin; pin > 0 {
		if err := wireStatusLED(gpioDriver, pin, ctrl); err != nil {
			log.Fatalf("status LED: %v", err)
		}
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv, err := web.NewServer(webAddr, broadcaster, ctrl, web.SettingsFrom(strategy.Name(), params))
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
				cancel()
			}
		}()
	}

	// Log output is final from here on; goroutines below may log.
	if pin := cfg.Defaults.WakeButtonPin; pin > 0 {
		if err := gpioDriver.SetupPin(pin, gpio.Input); err != nil {
			log.Fatalf("wake button: %v", err)
		}
		go watchButton(ctx, gpioDriver, pin, buttonPoll, func() {
			if err := ctrl.Submit(tracker.Search); err != nil {
				debug.Error(err)
			}
		})
	}

	debug.Section("Tracking")
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("tracker stopped: %v", err)
	}
}

// overrides holds CLI values that replace configuration entries.
// Zero values (and -1 for DebugLevel) mean "use config".
type overrides struct {
	PanMode    string
	DebugLevel int
	Mock       bool
}

// validateCLIOverrides checks that set overrides are within valid ranges.
func validateCLIOverrides(o overrides) error {
	switch o.PanMode {
	case "", config.PanModeFlip, config.PanModeContinuous:
	default:
		return fmt.Errorf("pan_mode must be %q or %q, got %q", config.PanModeFlip, config.PanModeContinuous, o.PanMode)
	}
	if o.DebugLevel < -1 || o.DebugLevel > debug.LevelTrace {
		return fmt.Errorf("debug must be between 0 and %d, got %d", debug.LevelTrace, o.DebugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the set overrides.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.PanMode != "" {
		cfg.Pan.Mode = o.PanMode
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.Mock {
		cfg.Defaults.MockGPIO = true
		cfg.Sensors.ADC = config.ADCMock
	}
}

func servoConfig(c config.ServoConfig) servo.Config {
	return servo.Config{
		Pin:        c.Pin,
		MinPulseUs: c.MinPulseUs,
		MaxPulseUs: c.MaxPulseUs,
	}
}

// newStrategy selects the pan strategy from configuration.
func newStrategy(cfg *config.Config) angle.Strategy {
	if cfg.Pan.Mode == config.PanModeContinuous {
		return angle.SpeedStrategy{
			Speeds: angle.Speeds{
				Stop:     cfg.Pan.StopSpeed,
				Search:   cfg.Pan.SearchSpeed,
				TrackCW:  cfg.Pan.TrackCWSpeed,
				TrackCCW: cfg.Pan.TrackCCWSpeed,
			},
			SearchRate: cfg.Pan.SearchRateDeg,
			TrackRate:  cfg.Pan.TrackRateDeg,
			SearchStep: cfg.Tracker.SearchStep,
		}
	}
	return angle.FlipStrategy{Large: cfg.LargeDelay(), Small: cfg.SmallDelay()}
}

// newSampler selects the analog front-end from configuration.
func newSampler(cfg *config.Config) (adc.Sampler, error) {
	switch cfg.Sensors.ADC {
	case config.ADCMCP3008:
		if cfg.Defaults.MockGPIO {
			return nil, errors.New("mcp3008 needs the real GPIO driver (mock_gpio: false)")
		}
		m, err := adc.NewMCP3008(uint8(cfg.Sensors.SPIChip), cfg.Sensors.SPISpeedHz)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.ADCSerial:
		b, err := adc.OpenSerialBridge(cfg.Sensors.Serial.Path, cfg.Sensors.Serial.PortOptions)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.ADCMock:
		return adc.NewMockSampler(cfg.Sensors.MockLevel), nil
	default:
		return nil, fmt.Errorf("unsupported adc type: %s", cfg.Sensors.ADC)
	}
}

// trackerParams converts configuration into controller tuning.
func trackerParams(cfg *config.Config) tracker.Params {
	t := cfg.Tracker
	return tracker.Params{
		SearchTol:          t.SearchTol,
		TrackDiff:          t.TrackDiff,
		LowRead:            t.LowRead,
		LowTimes:           t.LowTimes,
		SearchStep:         t.SearchStep,
		SearchLoops:        t.SearchLoops,
		TrackStep:          t.TrackStep,
		SearchTilt:         t.SearchTilt,
		NorthIncreasesTilt: cfg.NorthIncreasesTilt(),
		SleepOn:            cfg.SleepOn(),
		SleepOff:           cfg.SleepOff(),
		ReadDelay:          cfg.ReadDelay(),
	}
}

// wireStatusLED lights pin while the controller is tracking.
func wireStatusLED(g gpio.Driver, pin int, ctrl *tracker.Controller) error {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return err
	}
	ctrl.OnTransition(func(_, to tracker.State) {
		if err := g.WritePin(pin, gpio.Level(to == tracker.Tracking)); err != nil {
			debug.Error(fmt.Errorf("status LED: %w", err))
		}
	})
	return nil
}

// watchButton calls press on each High -> Low edge of an active-low button
// until ctx is done.
func watchButton(ctx context.Context, g gpio.Driver, pin int, every time.Duration, press func()) {
	prev, err := g.ReadPin(pin)
	if err != nil {
		debug.Error(fmt.Errorf("wake button: %w", err))
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			level, err := g.ReadPin(pin)
			if err != nil {
				continue
			}
			if prev == gpio.High && level == gpio.Low {
				debug.Live("Wake button pressed")
				press()
			}
			prev = level
		}
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

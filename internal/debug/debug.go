package debug

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (state changes, search result)
	LevelLive    = 2 // Live info (servo moves, readings)
	LevelVerbose = 3 // Verbose (error vectors, plans, settle delays)
	LevelTrace   = 4 // Trace (GPIO, ADC, very low level)
)

// Options controls how log lines are rendered.
type Options struct {
	JSON    bool   // one JSON object per line instead of console text
	Colors  bool   // colorize console output
	Session string // attached to every entry when non-empty
}

var (
	level  int
	opts   Options
	logger atomic.Pointer[zerolog.Logger] // swapped by SetOutput while goroutines log
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (state transitions, search result)
// 2 = live info (servo moves, sensor readings)
// 3 = verbose (error vectors, resolved plans, delays)
// 4 = trace (GPIO, ADC frames)
// Levels outside 0-4 are clamped.
func Init(debugLevel int, o Options) {
	level = min(max(debugLevel, LevelOff), LevelTrace)
	opts = o
	zerolog.TimeFieldFormat = time.RFC3339
	if level > LevelOff {
		build(os.Stdout)
	} else {
		logger.Store(nil)
	}
}

// SetOutput redirects log output (e.g. to stdout plus the web broadcaster).
func SetOutput(w io.Writer) {
	if level > LevelOff {
		build(w)
	}
}

func build(w io.Writer) {
	out := w
	if !opts.JSON {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !opts.Colors,
		}
	}
	ctx := zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp().Str("app", "SunGo")
	if opts.Session != "" {
		ctx = ctx.Str("session", opts.Session)
	}
	l := ctx.Logger()
	logger.Store(&l)
}

// at returns the logger when the current level reaches minLevel, else nil.
func at(minLevel int) *zerolog.Logger {
	if level < minLevel {
		return nil
	}
	return logger.Load()
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Info().Msgf(format, args...)
	}
}

// Transition records a controller state change (level 1).
func Transition(from, to string) {
	if l := at(LevelInfo); l != nil {
		l.Info().Str("from", from).Str("to", to).Msg("state change")
	}
}

// Value prints a named value (level 1).
func Value(name string, value interface{}) {
	if l := at(LevelInfo); l != nil {
		l.Info().Interface(name, value).Msg("value")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if l := at(LevelLive); l != nil {
		l.Debug().Msgf(format, args...)
	}
}

// Move prints a servo command (level 2).
func Move(axis string, value int, kind string) {
	if l := at(LevelLive); l != nil {
		l.Debug().Str("axis", axis).Int("value", value).Str("kind", kind).Msg("servo write")
	}
}

// Readings prints one snapshot of the four light sensors (level 2).
func Readings(nw, ne, sw, se int) {
	if l := at(LevelLive); l != nil {
		l.Debug().Int("nw", nw).Int("ne", ne).Int("sw", sw).Int("se", se).Msg("ldr readings")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debug().Str("v", "verbose").Msgf(format, args...)
	}
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if l := at(LevelVerbose); l != nil {
		l.Debug().Str("v", "verbose").Msgf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if l := at(LevelVerbose); l != nil {
		l.Debug().Str("v", "verbose").Msg("━━━ " + name + " ━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if l := at(LevelVerbose); l != nil {
		l.Debug().Str("v", "verbose").Int("step", num).Msg(description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Trace().Msgf(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if l := at(LevelTrace); l != nil {
		l.Trace().Str("op", operation).Int("pin", pin).Interface("value", value).Msg("gpio")
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if l := at(LevelInfo); l != nil {
		l.Error().Err(err).Msg("error")
	}
}

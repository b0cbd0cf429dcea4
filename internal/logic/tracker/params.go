package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SunGo/internal/logic/angle"
)

// Params tunes the controller. All thresholds are raw ADC units.
type Params struct {
	SearchTol   int // any reading above this ends a search
	TrackDiff   int // dead band for the error signals
	LowRead     int // every reading below this counts as a dark cycle
	LowTimes    int // consecutive dark cycles before turning east
	SearchStep  int // pan increment while sweeping (degrees)
	SearchLoops int // full sweeps before giving up
	TrackStep   int // correction per tracking cycle (degrees)
	SearchTilt  int // tilt held while searching

	// NorthIncreasesTilt sets the vertical sign: when true a brighter
	// North side raises the tilt angle.
	NorthIncreasesTilt bool

	SleepOn   time.Duration // sleep after a failed search
	SleepOff  time.Duration // sleep per cycle while switched off
	ReadDelay time.Duration // pause after each tracking cycle
}

// DefaultParams returns the stock tuning for a 10-bit four-LDR head.
func DefaultParams() Params {
	return Params{
		SearchTol:          500,
		TrackDiff:          50,
		LowRead:            350,
		LowTimes:           10,
		SearchStep:         10,
		SearchLoops:        2,
		TrackStep:          1,
		SearchTilt:         135,
		NorthIncreasesTilt: true,
		SleepOn:            3 * time.Second,
		SleepOff:           10 * time.Second,
		ReadDelay:          time.Second,
	}
}

// Validate rejects tunings that would stall or spin the loop.
func (p Params) Validate() error {
	var errs []error
	if p.SearchStep <= 0 || p.SearchStep > angle.PanMax {
		errs = append(errs, fmt.Errorf("search_step must be in 1..%d, got %d", angle.PanMax, p.SearchStep))
	}
	if p.SearchLoops < 1 {
		errs = append(errs, fmt.Errorf("search_loops must be >= 1, got %d", p.SearchLoops))
	}
	if p.TrackStep <= 0 {
		errs = append(errs, fmt.Errorf("track_step must be > 0, got %d", p.TrackStep))
	}
	if p.LowTimes < 1 {
		errs = append(errs, fmt.Errorf("low_times must be >= 1, got %d", p.LowTimes))
	}
	if p.TrackDiff < 0 {
		errs = append(errs, fmt.Errorf("track_diff must be >= 0, got %d", p.TrackDiff))
	}
	if !angle.ValidTilt(p.SearchTilt) {
		errs = append(errs, fmt.Errorf("search_tilt must be in 0..%d, got %d", angle.TiltMax, p.SearchTilt))
	}
	if p.SleepOn < 0 || p.SleepOff < 0 || p.ReadDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

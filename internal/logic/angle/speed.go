package angle

import (
	"math"
	"time"
)

// Direction names the motions a continuous pan servo is asked for.
type Direction int

const (
	Stop Direction = iota
	SearchSweep
	Clockwise
	CounterClockwise
)

// Speeds are servo values for a continuous-rotation pan. Values below Stop
// spin clockwise, above Stop counter-clockwise; distance from Stop sets
// the angular velocity.
type Speeds struct {
	Stop     int
	Search   int
	TrackCW  int
	TrackCCW int
}

// DefaultSpeeds match the reference continuous-servo build.
var DefaultSpeeds = Speeds{Stop: 90, Search: 85, TrackCW: 70, TrackCCW: 110}

// SpeedStrategy drives a continuous-rotation pan servo. The servo reports
// no position, so a move of delta degrees is a speed held for
// |delta| / rate seconds followed by a stop. Logical pan is inferred.
type SpeedStrategy struct {
	Speeds     Speeds
	SearchRate float64 // degrees per second at Speeds.Search
	TrackRate  float64 // degrees per second at TrackCW/TrackCCW
	SearchStep int     // deltas of this size or more (clockwise) use the search speed
}

func (SpeedStrategy) Name() string { return "continuous" }

// SpeedFor returns the servo value for a direction.
func (s SpeedStrategy) SpeedFor(d Direction) int {
	switch d {
	case SearchSweep:
		return s.Speeds.Search
	case Clockwise:
		return s.Speeds.TrackCW
	case CounterClockwise:
		return s.Speeds.TrackCCW
	default:
		return s.Speeds.Stop
	}
}

// HoldFor is how long speed must be held at rate (°/s) to turn degrees.
func HoldFor(degrees int, rate float64) time.Duration {
	if rate <= 0 || degrees == 0 {
		return 0
	}
	secs := math.Abs(float64(degrees)) / rate
	return time.Duration(secs * float64(time.Second))
}

// ResolvePan turns target-cur.Pan into a timed spin. Positive deltas are
// clockwise. The target is not normalized before computing the delta, so
// cur+180 always means half a turn clockwise.
func (s SpeedStrategy) ResolvePan(cur Orientation, target int) Plan {
	delta := target - cur.Pan
	a := NormalizePan(target)
	stop := Command{Axis: Pan, Kind: Speed, Value: s.SpeedFor(Stop)}

	if delta == 0 {
		stop.Commit = true
		return Plan{Pan: a, Commands: []Command{stop}}
	}

	dir, rate := Clockwise, s.TrackRate
	switch {
	case delta > 0 && s.SearchStep > 0 && delta >= s.SearchStep:
		dir, rate = SearchSweep, s.SearchRate
	case delta < 0:
		dir = CounterClockwise
	}

	return Plan{
		Pan: a,
		Commands: []Command{
			{Axis: Pan, Kind: Speed, Value: s.SpeedFor(dir), Wait: HoldFor(delta, rate), Commit: true},
			stop,
		},
	}
}

package sensor

import (
	"fmt"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/adc"
)

// Position identifies one of the four LDRs. Labels are as seen facing the
// pane with tilt <= 90°; past 90° East and West swap physically.
type Position int

const (
	NorthWest Position = iota
	NorthEast
	SouthWest
	SouthEast
)

// Positions is the fixed read order.
var Positions = [4]Position{NorthWest, NorthEast, SouthWest, SouthEast}

func (p Position) String() string {
	switch p {
	case NorthWest:
		return "NW"
	case NorthEast:
		return "NE"
	case SouthWest:
		return "SW"
	case SouthEast:
		return "SE"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Readings is one snapshot of the four sensors, indexed by Position.
type Readings [4]int

// Horizontal returns West minus East: (NW+SW)/2 - (NE+SE)/2.
// Positive means the West-labeled side is brighter.
func (r Readings) Horizontal() int {
	west := half(r[NorthWest] + r[SouthWest])
	east := half(r[NorthEast] + r[SouthEast])
	return west - east
}

// Vertical returns North minus South: (NW+NE)/2 - (SW+SE)/2.
func (r Readings) Vertical() int {
	north := half(r[NorthWest] + r[NorthEast])
	south := half(r[SouthWest] + r[SouthEast])
	return north - south
}

// half is floor(sum / 2).
func half(sum int) int {
	q := sum / 2
	if sum < 0 && sum%2 != 0 {
		q--
	}
	return q
}

// AnyAbove reports whether any reading strictly exceeds threshold.
func (r Readings) AnyAbove(threshold int) bool {
	for _, v := range r {
		if v > threshold {
			return true
		}
	}
	return false
}

// AllBelow reports whether every reading is strictly below threshold.
func (r Readings) AllBelow(threshold int) bool {
	for _, v := range r {
		if v >= threshold {
			return false
		}
	}
	return true
}

// Channels binds each position to an ADC channel.
type Channels [4]int

// DefaultChannels wires NW, NE, SW, SE to channels 0-3.
var DefaultChannels = Channels{0, 1, 2, 3}

// Fusion reads the quadrant sensors and derives the error signals.
// Every query samples the hardware again; nothing is cached.
type Fusion struct {
	sampler  adc.Sampler
	channels Channels
}

func NewFusion(s adc.Sampler, ch Channels) *Fusion {
	return &Fusion{sampler: s, channels: ch}
}

// ReadOne samples a single position.
func (f *Fusion) ReadOne(p Position) (int, error) {
	if p < NorthWest || p > SouthEast {
		return 0, fmt.Errorf("unknown sensor position %d", int(p))
	}
	v, err := f.sampler.Read(f.channels[p])
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", p, err)
	}
	return v, nil
}

// ReadAll samples NW, NE, SW, SE in that order.
func (f *Fusion) ReadAll() (Readings, error) {
	var r Readings
	for _, p := range Positions {
		v, err := f.ReadOne(p)
		if err != nil {
			return Readings{}, err
		}
		r[p] = v
	}
	debug.Readings(r[NorthWest], r[NorthEast], r[SouthWest], r[SouthEast])
	return r, nil
}

func (f *Fusion) HorizontalError() (int, error) {
	r, err := f.ReadAll()
	if err != nil {
		return 0, err
	}
	return r.Horizontal(), nil
}

func (f *Fusion) VerticalError() (int, error) {
	r, err := f.ReadAll()
	if err != nil {
		return 0, err
	}
	return r.Vertical(), nil
}

// AnyAbove samples all sensors and reports whether one exceeds threshold.
func (f *Fusion) AnyAbove(threshold int) (bool, error) {
	r, err := f.ReadAll()
	if err != nil {
		return false, err
	}
	return r.AnyAbove(threshold), nil
}

// AllBelow samples all sensors and reports whether all are under threshold.
func (f *Fusion) AllBelow(threshold int) (bool, error) {
	r, err := f.ReadAll()
	if err != nil {
		return false, err
	}
	return r.AllBelow(threshold), nil
}

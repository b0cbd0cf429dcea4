// Package tracker runs the sun-tracking state machine.
//
// A Controller owns the control loop: each Cycle drains pending external
// commands, then searches, tracks or sleeps depending on its state.
// Everything it touches (orientation, state, low-light counter) is confined
// to the goroutine calling Cycle/Run. Other goroutines talk to it through
// Submit and read it through Snapshot.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/cjeanneret/SunGo/internal/hw/power"
	"github.com/cjeanneret/SunGo/internal/logic/angle"
	"github.com/cjeanneret/SunGo/internal/logic/sensor"
)

// State is the controller mode.
type State int

const (
	Searching State = iota
	Tracking
	SleepOn
	SleepOff
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case Tracking:
		return "tracking"
	case SleepOn:
		return "sleep_on"
	case SleepOff:
		return "sleep_off"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText lets State appear by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Command is an external request (remote app, button, web).
type Command int

const (
	// On wakes the controller from SleepOff.
	On Command = iota
	// Off parks the controller in SleepOff.
	Off
	// Search restarts the search from any state.
	Search
)

func (c Command) String() string {
	switch c {
	case On:
		return "on"
	case Off:
		return "off"
	case Search:
		return "search"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// ParseCommand accepts "on", "off" or "search" (case-insensitive).
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return On, nil
	case "off":
		return Off, nil
	case "search":
		return Search, nil
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

// ErrQueueFull is returned by Submit when commands arrive faster than the
// control loop drains them.
var ErrQueueFull = errors.New("command queue full")

// QueueSize bounds pending external commands.
const QueueSize = 16

// Sensors provides one snapshot of the four light readings.
type Sensors interface {
	ReadAll() (sensor.Readings, error)
}

// Mover is the pane actuator facade.
type Mover interface {
	Orientation() angle.Orientation
	SetPan(target int) error
	NudgePan(delta int) error
	SetTilt(target int) error
	NudgeTilt(delta int) error
	Settle()
}

// PowerReader reports the power currently generated, in watts.
type PowerReader interface {
	Read() (float64, error)
}

// Snapshot is a copy of the controller's observable state, published at
// the end of every cycle.
type Snapshot struct {
	State       State             `json:"state"`
	Orientation angle.Orientation `json:"orientation"`
	Readings    sensor.Readings   `json:"readings"`
	Horizontal  int               `json:"horizontal_error"`
	Vertical    int               `json:"vertical_error"`
	LowCount    int               `json:"low_count"`
	Watts       float64           `json:"watts"`
	Cycles      uint64            `json:"cycles"`
	LastError   string            `json:"last_error,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Controller is the tracking state machine.
type Controller struct {
	sensors Sensors
	mover   Mover
	sleeper power.Sleeper
	p       Params

	meter        PowerReader
	onTransition func(from, to State)

	cmds chan Command

	// control goroutine only
	state    State
	low      int
	readings sensor.Readings
	watts    float64
	cycles   uint64

	mu   sync.RWMutex
	snap Snapshot
}

// NewController creates a controller in the Searching state.
func NewController(s Sensors, m Mover, sl power.Sleeper, p Params) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("tracker params: %w", err)
	}
	c := &Controller{
		sensors: s,
		mover:   m,
		sleeper: sl,
		p:       p,
		cmds:    make(chan Command, QueueSize),
		state:   Searching,
	}
	c.publish(nil)
	return c, nil
}

// AttachMeter samples m once per tracking cycle into the snapshot.
func (c *Controller) AttachMeter(m PowerReader) {
	c.meter = m
}

// OnTransition registers fn to be called from the control goroutine on
// every state change.
func (c *Controller) OnTransition(fn func(from, to State)) {
	c.onTransition = fn
}

// Params returns the tuning the controller runs with.
func (c *Controller) Params() Params {
	return c.p
}

// Submit queues cmd for the next cycle. It never blocks.
func (c *Controller) Submit(cmd Command) error {
	select {
	case c.cmds <- cmd:
		debug.Verbose("Command %s queued", cmd)
		return nil
	default:
		return ErrQueueFull
	}
}

// State returns the current state. Call it from the control goroutine;
// other goroutines use Snapshot.
func (c *Controller) State() State {
	return c.state
}

// Snapshot returns the state published by the last cycle.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Run cycles until ctx is done. Cycle errors are logged and the loop goes
// on; ctx is only checked between cycles since sleeps cannot be cut short.
func (c *Controller) Run(ctx context.Context) error {
	debug.Info("Tracker started (%s)", c.state)
	for {
		select {
		case <-ctx.Done():
			debug.Info("Tracker stopped after %d cycles", c.cycles)
			return ctx.Err()
		default:
		}
		if err := c.Cycle(); err != nil {
			debug.Error(err)
		}
	}
}

// Cycle runs one control step.
func (c *Controller) Cycle() error {
	c.drain()

	var err error
	from := c.state
	switch c.state {
	case Searching:
		err = c.search()
	case Tracking:
		err = c.track()
	case SleepOn:
		c.sleeper.Sleep(c.p.SleepOn)
		c.transition(Searching)
	case SleepOff:
		c.sleeper.Sleep(c.p.SleepOff)
	}
	c.cycles++
	if err != nil {
		err = fmt.Errorf("%s cycle: %w", from, err)
	}
	c.publish(err)
	return err
}

func (c *Controller) drain() {
	for {
		select {
		case cmd := <-c.cmds:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Controller) apply(cmd Command) {
	debug.Live("Command %s in state %s", cmd, c.state)
	switch cmd {
	case Off:
		c.low = 0
		c.transition(SleepOff)
	case On:
		if c.state == SleepOff {
			c.transition(Searching)
		}
	case Search:
		c.low = 0
		c.transition(Searching)
	}
}

func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	debug.Transition(from.String(), to.String())
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

// search sweeps the full pan range SearchLoops times looking for any
// reading above SearchTol.
func (c *Controller) search() error {
	if c.mover.Orientation().Tilt != c.p.SearchTilt {
		if err := c.mover.SetTilt(c.p.SearchTilt); err != nil {
			return fmt.Errorf("search tilt: %w", err)
		}
		c.mover.Settle()
	}

	debug.Section("Searching")
	for loop := 0; loop < c.p.SearchLoops; loop++ {
		debug.Live("Sweep %d/%d", loop+1, c.p.SearchLoops)
		for swept := 0; swept <= angle.PanMax; swept += c.p.SearchStep {
			r, err := c.sensors.ReadAll()
			if err != nil {
				return err
			}
			c.readings = r
			if r.AnyAbove(c.p.SearchTol) {
				debug.Info("Light found at pan %d", c.mover.Orientation().Pan)
				c.low = 0
				c.transition(Tracking)
				return nil
			}
			if err := c.mover.NudgePan(c.p.SearchStep); err != nil {
				return err
			}
		}
	}
	debug.Info("No light after %d sweeps", c.p.SearchLoops)
	c.transition(SleepOn)
	return nil
}

// track makes one correction toward the brightest side.
func (c *Controller) track() error {
	r, err := c.sensors.ReadAll()
	if err != nil {
		return err
	}
	c.readings = r
	c.sampleMeter()

	if r.AllBelow(c.p.LowRead) {
		c.low++
		debug.Verbose("Low light %d/%d", c.low, c.p.LowTimes)
	} else {
		c.low = 0
	}
	if c.low >= c.p.LowTimes {
		if err := c.turnEast(); err != nil {
			return fmt.Errorf("turn east: %w", err)
		}
		c.low = 0
		c.transition(Searching)
		return nil
	}

	if dh := r.Horizontal(); abs(dh) > c.p.TrackDiff {
		if err := c.mover.NudgePan(c.panStep(dh)); err != nil {
			return err
		}
	}
	if dv := r.Vertical(); abs(dv) > c.p.TrackDiff {
		if err := c.mover.NudgeTilt(c.tiltStep(dv)); err != nil {
			return err
		}
	}

	c.sleeper.Sleep(c.p.ReadDelay)
	return nil
}

// panStep: West brighter turns clockwise, unless the pane is tilted past
// vertical, where West and East trade places.
func (c *Controller) panStep(dh int) int {
	step := c.p.TrackStep
	if dh < 0 {
		step = -step
	}
	if c.mover.Orientation().Tilt > 90 {
		step = -step
	}
	return step
}

func (c *Controller) tiltStep(dv int) int {
	step := c.p.TrackStep
	if dv < 0 {
		step = -step
	}
	if !c.p.NorthIncreasesTilt {
		step = -step
	}
	return step
}

// turnEast faces the pane toward sunrise after sunset.
func (c *Controller) turnEast() error {
	debug.Info("No light for %d cycles, turning east", c.low)
	if err := c.mover.SetTilt(c.p.SearchTilt); err != nil {
		return err
	}
	if err := c.mover.SetPan(c.mover.Orientation().Pan + 180); err != nil {
		return err
	}
	c.mover.Settle()
	return nil
}

func (c *Controller) sampleMeter() {
	if c.meter == nil {
		return
	}
	w, err := c.meter.Read()
	if err != nil {
		debug.Verbose("power meter: %v", err)
		return
	}
	c.watts = w
}

func (c *Controller) publish(err error) {
	s := Snapshot{
		State:       c.state,
		Orientation: c.mover.Orientation(),
		Readings:    c.readings,
		Horizontal:  c.readings.Horizontal(),
		Vertical:    c.readings.Vertical(),
		LowCount:    c.low,
		Watts:       c.watts,
		Cycles:      c.cycles,
		UpdatedAt:   time.Now(),
	}
	if err != nil {
		s.LastError = err.Error()
	}
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

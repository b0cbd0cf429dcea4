package adc

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/SunGo/internal/debug"
)

// Sampler is the analog read primitive. It returns a raw magnitude for one
// input channel (10-bit on the supported converters).
type Sampler interface {
	Read(channel int) (int, error)
	Close() error
}

// MaxRaw is the full-scale value of a 10-bit converter.
const MaxRaw = 1023

// MockSampler returns fixed per-channel values. Used for development on PC
// or testing. Unset channels read Default.
type MockSampler struct {
	mu      sync.Mutex
	Values  map[int]int
	Default int
}

// NewMockSampler creates a mock with every channel reading def.
func NewMockSampler(def int) *MockSampler {
	debug.Info("Using MOCK analog sampler (development mode)")
	return &MockSampler{Values: make(map[int]int), Default: def}
}

// Set changes the value returned for channel.
func (m *MockSampler) Set(channel, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[channel] = value
}

func (m *MockSampler) Read(channel int) (int, error) {
	if channel < 0 {
		return 0, fmt.Errorf("invalid channel %d", channel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.Values[channel]
	if !ok {
		v = m.Default
	}
	debug.Trace("ADC read (mock) ch=%d value=%d", channel, v)
	return v, nil
}

func (m *MockSampler) Close() error {
	return nil
}

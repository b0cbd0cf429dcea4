package adc

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/cjeanneret/SunGo/internal/debug"
)

// PortOptions describes the serial connection parameters used when opening
// the bridge port.
type PortOptions struct {
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"-"`
}

var parities = map[string]serial.Parity{
	"": serial.NoParity, "N": serial.NoParity, "NONE": serial.NoParity,
	"E": serial.EvenParity, "EVEN": serial.EvenParity,
	"O": serial.OddParity, "ODD": serial.OddParity,
}

var parityNames = map[serial.Parity]string{
	serial.NoParity:   "N",
	serial.EvenParity: "E",
	serial.OddParity:  "O",
}

var stopBits = map[int]serial.StopBits{
	0: serial.OneStopBit,
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// SerialMode converts the options into the structure go.bug.st/serial needs.
// Unset fields default to 9600 8N1.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", mode.DataBits)
	}
	sb, ok := stopBits[o.StopBits]
	if !ok {
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}
	mode.StopBits = sb
	p, ok := parities[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	mode.Parity = p
	return mode, nil
}

// Normalize validates the options and returns them with defaults filled in.
func (o PortOptions) Normalize() (PortOptions, error) {
	mode, err := o.SerialMode()
	if err != nil {
		return o, err
	}
	o.BaudRate, o.DataBits = mode.BaudRate, mode.DataBits
	o.StopBits = 1
	if mode.StopBits == serial.TwoStopBits {
		o.StopBits = 2
	}
	o.Parity = parityNames[mode.Parity]
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 500 * time.Millisecond
	}
	return o, nil
}

// SerialBridge reads analog channels from a microcontroller (Arduino, Pico)
// that samples its own ADC on request. Protocol, one line each way:
//
//	host:   R<channel>\n
//	bridge: <decimal value>\n
//
// A line starting with "E" is an error reported by the bridge.
//
// The reply is read one byte at a time so nothing past the newline is
// buffered. A port with a read timeout returns (0, nil) when it expires;
// the first such read fails the exchange. After a failed exchange the next
// request first drains the port, so a late reply never answers another
// channel.
type SerialBridge struct {
	mu    sync.Mutex
	port  io.ReadWriteCloser
	stale bool
}

// ErrNoReply is returned when the bridge stays silent past the port's read timeout.
var ErrNoReply = errors.New("serial bridge: no reply")

const (
	maxReplyLen  = 32
	maxDrainRead = 16
)

// OpenSerialBridge opens the serial port at path.
func OpenSerialBridge(path string, opts PortOptions) (*SerialBridge, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial bridge %s: %w", path, err)
	}
	if err := port.SetReadTimeout(norm.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	debug.Verbose("Serial ADC bridge on %s (%d baud)", path, norm.BaudRate)
	return NewSerialBridge(port), nil
}

// NewSerialBridge wraps an already open stream.
func NewSerialBridge(rw io.ReadWriteCloser) *SerialBridge {
	return &SerialBridge{port: rw}
}

func (b *SerialBridge) Read(channel int) (int, error) {
	if channel < 0 {
		return 0, fmt.Errorf("invalid channel %d", channel)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stale {
		b.drain()
		b.stale = false
	}
	if _, err := fmt.Fprintf(b.port, "R%d\n", channel); err != nil {
		b.stale = true
		return 0, fmt.Errorf("serial bridge write: %w", err)
	}
	line, err := b.readLine()
	if err != nil {
		b.stale = true
		return 0, fmt.Errorf("serial bridge read ch=%d: %w", channel, err)
	}
	v, err := ParseReply(line)
	if err != nil {
		return 0, fmt.Errorf("serial bridge ch=%d: %w", channel, err)
	}
	debug.Trace("ADC read (serial) ch=%d value=%d", channel, v)
	return v, nil
}

// readLine returns one reply line without its newline.
func (b *SerialBridge) readLine() (string, error) {
	var one [1]byte
	line := make([]byte, 0, 8)
	for len(line) < maxReplyLen {
		n, err := b.port.Read(one[:])
		if n == 1 {
			if one[0] == '\n' {
				return string(line), nil
			}
			line = append(line, one[0])
			continue
		}
		if err != nil {
			return "", err
		}
		return "", ErrNoReply
	}
	return "", fmt.Errorf("reply longer than %d bytes", maxReplyLen)
}

// drain discards whatever the bridge sent after a failed exchange, up to the
// first empty (timed out) read.
func (b *SerialBridge) drain() {
	buf := make([]byte, 64)
	for i := 0; i < maxDrainRead; i++ {
		n, err := b.port.Read(buf)
		if n > 0 {
			debug.Trace("serial bridge: dropped %q", buf[:n])
		}
		if n == 0 || err != nil {
			return
		}
	}
}

// ParseReply decodes one bridge response line.
func ParseReply(line string) (int, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("empty reply")
	}
	if line[0] == 'E' {
		return 0, fmt.Errorf("bridge error: %s", strings.TrimSpace(line[1:]))
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("malformed reply %q", line)
	}
	if v < 0 || v > MaxRaw {
		return 0, fmt.Errorf("reply %d outside 0-%d", v, MaxRaw)
	}
	return v, nil
}

func (b *SerialBridge) Close() error {
	return b.port.Close()
}

package adc

import (
	"fmt"

	"github.com/cjeanneret/SunGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// MCP3008Channels is the number of single-ended inputs on the chip.
const MCP3008Channels = 8

// exchanger performs one full-duplex SPI transfer in place.
type exchanger interface {
	Exchange(buf []byte)
}

// rpioSPI is the SPI0 bus as exposed by go-rpio.
type rpioSPI struct{}

func (rpioSPI) Exchange(buf []byte) { rpio.SpiExchange(buf) }

// MCP3008 reads a Microchip MCP3008 10-bit ADC over SPI0.
// The Raspberry Pi has no analog inputs, so the four LDR dividers and the
// DC current sensor are wired to this chip.
//
// Wiring: CLK=SCLK(11), DOUT=MISO(9), DIN=MOSI(10), CS=CE0(8) or CE1(7).
type MCP3008 struct {
	bus  exchanger
	chip uint8
}

// NewMCP3008 opens SPI0 and selects the given chip-enable line.
// GPIO memory must already be mapped (gpio.NewRPiRealDriver does that).
func NewMCP3008(chip uint8, speedHz int) (*MCP3008, error) {
	if chip > 1 {
		return nil, fmt.Errorf("mcp3008: chip select must be 0 or 1, got %d", chip)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return nil, fmt.Errorf("mcp3008: begin SPI0: %w", err)
	}
	if speedHz <= 0 {
		speedHz = 1_000_000
	}
	rpio.SpiChipSelect(chip)
	rpio.SpiSpeed(speedHz)
	debug.Verbose("MCP3008 on SPI0 CE%d at %d Hz", chip, speedHz)
	return &MCP3008{bus: rpioSPI{}, chip: chip}, nil
}

// EncodeRequest builds the 3-byte single-ended read frame for channel:
// start bit, then SGL=1 and the channel number in the high nibble.
func EncodeRequest(channel int) ([]byte, error) {
	if channel < 0 || channel >= MCP3008Channels {
		return nil, fmt.Errorf("mcp3008: channel %d out of range 0-%d", channel, MCP3008Channels-1)
	}
	return []byte{0x01, byte(0x08|channel) << 4, 0x00}, nil
}

// DecodeResponse extracts the 10-bit result from the bytes clocked back.
func DecodeResponse(rx []byte) int {
	if len(rx) < 3 {
		return 0
	}
	return int(rx[1]&0x03)<<8 | int(rx[2])
}

func (m *MCP3008) Read(channel int) (int, error) {
	buf, err := EncodeRequest(channel)
	if err != nil {
		return 0, err
	}
	m.bus.Exchange(buf)
	v := DecodeResponse(buf)
	debug.Trace("ADC read (mcp3008) ch=%d value=%d", channel, v)
	return v, nil
}

func (m *MCP3008) Close() error {
	rpio.SpiEnd(rpio.Spi0)
	return nil
}

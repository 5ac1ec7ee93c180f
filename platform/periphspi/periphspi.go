// Package periphspi adapts periph.io's SPI and GPIO host drivers to the
// sdspi.SPIBus and sdspi.Pin interfaces, the way periph's own sysfs driver
// (host/sysfs) wraps /dev/spidevN.M behind spi.Port/spi.Conn.
package periphspi

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/samsamfire/sdspi"
)

// Bus wraps a periph.io spi.Port. Connect must succeed before the first
// Transfer; SetSpeedHz reconnects at the new frequency, mirroring the
// init-then-Connect-once lifecycle spi.Port requires.
type Bus struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	mode spi.Mode
	bits int
}

// Open initializes the periph.io host drivers and opens the named SPI
// port (e.g. "/dev/spidev0.0" or "SPI0.0").
func Open(name string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periphspi: host init: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("periphspi: open %s: %w", name, err)
	}
	return &Bus{port: port, mode: spi.Mode0, bits: 8}, nil
}

// Transfer implements sdspi.SPIBus.
func (b *Bus) Transfer(out []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transferLocked(out)
}

func (b *Bus) transferLocked(out []byte) ([]byte, error) {
	if b.conn == nil {
		return nil, fmt.Errorf("periphspi: not connected, call SetSpeedHz first")
	}
	in := make([]byte, len(out))
	if err := b.conn.Tx(out, in); err != nil {
		return nil, err
	}
	return in, nil
}

// SetSpeedHz implements sdspi.SPIBus by reconnecting at the requested
// frequency; spi.Port.Connect may only be called once per instantiation on
// some drivers, but periph.io's Connect is idempotent across calls with
// the same port from spireg, so we reconnect freely here.
func (b *Bus) SetSpeedHz(hz int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn, err := b.port.Connect(physic.Frequency(hz)*physic.Hertz, b.mode, b.bits)
	if err != nil {
		return fmt.Errorf("periphspi: connect at %dHz: %w", hz, err)
	}
	b.conn = conn
	return nil
}

// Lock implements sdspi.SPIBus by handing back a Token that holds the
// adapter's mutex until Release is called.
func (b *Bus) Lock() (sdspi.SPIToken, error) {
	b.mu.Lock()
	return &Token{bus: b}, nil
}

// Token is the exclusive handle returned by Bus.Lock.
type Token struct {
	bus *Bus
}

// Transfer implements sdspi.SPIToken.
func (t *Token) Transfer(out []byte) ([]byte, error) {
	return t.bus.transferLocked(out)
}

// Release implements sdspi.SPIToken.
func (t *Token) Release() error {
	t.bus.mu.Unlock()
	return nil
}

// GPIOPin wraps a periph.io gpio.PinIO as an sdspi.Pin.
type GPIOPin struct {
	pin gpio.PinIO
}

// OpenPin looks up a GPIO line by name (e.g. "GPIO17") via gpioreg.
func OpenPin(name string) (*GPIOPin, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("periphspi: no such gpio pin %q", name)
	}
	return &GPIOPin{pin: pin}, nil
}

// Out implements sdspi.Pin.
func (p *GPIOPin) Out(level sdspi.PinLevel) error {
	return p.pin.Out(gpio.Level(level == sdspi.High))
}

// In implements sdspi.Pin.
func (p *GPIOPin) In() (sdspi.PinLevel, error) {
	if err := p.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return sdspi.Low, err
	}
	return sdspi.PinLevel(p.pin.Read() == gpio.High), nil
}

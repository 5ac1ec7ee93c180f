package sdspi

import "fmt"

// PinLevel is a GPIO line level.
type PinLevel bool

const (
	Low  PinLevel = false
	High PinLevel = true
)

// Pin is the GPIO abstraction the core calls for CSN (chip select) and PPN
// (card detect). Real bindings live in platform/periphspi and
// platform/spidev; spec §6 treats both as external collaborators.
type Pin interface {
	Out(level PinLevel) error
	In() (PinLevel, error)
}

// transferer is satisfied by both SPIBus and the SPIToken it hands out
// under Lock, so the gateway can shuttle bytes through whichever is
// currently active without caring which.
type transferer interface {
	Transfer(out []byte) (in []byte, err error)
}

// SPIToken is the exclusive handle returned by SPIBus.Lock. Only code
// holding a token may call Transfer while the lock is in effect; Release
// gives the peripheral back for other consumers. Mirrors spec §6's
// `token.rawTransfer(...)` / `token.release(...)` platform contract.
type SPIToken interface {
	transferer
	Release() error
}

// SPIBus is the abstract SPI transport the core drives. Transfer clocks
// out and simultaneously clocks in a same-length response outside of any
// held lock; Lock hands back an exclusive SPIToken for the duration of one
// transaction. Receive is a convenience built on Transfer exactly as spec
// §4.2 describes.
type SPIBus interface {
	transferer
	SetSpeedHz(hz int) error
	Lock() (SPIToken, error)
}

// ClockSlow and ClockFast are the two speeds the Initialization Controller
// drives the bus at (spec §4.2, §4.5): slow during the cold-start dance,
// fast once the card is ready. ClockSlow must stay within 100-400kHz.
const (
	ClockSlow = 200_000
	ClockFast = 2_000_000
)

// Receive clocks n filler 0xFF bytes through t and returns what came back,
// the standard way to read a response with nothing meaningful to send.
func Receive(t transferer, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF
	}
	in, err := t.Transfer(out)
	if err != nil {
		return nil, &WireError{Op: "receive", Err: err}
	}
	if len(in) != n {
		return nil, &WireError{Op: "receive", Err: fmt.Errorf("%w: wanted %d got %d", ErrWireShort, n, len(in))}
	}
	return in, nil
}

// gateway holds the single locked-SPI token the Transaction Serializer
// hands out. While a token is held, every Transfer call routes through it;
// this is the mechanism (spec §4.2) by which the serializer enforces
// exclusivity at the platform level without the Command Engine needing to
// know anything about locking. Card state mutation aside, this is the only
// piece of genuinely shared mutable state in the driver (spec §9), and it
// lives here instead of as a package-level variable so nested operations
// reach it only through the handle the serializer threads to them.
type gateway struct {
	bus   SPIBus
	csn   Pin
	token SPIToken // non-nil while a transaction holds the bus
}

func newGateway(bus SPIBus, csn Pin) *gateway {
	return &gateway{bus: bus, csn: csn}
}

// active returns whichever transferer should actually carry bytes right
// now: the locked token if one is held, otherwise the raw peripheral.
func (g *gateway) active() transferer {
	if g.token != nil {
		return g.token
	}
	return g.bus
}

func (g *gateway) transfer(out []byte) ([]byte, error) {
	in, err := g.active().Transfer(out)
	if err != nil {
		return nil, &WireError{Op: "transfer", Err: err}
	}
	return in, nil
}

func (g *gateway) receive(n int) ([]byte, error) {
	return Receive(g.active(), n)
}

func (g *gateway) setSpeed(hz int) error {
	return g.bus.SetSpeedHz(hz)
}

// acquire locks the platform SPI peripheral and stores the token; release
// drives the reverse. Only the Transaction Serializer calls these, from
// its postAcquire/preRelease hooks, never the Command Engine directly.
func (g *gateway) acquire() error {
	tok, err := g.bus.Lock()
	if err != nil {
		return &WireError{Op: "lock", Err: err}
	}
	g.token = tok
	return nil
}

func (g *gateway) release() error {
	tok := g.token
	g.token = nil
	if tok == nil {
		return nil
	}
	if err := tok.Release(); err != nil {
		return &WireError{Op: "unlock", Err: err}
	}
	return nil
}

// locked reports whether a token is currently held.
func (g *gateway) locked() bool { return g.token != nil }

// Package virtual implements an in-memory SD card that speaks the same
// SPI command/response protocol a real card would, for exercising the
// driver in tests without hardware. It plays the role the teacher's
// VirtualCanBus (virtual.go) plays for CANopen: a synchronous stand-in for
// the real transport, minus the TCP framing since there is no external
// process to talk to here.
package virtual

import (
	"sync"

	"github.com/samsamfire/sdspi"
	"github.com/samsamfire/sdspi/internal/crc"
)

type writePhase int

const (
	phaseNone writePhase = iota
	phaseToken
	phaseData
	phaseCRC
)

// Card is a synchronous, in-process SD card simulator implementing
// sdspi.SPIBus and sdspi.Pin (as its own card-detect line).
type Card struct {
	mu sync.Mutex

	storage        []byte
	blockAddressed bool // true => OCR reports SDv2Block
	simulateSDv1   bool // true => CMD8 reports illegal-cmd

	acmdTries    int
	acmdSucceeds int // ACMD41 reports ready on this try (1-based)

	respQueue    []byte
	phase        writePhase
	pendingWrite []byte
	lastAddr     int

	ppn sdspi.PinLevel
}

// NewCard allocates a blockCount-block virtual card. acmdSucceeds is the
// 1-based ACMD41 try that reports ready (1 means immediately).
func NewCard(blockCount int, blockAddressed bool, acmdSucceeds int) *Card {
	return &Card{
		storage:        make([]byte, blockCount*512),
		blockAddressed: blockAddressed,
		acmdSucceeds:   acmdSucceeds,
		ppn:            sdspi.High,
	}
}

// SimulateSDv1 makes CMD8 respond as an SDv1 card would (illegal-cmd only,
// no tail).
func (c *Card) SimulateSDv1() { c.simulateSDv1 = true }

// Storage exposes the backing bytes for test assertions.
func (c *Card) Storage() []byte { return c.storage }

// Insert and Remove drive the card-detect pin for Monitor tests.
func (c *Card) Insert() { c.mu.Lock(); c.ppn = sdspi.Low; c.mu.Unlock() }
func (c *Card) Remove() { c.mu.Lock(); c.ppn = sdspi.High; c.mu.Unlock() }

// In implements sdspi.Pin for the card-detect line.
func (c *Card) In() (sdspi.PinLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ppn, nil
}

// Out implements sdspi.Pin; nothing drives detect from the host side, so
// this is a no-op. CSN in tests is backed by a separate trivial pin, not
// this one.
func (c *Card) Out(sdspi.PinLevel) error { return nil }

// SetSpeedHz implements sdspi.SPIBus; the simulator does not model clock
// timing so this is a no-op.
func (c *Card) SetSpeedHz(int) error { return nil }

// Lock implements sdspi.SPIBus.
func (c *Card) Lock() (sdspi.SPIToken, error) {
	c.mu.Lock()
	return &token{card: c}, nil
}

type token struct {
	card *Card
}

func (t *token) Transfer(out []byte) ([]byte, error) { return t.card.transfer(out) }

func (t *token) Release() error {
	t.card.mu.Unlock()
	return nil
}

// Transfer implements sdspi.SPIBus for calls made outside a held lock.
func (c *Card) Transfer(out []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfer(out)
}

// transfer is the protocol state machine; caller must hold c.mu.
func (c *Card) transfer(out []byte) ([]byte, error) {
	if len(c.respQueue) > 0 {
		return c.drain(len(out)), nil
	}

	if len(out) == 6 && out[0]&0xC0 == 0x40 {
		c.handleCommand(out)
		return allFF(len(out)), nil
	}

	switch c.phase {
	case phaseToken:
		c.phase = phaseData
		return allFF(len(out)), nil
	case phaseData:
		c.pendingWrite = append([]byte{}, out...)
		c.phase = phaseCRC
		return allFF(len(out)), nil
	case phaseCRC:
		c.phase = phaseNone
		full := append(append([]byte{}, c.pendingWrite...), out...)
		if crc.Verify(full) {
			copy(c.storage[c.lastAddr:c.lastAddr+512], c.pendingWrite)
			c.respQueue = []byte{0x05, 0x00, 0xFF}
		} else {
			c.respQueue = []byte{0x0B, 0x00, 0xFF}
		}
		return allFF(len(out)), nil
	default:
		return allFF(len(out)), nil
	}
}

func (c *Card) drain(n int) []byte {
	out := make([]byte, n)
	k := copy(out, c.respQueue)
	c.respQueue = c.respQueue[k:]
	for i := k; i < n; i++ {
		out[i] = 0xFF
	}
	return out
}

func allFF(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func (c *Card) handleCommand(frame []byte) {
	index := frame[0] &^ 0xC0
	arg := uint32(frame[1])<<24 | uint32(frame[2])<<16 | uint32(frame[3])<<8 | uint32(frame[4])

	if want := crc.Frame(frame[:5])<<1 | 0x01; frame[5] != want {
		c.respQueue = []byte{byte(sdspi.R1CRCError)}
		return
	}

	switch index {
	case 0: // GO_IDLE_STATE
		c.respQueue = []byte{0x01}

	case 8: // SEND_IF_COND
		if c.simulateSDv1 {
			c.respQueue = []byte{0x04}
			return
		}
		c.respQueue = []byte{0x00, 0x00, 0x00, byte(arg >> 8 & 0x0F), byte(arg)}

	case 55: // APP_CMD
		c.respQueue = []byte{0x01}

	case 41: // APP_SEND_OP_COND
		c.acmdTries++
		if c.acmdTries >= c.acmdSucceeds {
			c.respQueue = []byte{0x00}
		} else {
			c.respQueue = []byte{0x01}
		}

	case 59: // CRC_ON_OFF
		c.respQueue = []byte{0x00}

	case 58: // READ_OCR
		ocrByte0 := byte(0x00)
		if c.blockAddressed {
			ocrByte0 = 0x40
		}
		c.respQueue = []byte{0x00, ocrByte0, 0x00, 0x00, 0x00}

	case 16: // SET_BLOCKLEN
		c.respQueue = []byte{0x00}

	case 17: // READ_SINGLE_BLOCK
		addr := c.resolveAddr(arg)
		c.lastAddr = addr
		block := c.storage[addr : addr+512]
		sum := crc.Block(block)
		payload := append(append([]byte{0xFE}, block...), byte(sum>>8), byte(sum))
		c.respQueue = append([]byte{0x00}, payload...)

	case 24: // WRITE_BLOCK
		c.lastAddr = c.resolveAddr(arg)
		c.respQueue = []byte{0x00}
		c.phase = phaseToken

	default:
		c.respQueue = []byte{0x05} // idle + illegal-command by default
	}
}

func (c *Card) resolveAddr(arg uint32) int {
	if c.blockAddressed {
		return int(arg) * 512
	}
	return int(arg)
}

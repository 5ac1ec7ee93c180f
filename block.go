package sdspi

import (
	"fmt"

	"github.com/samsamfire/sdspi/internal/crc"
	"github.com/samsamfire/sdspi/internal/fifo"
)

// dataTokenRetries and idleRetries are the built-in fallbacks used by
// DefaultConfig; live calls go through Config.DataRetries/IdleRetries
// instead (spec §10.3).
const (
	dataTokenRetries = 100
	idleRetries      = 100
	dataToken        = 0xFE
)

const (
	dataRespMask   = 0x1F
	dataRespAccept = 0x05
	dataRespCRC    = 0x0B
	dataRespWrite  = 0x0D
)

// ReadBlock implements the Block I/O Engine's read path (spec §4.6). It
// enqueues through the Transaction Serializer and reads one 512-byte block.
func (c *Card) ReadBlock(n uint32) ([]byte, error) {
	if !c.ready {
		return nil, &StateError{Op: "read_block"}
	}
	var out []byte
	err := c.serial.transact(func() error {
		var err error
		out, err = c.readBlockLocked(n)
		return err
	})
	return out, err
}

// readBlockLocked assumes the bus is already held.
func (c *Card) readBlockLocked(n uint32) ([]byte, error) {
	addr := c.blockAddr(n)
	r1, _, err := sendCommand(c.gw, c.cfg, "READ_SINGLE_BLOCK", addr)
	if err != nil {
		return nil, err
	}
	if r1 != 0 {
		return nil, &ProtocolError{Op: "READ_SINGLE_BLOCK", Reason: "command rejected", R1Flags: r1}
	}

	if err := waitDataToken(c.gw, c.cfg.DataRetries); err != nil {
		return nil, err
	}

	raw, err := c.gw.receive(BlockSize + 2)
	if err != nil {
		return nil, err
	}

	if !crc.Verify(raw) {
		return nil, &DataError{Op: "read_block", Reason: "checksum error on data transfer"}
	}

	out := make([]byte, BlockSize)
	copy(out, raw[:BlockSize])
	return out, nil
}

// waitDataToken polls one byte at a time for the 0xFE start token (spec
// §4.6 step 3), capped at retries (Config.DataRetries, §10.3). A byte with
// MSB clear that isn't 0xFE is a read-error token carrying its value.
func waitDataToken(gw *gateway, retries int) error {
	for i := 0; i < retries; i++ {
		b, err := gw.receive(1)
		if err != nil {
			return err
		}
		if b[0] == dataToken {
			return nil
		}
		if b[0]&0x80 == 0 {
			return &DataError{Op: "read_block", Reason: fmt.Sprintf("read error token 0x%02X", b[0])}
		}
	}
	return &TimeoutError{Op: "read_block: data token", Retries: retries}
}

// WriteBlock implements the Block I/O Engine's write path (spec §4.6).
func (c *Card) WriteBlock(n uint32, data []byte) error {
	if !c.ready {
		return &StateError{Op: "write_block"}
	}
	if len(data) != BlockSize {
		return &ProtocolError{Op: "write_block", Reason: "payload must be 512 bytes"}
	}
	return c.serial.transact(func() error {
		return c.writeBlockLocked(n, data)
	})
}

// writeBlockLocked assumes the bus is already held.
func (c *Card) writeBlockLocked(n uint32, data []byte) error {
	addr := c.blockAddr(n)
	r1, _, err := sendCommand(c.gw, c.cfg, "WRITE_BLOCK", addr)
	if err != nil {
		return err
	}
	if r1 != 0 {
		return &ProtocolError{Op: "WRITE_BLOCK", Reason: "command rejected", R1Flags: r1}
	}

	if _, err := c.gw.transfer([]byte{0xFF, dataToken}); err != nil {
		return err
	}

	// Stage the payload through the fifo, folding its CRC16 in as each
	// byte passes through, then drain it straight onto the wire.
	staged := fifo.New(BlockSize + 1)
	var accum crc.CRC16
	staged.Write(data, &accum)
	payload := make([]byte, BlockSize)
	staged.Read(payload)

	if _, err := c.gw.transfer(payload); err != nil {
		return err
	}
	sum := uint16(accum)
	if _, err := c.gw.transfer([]byte{byte(sum >> 8), byte(sum)}); err != nil {
		return err
	}

	resp, err := c.gw.receive(2)
	if err != nil {
		return err
	}
	switch resp[0] & dataRespMask {
	case dataRespAccept:
		// fall through to idle wait
	case dataRespCRC:
		return &DataError{Op: "write_block", Reason: "write rejected: CRC"}
	case dataRespWrite:
		return &DataError{Op: "write_block", Reason: "write rejected: write error"}
	default:
		return &DataError{Op: "write_block", Reason: "unrecognized data response"}
	}

	return waitForReady(c.gw, c.cfg.IdleRetries)
}

// waitForReady polls for the busy line to release: any non-0xFF byte means
// the card is still programming, capped at retries (Config.IdleRetries,
// §10.3). The timeout path is terminal (spec §9: the source's equivalent
// does not return after the timeout error, allowing a spurious second
// completion; fixed here).
func waitForReady(gw *gateway, retries int) error {
	for i := 0; i < retries; i++ {
		b, err := gw.receive(1)
		if err != nil {
			return err
		}
		if b[0] == 0xFF {
			return nil
		}
	}
	return &TimeoutError{Op: "write_block: idle wait", Retries: retries}
}

// ModifyBlock reads block n, hands it to fn for mutation, and writes the
// result back, all within a single held transaction (spec §4.6). fn
// mutates buf in place.
func (c *Card) ModifyBlock(n uint32, fn func(buf []byte)) error {
	if !c.ready {
		return &StateError{Op: "modify_block"}
	}
	return c.serial.transact(func() error {
		buf, err := c.readBlockLocked(n)
		if err != nil {
			return err
		}
		fn(buf)
		return c.writeBlockLocked(n, buf)
	})
}

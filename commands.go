package sdspi

import (
	"fmt"
	"strings"

	"github.com/samsamfire/sdspi/internal/crc"
)

// R1Status is the bitfield carried in every command response's first byte.
type R1Status byte

const (
	R1Idle       R1Status = 0x01
	R1EraseReset R1Status = 0x02
	R1IllegalCmd R1Status = 0x04
	R1CRCError   R1Status = 0x08
	R1EraseSeq   R1Status = 0x10
	R1AddrError  R1Status = 0x20
	R1ParamError R1Status = 0x40
	R1AnyError   R1Status = 0x7C
)

// String renders the set flags, mostly useful inside ProtocolError messages.
func (r R1Status) String() string {
	if r == 0 {
		return "ok"
	}
	var names []string
	for _, f := range []struct {
		bit  R1Status
		name string
	}{
		{R1Idle, "idle"},
		{R1EraseReset, "erase-reset"},
		{R1IllegalCmd, "illegal-cmd"},
		{R1CRCError, "crc-error"},
		{R1EraseSeq, "erase-seq"},
		{R1AddrError, "addr-error"},
		{R1ParamError, "param-error"},
	} {
		if r&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%02X", byte(r))
	}
	return strings.Join(names, "|")
}

// ResponseFormat identifies how many tail bytes follow the R1 byte.
type ResponseFormat int

const (
	ResponseR1 ResponseFormat = iota
	ResponseR3
	ResponseR7
)

// commandDesc is one entry of the static command table (spec §3).
type commandDesc struct {
	index    byte
	format   ResponseFormat
	isAppCmd bool
}

var commandTable = map[string]commandDesc{
	"GO_IDLE_STATE":     {index: 0, format: ResponseR1},
	"SEND_IF_COND":      {index: 8, format: ResponseR7},
	"SET_BLOCKLEN":      {index: 16, format: ResponseR1},
	"READ_SINGLE_BLOCK": {index: 17, format: ResponseR1},
	"WRITE_BLOCK":       {index: 24, format: ResponseR1},
	"APP_CMD":           {index: 55, format: ResponseR1},
	"READ_OCR":          {index: 58, format: ResponseR3},
	"CRC_ON_OFF":        {index: 59, format: ResponseR1},
	"APP_SEND_OP_COND":  {index: 41, format: ResponseR1, isAppCmd: true},
}

// r1PollRetries is the built-in fallback used by DefaultConfig; live calls
// go through Config.R1Retries instead (spec §10.3).
const r1PollRetries = 8

// sendCommand implements the Command Engine (spec §4.4). gw must already
// hold the bus (acquired through the Transaction Serializer) by the time
// this is called. cfg supplies the R1 poll retry cap.
func sendCommand(gw *gateway, cfg *Config, name string, arg uint32) (R1Status, []byte, error) {
	desc, ok := commandTable[name]
	if !ok {
		return 0, nil, &ProtocolError{Op: name, Reason: "unknown command"}
	}

	if desc.isAppCmd {
		r1, _, err := sendFrame(gw.active(), commandTable["APP_CMD"], 0, "APP_CMD", cfg.R1Retries)
		if err != nil {
			return 0, nil, err
		}
		if r1&R1AnyError != 0 {
			return r1, nil, &ProtocolError{Op: "APP_CMD", Reason: "rejected", R1Flags: r1}
		}
		// CSN cycle between CMD55 and its ACMD is load-bearing for
		// response alignment on some cards; keep it even though it
		// looks redundant.
		if err := cycleCSN(gw); err != nil {
			return 0, nil, err
		}
	}

	return sendFrame(gw.active(), desc, arg, name, cfg.R1Retries)
}

// sendFrame encodes and clocks out the 6-byte command frame, then runs the
// R1 poll and any tail read.
func sendFrame(t transferer, desc commandDesc, arg uint32, op string, r1Retries int) (R1Status, []byte, error) {
	frame := [6]byte{
		0x40 | desc.index,
		byte(arg >> 24),
		byte(arg >> 16),
		byte(arg >> 8),
		byte(arg),
		0,
	}
	frame[5] = crc.Frame(frame[:5])<<1 | 0x01

	if _, err := t.Transfer(frame[:]); err != nil {
		return 0, nil, &WireError{Op: op, Err: err}
	}

	r1, err := pollR1(t, op, r1Retries)
	if err != nil {
		return 0, nil, err
	}
	if r1&R1AnyError != 0 {
		return r1, nil, &ProtocolError{Op: op, Reason: "command rejected", R1Flags: r1}
	}

	var tail []byte
	switch desc.format {
	case ResponseR3, ResponseR7:
		tail, err = Receive(t, 4)
		if err != nil {
			return r1, nil, err
		}
	}
	return r1, tail, nil
}

// pollR1 receives one byte at a time up to retries tries, accepting the
// first whose MSB is clear.
func pollR1(t transferer, op string, retries int) (R1Status, error) {
	for i := 0; i < retries; i++ {
		b, err := Receive(t, 1)
		if err != nil {
			return 0, err
		}
		if b[0]&0x80 == 0 {
			return R1Status(b[0]), nil
		}
	}
	return 0, &TimeoutError{Op: op + ": r1 poll", Retries: retries}
}

// cycleCSN deasserts CSN, clocks one filler byte, then reasserts. Required
// between CMD55 and its ACMD (spec §4.4, §9): looks redundant but is
// load-bearing on some cards.
func cycleCSN(gw *gateway) error {
	if err := gw.csn.Out(High); err != nil {
		return &WireError{Op: "cycle-csn", Err: err}
	}
	if _, err := gw.receive(1); err != nil {
		return err
	}
	if err := gw.csn.Out(Low); err != nil {
		return &WireError{Op: "cycle-csn", Err: err}
	}
	return nil
}

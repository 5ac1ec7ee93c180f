package sdspi

import (
	log "github.com/sirupsen/logrus"
)

// initState names each step of the cold-start dance (spec §9: "must be
// re-architected as an explicit state machine with named states").
type initState int

const (
	stateStart initState = iota
	statePulseSent
	stateIdleAcked
	stateVoltageChecked
	stateReady41
	stateCrcOn
	stateOcrRead
	stateFast
)

const (
	nativePulseBytes = 10 // >=74 clock cycles
	// acmd41Retries is the built-in fallback used by DefaultConfig; live
	// calls go through Config.ACMDRetries instead (spec §10.3).
	acmd41Retries = 100
	sendIfCondArg = 0x000001AA
	hcsArg        = 1 << 30
)

// runInit drives the Initialization Controller (spec §4.5) through its
// named states to completion. It is meant to run inside a single held
// transaction: the whole cold-start dance is one bus ownership interval.
func (c *Card) runInit() error {
	gw := c.gw
	state := stateStart

	if err := gw.setSpeed(c.cfg.ClockSlowHz); err != nil {
		return &WireError{Op: "init: set slow clock", Err: err}
	}

	for state != stateFast {
		switch state {
		case stateStart:
			if err := pulse(gw); err != nil {
				return err
			}
			state = statePulseSent

		case statePulseSent:
			r1, _, err := sendCommand(gw, c.cfg, "GO_IDLE_STATE", 0)
			if err != nil {
				return err
			}
			if r1 != R1Idle {
				return &ProtocolError{Op: "GO_IDLE_STATE", Reason: "unknown or missing card", R1Flags: r1}
			}
			state = stateIdleAcked

		case stateIdleAcked:
			v2, err := checkVoltage(gw, c.cfg)
			if err != nil {
				return err
			}
			if v2 {
				c.cardType = TypeSDv2
			} else {
				c.cardType = TypeSDv1
			}
			state = stateVoltageChecked

		case stateVoltageChecked:
			if err := waitACMD41(gw, c.cfg); err != nil {
				return err
			}
			state = stateReady41

		case stateReady41:
			if _, _, err := sendCommand(gw, c.cfg, "CRC_ON_OFF", 1); err != nil {
				return err
			}
			state = stateCrcOn

		case stateCrcOn:
			if c.cardType != TypeSDv1 {
				if err := readOCR(c, gw); err != nil {
					return err
				}
			}
			state = stateOcrRead

		case stateOcrRead:
			if err := gw.setSpeed(c.cfg.ClockFastHz); err != nil {
				return &WireError{Op: "init: set fast clock", Err: err}
			}
			state = stateFast
		}
	}

	c.ready = true
	log.Infof("card initialized: type=%s", c.cardType)
	return nil
}

// pulse puts the card into SPI mode: CSN held high, clock at least 74
// cycles of 0xFF (spec §4.5 step 2).
func pulse(gw *gateway) error {
	if err := gw.csn.Out(High); err != nil {
		return &WireError{Op: "init: pulse", Err: err}
	}
	if _, err := gw.receive(nativePulseBytes); err != nil {
		return err
	}
	// Commands that follow need CSN asserted; the serializer brought it
	// low for this transaction, the pulse just borrowed it briefly.
	if err := gw.csn.Out(Low); err != nil {
		return &WireError{Op: "init: pulse", Err: err}
	}
	return nil
}

// checkVoltage sends SEND_IF_COND and reports whether the card is SDv2
// (true) or SDv1 (false), per spec §4.5 step 4.
func checkVoltage(gw *gateway, cfg *Config) (bool, error) {
	r1, tail, err := sendCommand(gw, cfg, "SEND_IF_COND", sendIfCondArg)
	if perr, ok := err.(*ProtocolError); ok && perr.R1Flags == R1IllegalCmd {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = r1
	if len(tail) < 4 || uint16(tail[2])<<8|uint16(tail[3]) != sendIfCondArg&0xFFF {
		return false, &ProtocolError{Op: "SEND_IF_COND", Reason: "bad card voltage response"}
	}
	return true, nil
}

// waitACMD41 retries APP_SEND_OP_COND until the idle flag clears, capped at
// cfg.ACMDRetries (spec §4.5 step 5, §10.3).
func waitACMD41(gw *gateway, cfg *Config) error {
	for i := 0; i < cfg.ACMDRetries; i++ {
		r1, _, err := sendCommand(gw, cfg, "APP_SEND_OP_COND", hcsArg)
		if err != nil {
			return err
		}
		if r1&R1Idle == 0 {
			return nil
		}
	}
	return &TimeoutError{Op: "ACMD41", Retries: cfg.ACMDRetries}
}

// readOCR reads the OCR and classifies the card as SDv2Block or SDv2,
// setting SET_BLOCKLEN when byte-addressed (spec §4.5 step 7).
func readOCR(c *Card, gw *gateway) error {
	_, tail, err := sendCommand(gw, c.cfg, "READ_OCR", 0)
	if err != nil {
		return err
	}
	if len(tail) < 1 {
		return &ProtocolError{Op: "READ_OCR", Reason: "short OCR tail"}
	}
	if tail[0]&0x40 != 0 {
		c.cardType = TypeSDv2Block
		return nil
	}
	c.cardType = TypeSDv2
	if _, _, err := sendCommand(gw, c.cfg, "SET_BLOCKLEN", BlockSize); err != nil {
		return err
	}
	return nil
}

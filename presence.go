package sdspi

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// EventHandler receives the driver's lifecycle events (spec §6): inserted,
// removed, ready, error. Implementations must not block.
type EventHandler interface {
	Inserted()
	Removed()
	Ready()
	Error(err error)
}

// settleDelay is the post-power-up / post-insertion settle time before
// initialization begins (spec §4.5).
const settleDelay = time.Millisecond

// Monitor is the Card Presence Monitor (spec §4.7): it observes the
// card-detect pin and drives (re)initialization.
type Monitor struct {
	ppn     Pin
	card    *Card
	handler EventHandler
	last    PinLevel
}

// NewMonitor wires ppn (card-detect, active low) to card, delivering
// events to handler.
func NewMonitor(ppn Pin, card *Card, handler EventHandler) *Monitor {
	return &Monitor{ppn: ppn, card: card, handler: handler, last: High}
}

// Poll samples the card-detect pin and reacts to an edge. Callers invoke it
// from a GPIO change interrupt or a polling loop (cmd/sdspi polls it every
// 10ms); tests call it directly.
func (m *Monitor) Poll() {
	level, err := m.ppn.In()
	if err != nil {
		m.handler.Error(&WireError{Op: "presence poll", Err: err})
		return
	}
	if level == m.last {
		return // never re-run init on a spurious same-state edge
	}
	m.last = level

	inserted := level == Low
	if inserted {
		m.onInserted()
	} else {
		m.onRemoved()
	}
}

func (m *Monitor) onInserted() {
	m.card.present = true
	m.handler.Inserted()

	if !m.card.waiting && m.card.ready {
		return
	}
	m.card.waiting = false

	log.Debug("card inserted, scheduling init")
	time.AfterFunc(settleDelay, func() {
		err := m.card.serial.transact(m.card.runInit)
		if err != nil {
			m.card.ready = false
			m.handler.Error(err)
			return
		}
		m.handler.Ready()
	})
}

func (m *Monitor) onRemoved() {
	m.card.present = false
	// Clearing ready on every removed transition (spec §9 open question
	// decision: the source left this alone, which is treated as a bug).
	m.card.ready = false
	m.card.cardType = TypeUnknown
	m.handler.Removed()
}

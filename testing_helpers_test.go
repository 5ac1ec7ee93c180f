package sdspi

// fakePin is a trivial in-memory Pin for tests that don't need a real
// GPIO: it just remembers the last level written and records every
// transition for assertions about CSN behavior.
type fakePin struct {
	level       PinLevel
	transitions []PinLevel
}

func newFakePin(initial PinLevel) *fakePin {
	return &fakePin{level: initial}
}

func (p *fakePin) Out(level PinLevel) error {
	p.level = level
	p.transitions = append(p.transitions, level)
	return nil
}

func (p *fakePin) In() (PinLevel, error) {
	return p.level, nil
}

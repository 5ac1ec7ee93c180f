package sdspi

import "sync"

// serializer is the Transaction Serializer (spec §4.3): it guarantees that
// exactly one transaction holds the SPI bus at a time and that CSN is
// asserted/deasserted correctly around it. A sync.Mutex plays the role of
// the FIFO queue of pending closures the spec describes: Go's runtime
// grants waiters roughly in arrival order and, unlike a hand-rolled queue,
// it composes for free with the goroutine that is already blocked in
// Transfer.
//
// The block operations come in two explicit forms (spec §9): the
// "Locked" method assumes the caller already holds the bus and talks to
// the gateway directly; the plain method enqueues through transact and
// then calls the Locked form. sendCommand and runInit exist only in the
// held-bus form and are always called inside a transaction. There is no
// hidden "already locked" flag.
type serializer struct {
	mu sync.Mutex
	gw *gateway
}

func newSerializer(gw *gateway) *serializer {
	return &serializer{gw: gw}
}

// transact runs fn with the bus exclusively held: postAcquire before fn,
// preRelease after, unconditionally, even when fn returns an error (spec
// §4.3). fn may issue any number of nested "Locked" calls against the same
// held bus.
func (s *serializer) transact(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.postAcquire(); err != nil {
		return err
	}
	err := fn()
	if relErr := s.preRelease(); err == nil {
		err = relErr
	}
	return err
}

// postAcquire acquires the platform SPI lock, stores the token on the
// gateway, and drives CSN low.
func (s *serializer) postAcquire() error {
	if err := s.gw.acquire(); err != nil {
		return err
	}
	if err := s.gw.csn.Out(Low); err != nil {
		s.gw.release()
		return &WireError{Op: "postAcquire", Err: err}
	}
	return nil
}

// preRelease drives CSN high, clocks one trailing filler byte so the card
// can finish its last operation, then releases the platform lock and
// clears the token. Runs on every exit path, including error returns.
func (s *serializer) preRelease() error {
	if err := s.gw.csn.Out(High); err != nil {
		s.gw.release()
		return &WireError{Op: "preRelease", Err: err}
	}
	if _, err := s.gw.receive(1); err != nil {
		s.gw.release()
		return err
	}
	return s.gw.release()
}

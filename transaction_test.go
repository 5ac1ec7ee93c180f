package sdspi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdspi/platform/virtual"
)

func TestTransactAssertsAndReleasesCSN(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	pin := newFakePin(High)
	gw := newGateway(vc, pin)
	s := newSerializer(gw)

	var sawLowInsideFn bool
	err := s.transact(func() error {
		sawLowInsideFn = pin.level == Low
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawLowInsideFn)
	assert.Equal(t, High, pin.level)
	assert.False(t, gw.locked())
}

func TestTransactReleasesOnError(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	pin := newFakePin(High)
	gw := newGateway(vc, pin)
	s := newSerializer(gw)

	sentinel := errors.New("boom")
	err := s.transact(func() error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, High, pin.level)
	assert.False(t, gw.locked())
}

func TestTransactIsExclusive(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	gw := newGateway(vc, newFakePin(High))
	s := newSerializer(gw)

	done := make(chan struct{})
	started := make(chan struct{})
	go func() {
		s.transact(func() error {
			close(started)
			return nil
		})
		close(done)
	}()
	<-started
	<-done

	// Second transaction after the first fully completes must also see
	// an unlocked gateway beforehand.
	assert.False(t, gw.locked())
	err := s.transact(func() error {
		assert.True(t, gw.locked())
		return nil
	})
	require.NoError(t, err)
}

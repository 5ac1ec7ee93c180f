package sdspi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdspi/platform/virtual"
)

func bindVirtual(t *testing.T, bus SPIBus) *Card {
	t.Helper()
	card := Bind(bus, newFakePin(High))
	return card
}

func TestInitSDv2Block(t *testing.T) {
	vc := virtual.NewCard(16, true, 3)
	card := bindVirtual(t, vc)

	err := card.serial.transact(card.runInit)
	require.NoError(t, err)
	assert.True(t, card.IsReady())
	assert.Equal(t, TypeSDv2Block, card.Type())
}

func TestInitSDv2ByteAddressed(t *testing.T) {
	vc := virtual.NewCard(16, false, 1)
	card := bindVirtual(t, vc)

	err := card.serial.transact(card.runInit)
	require.NoError(t, err)
	assert.Equal(t, TypeSDv2, card.Type())
}

func TestInitSDv1(t *testing.T) {
	vc := virtual.NewCard(16, false, 1)
	vc.SimulateSDv1()
	card := bindVirtual(t, vc)

	err := card.serial.transact(card.runInit)
	require.NoError(t, err)
	assert.Equal(t, TypeSDv1, card.Type())
}

func TestReadBeforeReadyIsStateError(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	card := bindVirtual(t, vc)

	_, err := card.ReadBlock(0)
	require.Error(t, err)
	var serr *StateError
	assert.ErrorAs(t, err, &serr)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	require.NoError(t, card.serial.transact(card.runInit))

	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = byte(i)
	}

	require.NoError(t, card.WriteBlock(3, buf))
	got, err := card.ReadBlock(3)
	require.NoError(t, err)
	assert.Equal(t, buf, got)
}

func TestReadBlockTwiceReturnsEqualBuffers(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	require.NoError(t, card.serial.transact(card.runInit))

	a, err := card.ReadBlock(0)
	require.NoError(t, err)
	b, err := card.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestModifyBlockNoopRoundTrip(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	require.NoError(t, card.serial.transact(card.runInit))

	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = byte(i * 3)
	}
	require.NoError(t, card.WriteBlock(5, buf))

	require.NoError(t, card.ModifyBlock(5, func(b []byte) {}))

	got, err := card.ReadBlock(5)
	require.NoError(t, err)
	assert.Equal(t, buf, got)
}

func TestWriteBlockRejectsWrongLength(t *testing.T) {
	vc := virtual.NewCard(16, true, 1)
	card := bindVirtual(t, vc)
	require.NoError(t, card.serial.transact(card.runInit))

	err := card.WriteBlock(0, make([]byte, 10))
	require.Error(t, err)
}

func TestSDv1ByteAddressingMultipliesBy512(t *testing.T) {
	vc := virtual.NewCard(16, false, 1)
	vc.SimulateSDv1()
	card := bindVirtual(t, vc)
	require.NoError(t, card.serial.transact(card.runInit))

	buf := make([]byte, BlockSize)
	buf[0] = 0x42
	require.NoError(t, card.WriteBlock(2, buf))

	// Byte-addressed card stores at offset 2*512 in the backing array.
	assert.Equal(t, byte(0x42), vc.Storage()[2*512])
}

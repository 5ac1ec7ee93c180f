package sdspi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdspi/platform/virtual"
)

func TestR1StatusString(t *testing.T) {
	assert.Equal(t, "ok", R1Status(0).String())
	assert.Equal(t, "idle", R1Idle.String())
	assert.Equal(t, "crc-error", R1CRCError.String())
	assert.Contains(t, (R1Idle | R1CRCError).String(), "idle")
}

func TestSendCommandGoIdleState(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	gw := newGateway(vc, newFakePin(High))
	require.NoError(t, gw.acquire())
	defer gw.release()

	r1, tail, err := sendCommand(gw, DefaultConfig(), "GO_IDLE_STATE", 0)
	require.NoError(t, err)
	assert.Equal(t, R1Idle, r1)
	assert.Nil(t, tail)
}

func TestSendCommandUnknownName(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	gw := newGateway(vc, newFakePin(High))
	require.NoError(t, gw.acquire())
	defer gw.release()

	_, _, err := sendCommand(gw, DefaultConfig(), "NOT_A_COMMAND", 0)
	require.Error(t, err)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestAppSendOpCondCyclesCSN(t *testing.T) {
	vc := virtual.NewCard(4, true, 1)
	pin := newFakePin(High)
	gw := newGateway(vc, pin)
	require.NoError(t, gw.acquire())
	defer gw.release()

	_, _, err := sendCommand(gw, DefaultConfig(), "APP_SEND_OP_COND", hcsArg)
	require.NoError(t, err)
	// cycleCSN drives High then Low around CMD55 -> ACMD41.
	require.GreaterOrEqual(t, len(pin.transitions), 2)
}

package virtual

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdspi"
)

// pollR1 mimics the driver's own R1 poll: one byte at a time until the MSB
// clears.
func pollR1(t *testing.T, token sdspi.SPIToken) byte {
	t.Helper()
	for i := 0; i < 8; i++ {
		resp, err := token.Transfer([]byte{0xFF})
		require.NoError(t, err)
		if resp[0]&0x80 == 0 {
			return resp[0]
		}
	}
	t.Fatal("r1 poll exhausted")
	return 0
}

func TestHandleCommandAcceptsCorrectCRC7(t *testing.T) {
	c := NewCard(4, true, 1)
	token, err := c.Lock()
	require.NoError(t, err)
	defer token.Release()

	// GO_IDLE_STATE with its correctly stamped CRC7 byte (0x95, the
	// well-known CMD0 wire byte).
	_, err = token.Transfer([]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95})
	require.NoError(t, err)
	assert.Equal(t, byte(sdspi.R1Idle), pollR1(t, token))
}

func TestHandleCommandRejectsWrongCRC7(t *testing.T) {
	c := NewCard(4, true, 1)
	token, err := c.Lock()
	require.NoError(t, err)
	defer token.Release()

	// Same CMD0 frame with a deliberately wrong trailing CRC7 byte: the
	// card must answer with an R1 carrying the CRC-error bit instead of
	// silently accepting it.
	_, err = token.Transfer([]byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, byte(sdspi.R1CRCError), pollR1(t, token))
}

// Package crc implements the two checksums the SD SPI protocol relies on:
// CRC7 (poly 0x89) for command frames and CRC16-CCITT (poly 0x1021) for data
// blocks. Both are table-driven, stateless byte accumulators built the same
// way the teacher's CRC16 type builds its lookup table.
package crc

// CRC7 accumulates a 7-bit CRC across a byte stream. The zero value is a
// fresh accumulator (crc = 0).
type CRC7 byte

// table7 is the byte-at-a-time table for polynomial x^7+x^3+1, indexed by
// Single's combined (crc<<1)^byte the way crc7_add is defined. Each entry
// is a genuine 7-bit remainder (0x00-0x7F): it is the halved form of the
// standard SD CRC7 table (whose entries are the same remainder pre-shifted
// left by one, the layout used when the update rule folds straight to
// crc^byte instead of (crc<<1)^byte). Both layouts compute the same CRC7;
// this one matches the shift-then-lookup convention used by Single below.
var table7 = [256]byte{
	0x00, 0x09, 0x12, 0x1b, 0x24, 0x2d, 0x36, 0x3f,
	0x48, 0x41, 0x5a, 0x53, 0x6c, 0x65, 0x7e, 0x77,
	0x19, 0x10, 0x0b, 0x02, 0x3d, 0x34, 0x2f, 0x26,
	0x51, 0x58, 0x43, 0x4a, 0x75, 0x7c, 0x67, 0x6e,
	0x32, 0x3b, 0x20, 0x29, 0x16, 0x1f, 0x04, 0x0d,
	0x7a, 0x73, 0x68, 0x61, 0x5e, 0x57, 0x4c, 0x45,
	0x2b, 0x22, 0x39, 0x30, 0x0f, 0x06, 0x1d, 0x14,
	0x63, 0x6a, 0x71, 0x78, 0x47, 0x4e, 0x55, 0x5c,
	0x64, 0x6d, 0x76, 0x7f, 0x40, 0x49, 0x52, 0x5b,
	0x2c, 0x25, 0x3e, 0x37, 0x08, 0x01, 0x1a, 0x13,
	0x7d, 0x74, 0x6f, 0x66, 0x59, 0x50, 0x4b, 0x42,
	0x35, 0x3c, 0x27, 0x2e, 0x11, 0x18, 0x03, 0x0a,
	0x56, 0x5f, 0x44, 0x4d, 0x72, 0x7b, 0x60, 0x69,
	0x1e, 0x17, 0x0c, 0x05, 0x3a, 0x33, 0x28, 0x21,
	0x4f, 0x46, 0x5d, 0x54, 0x6b, 0x62, 0x79, 0x70,
	0x07, 0x0e, 0x15, 0x1c, 0x23, 0x2a, 0x31, 0x38,
	0x41, 0x48, 0x53, 0x5a, 0x65, 0x6c, 0x77, 0x7e,
	0x09, 0x00, 0x1b, 0x12, 0x2d, 0x24, 0x3f, 0x36,
	0x58, 0x51, 0x4a, 0x43, 0x7c, 0x75, 0x6e, 0x67,
	0x10, 0x19, 0x02, 0x0b, 0x34, 0x3d, 0x26, 0x2f,
	0x73, 0x7a, 0x61, 0x68, 0x57, 0x5e, 0x45, 0x4c,
	0x3b, 0x32, 0x29, 0x20, 0x1f, 0x16, 0x0d, 0x04,
	0x6a, 0x63, 0x78, 0x71, 0x4e, 0x47, 0x5c, 0x55,
	0x22, 0x2b, 0x30, 0x39, 0x06, 0x0f, 0x14, 0x1d,
	0x25, 0x2c, 0x37, 0x3e, 0x01, 0x08, 0x13, 0x1a,
	0x6d, 0x64, 0x7f, 0x76, 0x49, 0x40, 0x5b, 0x52,
	0x3c, 0x35, 0x2e, 0x27, 0x18, 0x11, 0x0a, 0x03,
	0x74, 0x7d, 0x66, 0x6f, 0x50, 0x59, 0x42, 0x4b,
	0x17, 0x1e, 0x05, 0x0c, 0x33, 0x3a, 0x21, 0x28,
	0x5f, 0x56, 0x4d, 0x44, 0x7b, 0x72, 0x69, 0x60,
	0x0e, 0x07, 0x1c, 0x15, 0x2a, 0x23, 0x38, 0x31,
	0x46, 0x4f, 0x54, 0x5d, 0x62, 0x6b, 0x70, 0x79,
}

// Single folds one byte into the accumulator.
func (c *CRC7) Single(b byte) {
	*c = CRC7(table7[(byte(*c)<<1)^b])
}

// Add folds every byte of buf into the accumulator and returns it for
// chaining.
func (c *CRC7) Add(buf []byte) CRC7 {
	for _, b := range buf {
		c.Single(b)
	}
	return *c
}

// Frame computes the CRC7 of buf from a fresh accumulator, the way it is used
// to stamp a command frame's trailing byte.
func Frame(buf []byte) byte {
	var c CRC7
	c.Add(buf)
	return byte(c)
}

// CRC16 accumulates a CCITT-16 CRC (poly 0x1021) across a byte stream. The
// zero value is a fresh accumulator.
type CRC16 uint16

var table16 [256]uint16

func init() {
	const poly16 = 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly16
			} else {
				crc = crc << 1
			}
		}
		table16[i] = crc
	}
}

// Single folds one byte into the accumulator.
func (c *CRC16) Single(b byte) {
	*c = CRC16((uint16(*c) << 8) ^ table16[(uint16(*c)>>8)^uint16(b)])
}

// Add folds every byte of buf into the accumulator and returns it for
// chaining.
func (c *CRC16) Add(buf []byte) CRC16 {
	for _, b := range buf {
		c.Single(b)
	}
	return *c
}

// Block computes the CRC16 of buf from a fresh accumulator.
func Block(buf []byte) uint16 {
	var c CRC16
	c.Add(buf)
	return uint16(c)
}

// Verify feeds buf (data followed by its two big-endian CRC16 bytes) into a
// fresh accumulator; per the CCITT-16 append property the result is zero iff
// the trailing CRC matches the preceding data.
func Verify(buf []byte) bool {
	return Block(buf) == 0
}

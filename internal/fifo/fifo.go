// Package fifo implements the circular byte buffer used by the block I/O
// engine to stage a data-token payload while accumulating its CRC16 inline,
// the same way the teacher's SDO block-transfer fifo folds a CRC16 into
// every byte as it moves through the ring.
package fifo

import "github.com/samsamfire/sdspi/internal/crc"

// Fifo is a circular byte buffer with one free slot always kept open
// (so writePos==readPos unambiguously means empty).
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

// New allocates a Fifo able to hold size-1 bytes before Write starts
// dropping input.
func New(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

// Reset empties the buffer.
func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

// Occupied returns the number of unread bytes.
func (f *Fifo) Occupied() int {
	n := f.writePos - f.readPos
	if n < 0 {
		n += len(f.buffer)
	}
	return n
}

// Write copies buffer in, folding each byte into crc if non-nil. It returns
// the number of bytes actually written (less than len(buffer) only if the
// ring fills up, which does not happen for the fixed 512/514-byte transfers
// this package is sized for).
func (f *Fifo) Write(buffer []byte, accum *crc.CRC16) int {
	written := 0
	for _, b := range buffer {
		next := f.writePos + 1
		if next == len(f.buffer) {
			next = 0
		}
		if next == f.readPos {
			break
		}
		f.buffer[f.writePos] = b
		f.writePos = next
		written++
		if accum != nil {
			accum.Single(b)
		}
	}
	return written
}

// Read drains up to len(buffer) unread bytes into buffer, returning the
// count actually read.
func (f *Fifo) Read(buffer []byte) int {
	read := 0
	for i := range buffer {
		if f.readPos == f.writePos {
			break
		}
		buffer[i] = f.buffer[f.readPos]
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
		read++
	}
	return read
}

// Package spidev talks to a Linux /dev/spidevB.C device node directly via
// ioctl, the same SPI_IOC_MESSAGE mechanism periph.io/x/periph/host/sysfs
// uses under the hood, but without pulling in the rest of periph's device
// registry. Useful on a minimal image where periph.io's host.Init is more
// than is wanted.
package spidev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/samsamfire/sdspi"
)

const (
	iocWrMode        = 0x40016B01
	iocWrBitsPerWord = 0x40016B03
	iocWrMaxSpeedHz  = 0x40046B04
	iocMessage0      = 0x40006B00 // SPI_IOC_MESSAGE(1), size filled in at call time
)

// spiIOCTransfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	pad         uint16
}

// Bus is a raw spidev handle, bound to one bus/chip-select pair.
type Bus struct {
	f           *os.File
	speedHz     uint32
	bitsPerWord uint8
}

// Open opens /dev/spidev<bus>.<cs> and sets mode 0, 8 bits per word.
func Open(bus, chipSelect int) (*Bus, error) {
	path := fmt.Sprintf("/dev/spidev%d.%d", bus, chipSelect)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spidev: open %s: %w", path, err)
	}
	b := &Bus{f: f, bitsPerWord: 8, speedHz: sdspi.ClockSlow}

	var mode uint8
	if err := ioctlSetU8(f, iocWrMode, mode); err != nil {
		f.Close()
		return nil, fmt.Errorf("spidev: set mode: %w", err)
	}
	if err := ioctlSetU8(f, iocWrBitsPerWord, b.bitsPerWord); err != nil {
		f.Close()
		return nil, fmt.Errorf("spidev: set bits per word: %w", err)
	}
	if err := b.SetSpeedHz(sdspi.ClockSlow); err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

// Transfer implements sdspi.SPIBus via SPI_IOC_MESSAGE(1).
func (b *Bus) Transfer(out []byte) ([]byte, error) {
	in := make([]byte, len(out))
	if len(out) == 0 {
		return in, nil
	}
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&out[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&in[0]))),
		length:      uint32(len(out)),
		speedHz:     b.speedHz,
		bitsPerWord: b.bitsPerWord,
	}
	req := iocMessage0 | (uint(unsafe.Sizeof(xfer)) << 16)
	if err := unix.IoctlSetInt(int(b.f.Fd()), uint(req), int(uintptr(unsafe.Pointer(&xfer)))); err != nil {
		return nil, fmt.Errorf("spidev: transfer: %w", err)
	}
	return in, nil
}

// SetSpeedHz implements sdspi.SPIBus.
func (b *Bus) SetSpeedHz(hz int) error {
	if err := ioctlSetU32(b.f, iocWrMaxSpeedHz, uint32(hz)); err != nil {
		return fmt.Errorf("spidev: set speed: %w", err)
	}
	b.speedHz = uint32(hz)
	return nil
}

// Lock implements sdspi.SPIBus with a bare token; spidev itself has no
// notion of a lock, and this adapter takes none either: Lock and Release
// do not block, and the token's Transfer is the plain Bus.Transfer.
func (b *Bus) Lock() (sdspi.SPIToken, error) {
	return &token{bus: b}, nil
}

type token struct {
	bus *Bus
}

func (t *token) Transfer(out []byte) ([]byte, error) { return t.bus.Transfer(out) }
func (t *token) Release() error                      { return nil }

func ioctlSetU8(f *os.File, req uint, val uint8) error {
	return unix.IoctlSetInt(int(f.Fd()), req, int(val))
}

func ioctlSetU32(f *os.File, req uint, val uint32) error {
	return unix.IoctlSetInt(int(f.Fd()), req, int(val))
}

// GPIOPin is a sysfs-gpio backed sdspi.Pin, exported/direction-set ahead of
// time by the caller (or a udev rule); this package only does the
// read/write syscalls.
type GPIOPin struct {
	f *os.File
}

// OpenPin opens /sys/class/gpio/gpio<n>/value for read-write.
func OpenPin(n int) (*GPIOPin, error) {
	path := fmt.Sprintf("/sys/class/gpio/gpio%d/value", n)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spidev: open gpio%d: %w", n, err)
	}
	return &GPIOPin{f: f}, nil
}

// Out implements sdspi.Pin.
func (p *GPIOPin) Out(level sdspi.PinLevel) error {
	b := byte('0')
	if level == sdspi.High {
		b = '1'
	}
	_, err := p.f.WriteAt([]byte{b}, 0)
	return err
}

// In implements sdspi.Pin.
func (p *GPIOPin) In() (sdspi.PinLevel, error) {
	buf := make([]byte, 1)
	if _, err := p.f.ReadAt(buf, 0); err != nil {
		return sdspi.Low, err
	}
	return sdspi.PinLevel(buf[0] == '1'), nil
}

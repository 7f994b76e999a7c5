// Package gpio emulates a PL061 GPIO controller, QEMU-virt compatible, used here as a second
// reference device exercising the MMIO bus contract alongside the UART.
package gpio

import (
	"github.com/whexy/armhv/internal/log"
	"github.com/whexy/armhv/internal/mmio"
)

const (
	dataWindowLo = 0x000
	dataWindowHi = 0x3FC

	regDIR    = 0x400
	regIS     = 0x404
	regIBE    = 0x408
	regIEV    = 0x40C
	regIE     = 0x410
	regRIS    = 0x414
	regMIS    = 0x418
	regIC     = 0x41C
	regAFSEL  = 0x420

	regIDLo = 0xFE0
	regIDHi = 0xFFC

	// RegionSize is the guest-physical extent of the device's register window.
	RegionSize = 0x1000
)

var peripheralID = [12]byte{
	0x61, 0x10, 0x04, 0x00, 0x0D, 0xF0, 0x05, 0xB1, 0x0D, 0xF0, 0x05, 0xB1,
}

// PL061 is an 8-pin GPIO block with direction, interrupt-enable and alternate-function
// registers. It implements mmio.MmioDevice and log.Loggable.
type PL061 struct {
	data  uint8
	dir   uint8
	ie    uint8
	afsel uint8

	log *log.Logger
}

// New returns a PL061 in its reset state.
func New() *PL061 {
	d := &PL061{log: log.DefaultLogger()}
	d.Reset()

	return d
}

// WithLogger sets the logger used for routine dispatch, satisfying log.Loggable. The MmioManager
// calls this automatically when the device is registered.
func (d *PL061) WithLogger(l *log.Logger) { d.log = l }

func (d *PL061) Reset() {
	d.data = 0
	d.dir = 0
	d.ie = 0
	d.afsel = 0
}

func (d *PL061) Size() uint64 { return RegionSize }

func validGPIOSize(size uint64) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

func (d *PL061) Read(offset, size uint64) (uint64, error) {
	if !validGPIOSize(size) {
		return 0, &mmio.InvalidSize{Size: size}
	}

	switch {
	case offset >= dataWindowLo && offset <= dataWindowHi:
		return uint64(d.data), nil
	case offset == regDIR:
		return uint64(d.dir), nil
	case offset == regIE:
		return uint64(d.ie), nil
	case offset == regAFSEL:
		return uint64(d.afsel), nil
	case offset == regIS, offset == regIBE, offset == regIEV, offset == regRIS, offset == regMIS:
		return 0, nil
	case offset >= regIDLo && offset <= regIDHi && (offset-regIDLo)%4 == 0:
		idx := (offset - regIDLo) / 4
		if idx < uint64(len(peripheralID)) {
			return uint64(peripheralID[idx]), nil
		}

		return 0, nil
	default:
		return 0, nil
	}
}

func (d *PL061) Write(offset, size, value uint64) error {
	if !validGPIOSize(size) {
		return &mmio.InvalidSize{Size: size}
	}

	switch {
	case offset >= dataWindowLo && offset <= dataWindowHi:
		mask := uint8((offset >> 2) & 0xFF)
		effective := mask & d.dir
		d.data = (d.data &^ effective) | (uint8(value) & effective)
		d.log.Debug("data write", log.Uint64("mask", uint64(mask)), log.Uint64("value", value))
	case offset == regDIR:
		d.dir = uint8(value)
	case offset == regIE:
		d.ie = uint8(value)
	case offset == regAFSEL:
		d.afsel = uint8(value)
	case offset == regIC:
		// acknowledged, no state kept
	default:
		// unknown offsets are silently ignored
	}

	return nil
}

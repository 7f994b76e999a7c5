// Package uart emulates a PL011 UART, the primitive console device QEMU's virt machine and
// U-Boot both expect at 0x09000000.
package uart

import (
	"bytes"
	"io"

	"github.com/whexy/armhv/internal/log"
	"github.com/whexy/armhv/internal/mmio"
)

const (
	regDR    = 0x000
	regFR    = 0x018
	regIBRD  = 0x024
	regFBRD  = 0x028
	regLCRH  = 0x02C
	regCR    = 0x030
	regIMSC  = 0x038
	regRIS   = 0x03C
	regMIS   = 0x040
	regICR   = 0x044
	regIDLo  = 0xFE0
	regIDHi  = 0xFFC

	frTXFE = 1 << 7
	frRXFF = 1 << 6
	frTXFF = 1 << 5
	frRXFE = 1 << 4

	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	crRXE    = 1 << 9

	lcrhFEN = 1 << 4

	fifoDepthShort = 1
	fifoDepthLong  = 16

	// RegionSize is the guest-physical extent of the device's register window.
	RegionSize = 0x1000
)

var peripheralID = [8]byte{0x11, 0x10, 0x14, 0x00, 0x0D, 0xF0, 0x05, 0xB1}

// PL011 is a memory-mapped, FIFO-buffered UART. It implements mmio.MmioDevice and log.Loggable.
type PL011 struct {
	out io.Writer
	log *log.Logger

	rx    []byte
	depth int

	cr   uint32
	lcrh uint32
	imsc uint32

	lineBuf []byte
}

// New returns a PL011 whose transmitted bytes are written to out.
func New(out io.Writer) *PL011 {
	d := &PL011{out: out, log: log.DefaultLogger()}
	d.Reset()

	return d
}

// WithLogger sets the logger used for routine dispatch, satisfying log.Loggable. The MmioManager
// calls this automatically when the device is registered.
func (d *PL011) WithLogger(l *log.Logger) { d.log = l }

// NewBuffer returns a PL011 writing to an in-memory buffer, for tests.
func NewBuffer() (*PL011, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(buf), buf
}

// GetOutput returns the bytes written to the sink so far, when the sink is a *bytes.Buffer
// returned by NewBuffer.
func (d *PL011) GetOutput(buf *bytes.Buffer) []byte { return buf.Bytes() }

// GetOutputString is GetOutput as a string.
func (d *PL011) GetOutputString(buf *bytes.Buffer) string { return buf.String() }

func (d *PL011) Reset() {
	d.rx = nil
	d.depth = fifoDepthShort
	d.cr = crTXE | crRXE
	d.lcrh = 0
	d.imsc = 0
	d.lineBuf = nil
}

func (d *PL011) Size() uint64 { return RegionSize }

// InputData delivers one host-to-guest byte into the RX FIFO. Bytes beyond capacity are dropped.
func (d *PL011) InputData(b byte) {
	if len(d.rx) >= d.depth {
		d.log.Warn("rx fifo full, dropping byte", log.Uint64("byte", uint64(b)))
		return
	}

	d.log.Debug("input byte", log.Uint64("byte", uint64(b)))
	d.rx = append(d.rx, b)
}

func (d *PL011) Read(offset, size uint64) (uint64, error) {
	if size != 4 {
		return 0, &mmio.InvalidSize{Size: size}
	}

	switch {
	case offset == regDR:
		return uint64(d.popRX()), nil
	case offset == regFR:
		return uint64(d.flags()), nil
	case offset == regIBRD, offset == regFBRD:
		return 0, nil
	case offset == regLCRH:
		return uint64(d.lcrh), nil
	case offset == regCR:
		return uint64(d.cr), nil
	case offset == regIMSC:
		return uint64(d.imsc), nil
	case offset == regRIS, offset == regMIS:
		return 0, nil
	case offset >= regIDLo && offset <= regIDHi && (offset-regIDLo)%4 == 0:
		idx := (offset - regIDLo) / 4
		if idx < uint64(len(peripheralID)) {
			return uint64(peripheralID[idx]), nil
		}

		return 0, nil
	default:
		return 0, &mmio.UnmappedAccess{Addr: offset}
	}
}

func (d *PL011) Write(offset, size, value uint64) error {
	if size != 4 {
		return &mmio.InvalidSize{Size: size}
	}

	switch offset {
	case regDR:
		d.transmit(byte(value))
		return nil
	case regFR:
		return nil // read-only
	case regIBRD, regFBRD:
		return nil
	case regLCRH:
		d.setLCRH(uint32(value))
		return nil
	case regCR:
		d.cr = uint32(value)
		return nil
	case regIMSC:
		d.imsc = uint32(value)
		return nil
	case regRIS, regMIS:
		return nil
	case regICR:
		return nil
	default:
		if offset >= regIDLo && offset <= regIDHi {
			return nil
		}

		return &mmio.UnmappedAccess{Addr: offset}
	}
}

func (d *PL011) popRX() byte {
	if len(d.rx) == 0 {
		return 0
	}

	b := d.rx[0]
	d.rx = d.rx[1:]

	return b
}

func (d *PL011) flags() uint32 {
	var fr uint32

	if len(d.rx) == 0 {
		fr |= frRXFE
	}

	if len(d.rx) >= d.depth {
		fr |= frRXFF
	}

	if len(d.lineBuf) == 0 {
		fr |= frTXFE
	}

	return fr
}

func (d *PL011) setLCRH(value uint32) {
	wasLong := d.lcrh&lcrhFEN != 0
	isLong := value&lcrhFEN != 0

	d.lcrh = value

	if wasLong != isLong {
		if isLong {
			d.depth = fifoDepthLong
		} else {
			d.depth = fifoDepthShort
		}

		d.rx = nil
		d.lineBuf = nil
	}
}

func (d *PL011) transmit(b byte) {
	if d.cr&crUARTEN == 0 || d.cr&crTXE == 0 {
		return
	}

	d.lineBuf = append(d.lineBuf, b)

	if b == '\n' {
		d.flushLine()
	}
}

func (d *PL011) flushLine() {
	if len(d.lineBuf) == 0 {
		return
	}

	_, _ = d.out.Write(d.lineBuf)
	d.lineBuf = nil
}

// Close flushes any buffered partial line to the sink.
func (d *PL011) Close() error {
	d.flushLine()

	if c, ok := d.out.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

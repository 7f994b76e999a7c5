// Package mmio routes guest memory-mapped I/O accesses to emulated devices.
package mmio

import (
	"github.com/google/btree"

	"github.com/whexy/armhv/internal/log"
)

// MmioDevice is the capability set every memory-mapped device implements. Offsets and values are
// always zero-extended to 64 bits; narrower accesses are the caller's responsibility to truncate.
type MmioDevice interface {
	// Read returns the size-byte value at offset.
	Read(offset uint64, size uint64) (uint64, error)

	// Write stores value's low size bytes at offset.
	Write(offset uint64, size uint64, value uint64) error

	// Reset restores the device's power-on state.
	Reset()

	// Size returns the region length the device occupies, typically 0x1000.
	Size() uint64
}

// mmioRegion is a device bound to a base address, ordered in the manager's tree by that address.
type mmioRegion struct {
	base   uint64
	device MmioDevice
}

func (r mmioRegion) end() uint64 { return r.base + r.device.Size() }

func regionLess(a, b mmioRegion) bool { return a.base < b.base }

// MmioManager routes addressed accesses to the device registered over that range. The region
// table is a sorted tree keyed by base address, giving logarithmic registration and dispatch.
type MmioManager struct {
	regions *btree.BTreeG[mmioRegion]
	log     *log.Logger
}

// NewManager returns an empty MmioManager, logging routine dispatch at Debug through logger. A
// nil logger falls back to the package default.
func NewManager(logger *log.Logger) *MmioManager {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &MmioManager{regions: btree.NewG(32, regionLess), log: logger}
}

// RegisterDevice binds device at guest-physical base. It fails OverlappingRegion if
// [base, base+device.Size()) intersects any previously registered region. If device implements
// log.Loggable, it is handed the manager's logger.
func (m *MmioManager) RegisterDevice(base uint64, device MmioDevice) error {
	newRegion := mmioRegion{base: base, device: device}
	end := newRegion.end()

	if existing, ok := m.findOverlap(base, end); ok {
		return &OverlappingRegion{
			ExistingBase: existing.base,
			ExistingEnd:  existing.end(),
			NewBase:      base,
			NewEnd:       end,
		}
	}

	if loggable, ok := device.(log.Loggable); ok {
		loggable.WithLogger(m.log)
	}

	m.regions.ReplaceOrInsert(newRegion)

	return nil
}

func (m *MmioManager) findOverlap(base, end uint64) (mmioRegion, bool) {
	var found mmioRegion
	hasFound := false

	m.regions.AscendGreaterOrEqual(mmioRegion{base: base}, func(r mmioRegion) bool {
		if r.base < end {
			found, hasFound = r, true
		}

		return false
	})

	if hasFound {
		return found, true
	}

	m.regions.DescendLessOrEqual(mmioRegion{base: base}, func(r mmioRegion) bool {
		if r.end() > base {
			found, hasFound = r, true
		}

		return false
	})

	return found, hasFound
}

// findRegion locates the region with the greatest base <= addr, the Go analogue of the
// reference's range(..=addr).next_back() query.
func (m *MmioManager) findRegion(addr uint64) (mmioRegion, bool) {
	var found mmioRegion
	hasFound := false

	m.regions.DescendLessOrEqual(mmioRegion{base: addr}, func(r mmioRegion) bool {
		found, hasFound = r, true
		return false
	})

	return found, hasFound
}

func validSize(size uint64) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// HandleRead dispatches a read of size bytes at addr to its owning device.
func (m *MmioManager) HandleRead(addr, size uint64) (uint64, error) {
	m.log.Debug("read", log.Uint64("addr", addr), log.Uint64("size", size))

	region, err := m.locate(addr, size)
	if err != nil {
		return 0, err
	}

	value, err := region.device.Read(addr-region.base, size)
	if err != nil {
		return 0, err
	}

	return value, nil
}

// HandleWrite dispatches a write of size bytes at addr to its owning device.
func (m *MmioManager) HandleWrite(addr, size, value uint64) error {
	m.log.Debug("write", log.Uint64("addr", addr), log.Uint64("size", size), log.Uint64("value", value))

	region, err := m.locate(addr, size)
	if err != nil {
		return err
	}

	return region.device.Write(addr-region.base, size, value)
}

func (m *MmioManager) locate(addr, size uint64) (mmioRegion, error) {
	if !validSize(size) {
		return mmioRegion{}, &InvalidSize{Size: size}
	}

	if addr&(size-1) != 0 {
		return mmioRegion{}, &InvalidAlignment{Addr: addr, Size: size}
	}

	region, ok := m.findRegion(addr)
	if !ok || addr >= region.end() {
		return mmioRegion{}, &UnmappedAccess{Addr: addr}
	}

	if addr+size > region.end() {
		return mmioRegion{}, &UnmappedAccess{Addr: addr}
	}

	return region, nil
}

// Package mem tracks the guest-physical address space as a set of non-overlapping segments, each
// backed by host memory obtained from a [hv.Backend], and provides byte- and typed-level access to
// them.
package mem

import (
	"fmt"

	"github.com/whexy/armhv/internal/hv"
	"github.com/whexy/armhv/internal/log"
)

// Segment is a contiguous guest-physical range backed by one host allocation.
type Segment struct {
	Base   uint64
	Size   uint64
	Handle hv.Handle
	Perm   hv.Permission
}

func (s Segment) end() uint64 { return s.Base + s.Size }

func (s Segment) contains(addr, length uint64) bool {
	if length == 0 {
		return addr >= s.Base && addr <= s.end()
	}

	end := addr + length

	return addr >= s.Base && end <= s.end() && end > addr
}

// SharedMemory is an ordered collection of Segments over a backend's host allocations. Segments
// never overlap; lookups resolve an address range to at most one segment.
type SharedMemory struct {
	backend  hv.Backend
	segments []Segment
	log      *log.Logger
}

// New returns an empty SharedMemory bound to backend, logging routine access at Debug through
// logger. A nil logger falls back to the package default.
func New(backend hv.Backend, logger *log.Logger) *SharedMemory {
	if logger == nil {
		logger = log.DefaultLogger()
	}

	return &SharedMemory{backend: backend, log: logger}
}

// AddSegment reserves size bytes from the backend, maps them at base with perm, and records the
// segment. It fails InvalidSize before checking for overlap, so a degenerate request never shows
// up as a spurious RegionOverlap.
func (m *SharedMemory) AddSegment(base, size uint64, perm hv.Permission) error {
	if size == 0 {
		return &InvalidSize{Size: size}
	}

	end := base + size
	if end < base {
		return &InvalidSize{Size: size}
	}

	for _, s := range m.segments {
		if regionsOverlap(base, end, s.Base, s.end()) {
			return &RegionOverlap{Start: base, End: end}
		}
	}

	handle, err := m.backend.Allocate(size)
	if err != nil {
		return fmt.Errorf("mem: add_segment: %w", err)
	}

	if err := m.backend.Map(handle, base, perm); err != nil {
		return fmt.Errorf("mem: add_segment: %w", err)
	}

	m.segments = append(m.segments, Segment{Base: base, Size: size, Handle: handle, Perm: perm})

	return nil
}

func regionsOverlap(aStart, aEnd, bStart, bEnd uint64) bool {
	return aStart < bEnd && bStart < aEnd
}

// find returns the single segment fully containing [addr, addr+length).
func (m *SharedMemory) find(addr, length uint64) (Segment, bool) {
	for _, s := range m.segments {
		if s.contains(addr, length) {
			return s, true
		}
	}

	return Segment{}, false
}

// ReadBytes returns a copy of length bytes starting at addr. The range must lie entirely within
// one segment.
func (m *SharedMemory) ReadBytes(addr, length uint64) ([]byte, error) {
	m.log.Debug("read bytes", log.Uint64("addr", addr), log.Uint64("length", length))

	if length == 0 {
		return []byte{}, nil
	}

	seg, ok := m.find(addr, length)
	if !ok {
		return nil, &SegmentationFault{Addr: addr, Size: length, Msg: "no segment contains range"}
	}

	slice, err := m.backend.GetSlice(seg.Handle)
	if err != nil {
		return nil, fmt.Errorf("mem: read_bytes: %w", err)
	}

	off := addr - seg.Base
	out := make([]byte, length)
	copy(out, slice[off:off+length])

	return out, nil
}

// WriteBytes writes data into the guest address space starting at addr. The range must lie
// entirely within one segment.
func (m *SharedMemory) WriteBytes(addr uint64, data []byte) error {
	length := uint64(len(data))

	m.log.Debug("write bytes", log.Uint64("addr", addr), log.Uint64("length", length))

	if length == 0 {
		return nil
	}

	seg, ok := m.find(addr, length)
	if !ok {
		return &SegmentationFault{Addr: addr, Size: length, Msg: "no segment contains range"}
	}

	slice, err := m.backend.GetSliceMut(seg.Handle)
	if err != nil {
		return fmt.Errorf("mem: write_bytes: %w", err)
	}

	off := addr - seg.Base
	copy(slice[off:off+length], data)

	return nil
}

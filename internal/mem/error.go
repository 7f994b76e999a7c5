package mem

import "fmt"

// SegmentationFault is returned when no single segment contains the requested range.
type SegmentationFault struct {
	Addr uint64
	Size uint64
	Msg  string
}

func (e *SegmentationFault) Error() string {
	return fmt.Sprintf("mem: segmentation fault at %#x (size %d): %s", e.Addr, e.Size, e.Msg)
}

// RegionOverlap is returned when a new segment's range intersects an existing one.
type RegionOverlap struct {
	Start uint64
	End   uint64
}

func (e *RegionOverlap) Error() string {
	return fmt.Sprintf("mem: region [%#x, %#x) overlaps an existing segment", e.Start, e.End)
}

// InvalidSize is returned for a zero-length segment, or a typed/array access whose size does not
// make sense for the operation.
type InvalidSize struct {
	Size uint64
}

func (e *InvalidSize) Error() string {
	return fmt.Sprintf("mem: invalid size %d", e.Size)
}

// InvalidAlignment is returned by ReadAligned/WriteAligned when addr is not aligned to the
// natural size of the type being accessed.
type InvalidAlignment struct {
	Addr      uint64
	Alignment uint64
}

func (e *InvalidAlignment) Error() string {
	return fmt.Sprintf("mem: address %#x is not aligned to %d bytes", e.Addr, e.Alignment)
}

package mem

import "encoding/binary"

// Unsigned enumerates the guest-visible integer widths typed accessors support.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func sizeOf[T Unsigned]() uint64 {
	var z T

	switch any(z).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

// Read reads a single little-endian value of type T at addr.
func Read[T Unsigned](m *SharedMemory, addr uint64) (T, error) {
	size := sizeOf[T]()

	bytes, err := m.ReadBytes(addr, size)
	if err != nil {
		var zero T
		return zero, err
	}

	return decode[T](bytes), nil
}

// Write writes a single little-endian value of type T at addr.
func Write[T Unsigned](m *SharedMemory, addr uint64, value T) error {
	size := sizeOf[T]()
	bytes := make([]byte, size)
	encode(bytes, value)

	return m.WriteBytes(addr, bytes)
}

// ReadAligned behaves like Read but additionally fails InvalidAlignment if addr is not a
// multiple of T's natural size.
func ReadAligned[T Unsigned](m *SharedMemory, addr uint64) (T, error) {
	size := sizeOf[T]()

	if addr%size != 0 {
		var zero T
		return zero, &InvalidAlignment{Addr: addr, Alignment: size}
	}

	return Read[T](m, addr)
}

// WriteAligned behaves like Write but additionally fails InvalidAlignment if addr is not a
// multiple of T's natural size.
func WriteAligned[T Unsigned](m *SharedMemory, addr uint64, value T) error {
	size := sizeOf[T]()

	if addr%size != 0 {
		return &InvalidAlignment{Addr: addr, Alignment: size}
	}

	return Write[T](m, addr, value)
}

// ReadArray reads count contiguous values of type T starting at addr.
func ReadArray[T Unsigned](m *SharedMemory, addr uint64, count uint64) ([]T, error) {
	size := sizeOf[T]()

	total := size * count
	if count != 0 && total/count != size {
		return nil, &InvalidSize{Size: count}
	}

	bytes, err := m.ReadBytes(addr, total)
	if err != nil {
		return nil, err
	}

	out := make([]T, count)
	for i := uint64(0); i < count; i++ {
		out[i] = decode[T](bytes[i*size : (i+1)*size])
	}

	return out, nil
}

// WriteArray writes values as a contiguous run starting at addr.
func WriteArray[T Unsigned](m *SharedMemory, addr uint64, values []T) error {
	size := sizeOf[T]()
	bytes := make([]byte, size*uint64(len(values)))

	for i, v := range values {
		encode(bytes[uint64(i)*size:], v)
	}

	return m.WriteBytes(addr, bytes)
}

func decode[T Unsigned](b []byte) T {
	switch len(b) {
	case 1:
		return T(b[0])
	case 2:
		return T(binary.LittleEndian.Uint16(b))
	case 4:
		return T(binary.LittleEndian.Uint32(b))
	default:
		return T(binary.LittleEndian.Uint64(b))
	}
}

func encode[T Unsigned](b []byte, v T) {
	switch sizeOf[T]() {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

package gpu

import (
	"encoding/binary"
	"math"
)

// PointerSize is the width of a device address in a parameter buffer
const PointerSize = 8

// Args packs kernel parameters into the layout the device expects: each
// value at the next offset aligned to its own size, little endian.
type Args struct {
	buf []byte
}

func (a *Args) align(n int) {
	for len(a.buf)%n != 0 {
		a.buf = append(a.buf, 0)
	}
}

// Ptr appends a device address
func (a *Args) Ptr(p uintptr) {
	a.align(PointerSize)
	a.buf = binary.LittleEndian.AppendUint64(a.buf, uint64(p))
}

// Int32 appends a 32-bit int
func (a *Args) Int32(v int32) {
	a.align(4)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

// Float32 appends a 32-bit float
func (a *Args) Float32(v float32) {
	a.align(4)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, math.Float32bits(v))
}

// Len returns the packed size in bytes
func (a *Args) Len() int {
	return len(a.buf)
}

// Bytes returns the packed parameter buffer
func (a *Args) Bytes() []byte {
	return a.buf
}

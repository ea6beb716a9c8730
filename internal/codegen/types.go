// Package codegen synthesizes CUDA C source for pipeline kernels: element
// type names, kernel signatures, the index/bounds-check preamble and the
// single extern "C" compilation unit handed to the device compiler.
package codegen

import (
	"strconv"

	"github.com/ChristofferDahl/gpuip/internal/pipeline"
)

// ScalarType returns the per-channel CUDA type for a buffer, derived from
// bpp/channels. Unknown widths fall back to float.
func ScalarType(b pipeline.Buffer) string {
	switch b.ElementBytes() {
	case 1:
		if b.Channels > 1 {
			return "uchar"
		}
		return "unsigned char"
	case 4:
		return "float"
	case 8:
		return "double"
	default:
		return "float"
	}
}

// ElementType returns the CUDA type of one pixel: the scalar type for
// single channel buffers, the N-component vector type (uchar4, float2...)
// otherwise.
func ElementType(b pipeline.Buffer) string {
	t := ScalarType(b)
	if b.Channels > 1 {
		t += strconv.Itoa(b.Channels)
	}
	return t
}

// ZeroValue returns the expression that zero-initializes one element
func ZeroValue(b pipeline.Buffer) string {
	if b.Channels <= 1 {
		return "0"
	}
	s := "make_" + ElementType(b) + "("
	for i := 0; i < b.Channels; i++ {
		if i > 0 {
			s += ", "
		}
		s += "0"
	}
	return s + ")"
}

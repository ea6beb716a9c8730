package pipeline

import "fmt"

// ElementKind is the per-channel storage type of a buffer
type ElementKind int

const (
	UnsignedByte ElementKind = iota
	Float
	Double
)

// Bytes returns the size of one channel element in bytes
func (k ElementKind) Bytes() int {
	switch k {
	case UnsignedByte:
		return 1
	case Float:
		return 4
	case Double:
		return 8
	default:
		return 4
	}
}

func (k ElementKind) String() string {
	switch k {
	case UnsignedByte:
		return "uchar"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// ParseElementKind maps the names used in pipeline files to an ElementKind
func ParseElementKind(s string) (ElementKind, error) {
	switch s {
	case "uchar", "uint8", "unsigned_byte":
		return UnsignedByte, nil
	case "float", "float32":
		return Float, nil
	case "double", "float64":
		return Double, nil
	default:
		return 0, fmt.Errorf("unknown buffer type %q (want uchar, float or double)", s)
	}
}

// Buffer describes one named image buffer. BPP is the byte size of one
// pixel across all channels, so BPP/Channels is the size of one element.
type Buffer struct {
	Name     string
	Width    int
	Height   int
	BPP      int
	Channels int
}

// Size returns the number of bytes the buffer occupies on the device
func (b Buffer) Size() int64 {
	return int64(b.Width) * int64(b.Height) * int64(b.BPP)
}

// ElementBytes returns bpp/channels, the byte width of a single channel
func (b Buffer) ElementBytes() int {
	if b.Channels <= 0 {
		return 0
	}
	return b.BPP / b.Channels
}

func (b Buffer) String() string {
	return fmt.Sprintf("%s (%dx%d, %d bpp, %d ch)", b.Name, b.Width, b.Height, b.BPP, b.Channels)
}

// CopyOperation selects the direction of a host/device transfer
type CopyOperation int

const (
	// ReadData copies device memory into the host buffer
	ReadData CopyOperation = iota
	// WriteData copies the host buffer into device memory
	WriteData
)

func (op CopyOperation) String() string {
	switch op {
	case ReadData:
		return "read"
	case WriteData:
		return "write"
	default:
		return "unknown"
	}
}

package pipeline

import (
	"errors"
	"fmt"
)

// Backend is the capability set every execution backend provides.
// InitBuffers -> Build -> repeated (Copy write -> Process -> Copy read).
type Backend interface {
	// InitBuffers (re)allocates one device block per registered buffer
	InitBuffers() error

	// Build compiles every kernel and resolves one entry point each
	Build() error

	// Process dispatches every kernel once, in registration order
	Process() error

	// Copy moves a whole buffer between data and the device
	Copy(buffer string, op CopyOperation, data []byte) error

	// BoilerplateCode returns the synthesized source for a kernel
	BoilerplateCode(k *Kernel) (string, error)

	// Close releases every device resource held by the backend
	Close() error
}

// Pipeline holds the raster size and the ordered buffers and kernels a
// backend executes
type Pipeline struct {
	width   int
	height  int
	buffers []Buffer
	kernels []*Kernel
}

// New creates an empty pipeline over a width x height raster
func New(width, height int) *Pipeline {
	return &Pipeline{width: width, height: height}
}

// Dimensions returns the shared raster size
func (p *Pipeline) Dimensions() (int, int) {
	return p.width, p.height
}

// SetDimensions changes the raster size. Buffers already registered are
// resized to match; device blocks allocated for them keep their old size
// until the backend reinitializes its buffers.
func (p *Pipeline) SetDimensions(width, height int) {
	p.width = width
	p.height = height
	for i := range p.buffers {
		p.buffers[i].Width = width
		p.buffers[i].Height = height
	}
}

// CreateBuffer registers a buffer covering the raster with channels
// elements of the given kind per pixel
func (p *Pipeline) CreateBuffer(name string, kind ElementKind, channels int) (Buffer, error) {
	return p.AddBuffer(Buffer{
		Name:     name,
		Width:    p.width,
		Height:   p.height,
		BPP:      kind.Bytes() * channels,
		Channels: channels,
	})
}

// AddBuffer registers a fully specified buffer descriptor
func (p *Pipeline) AddBuffer(b Buffer) (Buffer, error) {
	if b.Name == "" {
		return Buffer{}, errors.New("buffer name cannot be empty")
	}
	if b.Channels <= 0 {
		return Buffer{}, fmt.Errorf("buffer %s: channels must be positive, got %d", b.Name, b.Channels)
	}
	if b.BPP <= 0 {
		return Buffer{}, fmt.Errorf("buffer %s: bpp must be positive, got %d", b.Name, b.BPP)
	}
	if _, ok := p.Buffer(b.Name); ok {
		return Buffer{}, fmt.Errorf("buffer %s already registered", b.Name)
	}
	p.buffers = append(p.buffers, b)
	return b, nil
}

// Buffer looks up a registered buffer by name
func (p *Pipeline) Buffer(name string) (Buffer, bool) {
	for _, b := range p.buffers {
		if b.Name == name {
			return b, true
		}
	}
	return Buffer{}, false
}

// Buffers returns the registered buffers in registration order
func (p *Pipeline) Buffers() []Buffer {
	out := make([]Buffer, len(p.buffers))
	copy(out, p.buffers)
	return out
}

// CreateKernel registers a new kernel and returns the shared handle
func (p *Pipeline) CreateKernel(name string) (*Kernel, error) {
	if name == "" {
		return nil, errors.New("kernel name cannot be empty")
	}
	if p.Kernel(name) != nil {
		return nil, fmt.Errorf("kernel %s already registered", name)
	}
	k := &Kernel{Name: name}
	p.kernels = append(p.kernels, k)
	return k, nil
}

// Kernel returns the registered kernel with the given name, or nil
func (p *Pipeline) Kernel(name string) *Kernel {
	for _, k := range p.kernels {
		if k.Name == name {
			return k
		}
	}
	return nil
}

// Kernels returns the registered kernels in registration order
func (p *Pipeline) Kernels() []*Kernel {
	out := make([]*Kernel, len(p.kernels))
	copy(out, p.kernels)
	return out
}

// Validate checks that the raster is non-empty and every kernel binding
// refers to a registered buffer
func (p *Pipeline) Validate() error {
	if p.width <= 0 || p.height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", p.width, p.height)
	}
	for _, k := range p.kernels {
		for _, b := range append(append([]Binding{}, k.InBuffers...), k.OutBuffers...) {
			if _, ok := p.Buffer(b.Buffer); !ok {
				return fmt.Errorf("kernel %s: parameter %s bound to unknown buffer %s", k.Name, b.Param, b.Buffer)
			}
		}
	}
	return nil
}

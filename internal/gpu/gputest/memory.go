package gputest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// Buffer is a fake device allocation
type Buffer struct {
	ptr    uintptr
	data   []byte
	device *Device
	mu     sync.RWMutex
}

func (b *Buffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

func (b *Buffer) Ptr() uintptr { return b.ptr }

func (b *Buffer) CopyToHost(dst []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return errors.New("buffer already freed")
	}
	if len(dst) < len(b.data) {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (b *Buffer) CopyFromHost(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return errors.New("buffer already freed")
	}
	if len(b.data) < len(src) {
		return fmt.Errorf("buffer too small: %d < %d", len(b.data), len(src))
	}
	copy(b.data, src)
	return nil
}

func (b *Buffer) Free() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil
	}
	b.data = nil
	return b.device.free(b.ptr)
}

func (b *Buffer) Device() gpu.Device { return b.device }

// Module is a fake loaded module
type Module struct {
	dev      *Device
	names    map[string]bool
	unloaded bool

	// Source is the text the module was loaded from
	Source string
}

func (m *Module) Function(name string) (gpu.Function, error) {
	if m.unloaded {
		return nil, errors.New("module unloaded")
	}
	if !m.names[name] {
		return nil, fmt.Errorf("named symbol not found: %s", name)
	}
	return &Function{name: name, dev: m.dev}, nil
}

func (m *Module) Unload() error {
	if m.unloaded {
		return errors.New("module already unloaded")
	}
	m.unloaded = true
	m.dev.mu.Lock()
	m.dev.modules--
	m.dev.mu.Unlock()
	return nil
}

// Function is a fake entry point
type Function struct {
	name string
	dev  *Device
}

func (f *Function) Name() string { return f.name }

func (f *Function) Launch(grid, block gpu.Dim3, args []byte) error {
	l := Launch{Kernel: f.name, Grid: grid, Block: block, Args: append([]byte(nil), args...)}

	f.dev.mu.Lock()
	f.dev.launches = append(f.dev.launches, l)
	f.dev.mu.Unlock()

	if err := f.dev.drv.LaunchErr[f.name]; err != nil {
		return err
	}
	if fn := f.dev.drv.kernel(f.name); fn != nil {
		return fn(f.dev, l)
	}
	return nil
}

// Launch records one kernel dispatch
type Launch struct {
	Kernel string
	Grid   gpu.Dim3
	Block  gpu.Dim3
	Args   []byte
}

// Ptr decodes a device address at byte offset off of the parameter buffer
func (l Launch) Ptr(off int) uintptr {
	return uintptr(binary.LittleEndian.Uint64(l.Args[off:]))
}

// Int32 decodes an int parameter at byte offset off
func (l Launch) Int32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(l.Args[off:]))
}

// Float32 decodes a float parameter at byte offset off
func (l Launch) Float32(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(l.Args[off:]))
}

// ForEach visits every logical unit of the launch in (x, y) order
func (l Launch) ForEach(fn func(x, y int)) {
	for y := 0; y < l.Grid.Y*l.Block.Y; y++ {
		for x := 0; x < l.Grid.X*l.Block.X; x++ {
			fn(x, y)
		}
	}
}

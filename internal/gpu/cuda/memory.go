//go:build linux
// +build linux

package cuda

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// cudaBuffer implements gpu.Buffer for device memory
type cudaBuffer struct {
	ptr    uintptr
	size   int64
	device *Device
	mu     sync.RWMutex
}

func (b *cudaBuffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *cudaBuffer) Ptr() uintptr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ptr
}

func (b *cudaBuffer) CopyToHost(dst []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.ptr == 0 {
		return fmt.Errorf("buffer already freed")
	}
	if int64(len(dst)) < b.size {
		return fmt.Errorf("destination buffer too small: %d < %d", len(dst), b.size)
	}

	return b.device.call(func() error {
		return cuMemcpyDtoH(unsafe.Pointer(&dst[0]), b.ptr, uint64(b.size)).err("cuMemcpyDtoH")
	})
}

func (b *cudaBuffer) CopyFromHost(src []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ptr == 0 {
		return fmt.Errorf("buffer already freed")
	}
	if b.size < int64(len(src)) {
		return fmt.Errorf("buffer too small: %d < %d", b.size, len(src))
	}
	if len(src) == 0 {
		return nil
	}

	return b.device.call(func() error {
		return cuMemcpyHtoD(b.ptr, unsafe.Pointer(&src[0]), uint64(len(src))).err("cuMemcpyHtoD")
	})
}

func (b *cudaBuffer) Free() error {
	ptr := b.Ptr()
	if err := b.release(); err != nil {
		return err
	}
	b.device.forget(ptr)
	return nil
}

func (b *cudaBuffer) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ptr == 0 {
		return nil
	}
	err := b.device.call(func() error {
		return cuMemFree(b.ptr).err("cuMemFree")
	})
	if err != nil {
		return fmt.Errorf("failed to free CUDA buffer: %w", err)
	}
	b.ptr = 0
	return nil
}

func (b *cudaBuffer) Device() gpu.Device {
	return b.device
}

// module is a loaded CUDA module
type module struct {
	handle uintptr
	device *Device
}

func (m *module) Function(name string) (gpu.Function, error) {
	var fn uintptr
	err := m.device.call(func() error {
		return cuModuleGetFunction(&fn, m.handle, name).err("cuModuleGetFunction")
	})
	if err != nil {
		return nil, err
	}
	return &function{name: name, handle: fn, device: m.device}, nil
}

func (m *module) Unload() error {
	return m.device.call(func() error {
		return cuModuleUnload(m.handle).err("cuModuleUnload")
	})
}

// function is a resolved CUfunction
type function struct {
	name   string
	handle uintptr
	device *Device
}

func (f *function) Name() string { return f.name }

// Launch passes args as one packed parameter buffer through the extra
// array of cuLaunchKernel
func (f *function) Launch(grid, block gpu.Dim3, args []byte) error {
	return f.device.call(func() error {
		var pinner runtime.Pinner
		defer pinner.Unpin()

		var extra unsafe.Pointer
		if len(args) > 0 {
			size := uintptr(len(args))
			pinner.Pin(&args[0])
			pinner.Pin(&size)
			markers := &[5]uintptr{
				launchParamBufferPointer, uintptr(unsafe.Pointer(&args[0])),
				launchParamBufferSize, uintptr(unsafe.Pointer(&size)),
				launchParamEnd,
			}
			pinner.Pin(markers)
			extra = unsafe.Pointer(markers)
		}

		return cuLaunchKernel(f.handle,
			uint32(grid.X), uint32(grid.Y), uint32(grid.Z),
			uint32(block.X), uint32(block.Y), uint32(block.Z),
			0, 0, nil, extra,
		).err("cuLaunchKernel")
	})
}

//go:build linux
// +build linux

// Package cuda implements gpu.Driver on the CUDA driver API. The driver
// library is opened at runtime, so binaries build without cgo or the CUDA
// toolkit and report the driver as unavailable when libcuda is missing.
package cuda

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// Driver enumerates and opens CUDA devices
type Driver struct{}

// NewDriver loads the CUDA driver library
func NewDriver() (*Driver, error) {
	if err := load(); err != nil {
		return nil, err
	}
	return &Driver{}, nil
}

func (d *Driver) Name() string { return "cuda" }

func (d *Driver) Devices() ([]gpu.DeviceInfo, error) {
	var count int32
	if err := cuDeviceGetCount(&count).err("cuDeviceGetCount"); err != nil {
		return nil, err
	}

	devices := make([]gpu.DeviceInfo, 0, count)
	for i := 0; i < int(count); i++ {
		info, _, err := deviceInfo(i)
		if err != nil {
			return nil, err
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func deviceInfo(ordinal int) (gpu.DeviceInfo, int32, error) {
	var handle int32
	if err := cuDeviceGet(&handle, int32(ordinal)).err("cuDeviceGet"); err != nil {
		return gpu.DeviceInfo{}, 0, err
	}

	name := make([]byte, 256)
	if err := cuDeviceGetName(&name[0], int32(len(name)), handle).err("cuDeviceGetName"); err != nil {
		return gpu.DeviceInfo{}, 0, err
	}
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}

	var sms, clock int32
	if err := cuDeviceGetAttribute(&sms, attrMultiprocessorCount, handle).err("cuDeviceGetAttribute"); err != nil {
		return gpu.DeviceInfo{}, 0, err
	}
	if err := cuDeviceGetAttribute(&clock, attrClockRate, handle).err("cuDeviceGetAttribute"); err != nil {
		return gpu.DeviceInfo{}, 0, err
	}

	var total uint64
	if err := cuDeviceTotalMem(&total, handle).err("cuDeviceTotalMem"); err != nil {
		return gpu.DeviceInfo{}, 0, err
	}

	return gpu.DeviceInfo{
		Ordinal:         ordinal,
		Name:            string(name),
		MultiProcessors: int(sms),
		ClockRateKHz:    int(clock),
		TotalMemory:     int64(total),
	}, handle, nil
}

// Open retains the device's primary context
func (d *Driver) Open(ordinal int) (gpu.Device, error) {
	info, handle, err := deviceInfo(ordinal)
	if err != nil {
		return nil, err
	}

	var ctx uintptr
	if err := cuDevicePrimaryCtxRetain(&ctx, handle).err("cuDevicePrimaryCtxRetain"); err != nil {
		return nil, err
	}

	return &Device{
		handle:  handle,
		ctx:     ctx,
		info:    info,
		buffers: make(map[uintptr]*cudaBuffer),
	}, nil
}

// Device is a CUDA device bound through its primary context
type Device struct {
	handle int32
	ctx    uintptr
	info   gpu.DeviceInfo

	mu      sync.Mutex
	buffers map[uintptr]*cudaBuffer
	freed   bool
}

// call runs fn with the device context current on a locked OS thread.
// CUDA tracks the current context per thread and goroutines migrate.
func (d *Device) call(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := cuCtxSetCurrent(d.ctx).err("cuCtxSetCurrent"); err != nil {
		return err
	}
	return fn()
}

func (d *Device) Info() gpu.DeviceInfo { return d.info }

func (d *Device) Allocate(size int64) (gpu.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", size)
	}

	var ptr uintptr
	err := d.call(func() error {
		return cuMemAlloc(&ptr, uint64(size)).err("cuMemAlloc")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate CUDA buffer of size %d: %w", size, err)
	}

	buf := &cudaBuffer{ptr: ptr, size: size, device: d}
	d.mu.Lock()
	d.buffers[ptr] = buf
	d.mu.Unlock()
	return buf, nil
}

func (d *Device) LoadModule(path string) (gpu.Module, error) {
	var mod uintptr
	err := d.call(func() error {
		return cuModuleLoad(&mod, path).err("cuModuleLoad")
	})
	if err != nil {
		return nil, err
	}
	return &module{handle: mod, device: d}, nil
}

func (d *Device) Sync() error {
	return d.call(func() error {
		return cuCtxSynchronize().err("cuCtxSynchronize")
	})
}

// Free releases every buffer still allocated and the primary context
func (d *Device) Free() error {
	d.mu.Lock()
	if d.freed {
		d.mu.Unlock()
		return nil
	}
	d.freed = true
	buffers := d.buffers
	d.buffers = make(map[uintptr]*cudaBuffer)
	d.mu.Unlock()

	var firstErr error
	for _, buf := range buffers {
		if err := buf.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := cuDevicePrimaryCtxRelease(d.handle).err("cuDevicePrimaryCtxRelease"); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (d *Device) MemoryUsage() (int64, int64) {
	var free, total uint64
	err := d.call(func() error {
		return cuMemGetInfo(&free, &total).err("cuMemGetInfo")
	})
	if err != nil {
		return 0, 0
	}
	return int64(total) - int64(free), int64(total)
}

func (d *Device) forget(ptr uintptr) {
	d.mu.Lock()
	delete(d.buffers, ptr)
	d.mu.Unlock()
}

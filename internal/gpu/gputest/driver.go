// Package gputest provides an in-memory gpu.Driver for tests. Device
// memory is host memory, modules are the text files the compiler step
// produced, and kernels are emulated by Go functions registered by name.
package gputest

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// Garbage is the byte fresh allocations are filled with, so tests can tell
// written memory from untouched memory
const Garbage = 0xCD

// KernelFunc emulates a compiled kernel
type KernelFunc func(dev *Device, l Launch) error

// Driver is a fake gpu.Driver
type Driver struct {
	mu      sync.Mutex
	devices []gpu.DeviceInfo
	kernels map[string]KernelFunc
	opened  []*Device

	// OpenErr makes Open fail
	OpenErr error
	// FailAllocAt makes the n-th allocation (1-based) on any device fail
	FailAllocAt int
	// LoadErr makes LoadModule fail
	LoadErr error
	// LaunchErr makes launches of the named kernel fail
	LaunchErr map[string]error
}

// NewDriver returns a driver exposing the given devices. With no arguments
// a single device is reported.
func NewDriver(devices ...gpu.DeviceInfo) *Driver {
	if len(devices) == 0 {
		devices = []gpu.DeviceInfo{{Name: "Fake GPU", MultiProcessors: 8, ClockRateKHz: 1500000, TotalMemory: 1 << 30}}
	}
	for i := range devices {
		devices[i].Ordinal = i
	}
	return &Driver{
		devices:   devices,
		kernels:   make(map[string]KernelFunc),
		LaunchErr: make(map[string]error),
	}
}

// Register installs the emulation for a kernel name
func (d *Driver) Register(name string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[name] = fn
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Devices() ([]gpu.DeviceInfo, error) {
	out := make([]gpu.DeviceInfo, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

func (d *Driver) Open(ordinal int) (gpu.Device, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if ordinal < 0 || ordinal >= len(d.devices) {
		return nil, fmt.Errorf("invalid device ordinal %d", ordinal)
	}
	dev := &Device{
		drv:     d,
		info:    d.devices[ordinal],
		buffers: make(map[uintptr]*Buffer),
		next:    0x10000,
	}
	d.mu.Lock()
	d.opened = append(d.opened, dev)
	d.mu.Unlock()
	return dev, nil
}

// Opened returns every device opened so far
func (d *Driver) Opened() []*Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Device(nil), d.opened...)
}

func (d *Driver) kernel(name string) KernelFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.kernels[name]
}

// Device is a fake gpu.Device backed by host memory
type Device struct {
	drv  *Driver
	info gpu.DeviceInfo

	mu       sync.Mutex
	buffers  map[uintptr]*Buffer
	next     uintptr
	allocs   int
	modules  int
	launches []Launch
	freed    bool
}

func (d *Device) Info() gpu.DeviceInfo { return d.info }

func (d *Device) Allocate(size int64) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocs++
	if d.drv.FailAllocAt > 0 && d.allocs == d.drv.FailAllocAt {
		return nil, errors.New("out of memory")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size: %d", size)
	}

	data := make([]byte, size)
	for i := range data {
		data[i] = Garbage
	}
	buf := &Buffer{ptr: d.next, data: data, device: d}
	d.buffers[buf.ptr] = buf
	d.next += uintptr(size+255) &^ 255
	return buf, nil
}

var entryRe = regexp.MustCompile(`__global__\s+void\s+(\w+)\s*\(`)

// LoadModule reads the compiled file and exposes every __global__
// function it declares
func (d *Device) LoadModule(path string) (gpu.Module, error) {
	if d.drv.LoadErr != nil {
		return nil, d.drv.LoadErr
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %w", err)
	}
	m := &Module{dev: d, names: make(map[string]bool), Source: string(src)}
	for _, match := range entryRe.FindAllStringSubmatch(m.Source, -1) {
		m.names[match[1]] = true
	}
	d.mu.Lock()
	d.modules++
	d.mu.Unlock()
	return m, nil
}

func (d *Device) Sync() error { return nil }

func (d *Device) Free() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ptr := range d.buffers {
		delete(d.buffers, ptr)
	}
	d.freed = true
	return nil
}

func (d *Device) MemoryUsage() (int64, int64) {
	return d.LiveBytes(), d.info.TotalMemory
}

// Memory returns the backing slice of the allocation at ptr
func (d *Device) Memory(ptr uintptr) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[ptr]
	if !ok {
		return nil, fmt.Errorf("invalid device pointer %#x", ptr)
	}
	return buf.data, nil
}

// Allocations returns how many allocations were attempted
func (d *Device) Allocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocs
}

// LiveBuffers returns the number of allocations not yet freed
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// LiveBytes returns the total size of allocations not yet freed
func (d *Device) LiveBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, b := range d.buffers {
		n += int64(len(b.data))
	}
	return n
}

// LiveModules returns the number of loaded modules not yet unloaded
func (d *Device) LiveModules() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modules
}

// Launches returns every launch recorded so far
func (d *Device) Launches() []Launch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Launch(nil), d.launches...)
}

// Freed reports whether Free was called
func (d *Device) Freed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed
}

func (d *Device) free(ptr uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.freed {
		return nil
	}
	if _, ok := d.buffers[ptr]; !ok {
		return fmt.Errorf("double free of %#x", ptr)
	}
	delete(d.buffers, ptr)
	return nil
}

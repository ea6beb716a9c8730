package gpu

import (
	"fmt"
)

// Driver enumerates the compute devices of one platform and opens them
type Driver interface {
	// Name returns the platform name (e.g. "cuda")
	Name() string

	// Devices lists every device in enumeration order
	Devices() ([]DeviceInfo, error)

	// Open binds the device with the given ordinal
	Open(ordinal int) (Device, error)
}

// DeviceInfo describes a device as reported by the driver
type DeviceInfo struct {
	Ordinal         int
	Name            string
	MultiProcessors int
	ClockRateKHz    int
	TotalMemory     int64
}

// Score estimates device throughput as execution units x clock rate
func (d DeviceInfo) Score() int64 {
	return int64(d.MultiProcessors) * int64(d.ClockRateKHz)
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("#%d %s (%d SMs @ %d MHz)", d.Ordinal, d.Name, d.MultiProcessors, d.ClockRateKHz/1000)
}

// Device represents one bound compute device
type Device interface {
	// Info returns the properties the device was selected by
	Info() DeviceInfo

	// Allocate allocates a buffer of the given size in bytes
	Allocate(size int64) (Buffer, error)

	// LoadModule loads a compiled module from a file
	LoadModule(path string) (Module, error)

	// Sync waits for all pending operations to complete
	Sync() error

	// Free releases the device and all associated resources
	Free() error

	// MemoryUsage returns current device memory usage in bytes (used, total)
	MemoryUsage() (int64, int64)
}

// Dim3 is a launch extent in three dimensions
type Dim3 struct {
	X, Y, Z int
}

// Module is a loaded device binary
type Module interface {
	// Function resolves an entry point by its unmangled name
	Function(name string) (Function, error)

	// Unload releases the module. Functions resolved from it become invalid.
	Unload() error
}

// Function is a resolved kernel entry point
type Function interface {
	Name() string

	// Launch dispatches the kernel over grid x block units. args is the
	// packed parameter buffer built with Args.
	Launch(grid, block Dim3, args []byte) error
}

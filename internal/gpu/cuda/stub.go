//go:build !linux
// +build !linux

package cuda

import (
	"fmt"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

// Driver stub for platforms without a CUDA driver
type Driver struct{}

// NewDriver returns an error on unsupported platforms
func NewDriver() (*Driver, error) {
	return nil, fmt.Errorf("CUDA support requires Linux")
}

func (d *Driver) Name() string { return "cuda" }

func (d *Driver) Devices() ([]gpu.DeviceInfo, error) {
	return nil, fmt.Errorf("CUDA not available")
}

func (d *Driver) Open(ordinal int) (gpu.Device, error) {
	return nil, fmt.Errorf("CUDA not available")
}

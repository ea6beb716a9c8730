package gpu

import (
	"errors"
	"fmt"
)

// ErrNoDevice is returned when a driver reports no usable device
var ErrNoDevice = errors.New("no compute device available")

// SelectBest picks the device with the highest Score. Ties keep the
// device enumerated first.
func SelectBest(devices []DeviceInfo) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNoDevice
	}
	best := devices[0]
	for _, d := range devices[1:] {
		if d.Score() > best.Score() {
			best = d
		}
	}
	return best, nil
}

// SelectDevice enumerates the driver's devices and opens the most capable one
func SelectDevice(drv Driver) (Device, error) {
	devices, err := drv.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating %s devices: %w", drv.Name(), err)
	}
	best, err := SelectBest(devices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", drv.Name(), err)
	}
	return OpenDevice(drv, best.Ordinal)
}

// OpenDevice opens a specific device by ordinal
func OpenDevice(drv Driver, ordinal int) (Device, error) {
	dev, err := drv.Open(ordinal)
	if err != nil {
		return nil, fmt.Errorf("failed to set %s device %d: %w", drv.Name(), ordinal, err)
	}
	return dev, nil
}

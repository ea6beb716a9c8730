//go:build linux
// +build linux

package cuda

import (
	"testing"

	"github.com/ChristofferDahl/gpuip/internal/gpu"
)

func openBest(t *testing.T) gpu.Device {
	t.Helper()
	drv, err := NewDriver()
	if err != nil {
		t.Skipf("CUDA not available: %v", err)
	}
	dev, err := gpu.SelectDevice(drv)
	if err != nil {
		t.Skipf("No CUDA device: %v", err)
	}
	return dev
}

func TestCUDADevices(t *testing.T) {
	drv, err := NewDriver()
	if err != nil {
		t.Skipf("CUDA not available: %v", err)
	}

	devices, err := drv.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	for _, d := range devices {
		if d.Name == "" {
			t.Errorf("Device %d has an empty name", d.Ordinal)
		}
		if d.Score() <= 0 {
			t.Errorf("Device %d has non-positive score", d.Ordinal)
		}
		t.Logf("CUDA Device: %s", d)
	}
}

func TestCUDAHostTransfer(t *testing.T) {
	dev := openBest(t)
	defer dev.Free()

	size := int64(4096)
	hostData := make([]byte, size)
	for i := range hostData {
		hostData[i] = byte(i % 251)
	}

	buf, err := dev.Allocate(size)
	if err != nil {
		t.Fatalf("Failed to allocate buffer: %v", err)
	}
	defer buf.Free()

	if buf.Ptr() == 0 {
		t.Error("Buffer pointer is null")
	}
	if err := buf.CopyFromHost(hostData); err != nil {
		t.Fatalf("CopyFromHost failed: %v", err)
	}

	result := make([]byte, size)
	if err := buf.CopyToHost(result); err != nil {
		t.Fatalf("CopyToHost failed: %v", err)
	}
	for i := range result {
		if result[i] != hostData[i] {
			t.Fatalf("Data mismatch at index %d: expected %d, got %d", i, hostData[i], result[i])
		}
	}
}

func TestCUDAMissingModule(t *testing.T) {
	dev := openBest(t)
	defer dev.Free()

	if _, err := dev.LoadModule("does-not-exist.ptx"); err == nil {
		t.Error("Expected error loading a missing module")
	}
}

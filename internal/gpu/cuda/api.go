//go:build linux
// +build linux

package cuda

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// result mirrors CUresult
type result int32

const success result = 0

// CUdevice_attribute values used for device scoring
const (
	attrClockRate           int32 = 13
	attrMultiprocessorCount int32 = 16
)

// Markers for the packed-argument form of cuLaunchKernel's extra array
const (
	launchParamEnd           uintptr = 0x00
	launchParamBufferPointer uintptr = 0x01
	launchParamBufferSize    uintptr = 0x02
)

// Driver API entry points, bound when the library is first loaded
var (
	cuInit                    func(flags uint32) result
	cuGetErrorString          func(err result, str **byte) result
	cuDeviceGetCount          func(count *int32) result
	cuDeviceGet               func(dev *int32, ordinal int32) result
	cuDeviceGetName           func(name *byte, length int32, dev int32) result
	cuDeviceGetAttribute      func(value *int32, attrib int32, dev int32) result
	cuDeviceTotalMem          func(bytes *uint64, dev int32) result
	cuDevicePrimaryCtxRetain  func(ctx *uintptr, dev int32) result
	cuDevicePrimaryCtxRelease func(dev int32) result
	cuCtxSetCurrent           func(ctx uintptr) result
	cuCtxSynchronize          func() result
	cuMemGetInfo              func(free, total *uint64) result
	cuMemAlloc                func(dptr *uintptr, size uint64) result
	cuMemFree                 func(dptr uintptr) result
	cuMemcpyHtoD              func(dst uintptr, src unsafe.Pointer, size uint64) result
	cuMemcpyDtoH              func(dst unsafe.Pointer, src uintptr, size uint64) result
	cuModuleLoad              func(module *uintptr, fname string) result
	cuModuleUnload            func(module uintptr) result
	cuModuleGetFunction       func(fn *uintptr, module uintptr, name string) result
	cuLaunchKernel            func(fn uintptr, gx, gy, gz, bx, by, bz, sharedMem uint32, stream uintptr, params, extra unsafe.Pointer) result
)

var symbols = []struct {
	fn   any
	name string
}{
	{&cuInit, "cuInit"},
	{&cuGetErrorString, "cuGetErrorString"},
	{&cuDeviceGetCount, "cuDeviceGetCount"},
	{&cuDeviceGet, "cuDeviceGet"},
	{&cuDeviceGetName, "cuDeviceGetName"},
	{&cuDeviceGetAttribute, "cuDeviceGetAttribute"},
	{&cuDeviceTotalMem, "cuDeviceTotalMem_v2"},
	{&cuDevicePrimaryCtxRetain, "cuDevicePrimaryCtxRetain"},
	{&cuDevicePrimaryCtxRelease, "cuDevicePrimaryCtxRelease_v2"},
	{&cuCtxSetCurrent, "cuCtxSetCurrent"},
	{&cuCtxSynchronize, "cuCtxSynchronize"},
	{&cuMemGetInfo, "cuMemGetInfo_v2"},
	{&cuMemAlloc, "cuMemAlloc_v2"},
	{&cuMemFree, "cuMemFree_v2"},
	{&cuMemcpyHtoD, "cuMemcpyHtoD_v2"},
	{&cuMemcpyDtoH, "cuMemcpyDtoH_v2"},
	{&cuModuleLoad, "cuModuleLoad"},
	{&cuModuleUnload, "cuModuleUnload"},
	{&cuModuleGetFunction, "cuModuleGetFunction"},
	{&cuLaunchKernel, "cuLaunchKernel"},
}

// LibraryNames are tried in order when loading the driver
var LibraryNames = []string{"libcuda.so.1", "libcuda.so"}

var (
	libOnce sync.Once
	libErr  error
)

// load opens the driver library, binds every entry point and initializes
// the driver. Safe to call repeatedly; the first outcome sticks.
func load() error {
	libOnce.Do(func() {
		var lib uintptr
		for _, name := range LibraryNames {
			lib, libErr = purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if libErr == nil {
				break
			}
		}
		if libErr != nil {
			libErr = fmt.Errorf("CUDA driver not available: %w", libErr)
			return
		}

		for _, sym := range symbols {
			addr, err := purego.Dlsym(lib, sym.name)
			if err != nil {
				libErr = fmt.Errorf("CUDA driver missing %s: %w", sym.name, err)
				return
			}
			purego.RegisterFunc(sym.fn, addr)
		}

		libErr = cuInit(0).err("cuInit")
	})
	return libErr
}

func (r result) err(call string) error {
	if r == success {
		return nil
	}
	msg := fmt.Sprintf("error %d", int32(r))
	var str *byte
	if cuGetErrorString != nil && cuGetErrorString(r, &str) == success && str != nil {
		msg = goString(str)
	}
	return fmt.Errorf("%s: %s", call, msg)
}

// goString copies a NUL-terminated C string owned by the driver
func goString(p *byte) string {
	var b []byte
	for ; *p != 0; p = (*byte)(unsafe.Add(unsafe.Pointer(p), 1)) {
		b = append(b, *p)
	}
	return string(b)
}

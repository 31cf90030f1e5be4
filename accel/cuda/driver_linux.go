//go:build linux

package cuda

// CUDA Driver API bindings via purego.
// No cgo required; libcuda.so is loaded at runtime via dlopen.
//
// Only the functions the probe needs are bound:
//   - Device/context management: cuInit, cuDeviceGetCount, cuDeviceGet,
//     cuCtxCreate, cuCtxDestroy, cuCtxSynchronize
//   - Device info: cuDeviceGetName, cuDeviceGetAttribute, cuDeviceTotalMem
//   - Memory: cuMemAlloc, cuMemFree, cuMemAllocHost, cuMemFreeHost,
//     cuMemcpyHtoD, cuMemcpyDtoH
//   - Module/kernel: cuModuleLoadData, cuModuleGetFunction, cuModuleUnload,
//     cuLaunchKernel
//   - Events: cuEventCreate, cuEventRecord, cuEventSynchronize,
//     cuEventElapsedTime, cuEventDestroy

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// result holds CUresult error codes (subset we care about).
type result int32

const (
	cudaSuccess              result = 0
	cudaErrInvalidValue      result = 1
	cudaErrOutOfMemory       result = 2
	cudaErrNotInitialized    result = 3
	cudaErrNoDevice          result = 100
	cudaErrInvalidDevice     result = 101
	cudaErrInvalidContext    result = 201
	cudaErrInvalidHandle     result = 400
	cudaErrNotReady          result = 600
	cudaErrIllegalAddress    result = 700
	cudaErrOutOfResources    result = 701 // launch exceeds block/register limits
	cudaErrLaunchTimeout     result = 702
	cudaErrLaunchFailed      result = 719
	cudaErrUnsupportedPtxVer result = 222
)

var resultNames = map[result]string{
	cudaErrInvalidValue:      "INVALID_VALUE",
	cudaErrOutOfMemory:       "OUT_OF_MEMORY",
	cudaErrNotInitialized:    "NOT_INITIALIZED",
	cudaErrNoDevice:          "NO_DEVICE",
	cudaErrInvalidDevice:     "INVALID_DEVICE",
	cudaErrInvalidContext:    "INVALID_CONTEXT",
	cudaErrInvalidHandle:     "INVALID_HANDLE",
	cudaErrUnsupportedPtxVer: "UNSUPPORTED_PTX_VERSION",
	cudaErrNotReady:          "NOT_READY",
	cudaErrIllegalAddress:    "ILLEGAL_ADDRESS",
	cudaErrOutOfResources:    "LAUNCH_OUT_OF_RESOURCES",
	cudaErrLaunchTimeout:     "LAUNCH_TIMEOUT",
	cudaErrLaunchFailed:      "LAUNCH_FAILED",
}

func (r result) Error() string {
	if r == cudaSuccess {
		return "CUDA_SUCCESS"
	}
	if name, ok := resultNames[r]; ok {
		return fmt.Sprintf("CUDA_ERROR_%s (%d)", name, int32(r))
	}
	return fmt.Sprintf("CUDA_ERROR(%d)", int32(r))
}

// launchRejected reports whether a launch call failed because the device
// refused the configuration, as opposed to failing during execution.
func (r result) launchRejected() bool {
	return r == cudaErrInvalidValue || r == cudaErrOutOfResources
}

// CUdevice_attribute codes we need.
const (
	attrMaxThreadsPerBlock = 1
	attrMaxGridDimX        = 5
	attrMaxGridDimY        = 6
	attrMaxGridDimZ        = 7
	attrWarpSize           = 10
	attrMultiprocessors    = 16
	attrMaxThreadsPerMP    = 39
	attrComputeMajor       = 75
	attrComputeMinor       = 76
)

// Driver function pointers, populated by initDriver.

var (
	driverOnce sync.Once
	driverErr  error

	// Init
	cuInit func(flags uint32) result

	// Device
	cuDeviceGetCount     func(count *int32) result
	cuDeviceGet          func(device *int32, ordinal int32) result
	cuDeviceGetName      func(name *byte, len int32, dev int32) result
	cuDeviceGetAttribute func(pi *int32, attrib int32, dev int32) result
	cuDeviceTotalMem     func(bytes *uint64, dev int32) result

	// Context
	cuCtxCreate      func(pctx *uintptr, flags uint32, dev int32) result
	cuCtxDestroy     func(ctx uintptr) result
	cuCtxSynchronize func() result

	// Memory
	cuMemAlloc     func(dptr *uintptr, bytesize uint64) result
	cuMemFree      func(dptr uintptr) result
	cuMemAllocHost func(pp *unsafe.Pointer, bytesize uint64) result
	cuMemFreeHost  func(p unsafe.Pointer) result
	cuMemcpyHtoD   func(dstDevice uintptr, srcHost unsafe.Pointer, byteCount uint64) result
	cuMemcpyDtoH   func(dstHost unsafe.Pointer, srcDevice uintptr, byteCount uint64) result

	// Module / Kernel
	cuModuleLoadData    func(module *uintptr, image unsafe.Pointer) result
	cuModuleGetFunction func(hfunc *uintptr, hmod uintptr, name *byte) result
	cuModuleUnload      func(hmod uintptr) result
	cuLaunchKernel      func(
		f uintptr,
		gridDimX, gridDimY, gridDimZ uint32,
		blockDimX, blockDimY, blockDimZ uint32,
		sharedMemBytes uint32,
		hStream uintptr,
		kernelParams unsafe.Pointer,
		extra unsafe.Pointer,
	) result

	// Events
	cuEventCreate      func(phEvent *uintptr, flags uint32) result
	cuEventRecord      func(hEvent uintptr, hStream uintptr) result
	cuEventSynchronize func(hEvent uintptr) result
	cuEventElapsedTime func(ms *float32, hStart, hEnd uintptr) result
	cuEventDestroy     func(hEvent uintptr) result
)

// initDriver loads libcuda.so and registers all function pointers.
func initDriver() error {
	driverOnce.Do(func() {
		var lib uintptr
		lib, driverErr = purego.Dlopen("libcuda.so.1", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if driverErr != nil {
			// Try alternative name
			lib, driverErr = purego.Dlopen("libcuda.so", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
			if driverErr != nil {
				driverErr = fmt.Errorf("cannot load libcuda.so: %w (is the NVIDIA driver installed?)", driverErr)
				return
			}
		}

		// Register all functions
		purego.RegisterLibFunc(&cuInit, lib, "cuInit")
		purego.RegisterLibFunc(&cuDeviceGetCount, lib, "cuDeviceGetCount")
		purego.RegisterLibFunc(&cuDeviceGet, lib, "cuDeviceGet")
		purego.RegisterLibFunc(&cuDeviceGetName, lib, "cuDeviceGetName")
		purego.RegisterLibFunc(&cuDeviceGetAttribute, lib, "cuDeviceGetAttribute")
		purego.RegisterLibFunc(&cuDeviceTotalMem, lib, "cuDeviceTotalMem_v2")
		purego.RegisterLibFunc(&cuCtxCreate, lib, "cuCtxCreate_v2")
		purego.RegisterLibFunc(&cuCtxDestroy, lib, "cuCtxDestroy_v2")
		purego.RegisterLibFunc(&cuCtxSynchronize, lib, "cuCtxSynchronize")
		purego.RegisterLibFunc(&cuMemAlloc, lib, "cuMemAlloc_v2")
		purego.RegisterLibFunc(&cuMemFree, lib, "cuMemFree_v2")
		purego.RegisterLibFunc(&cuMemAllocHost, lib, "cuMemAllocHost_v2")
		purego.RegisterLibFunc(&cuMemFreeHost, lib, "cuMemFreeHost")
		purego.RegisterLibFunc(&cuMemcpyHtoD, lib, "cuMemcpyHtoD_v2")
		purego.RegisterLibFunc(&cuMemcpyDtoH, lib, "cuMemcpyDtoH_v2")
		purego.RegisterLibFunc(&cuModuleLoadData, lib, "cuModuleLoadData")
		purego.RegisterLibFunc(&cuModuleGetFunction, lib, "cuModuleGetFunction")
		purego.RegisterLibFunc(&cuModuleUnload, lib, "cuModuleUnload")
		purego.RegisterLibFunc(&cuLaunchKernel, lib, "cuLaunchKernel")
		purego.RegisterLibFunc(&cuEventCreate, lib, "cuEventCreate")
		purego.RegisterLibFunc(&cuEventRecord, lib, "cuEventRecord")
		purego.RegisterLibFunc(&cuEventSynchronize, lib, "cuEventSynchronize")
		purego.RegisterLibFunc(&cuEventElapsedTime, lib, "cuEventElapsedTime")
		purego.RegisterLibFunc(&cuEventDestroy, lib, "cuEventDestroy_v2")
	})
	return driverErr
}

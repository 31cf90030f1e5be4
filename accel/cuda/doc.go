// Package cuda implements the accel.Device interface on top of the CUDA
// driver API. The driver library is loaded at runtime with dlopen, so the
// binary builds and runs on machines without CUDA installed; Open reports
// a device-query error there and callers pick a different backend.
//
// The addition kernel ships as embedded PTX and is JIT-compiled by the
// driver at Open time. No CUDA toolkit, headers, or cgo are required.
package cuda

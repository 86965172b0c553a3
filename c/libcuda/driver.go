// Package libcuda is the boundary between gocuhost and a CUDA driver
// implementation. It mirrors the small subset of the driver API that the
// runtime needs: device/context setup, page-locked host memory, module
// loading and kernel dispatch.
//
// Every entry point returns a Result. Converting a failing Result into a
// structured error is the caller's job.
package libcuda

import "unsafe"

// Opaque driver handles. A zero handle is never valid.
type (
	Device    int32
	Context   uintptr
	Module    uintptr
	Function  uintptr
	Stream    uintptr
	DevicePtr uint64
)

// NullStream selects the default stream of the current context.
const NullStream Stream = 0

// Flags for MemHostAlloc (CU_MEMHOSTALLOC_*).
const (
	MemHostAllocPortable      uint32 = 0x01
	MemHostAllocDeviceMap     uint32 = 0x02
	MemHostAllocWriteCombined uint32 = 0x04
)

// Flags for CtxCreate (CU_CTX_*).
const (
	CtxSchedAuto         uint32 = 0x00
	CtxSchedSpin         uint32 = 0x01
	CtxSchedYield        uint32 = 0x02
	CtxSchedBlockingSync uint32 = 0x04
	CtxMapHost           uint32 = 0x08
)

// Driver is the raw driver surface. Implementations do not validate more
// than the real driver would; in particular LaunchKernel trusts params to
// match the kernel signature.
type Driver interface {
	Init(flags uint32) Result
	DriverGetVersion() (int, Result)
	DeviceGetCount() (int, Result)
	DeviceGet(ordinal int) (Device, Result)
	DeviceGetName(dev Device) (string, Result)

	// CtxCreate creates a context and makes it current on the calling OS
	// thread.
	CtxCreate(flags uint32, dev Device) (Context, Result)
	CtxDestroy(ctx Context) Result
	// CtxSetCurrent binds ctx to the calling OS thread. Module, launch and
	// synchronize calls act on the current context.
	CtxSetCurrent(ctx Context) Result
	CtxSynchronize() Result

	MemHostAlloc(bytes uintptr, flags uint32) (unsafe.Pointer, Result)
	MemFreeHost(p unsafe.Pointer) Result
	MemHostGetDevicePointer(p unsafe.Pointer, flags uint32) (DevicePtr, Result)

	// ModuleLoadData loads a NUL-terminated PTX text or a cubin/fatbin image.
	ModuleLoadData(image unsafe.Pointer) (Module, Result)
	ModuleUnload(mod Module) Result
	// ModuleGetFunction resolves a NUL-terminated entry point name.
	ModuleGetFunction(mod Module, name *byte) (Function, Result)

	// LaunchKernel enqueues fn on stream. Each element of params points at
	// the value of one kernel parameter.
	LaunchKernel(fn Function, grid, block [3]uint32, sharedMemBytes uint32,
		stream Stream, params []unsafe.Pointer) Result
}

//go:build linux || freebsd

package libcuda

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

var libraryNames = []string{"libcuda.so.1", "libcuda.so"}

// nvidiaDriver calls into the NVIDIA user-mode driver loaded with dlopen.
// No cgo is involved; the symbols are bound with purego at Open time.
type nvidiaDriver struct {
	lib uintptr

	cuInit                    func(flags uint32) Result
	cuDriverGetVersion        func(version *int32) Result
	cuDeviceGetCount          func(count *int32) Result
	cuDeviceGet               func(dev *int32, ordinal int32) Result
	cuDeviceGetName           func(name *byte, length int32, dev int32) Result
	cuCtxCreate               func(pctx *uintptr, flags uint32, dev int32) Result
	cuCtxDestroy              func(ctx uintptr) Result
	cuCtxSetCurrent           func(ctx uintptr) Result
	cuCtxSynchronize          func() Result
	cuMemHostAlloc            func(pp *unsafe.Pointer, bytesize uintptr, flags uint32) Result
	cuMemFreeHost             func(p unsafe.Pointer) Result
	cuMemHostGetDevicePointer func(pdptr *uint64, p unsafe.Pointer, flags uint32) Result
	cuModuleLoadData          func(module *uintptr, image unsafe.Pointer) Result
	cuModuleUnload            func(hmod uintptr) Result
	cuModuleGetFunction       func(hfunc *uintptr, hmod uintptr, name *byte) Result
	cuLaunchKernel            func(f uintptr, gx, gy, gz, bx, by, bz, sharedMemBytes uint32, hStream uintptr, kernelParams, extra unsafe.Pointer) Result
}

var (
	openOnce   sync.Once
	openDriver *nvidiaDriver
	openErr    error
)

// Open loads the NVIDIA driver library. The library is loaded once per
// process; later calls return the same Driver.
func Open() (Driver, error) {
	openOnce.Do(func() {
		openDriver, openErr = loadNvidiaDriver()
	})
	if openErr != nil {
		return nil, openErr
	}
	return openDriver, nil
}

func loadNvidiaDriver() (*nvidiaDriver, error) {
	var lib uintptr
	var err error
	for _, name := range libraryNames {
		lib, err = purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, errors.Wrap(ErrDriverUnavailable, err.Error())
	}

	d := &nvidiaDriver{lib: lib}
	purego.RegisterLibFunc(&d.cuInit, lib, "cuInit")
	purego.RegisterLibFunc(&d.cuDriverGetVersion, lib, "cuDriverGetVersion")
	purego.RegisterLibFunc(&d.cuDeviceGetCount, lib, "cuDeviceGetCount")
	purego.RegisterLibFunc(&d.cuDeviceGet, lib, "cuDeviceGet")
	purego.RegisterLibFunc(&d.cuDeviceGetName, lib, "cuDeviceGetName")
	purego.RegisterLibFunc(&d.cuCtxCreate, lib, "cuCtxCreate_v2")
	purego.RegisterLibFunc(&d.cuCtxDestroy, lib, "cuCtxDestroy_v2")
	purego.RegisterLibFunc(&d.cuCtxSetCurrent, lib, "cuCtxSetCurrent")
	purego.RegisterLibFunc(&d.cuCtxSynchronize, lib, "cuCtxSynchronize")
	purego.RegisterLibFunc(&d.cuMemHostAlloc, lib, "cuMemHostAlloc")
	purego.RegisterLibFunc(&d.cuMemFreeHost, lib, "cuMemFreeHost")
	purego.RegisterLibFunc(&d.cuMemHostGetDevicePointer, lib, "cuMemHostGetDevicePointer_v2")
	purego.RegisterLibFunc(&d.cuModuleLoadData, lib, "cuModuleLoadData")
	purego.RegisterLibFunc(&d.cuModuleUnload, lib, "cuModuleUnload")
	purego.RegisterLibFunc(&d.cuModuleGetFunction, lib, "cuModuleGetFunction")
	purego.RegisterLibFunc(&d.cuLaunchKernel, lib, "cuLaunchKernel")

	return d, nil
}

func (d *nvidiaDriver) Init(flags uint32) Result { return d.cuInit(flags) }

func (d *nvidiaDriver) DriverGetVersion() (int, Result) {
	var v int32
	r := d.cuDriverGetVersion(&v)
	return int(v), r
}

func (d *nvidiaDriver) DeviceGetCount() (int, Result) {
	var n int32
	r := d.cuDeviceGetCount(&n)
	return int(n), r
}

func (d *nvidiaDriver) DeviceGet(ordinal int) (Device, Result) {
	var dev int32
	r := d.cuDeviceGet(&dev, int32(ordinal))
	return Device(dev), r
}

func (d *nvidiaDriver) DeviceGetName(dev Device) (string, Result) {
	buf := make([]byte, 256)
	r := d.cuDeviceGetName(&buf[0], int32(len(buf)), int32(dev))
	if !r.IsNone() {
		return "", r
	}
	return GoString(buf), r
}

func (d *nvidiaDriver) CtxCreate(flags uint32, dev Device) (Context, Result) {
	var ctx uintptr
	r := d.cuCtxCreate(&ctx, flags, int32(dev))
	return Context(ctx), r
}

func (d *nvidiaDriver) CtxDestroy(ctx Context) Result { return d.cuCtxDestroy(uintptr(ctx)) }

func (d *nvidiaDriver) CtxSetCurrent(ctx Context) Result { return d.cuCtxSetCurrent(uintptr(ctx)) }

func (d *nvidiaDriver) CtxSynchronize() Result { return d.cuCtxSynchronize() }

func (d *nvidiaDriver) MemHostAlloc(bytes uintptr, flags uint32) (unsafe.Pointer, Result) {
	var p unsafe.Pointer
	r := d.cuMemHostAlloc(&p, bytes, flags)
	return p, r
}

func (d *nvidiaDriver) MemFreeHost(p unsafe.Pointer) Result { return d.cuMemFreeHost(p) }

func (d *nvidiaDriver) MemHostGetDevicePointer(p unsafe.Pointer, flags uint32) (DevicePtr, Result) {
	var dptr uint64
	r := d.cuMemHostGetDevicePointer(&dptr, p, flags)
	return DevicePtr(dptr), r
}

func (d *nvidiaDriver) ModuleLoadData(image unsafe.Pointer) (Module, Result) {
	var mod uintptr
	r := d.cuModuleLoadData(&mod, image)
	runtime.KeepAlive(image)
	return Module(mod), r
}

func (d *nvidiaDriver) ModuleUnload(mod Module) Result { return d.cuModuleUnload(uintptr(mod)) }

func (d *nvidiaDriver) ModuleGetFunction(mod Module, name *byte) (Function, Result) {
	var fn uintptr
	r := d.cuModuleGetFunction(&fn, uintptr(mod), name)
	runtime.KeepAlive(name)
	return Function(fn), r
}

// LaunchKernel pins the parameter array and every parameter value for the
// duration of the call; the driver copies them before cuLaunchKernel
// returns.
func (d *nvidiaDriver) LaunchKernel(fn Function, grid, block [3]uint32,
	sharedMemBytes uint32, stream Stream, params []unsafe.Pointer) Result {
	var pinner runtime.Pinner
	defer pinner.Unpin()

	var kernelParams unsafe.Pointer
	if len(params) > 0 {
		for _, p := range params {
			pinner.Pin(p)
		}
		pinner.Pin(&params[0])
		kernelParams = unsafe.Pointer(&params[0])
	}

	return d.cuLaunchKernel(uintptr(fn), grid[0], grid[1], grid[2],
		block[0], block[1], block[2], sharedMemBytes, uintptr(stream),
		kernelParams, nil)
}

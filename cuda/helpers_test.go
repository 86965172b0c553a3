package cuda_test

import (
	"testing"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/GreatValueCreamSoda/gocuhost/hostsim"
)

// instrumentedDriver counts allocator and unload calls reaching the
// wrapped driver, records context switches and can inject failures.
type instrumentedDriver struct {
	libcuda.Driver

	allocs  int
	frees   int
	freed   map[unsafe.Pointer]int
	unloads int
	current []libcuda.Context

	failAlloc     libcuda.Result
	failDevicePtr libcuda.Result
	failLaunch    libcuda.Result
	failSync      libcuda.Result
}

func newInstrumentedDriver(t *testing.T) *instrumentedDriver {
	t.Helper()
	dev := hostsim.New(hostsim.Options{Workers: 4})
	if r := dev.Init(0); !r.IsNone() {
		t.Fatalf("hostsim init failed: %v", r)
	}
	return &instrumentedDriver{Driver: dev, freed: make(map[unsafe.Pointer]int)}
}

func (d *instrumentedDriver) MemHostAlloc(bytes uintptr, flags uint32) (
	unsafe.Pointer, libcuda.Result) {
	if !d.failAlloc.IsNone() {
		return nil, d.failAlloc
	}
	p, r := d.Driver.MemHostAlloc(bytes, flags)
	if r.IsNone() {
		d.allocs++
	}
	return p, r
}

func (d *instrumentedDriver) MemFreeHost(p unsafe.Pointer) libcuda.Result {
	d.frees++
	d.freed[p]++
	return d.Driver.MemFreeHost(p)
}

func (d *instrumentedDriver) MemHostGetDevicePointer(p unsafe.Pointer,
	flags uint32) (libcuda.DevicePtr, libcuda.Result) {
	if !d.failDevicePtr.IsNone() {
		return 0, d.failDevicePtr
	}
	return d.Driver.MemHostGetDevicePointer(p, flags)
}

func (d *instrumentedDriver) ModuleUnload(mod libcuda.Module) libcuda.Result {
	d.unloads++
	return d.Driver.ModuleUnload(mod)
}

func (d *instrumentedDriver) CtxSetCurrent(ctx libcuda.Context) libcuda.Result {
	d.current = append(d.current, ctx)
	return d.Driver.CtxSetCurrent(ctx)
}

func (d *instrumentedDriver) LaunchKernel(fn libcuda.Function, grid,
	block [3]uint32, shared uint32, stream libcuda.Stream,
	params []unsafe.Pointer) libcuda.Result {
	if !d.failLaunch.IsNone() {
		return d.failLaunch
	}
	return d.Driver.LaunchKernel(fn, grid, block, shared, stream, params)
}

func (d *instrumentedDriver) CtxSynchronize() libcuda.Result {
	if !d.failSync.IsNone() {
		return d.failSync
	}
	return d.Driver.CtxSynchronize()
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s should have panicked", name)
		}
	}()
	fn()
}

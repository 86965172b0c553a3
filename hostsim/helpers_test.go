package hostsim_test

import (
	"fmt"
	"strings"
	"testing"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/GreatValueCreamSoda/gocuhost/hostsim"
)

func newDevice(t *testing.T) *hostsim.Device {
	t.Helper()
	dev := hostsim.New(hostsim.Options{Workers: 3})
	if r := dev.Init(0); !r.IsNone() {
		t.Fatalf("init failed: %v", r)
	}
	return dev
}

func newCurrentContext(t *testing.T, dev *hostsim.Device) libcuda.Context {
	t.Helper()
	ctx, r := dev.CtxCreate(libcuda.CtxMapHost, 0)
	if !r.IsNone() {
		t.Fatalf("context creation failed: %v", r)
	}
	t.Cleanup(func() { dev.CtxDestroy(ctx) })
	return ctx
}

// mapped allocates n elements of mapped memory and returns the host view
// and the device address.
func mapped[T any](t *testing.T, dev *hostsim.Device, n int) ([]T,
	libcuda.DevicePtr) {
	t.Helper()
	var zero T
	p, r := dev.MemHostAlloc(uintptr(n)*unsafe.Sizeof(zero),
		libcuda.MemHostAllocDeviceMap)
	if !r.IsNone() {
		t.Fatalf("allocation failed: %v", r)
	}
	t.Cleanup(func() { dev.MemFreeHost(p) })

	dptr, r := dev.MemHostGetDevicePointer(p, 0)
	if !r.IsNone() {
		t.Fatalf("device pointer failed: %v", r)
	}
	return unsafe.Slice((*T)(p), n), dptr
}

// ptxModule returns a minimal NUL-terminated PTX image declaring entries.
func ptxModule(entries ...string) []byte {
	var b strings.Builder
	b.WriteString(".version 7.0\n.target sm_50\n.address_size 64\n")
	for _, name := range entries {
		fmt.Fprintf(&b, "\n.visible .entry %s(\n\t.param .u64 %s_param_0\n)\n{\n\tret;\n}\n",
			name, name)
	}
	return append([]byte(b.String()), 0)
}

func loadModule(t *testing.T, dev *hostsim.Device, image []byte) libcuda.Module {
	t.Helper()
	mod, r := dev.ModuleLoadData(unsafe.Pointer(&image[0]))
	if !r.IsNone() {
		t.Fatalf("module load failed: %v", r)
	}
	return mod
}

func getFunction(t *testing.T, dev *hostsim.Device, mod libcuda.Module,
	name string) libcuda.Function {
	t.Helper()
	fn, r := dev.ModuleGetFunction(mod, libcuda.CString(name))
	if !r.IsNone() {
		t.Fatalf("function lookup of %s failed: %v", name, r)
	}
	return fn
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

package cuda_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/GreatValueCreamSoda/gocuhost/cuda"
	"github.com/GreatValueCreamSoda/gocuhost/hostsim"
)

func newContext(t *testing.T, drv libcuda.Driver) *cuda.Context {
	t.Helper()
	ctx, err := cuda.NewContext(drv, 0, cuda.SchedBlockingSync)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx
}

func Test_Context_InvalidDevice(t *testing.T) {
	drv := newInstrumentedDriver(t)

	_, err := cuda.NewContext(drv, 3, cuda.SchedAuto)
	if !errors.Is(err, libcuda.ErrorInvalidDevice) {
		t.Fatalf("expected CUDA_ERROR_INVALID_DEVICE, got %v", err)
	}
}

func Test_Context_LoadModule(t *testing.T) {
	ctx := newContext(t, newInstrumentedDriver(t))

	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	if mod.Context() != ctx {
		t.Fatal("module should reference the context it was loaded into")
	}
	if err := mod.Close(); err != nil {
		t.Fatalf("module close failed: %v", err)
	}
}

func Test_Context_LoadMalformedModule(t *testing.T) {
	ctx := newContext(t, newInstrumentedDriver(t))

	_, err := ctx.LoadModule(".entry copy( {")

	var derr *cuda.DriverError
	if !errors.As(err, &derr) || derr.Op != "cuModuleLoadData" {
		t.Fatalf("expected a cuModuleLoadData driver error, got %v", err)
	}
	if !errors.Is(err, libcuda.ErrorInvalidPTX) {
		t.Fatalf("expected CUDA_ERROR_INVALID_PTX, got %v", derr.Code)
	}
}

func Test_Context_LoadModuleBytes(t *testing.T) {
	ctx := newContext(t, newInstrumentedDriver(t))

	image := append([]byte(hostsim.CopyPTX), 0)
	if _, err := ctx.LoadModuleBytes(image); err != nil {
		t.Fatalf("terminated image should load, got %v", err)
	}

	_, err := ctx.LoadModuleBytes([]byte(hostsim.CopyPTX))
	if !errors.Is(err, cuda.ErrProhibited) {
		t.Fatalf("unterminated image should be prohibited, got %v", err)
	}
	if _, err := ctx.LoadModuleBytes(nil); !errors.Is(err, cuda.ErrProhibited) {
		t.Fatalf("empty image should be prohibited, got %v", err)
	}
}

func Test_Context_LoadModuleFile(t *testing.T) {
	ctx := newContext(t, newInstrumentedDriver(t))

	path := filepath.Join(t.TempDir(), "copy.ptx")
	if err := os.WriteFile(path, []byte(hostsim.CopyPTX), 0o644); err != nil {
		t.Fatal(err)
	}

	mod, err := ctx.LoadModuleFile(path)
	if err != nil {
		t.Fatalf("LoadModuleFile failed: %v", err)
	}
	if _, err := mod.Function("copy"); err != nil {
		t.Fatalf("copy should resolve, got %v", err)
	}

	if _, err := ctx.LoadModuleFile(filepath.Join(t.TempDir(), "missing.ptx")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func Test_Module_FunctionNotFound(t *testing.T) {
	ctx := newContext(t, newInstrumentedDriver(t))
	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}

	_, err = mod.Function("does_not_exist")
	if !errors.Is(err, libcuda.ErrorNotFound) {
		t.Fatalf("expected CUDA_ERROR_NOT_FOUND, got %v", err)
	}

	fn, err := mod.Function("copy")
	if err != nil {
		t.Fatal(err)
	}
	if fn.Name() != "copy" || fn.Module() != mod {
		t.Fatal("function should carry its name and module")
	}
}

func Test_Context_CloseInvalidatesChildren(t *testing.T) {
	drv := newInstrumentedDriver(t)
	ctx, err := cuda.NewContext(drv, 0, cuda.SchedAuto)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := mod.Function("copy")
	if err != nil {
		t.Fatal(err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("context close failed: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	if _, err := ctx.LoadModule(hostsim.CopyPTX); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("load into a closed context: expected ErrStaleHandle, got %v", err)
	}
	if _, err := mod.Function("copy"); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("lookup in a stale module: expected ErrStaleHandle, got %v", err)
	}
	if err := fn.Launch(cuda.Dim1(1), cuda.Dim1(1), 0, nil); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("launch of a stale function: expected ErrStaleHandle, got %v", err)
	}
	if err := ctx.Synchronize(); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("synchronize on a closed context: expected ErrStaleHandle, got %v", err)
	}
}

func Test_Module_CloseAfterContextNeverReachesDriver(t *testing.T) {
	drv := newInstrumentedDriver(t)
	ctx, err := cuda.NewContext(drv, 0, cuda.SchedAuto)
	if err != nil {
		t.Fatal(err)
	}
	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}

	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}

	if err := mod.Close(); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("expected ErrStaleHandle, got %v", err)
	}
	if err := mod.Close(); err != nil {
		t.Fatalf("repeated close should be a no-op, got %v", err)
	}
	if drv.unloads != 0 {
		t.Fatalf("module unload reached the driver %d times after context teardown", drv.unloads)
	}
}

func Test_Module_CloseInvalidatesFunctions(t *testing.T) {
	drv := newInstrumentedDriver(t)
	ctx := newContext(t, drv)
	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := mod.Function("copy")
	if err != nil {
		t.Fatal(err)
	}

	if err := mod.Close(); err != nil {
		t.Fatal(err)
	}
	if drv.unloads != 1 {
		t.Fatalf("expected exactly one unload, got %d", drv.unloads)
	}
	if err := fn.Launch(cuda.Dim1(1), cuda.Dim1(1), 0, nil); !errors.Is(err, cuda.ErrStaleHandle) {
		t.Fatalf("expected ErrStaleHandle, got %v", err)
	}
}

func Test_Context_SeveralContextsStayIndependent(t *testing.T) {
	drv := newInstrumentedDriver(t)
	a := newContext(t, drv)
	b, err := cuda.NewContext(drv, 0, cuda.SchedAuto)
	if err != nil {
		t.Fatal(err)
	}

	// b was created last and is current; loading into a must switch back.
	mod, err := a.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	fn, err := mod.Function("copy")
	if err != nil {
		t.Fatalf("module of a live context broken by closing another: %v", err)
	}

	in := newBuffer[uint32](t, drv, 512)
	in.Fill(3)
	out := newBuffer[uint32](t, drv, 512)
	if err := cuda.LaunchSimple(fn, in, out); err != nil {
		t.Fatalf("launch in the surviving context failed: %v", err)
	}
	if out.At(511) != 3 {
		t.Fatalf("expected 3, got %d", out.At(511))
	}
	if err := a.Synchronize(); err != nil {
		t.Fatalf("synchronize failed: %v", err)
	}
}

func Test_Context_InterleavedLaunches(t *testing.T) {
	drv := newInstrumentedDriver(t)
	var fns []*cuda.Function
	for range 2 {
		fns = append(fns, newCopyFunction(t, drv))
	}

	in := newBuffer[uint32](t, drv, 1024)
	in.Fill(5)
	out := newBuffer[uint32](t, drv, 1024)

	for round := range 4 {
		out.Truncate(0)
		if err := cuda.LaunchSimple(fns[round%2], in, out); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
	}
	seen := make(map[libcuda.Context]bool)
	for _, c := range drv.current[len(drv.current)-2:] {
		seen[c] = true
	}
	if len(seen) != 2 {
		t.Fatalf("alternating launches should switch contexts, got %v", drv.current)
	}
}

func Test_Context_SetCurrentFailure(t *testing.T) {
	drv := newInstrumentedDriver(t)
	ctx := newContext(t, drv)
	mod, err := ctx.LoadModule(hostsim.CopyPTX)
	if err != nil {
		t.Fatal(err)
	}

	// Destroy the driver context behind the Context's back.
	if r := drv.Driver.CtxDestroy(libcuda.Context(1)); !r.IsNone() {
		t.Fatal(r)
	}

	_, err = mod.Function("copy")
	var derr *cuda.DriverError
	if !errors.As(err, &derr) || derr.Op != "cuCtxSetCurrent" {
		t.Fatalf("expected a cuCtxSetCurrent driver error, got %v", err)
	}
}

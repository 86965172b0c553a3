package cuda

import (
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// BatchSize is the block width used by LaunchSimple.
const BatchSize = 512

// Dim3 is a grid or block extent.
type Dim3 struct {
	X, Y, Z uint32
}

// Dim1 is a one-dimensional extent of x.
func Dim1(x uint32) Dim3 { return Dim3{X: x, Y: 1, Z: 1} }

func (d Dim3) valid() bool { return d.X != 0 && d.Y != 0 && d.Z != 0 }

func (d Dim3) array() [3]uint32 { return [3]uint32{d.X, d.Y, d.Z} }

// Function is a kernel entry point inside a Module. It must not be used
// after its Module or Context is closed; doing so returns ErrStaleHandle.
type Function struct {
	module    *Module
	moduleGen uint64
	handle    libcuda.Function
	name      string
}

func (f *Function) Name() string { return f.name }

func (f *Function) Module() *Module { return f.module }

func (f *Function) live() bool {
	gen := f.module.generation()
	return gen != 0 && gen == f.moduleGen
}

// Launch dispatches the kernel on the default stream and blocks until the
// device has finished, so every device write is visible to the host when it
// returns.
//
// Each element of args must point at the value of one kernel parameter, in
// declaration order, and the count and types must match the kernel
// signature exactly. Pointer-typed parameters must hold device addresses of
// live, large enough mapped memory. None of this is checked: violating it is
// undefined behaviour, not an error.
//
// A failure either to submit the launch or to wait for it is returned as a
// *DriverError. A zero grid or block dimension is rejected the way the
// driver would reject it, with CUDA_ERROR_INVALID_VALUE, before any driver
// call is made.
func (f *Function) Launch(grid, block Dim3, sharedMemBytes uint32,
	args []unsafe.Pointer) error {
	if !f.live() {
		return ErrStaleHandle
	}
	if !grid.valid() || !block.valid() {
		return &DriverError{Op: "cuLaunchKernel", Code: libcuda.ErrorInvalidValue}
	}

	Logger().Debug("launch", "kernel", f.name, "grid", grid, "block", block,
		"shared", sharedMemBytes)

	leave, err := f.module.ctx.enter(f.module.ctxGen)
	if err != nil {
		return err
	}
	defer leave()

	drv := f.module.ctx.drv
	r := drv.LaunchKernel(f.handle, grid.array(), block.array(), sharedMemBytes,
		libcuda.NullStream, args)
	if err := check("cuLaunchKernel", r); err != nil {
		return err
	}
	return check("cuCtxSynchronize", drv.CtxSynchronize())
}

// LaunchSimple runs a kernel taking (src, dst) device pointers over in,
// using blocks of BatchSize threads and in.Len()/BatchSize blocks. On
// success out's length is set to in.Len().
//
// The grid only covers whole batches: when in.Len() is not a multiple of
// BatchSize the trailing elements of out are left as they were, yet still
// counted in its length. An input shorter than one batch gives an empty
// grid and fails like any invalid launch. It panics if out cannot hold
// in.Len() elements.
func LaunchSimple[T Element](f *Function, in, out *Buffer[T]) error {
	if out.Cap() < in.Len() {
		panic("cuda: LaunchSimple output buffer smaller than input")
	}

	src, err := in.DevicePtr()
	if err != nil {
		return err
	}
	dst, err := out.DevicePtr()
	if err != nil {
		return err
	}

	args := []unsafe.Pointer{unsafe.Pointer(&src), unsafe.Pointer(&dst)}
	grid := Dim1(uint32(in.Len() / BatchSize))
	if err := f.Launch(grid, Dim1(BatchSize), 0, args); err != nil {
		return err
	}

	out.SetLen(in.Len())
	return nil
}

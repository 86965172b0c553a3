// Package cuda is a thin host-side runtime for a CUDA device.
//
// It covers page-locked host memory that the device can address directly
// (Buffer) and the ownership chain Context -> Module -> Function that ends
// in a synchronous kernel launch:
//
//	ctx, err := cuda.NewContext(drv, 0, cuda.SchedAuto)
//	...
//	defer ctx.Close()
//
//	mod, err := ctx.LoadModule(ptx)
//	fn, err := mod.Function("copy")
//
//	in, err := cuda.NewBuffer[uint32](drv, 1024)
//	defer in.Close()
//	in.Fill(7)
//	out, err := cuda.NewBuffer[uint32](drv, 1024)
//	defer out.Close()
//
//	err = cuda.LaunchSimple(fn, in, out)
//
// Every handle is released by Close, exactly once. A Module or Function
// used after the Context it came from was closed reports ErrStaleHandle
// instead of touching the driver.
//
// Driver failures are returned as *DriverError. Misuse that would corrupt
// memory, such as pushing into a full Buffer, panics.
package cuda

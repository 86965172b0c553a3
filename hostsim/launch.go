package hostsim

import (
	"context"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func validDims(grid, block [3]uint32, sharedMemBytes uint32) bool {
	if grid[0] == 0 || grid[1] == 0 || grid[2] == 0 {
		return false
	}
	if grid[0] > maxGridDimX || grid[1] > maxGridDimYZ || grid[2] > maxGridDimYZ {
		return false
	}
	threads := uint64(1)
	for i, b := range block {
		if b == 0 || b > maxBlockDim[i] {
			return false
		}
		threads *= uint64(b)
	}
	return threads <= MaxThreadsPerBlock && sharedMemBytes <= MaxSharedMemory
}

// LaunchKernel runs every block of the grid before returning. Configuration
// errors are returned directly; a failure inside the kernel is recorded on
// the context and reported by the next CtxSynchronize, as with an
// asynchronous launch on real hardware.
func (d *Device) LaunchKernel(handle libcuda.Function, grid, block [3]uint32,
	sharedMemBytes uint32, stream libcuda.Stream,
	params []unsafe.Pointer) libcuda.Result {
	if stream != libcuda.NullStream {
		return libcuda.ErrorInvalidHandle
	}

	d.mu.Lock()
	fn, ok := d.functions[handle]
	ctx := d.current
	if ok && ctx == fn.module.ctx {
		d.stats.Launches++
	}
	d.mu.Unlock()

	switch {
	case !ok:
		return libcuda.ErrorInvalidHandle
	case ctx != fn.module.ctx:
		return libcuda.ErrorInvalidContext
	case !validDims(grid, block, sharedMemBytes):
		return libcuda.ErrorInvalidValue
	}

	d.log.Debug("launch", "kernel", fn.name, "grid", grid, "block", block,
		"shared", sharedMemBytes)

	if r := d.execute(fn.kernel, grid, block, sharedMemBytes, params); !r.IsNone() {
		d.mu.Lock()
		if ctx.pending.IsNone() {
			ctx.pending = r
		}
		d.mu.Unlock()
		d.log.Debug("launch failed", "kernel", fn.name, "result", r)
	}
	return libcuda.Success
}

func (d *Device) execute(k Kernel, grid, block [3]uint32, sharedMemBytes uint32,
	params []unsafe.Pointer) libcuda.Result {
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(d.opts.Workers)

	for z := range grid[2] {
		for y := range grid[1] {
			for x := range grid[0] {
				if gctx.Err() != nil {
					break
				}
				idx := [3]uint32{x, y, z}
				g.Go(func() error {
					if gctx.Err() != nil {
						return nil
					}
					return d.runBlock(gctx, k, grid, block, idx, sharedMemBytes, params)
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		var r libcuda.Result
		if errors.As(err, &r) {
			return r
		}
		return libcuda.ErrorLaunchFailed
	}
	return libcuda.Success
}

// runBlock runs the threads of one block in x-major order on a borrowed
// shared-memory arena. A block still waiting for an arena when ctx is
// cancelled is skipped.
func (d *Device) runBlock(ctx context.Context, k Kernel, grid, block,
	blockIdx [3]uint32, sharedMemBytes uint32,
	params []unsafe.Pointer) (err error) {
	shared, err := d.scratch.GetContext(ctx)
	if err != nil {
		return nil
	}
	if cap(shared) < int(sharedMemBytes) {
		shared = make([]byte, sharedMemBytes)
	}
	shared = shared[:sharedMemBytes]
	clear(shared)
	defer d.scratch.Put(shared)

	defer func() {
		if p := recover(); p != nil {
			if bad, ok := p.(illegalAddress); ok {
				d.log.Debug("kernel fault", "block", blockIdx, "fault", bad.String())
				err = libcuda.ErrorIllegalAddress
				return
			}
			d.log.Debug("kernel panic", "block", blockIdx, "panic", p)
			err = libcuda.ErrorLaunchFailed
		}
	}()

	t := Thread{
		GridDim:  grid,
		BlockDim: block,
		BlockIdx: blockIdx,
		Shared:   shared,
		dev:      d,
	}
	for tz := range block[2] {
		for ty := range block[1] {
			for tx := range block[0] {
				t.ThreadIdx = [3]uint32{tx, ty, tz}
				k(&t, params)
			}
		}
	}
	return nil
}

// Package hostsim is a software CUDA device. It implements libcuda.Driver on
// the host CPU so the runtime can be exercised on machines without an NVIDIA
// driver.
//
// Host allocations are real page-locked memory. They are mapped into a
// separate synthetic device address space, so device pointers differ from
// host pointers the way they may on real hardware. Modules are PTX text; each
// .entry is bound by name to a Go Kernel registered with Register. Launches
// run every block of the grid on a bounded set of goroutines and return once
// all of them have finished.
package hostsim

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/GreatValueCreamSoda/gocuhost/blockingpool"
	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// DriverVersion is reported by DriverGetVersion, encoded like the real
// driver (1000*major + 10*minor).
const DriverVersion = 12040

// Device limits enforced at launch time.
const (
	MaxThreadsPerBlock = 1024
	MaxSharedMemory    = 48 << 10
	maxGridDimX        = 1<<31 - 1
	maxGridDimYZ       = 65535
)

var maxBlockDim = [3]uint32{1024, 1024, 64}

type Options struct {
	// Name is returned by DeviceGetName.
	Name string
	// Workers bounds how many blocks of one launch run concurrently.
	Workers int
	// StrictLock makes MemHostAlloc fail when the pages cannot be locked
	// (for instance when RLIMIT_MEMLOCK is too low). When false the
	// allocation succeeds unlocked and a warning is logged.
	StrictLock bool
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Name:    "hostsim CPU device",
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Stats counts driver calls that changed device state.
type Stats struct {
	Allocs          int
	Frees           int
	LiveAllocs      int
	ModulesLoaded   int
	ModulesUnloaded int
	Launches        int
}

type simContext struct {
	handle  libcuda.Context
	flags   uint32
	pending libcuda.Result
	modules map[libcuda.Module]*simModule
}

// Device is a single simulated GPU. All methods are safe for concurrent use.
//
// The device keeps one current context for all OS threads, not one per
// thread. Goroutines driving different contexts at the same time must
// serialise their CtxSetCurrent-and-call sequences.
type Device struct {
	opts Options
	log  *slog.Logger

	mu          sync.RWMutex
	initialized bool
	nextHandle  uintptr
	contexts    map[libcuda.Context]*simContext
	current     *simContext
	allocs      map[uintptr]*allocation
	nextDevAddr libcuda.DevicePtr
	modules     map[libcuda.Module]*simModule
	functions   map[libcuda.Function]*simFunction
	stats       Stats

	// scratch holds one shared-memory arena per worker.
	scratch blockingpool.BlockingPool[[]byte]
}

var _ libcuda.Driver = (*Device)(nil)

// New creates a device. Zero fields in opts take their DefaultOptions value.
func New(opts Options) *Device {
	def := DefaultOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Device{
		opts:        opts,
		log:         logger.With("device", opts.Name),
		contexts:    make(map[libcuda.Context]*simContext),
		allocs:      make(map[uintptr]*allocation),
		nextDevAddr: deviceAddressBase,
		modules:     make(map[libcuda.Module]*simModule),
		functions:   make(map[libcuda.Function]*simFunction),
		scratch:     blockingpool.NewBlockingPool[[]byte](opts.Workers),
	}
	for range opts.Workers {
		d.scratch.Put(nil)
	}
	return d
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// newHandle must be called with d.mu held.
func (d *Device) newHandle() uintptr {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) Init(flags uint32) libcuda.Result {
	if flags != 0 {
		return libcuda.ErrorInvalidValue
	}
	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()
	return libcuda.Success
}

func (d *Device) DriverGetVersion() (int, libcuda.Result) {
	return DriverVersion, libcuda.Success
}

func (d *Device) DeviceGetCount() (int, libcuda.Result) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.initialized {
		return 0, libcuda.ErrorNotInitialized
	}
	return 1, libcuda.Success
}

func (d *Device) DeviceGet(ordinal int) (libcuda.Device, libcuda.Result) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.initialized {
		return 0, libcuda.ErrorNotInitialized
	}
	if ordinal != 0 {
		return 0, libcuda.ErrorInvalidDevice
	}
	return 0, libcuda.Success
}

func (d *Device) DeviceGetName(dev libcuda.Device) (string, libcuda.Result) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.initialized {
		return "", libcuda.ErrorNotInitialized
	}
	if dev != 0 {
		return "", libcuda.ErrorInvalidDevice
	}
	return d.opts.Name, libcuda.Success
}

// CtxCreate creates a context and makes it current.
func (d *Device) CtxCreate(flags uint32, dev libcuda.Device) (libcuda.Context,
	libcuda.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, libcuda.ErrorNotInitialized
	}
	if dev != 0 {
		return 0, libcuda.ErrorInvalidDevice
	}
	if flags&^0x1f != 0 {
		return 0, libcuda.ErrorInvalidValue
	}

	ctx := &simContext{
		handle:  libcuda.Context(d.newHandle()),
		flags:   flags,
		modules: make(map[libcuda.Module]*simModule),
	}
	d.contexts[ctx.handle] = ctx
	d.current = ctx

	d.log.Debug("context created", "handle", ctx.handle, "flags", flags)
	return ctx.handle, libcuda.Success
}

// CtxDestroy destroys a context and unloads every module loaded into it.
func (d *Device) CtxDestroy(handle libcuda.Context) libcuda.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts[handle]
	if !ok {
		return libcuda.ErrorInvalidContext
	}
	for _, mod := range ctx.modules {
		d.unloadLocked(mod)
	}
	delete(d.contexts, handle)
	if d.current == ctx {
		d.current = nil
	}

	d.log.Debug("context destroyed", "handle", handle)
	return libcuda.Success
}

// CtxSetCurrent makes handle the current context. A zero handle unbinds
// the current context.
func (d *Device) CtxSetCurrent(handle libcuda.Context) libcuda.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if handle == 0 {
		d.current = nil
		return libcuda.Success
	}
	ctx, ok := d.contexts[handle]
	if !ok {
		return libcuda.ErrorInvalidContext
	}
	d.current = ctx
	return libcuda.Success
}

// CtxSynchronize reports, and clears, the first failure of any launch since
// the previous synchronization.
func (d *Device) CtxSynchronize() libcuda.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return libcuda.ErrorInvalidContext
	}
	r := d.current.pending
	d.current.pending = libcuda.Success
	return r
}

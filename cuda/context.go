package cuda

import (
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/pkg/errors"
)

// ContextFlags select how the host thread waits for the device.
type ContextFlags uint32

const (
	SchedAuto         ContextFlags = ContextFlags(libcuda.CtxSchedAuto)
	SchedSpin         ContextFlags = ContextFlags(libcuda.CtxSchedSpin)
	SchedYield        ContextFlags = ContextFlags(libcuda.CtxSchedYield)
	SchedBlockingSync ContextFlags = ContextFlags(libcuda.CtxSchedBlockingSync)
)

// Context owns a device execution context. Modules loaded into it, and the
// Functions resolved from those modules, are valid only while the Context
// is open: each of them records the context generation it was created
// under and fails with ErrStaleHandle once Close has moved it on.
//
// The driver tracks the current context per OS thread. Every call that
// acts on the context locks the goroutine to its thread and makes the
// context current first, so several Contexts can be used from any
// goroutine.
type Context struct {
	drv    libcuda.Driver
	device libcuda.Device

	mu     sync.Mutex
	handle libcuda.Context
	gen    uint64
}

// NewContext initialises the driver and creates a context on the device
// with the given ordinal. Host memory mapping is always enabled, since
// Buffers rely on it.
func NewContext(drv libcuda.Driver, ordinal int, flags ContextFlags) (*Context,
	error) {
	if err := check("cuInit", drv.Init(0)); err != nil {
		return nil, err
	}

	dev, r := drv.DeviceGet(ordinal)
	if err := check("cuDeviceGet", r); err != nil {
		return nil, err
	}

	handle, r := drv.CtxCreate(uint32(flags)|libcuda.CtxMapHost, dev)
	if err := check("cuCtxCreate", r); err != nil {
		return nil, err
	}

	Logger().Debug("context created", "device", ordinal, "flags", uint32(flags))
	return &Context{drv: drv, device: dev, handle: handle, gen: 1}, nil
}

// Driver returns the driver the context was created with.
func (c *Context) Driver() libcuda.Driver { return c.drv }

func (c *Context) Device() libcuda.Device { return c.device }

// generation returns the current generation, or 0 once closed.
func (c *Context) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 {
		return 0
	}
	return c.gen
}

func (c *Context) live(gen uint64) bool {
	return gen != 0 && c.generation() == gen
}

// enter locks the calling goroutine to its OS thread and makes the context
// current there, provided it is still at generation gen. The caller must
// call the returned function once its driver calls are done.
func (c *Context) enter(gen uint64) (func(), error) {
	c.mu.Lock()
	handle := c.handle
	live := handle != 0 && gen != 0 && c.gen == gen
	c.mu.Unlock()
	if !live {
		return nil, ErrStaleHandle
	}

	runtime.LockOSThread()
	if err := check("cuCtxSetCurrent", c.drv.CtxSetCurrent(handle)); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return runtime.UnlockOSThread, nil
}

// LoadModule loads PTX text into the context.
func (c *Context) LoadModule(text string) (*Module, error) {
	image := libcuda.CString(text)
	mod, err := c.load(unsafe.Pointer(image))
	runtime.KeepAlive(image)
	return mod, err
}

// LoadModuleBytes loads an image that already ends in a NUL byte, without
// copying it. An unterminated image is rejected with ErrProhibited before
// reaching the driver.
func (c *Context) LoadModuleBytes(image []byte) (*Module, error) {
	if !libcuda.IsTerminated(image) {
		return nil, errors.WithMessage(ErrProhibited,
			"module image is not NUL-terminated")
	}
	mod, err := c.load(unsafe.Pointer(&image[0]))
	runtime.KeepAlive(image)
	return mod, err
}

// LoadModuleFile reads a PTX file and loads it.
func (c *Context) LoadModuleFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read module")
	}
	if !libcuda.IsTerminated(data) {
		data = append(data, 0)
	}
	mod, err := c.LoadModuleBytes(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "load module %s", path)
	}
	return mod, nil
}

func (c *Context) load(image unsafe.Pointer) (*Module, error) {
	gen := c.generation()
	leave, err := c.enter(gen)
	if err != nil {
		return nil, err
	}
	defer leave()

	handle, r := c.drv.ModuleLoadData(image)
	if err := check("cuModuleLoadData", r); err != nil {
		return nil, err
	}

	Logger().Debug("module loaded", "handle", uintptr(handle))
	return &Module{ctx: c, ctxGen: gen, handle: handle, gen: 1}, nil
}

// Synchronize blocks until all preceding work in the context has finished.
func (c *Context) Synchronize() error {
	leave, err := c.enter(c.generation())
	if err != nil {
		return err
	}
	defer leave()

	return check("cuCtxSynchronize", c.drv.CtxSynchronize())
}

// Close destroys the context. The driver unloads every module with it, and
// all Modules and Functions derived from this Context become stale. Only
// the first call reaches the driver.
func (c *Context) Close() error {
	c.mu.Lock()
	handle := c.handle
	c.handle = 0
	c.gen++
	c.mu.Unlock()

	if handle == 0 {
		return nil
	}

	if err := check("cuCtxDestroy", c.drv.CtxDestroy(handle)); err != nil {
		Logger().Warn("context release failed", "err", err)
		return err
	}
	Logger().Debug("context destroyed")
	return nil
}

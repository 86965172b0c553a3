package cuda

import (
	"runtime"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// Module is a code object loaded into a Context. It does not own the
// Context and must not be used after the Context is closed; doing so
// returns ErrStaleHandle.
type Module struct {
	ctx    *Context
	ctxGen uint64
	handle libcuda.Module
	// gen is 0 once the module is unloaded.
	gen uint64
}

func (m *Module) Context() *Context { return m.ctx }

// generation returns the module generation, or 0 if the module or its
// context is gone.
func (m *Module) generation() uint64 {
	if !m.ctx.live(m.ctxGen) {
		return 0
	}
	return m.gen
}

// Function resolves the entry point called name.
func (m *Module) Function(name string) (*Function, error) {
	gen := m.generation()
	if gen == 0 {
		return nil, ErrStaleHandle
	}
	leave, err := m.ctx.enter(m.ctxGen)
	if err != nil {
		return nil, err
	}
	defer leave()

	cname := libcuda.CString(name)
	handle, r := m.ctx.drv.ModuleGetFunction(m.handle, cname)
	runtime.KeepAlive(cname)
	if err := check("cuModuleGetFunction", r); err != nil {
		return nil, err
	}

	return &Function{module: m, moduleGen: gen, handle: handle, name: name}, nil
}

// Close unloads the module. If the Context was closed first, the driver has
// already unloaded it, so Close only marks the module stale and returns
// ErrStaleHandle without calling the driver.
func (m *Module) Close() error {
	if m.gen == 0 {
		return nil
	}
	m.gen = 0
	leave, err := m.ctx.enter(m.ctxGen)
	if err != nil {
		return err
	}
	defer leave()

	if err := check("cuModuleUnload", m.ctx.drv.ModuleUnload(m.handle)); err != nil {
		Logger().Warn("module release failed", "err", err)
		return err
	}
	return nil
}

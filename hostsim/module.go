package hostsim

import (
	"bytes"
	_ "embed"
	"regexp"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// CopyPTX is a PTX module with a single entry point, copy, that copies one
// 32-bit element per thread from its first pointer argument to its second.
// It loads on real hardware as well as on this device.
//
//go:embed kernels/copy.ptx
var CopyPTX string

const (
	maxImageSize = 64 << 20
	maxNameSize  = 4 << 10
)

var (
	ptxVersion = regexp.MustCompile(`(?m)^\s*\.version\s+\d+\.\d+`)
	ptxEntry   = regexp.MustCompile(`\.entry\s+([A-Za-z_$%][\w$]*)\s*\(`)
	elfMagic   = []byte("\x7fELF")
)

type simModule struct {
	handle    libcuda.Module
	ctx       *simContext
	entries   map[string]Kernel
	functions map[string]libcuda.Function
}

type simFunction struct {
	handle libcuda.Function
	name   string
	kernel Kernel
	module *simModule
}

// readCString reads a NUL-terminated byte string of at most limit bytes
// starting at p.
func readCString(p unsafe.Pointer, limit int) ([]byte, bool) {
	for n := 0; n < limit; n++ {
		if *(*byte)(unsafe.Add(p, n)) == 0 {
			return bytes.Clone(unsafe.Slice((*byte)(p), n)), true
		}
	}
	return nil, false
}

// parsePTX returns the entry points declared by a PTX module, each bound to
// its registered kernel.
func parsePTX(text []byte) (map[string]Kernel, libcuda.Result) {
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, libcuda.ErrorInvalidImage
	}
	if bytes.HasPrefix(text, elfMagic) {
		// cubin/fatbin images carry SASS for real GPUs only.
		return nil, libcuda.ErrorNoBinaryForGPU
	}
	if !ptxVersion.Match(text) {
		return nil, libcuda.ErrorInvalidPTX
	}
	if bytes.Count(text, []byte("{")) != bytes.Count(text, []byte("}")) {
		return nil, libcuda.ErrorInvalidPTX
	}

	entries := make(map[string]Kernel)
	for _, m := range ptxEntry.FindAllSubmatch(text, -1) {
		name := string(m[1])
		k, ok := lookupKernel(name)
		if !ok {
			return nil, libcuda.ErrorNoBinaryForGPU
		}
		entries[name] = k
	}
	return entries, libcuda.Success
}

// ModuleLoadData loads a NUL-terminated PTX image into the current context.
func (d *Device) ModuleLoadData(image unsafe.Pointer) (libcuda.Module,
	libcuda.Result) {
	if image == nil {
		return 0, libcuda.ErrorInvalidValue
	}
	text, ok := readCString(image, maxImageSize)
	if !ok {
		return 0, libcuda.ErrorInvalidImage
	}

	entries, r := parsePTX(text)
	if !r.IsNone() {
		d.log.Debug("module rejected", "result", r)
		return 0, r
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, libcuda.ErrorNotInitialized
	}
	if d.current == nil {
		return 0, libcuda.ErrorInvalidContext
	}

	mod := &simModule{
		handle:    libcuda.Module(d.newHandle()),
		ctx:       d.current,
		entries:   entries,
		functions: make(map[string]libcuda.Function),
	}
	d.modules[mod.handle] = mod
	d.current.modules[mod.handle] = mod
	d.stats.ModulesLoaded++

	d.log.Debug("module loaded", "handle", mod.handle, "entries", len(entries))
	return mod.handle, libcuda.Success
}

func (d *Device) ModuleUnload(handle libcuda.Module) libcuda.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	mod, ok := d.modules[handle]
	if !ok {
		return libcuda.ErrorInvalidHandle
	}
	d.unloadLocked(mod)
	return libcuda.Success
}

// unloadLocked must be called with d.mu held.
func (d *Device) unloadLocked(mod *simModule) {
	for _, fn := range mod.functions {
		delete(d.functions, fn)
	}
	delete(mod.ctx.modules, mod.handle)
	delete(d.modules, mod.handle)
	d.stats.ModulesUnloaded++
}

// ModuleGetFunction resolves an entry point. Repeated lookups of the same
// name return the same handle.
func (d *Device) ModuleGetFunction(handle libcuda.Module, name *byte) (
	libcuda.Function, libcuda.Result) {
	if name == nil {
		return 0, libcuda.ErrorInvalidValue
	}
	raw, ok := readCString(unsafe.Pointer(name), maxNameSize)
	if !ok {
		return 0, libcuda.ErrorInvalidValue
	}
	entry := string(raw)

	d.mu.Lock()
	defer d.mu.Unlock()

	mod, ok := d.modules[handle]
	if !ok {
		return 0, libcuda.ErrorInvalidHandle
	}
	if fn, ok := mod.functions[entry]; ok {
		return fn, libcuda.Success
	}
	k, ok := mod.entries[entry]
	if !ok {
		return 0, libcuda.ErrorNotFound
	}

	fn := &simFunction{
		handle: libcuda.Function(d.newHandle()),
		name:   entry,
		kernel: k,
		module: mod,
	}
	d.functions[fn.handle] = fn
	mod.functions[entry] = fn.handle
	return fn.handle, libcuda.Success
}

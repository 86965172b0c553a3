package hostsim

import (
	"os"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// deviceAddressBase is where the synthetic device address space starts.
// Keeping it far from typical host mappings makes a host pointer passed
// where a device pointer is expected fail loudly.
const deviceAddressBase libcuda.DevicePtr = 0x2_0000_0000

type allocation struct {
	mem    []byte
	host   uintptr
	size   uintptr
	dev    libcuda.DevicePtr
	mapped bool
	locked bool
}

func (a *allocation) contains(addr libcuda.DevicePtr, n uintptr) bool {
	return addr >= a.dev && uint64(addr-a.dev)+uint64(n) <= uint64(a.size)
}

func alignUp(n, to uintptr) uintptr { return (n + to - 1) &^ (to - 1) }

// MemHostAlloc returns page-locked host memory. Unlike the real driver no
// current context is required.
func (d *Device) MemHostAlloc(bytes uintptr, flags uint32) (unsafe.Pointer,
	libcuda.Result) {
	if bytes == 0 || flags&^0x7 != 0 {
		return nil, libcuda.ErrorInvalidValue
	}

	d.mu.RLock()
	initialized := d.initialized
	d.mu.RUnlock()
	if !initialized {
		return nil, libcuda.ErrorNotInitialized
	}

	pageSize := uintptr(os.Getpagesize())
	mem, err := mapPages(int(alignUp(bytes, pageSize)))
	if err != nil {
		d.log.Warn("host allocation failed", "bytes", bytes, "err", err)
		return nil, libcuda.ErrorOutOfMemory
	}

	locked := true
	if err := lockPages(mem); err != nil {
		if d.opts.StrictLock {
			_ = unmapPages(mem)
			d.log.Warn("page lock failed", "bytes", bytes, "err", err)
			return nil, libcuda.ErrorOutOfMemory
		}
		d.log.Warn("page lock failed, allocation is not pinned", "bytes", bytes,
			"err", err)
		locked = false
	}

	a := &allocation{
		mem:    mem,
		host:   uintptr(unsafe.Pointer(&mem[0])),
		size:   bytes,
		mapped: flags&libcuda.MemHostAllocDeviceMap != 0,
		locked: locked,
	}

	d.mu.Lock()
	a.dev = d.nextDevAddr
	d.nextDevAddr += libcuda.DevicePtr(alignUp(uintptr(len(mem)), pageSize))
	d.allocs[a.host] = a
	d.stats.Allocs++
	d.stats.LiveAllocs++
	d.mu.Unlock()

	d.log.Debug("host memory allocated", "bytes", bytes, "device", a.dev,
		"locked", locked)
	return unsafe.Pointer(&mem[0]), libcuda.Success
}

// MemFreeHost releases memory returned by MemHostAlloc. p must be the exact
// pointer that was returned.
func (d *Device) MemFreeHost(p unsafe.Pointer) libcuda.Result {
	d.mu.Lock()
	a, ok := d.allocs[uintptr(p)]
	if ok {
		delete(d.allocs, a.host)
		d.stats.Frees++
		d.stats.LiveAllocs--
	}
	d.mu.Unlock()

	if !ok {
		return libcuda.ErrorInvalidValue
	}

	if a.locked {
		if err := unlockPages(a.mem); err != nil {
			d.log.Warn("page unlock failed", "err", err)
		}
	}
	if err := unmapPages(a.mem); err != nil {
		d.log.Warn("unmap failed", "err", err)
		return libcuda.ErrorUnknown
	}
	return libcuda.Success
}

// MemHostGetDevicePointer translates any host address inside a mapped
// allocation. flags must be zero.
func (d *Device) MemHostGetDevicePointer(p unsafe.Pointer, flags uint32) (
	libcuda.DevicePtr, libcuda.Result) {
	if flags != 0 || p == nil {
		return 0, libcuda.ErrorInvalidValue
	}

	host := uintptr(p)

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, a := range d.allocs {
		if host < a.host || host-a.host >= a.size {
			continue
		}
		if !a.mapped {
			return 0, libcuda.ErrorInvalidValue
		}
		return a.dev + libcuda.DevicePtr(host-a.host), libcuda.Success
	}
	return 0, libcuda.ErrorInvalidValue
}

// translate returns the host view of n bytes at a device address, or false
// if the range is not fully inside one mapped allocation.
func (d *Device) translate(addr libcuda.DevicePtr, n uintptr) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, a := range d.allocs {
		if !a.mapped || !a.contains(addr, n) {
			continue
		}
		off := uintptr(addr - a.dev)
		return a.mem[off : off+n : off+n], true
	}
	return nil, false
}

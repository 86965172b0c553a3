package hostsim

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// Kernel is the Go body of a PTX entry point. It is called once per thread;
// params holds one pointer per kernel parameter exactly as passed to
// LaunchKernel.
//
// A kernel that panics fails the launch with CUDA_ERROR_LAUNCH_FAILED, or
// CUDA_ERROR_ILLEGAL_ADDRESS when the panic came from an out-of-range
// device access.
type Kernel func(t *Thread, params []unsafe.Pointer)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Kernel)
)

func init() {
	Register("copy", copyKernel)
}

// Register makes k available to modules declaring an .entry called name. It
// panics if name is already registered or k is nil.
func Register(name string, k Kernel) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if k == nil {
		panic("hostsim: Register kernel is nil")
	}
	if _, dup := registry[name]; dup {
		panic("hostsim: Register called twice for kernel " + name)
	}
	registry[name] = k
}

func lookupKernel(name string) (Kernel, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	k, ok := registry[name]
	return k, ok
}

// Thread is the execution state of one simulated thread.
type Thread struct {
	GridDim, BlockDim   [3]uint32
	BlockIdx, ThreadIdx [3]uint32
	// Shared is the block's dynamic shared memory. Threads of a block run
	// one after another, so no barrier is needed to read what an earlier
	// thread wrote.
	Shared []byte

	dev *Device
}

// illegalAddress is the panic value raised by device memory accessors.
type illegalAddress struct {
	addr libcuda.DevicePtr
	size uintptr
}

func (e illegalAddress) String() string {
	return fmt.Sprintf("illegal device access of %d bytes at %#x", e.size,
		uint64(e.addr))
}

// GlobalX is blockIdx.x * blockDim.x + threadIdx.x.
func (t *Thread) GlobalX() uint64 {
	return uint64(t.BlockIdx[0])*uint64(t.BlockDim[0]) + uint64(t.ThreadIdx[0])
}

// Global returns the host view of n bytes of device memory at addr.
func (t *Thread) Global(addr libcuda.DevicePtr, n uintptr) []byte {
	mem, ok := t.dev.translate(addr, n)
	if !ok {
		panic(illegalAddress{addr: addr, size: n})
	}
	return mem
}

func (t *Thread) LoadU32(addr libcuda.DevicePtr) uint32 {
	return *(*uint32)(unsafe.Pointer(&t.Global(addr, 4)[0]))
}

func (t *Thread) StoreU32(addr libcuda.DevicePtr, v uint32) {
	*(*uint32)(unsafe.Pointer(&t.Global(addr, 4)[0])) = v
}

func (t *Thread) LoadF32(addr libcuda.DevicePtr) float32 {
	return *(*float32)(unsafe.Pointer(&t.Global(addr, 4)[0]))
}

func (t *Thread) StoreF32(addr libcuda.DevicePtr, v float32) {
	*(*float32)(unsafe.Pointer(&t.Global(addr, 4)[0])) = v
}

// Param reads kernel parameter i as a T.
func Param[T any](params []unsafe.Pointer, i int) T {
	return *(*T)(params[i])
}

func copyKernel(t *Thread, params []unsafe.Pointer) {
	src := Param[libcuda.DevicePtr](params, 0)
	dst := Param[libcuda.DevicePtr](params, 1)
	off := libcuda.DevicePtr(t.GlobalX() * 4)
	t.StoreU32(dst+off, t.LoadU32(src+off))
}

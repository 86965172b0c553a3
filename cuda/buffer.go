package cuda

import (
	"iter"
	"math"
	"slices"
	"unsafe"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

// Element is the set of types a Buffer can hold. Buffer memory belongs to
// the driver and is invisible to the garbage collector, so element types
// must not contain Go pointers.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Buffer is a fixed-capacity block of page-locked host memory that is also
// mapped into the device address space.
//
// The first Len elements are initialised and reachable through Slice; the
// rest of the Cap elements are not. The capacity never changes. A Buffer
// exclusively owns its memory and releases it on Close.
//
// Push and SetLen panic on capacity overflow, while Extend stops silently
// when the buffer is full.
type Buffer[T Element] struct {
	drv libcuda.Driver
	ptr unsafe.Pointer
	len int
	cap int
}

// NewBuffer allocates page-locked, device-mapped memory for exactly count
// elements. The returned buffer is empty.
func NewBuffer[T Element](drv libcuda.Driver, count int) (*Buffer[T], error) {
	var zero T
	size := unsafe.Sizeof(zero)
	if count <= 0 || uint64(count) > math.MaxInt64/uint64(size) {
		return nil, ErrInvalidCount
	}

	ptr, r := drv.MemHostAlloc(uintptr(count)*size,
		libcuda.MemHostAllocDeviceMap)
	if err := check("cuMemHostAlloc", r); err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, ErrNilPtrReturn
	}

	Logger().Debug("pinned buffer allocated", "elements", count,
		"bytes", uintptr(count)*size)
	return &Buffer[T]{drv: drv, ptr: ptr, cap: count}, nil
}

func (b *Buffer[T]) Len() int { return b.len }

func (b *Buffer[T]) Cap() int { return b.cap }

// Remaining is the number of elements that can still be appended.
func (b *Buffer[T]) Remaining() int { return b.cap - b.len }

func (b *Buffer[T]) IsEmpty() bool { return b.len == 0 }

// IsClosed reports whether Close has been called.
func (b *Buffer[T]) IsClosed() bool { return b.ptr == nil }

// full views the whole allocation, including the uninitialised tail.
func (b *Buffer[T]) full() []T {
	if b.ptr == nil {
		panic("cuda: use of closed Buffer")
	}
	return unsafe.Slice((*T)(b.ptr), b.cap)
}

// Push appends v. It panics if the buffer is full.
func (b *Buffer[T]) Push(v T) {
	mem := b.full()
	if b.len >= b.cap {
		panic("cuda: Buffer.Push past capacity")
	}
	mem[b.len] = v
	b.len++
}

// Extend appends values from seq until seq is exhausted or the buffer is
// full, whichever comes first. Values that do not fit are dropped without
// error. It returns the number of values appended.
func (b *Buffer[T]) Extend(seq iter.Seq[T]) int {
	mem := b.full()
	start := b.len
	for v := range seq {
		if b.len >= b.cap {
			break
		}
		mem[b.len] = v
		b.len++
	}
	return b.len - start
}

// ExtendSlice is Extend over a slice.
func (b *Buffer[T]) ExtendSlice(values []T) int {
	return b.Extend(slices.Values(values))
}

// Fill writes v to every one of the Cap slots and sets Len to Cap.
func (b *Buffer[T]) Fill(v T) {
	mem := b.full()
	for i := range mem {
		mem[i] = v
	}
	b.len = b.cap
}

// Truncate shortens the buffer to n elements. It does nothing if n is not
// smaller than Len, and never touches memory.
func (b *Buffer[T]) Truncate(n int) {
	if n >= 0 && n < b.len {
		b.len = n
	}
}

// SetLen sets the length directly. The caller guarantees that the first n
// elements have been initialised, typically by a kernel writing through the
// device address. It panics if n is outside [0, Cap].
func (b *Buffer[T]) SetLen(n int) {
	if n < 0 || n > b.cap {
		panic("cuda: Buffer.SetLen outside capacity")
	}
	b.len = n
}

// Slice returns the initialised elements. The slice aliases pinned memory:
// writes go straight to the buffer and it is invalid after Close. Its
// capacity is clipped to Len, so append on it copies rather than
// overwriting the tail.
func (b *Buffer[T]) Slice() []T {
	if b.ptr == nil {
		return nil
	}
	return b.full()[:b.len:b.len]
}

// Bytes is Slice reinterpreted as raw bytes.
func (b *Buffer[T]) Bytes() []byte {
	if b.ptr == nil || b.len == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(b.ptr), uintptr(b.len)*unsafe.Sizeof(zero))
}

// Clone copies the initialised elements into Go memory.
func (b *Buffer[T]) Clone() []T { return slices.Clone(b.Slice()) }

// At returns element i. It panics unless 0 <= i < Len.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.len {
		panic("cuda: Buffer.At index out of range")
	}
	return b.full()[i]
}

// DevicePtr returns the device address of the first element. The address
// is stable until Close.
func (b *Buffer[T]) DevicePtr() (libcuda.DevicePtr, error) {
	if b.ptr == nil {
		return 0, ErrClosed
	}
	dptr, r := b.drv.MemHostGetDevicePointer(b.ptr, 0)
	if err := check("cuMemHostGetDevicePointer", r); err != nil {
		return 0, err
	}
	return dptr, nil
}

// Close releases the pinned memory. Only the first call reaches the
// driver; later calls return nil. Slices and device addresses obtained
// from the buffer are invalid afterwards.
func (b *Buffer[T]) Close() error {
	if b.ptr == nil {
		return nil
	}

	ptr := b.ptr
	b.ptr, b.len, b.cap = nil, 0, 0

	if err := check("cuMemFreeHost", b.drv.MemFreeHost(ptr)); err != nil {
		Logger().Warn("pinned buffer release failed", "err", err)
		return err
	}
	return nil
}

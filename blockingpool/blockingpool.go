package blockingpool

import "context"

// BlockingPool is a generic, channel-based pool of reusable values with
// blocking semantics for both taking and returning them.
//
// The capacity is fixed at creation time and bounds how many values can sit
// in the pool at once. The pool starts empty; callers seed it with Put.
//
//   - Get() blocks until a value is available.
//   - GetContext() blocks until a value is available or ctx is done.
//   - Put() blocks while the pool is full.
//
// A BlockingPool must not be copied after first use.
type BlockingPool[T any] struct {
	pool chan T
}

// NewBlockingPool creates an empty BlockingPool holding at most capacity
// values.
func NewBlockingPool[T any](capacity int) BlockingPool[T] {
	return BlockingPool[T]{pool: make(chan T, capacity)}
}

// Get takes a value from the pool, blocking until one is available. The
// caller owns the value until it hands it back with Put.
func (p *BlockingPool[T]) Get() T { return <-p.pool }

// GetContext is Get with cancellation. On cancellation it returns the zero
// value and ctx.Err().
func (p *BlockingPool[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case v := <-p.pool:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Put returns a value to the pool, blocking while the pool is full.
func (p *BlockingPool[T]) Put(obj T) { p.pool <- obj }

//go:build !linux && !freebsd

package libcuda

// Open always fails on platforms without a dlopen-able libcuda.
func Open() (Driver, error) { return nil, ErrDriverUnavailable }

package cuda

import (
	"fmt"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/pkg/errors"
)

var (
	// ErrProhibited rejects an operation for a reason other than a driver
	// failure.
	ErrProhibited   = errors.New("operation prohibited")
	ErrStaleHandle  = errors.New("handle was closed or outlived its owner")
	ErrClosed       = errors.New("buffer was closed")
	ErrInvalidCount = errors.New("element count must be positive and fit the address space")
	ErrNilPtrReturn = errors.New("driver reported success but returned a nil pointer")
)

// DriverError is a failing status returned by a driver call. It unwraps to
// the libcuda.Result, so callers can match specific codes:
//
//	if errors.Is(err, libcuda.ErrorNotFound) { ... }
type DriverError struct {
	Op   string
	Code libcuda.Result
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Code)
}

func (e *DriverError) Unwrap() error { return e.Code }

// check converts a driver status into a *DriverError.
func check(op string, r libcuda.Result) error {
	if r.IsNone() {
		return nil
	}
	return &DriverError{Op: op, Code: r}
}

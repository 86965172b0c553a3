package libcuda

import "github.com/pkg/errors"

// ErrDriverUnavailable is returned by Open when no NVIDIA driver library can
// be loaded on this host.
var ErrDriverUnavailable = errors.New("cuda driver library is not available")

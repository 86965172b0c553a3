//go:build !unix

package hostsim

import "github.com/pkg/errors"

var errLockUnsupported = errors.New("page locking is not supported on this platform")

// Without mmap the pages come from the Go heap. The allocation table keeps
// the slice reachable until MemFreeHost.
func mapPages(size int) ([]byte, error) { return make([]byte, size), nil }

func lockPages([]byte) error { return errLockUnsupported }

func unlockPages([]byte) error { return nil }

func unmapPages([]byte) error { return nil }

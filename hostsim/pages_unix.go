//go:build unix

package hostsim

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func mapPages(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return mem, nil
}

func lockPages(mem []byte) error {
	return errors.Wrap(unix.Mlock(mem), "mlock")
}

func unlockPages(mem []byte) error {
	return errors.Wrap(unix.Munlock(mem), "munlock")
}

func unmapPages(mem []byte) error {
	return errors.Wrap(unix.Munmap(mem), "munmap")
}

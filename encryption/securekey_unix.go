//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package encryption

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// allocSecure maps anonymous pages for the key and tries to lock them. A
// failed mlock (RLIMIT_MEMLOCK) still yields usable memory.
func allocSecure(n int) ([]byte, bool, error) {
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, false, errors.Wrap(err, "mmap key pages")
	}
	return b, unix.Mlock(b) == nil, nil
}

func freeSecure(b []byte, locked bool) error {
	wipe(b)
	if locked {
		if err := unix.Munlock(b); err != nil {
			return errors.Wrap(err, "munlock key pages")
		}
	}
	return errors.Wrap(unix.Munmap(b), "munmap key pages")
}

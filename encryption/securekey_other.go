//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package encryption

func allocSecure(n int) ([]byte, bool, error) {
	return make([]byte, n), false, nil
}

func freeSecure(b []byte, _ bool) error {
	wipe(b)
	return nil
}

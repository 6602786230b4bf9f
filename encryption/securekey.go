package encryption

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// SecureKey holds key material outside the garbage collected heap where the
// platform allows it, locked into memory, and zeroed on Destroy.
//
// Ciphers borrow the bytes through Use and never keep a copy.
type SecureKey struct {
	mu        sync.RWMutex
	b         []byte
	locked    bool
	destroyed bool
}

func newSecureKey(n int) (*SecureKey, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "%d bytes", n)
	}
	b, locked, err := allocSecure(n)
	if err != nil {
		return nil, err
	}
	if !locked {
		glog.V(1).Infof("secure key of %d bytes is not locked in memory", n)
	}
	return &SecureKey{b: b, locked: locked}, nil
}

// GenerateSecureKey returns n random bytes from crypto/rand.
func GenerateSecureKey(n int) (*SecureKey, error) {
	k, err := newSecureKey(n)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, k.b); err != nil {
		k.Destroy()
		return nil, errors.Wrap(err, "reading key material")
	}
	return k, nil
}

// SecureKeyFrom moves src into a new SecureKey. src is zeroed.
func SecureKeyFrom(src []byte) (*SecureKey, error) {
	k, err := newSecureKey(len(src))
	if err != nil {
		return nil, err
	}
	copy(k.b, src)
	wipe(src)
	return k, nil
}

// Len returns the key size in bytes, or 0 once destroyed.
func (k *SecureKey) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return 0
	}
	return len(k.b)
}

// Locked reports whether the key pages are locked in memory.
func (k *SecureKey) Locked() bool {
	return k.locked
}

// Use calls fn with the key bytes. fn must not retain the slice.
func (k *SecureKey) Use(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.destroyed {
		return ErrAlreadyDisposed
	}
	return fn(k.b)
}

// Destroy zeroes and releases the key. Later use fails with
// ErrAlreadyDisposed.
func (k *SecureKey) Destroy() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.destroyed {
		return ErrAlreadyDisposed
	}
	k.destroyed = true
	err := freeSecure(k.b, k.locked)
	k.b = nil
	return err
}

func wipe(b []byte) {
	clear(b)
}

package encryption

import (
	"crypto/cipher"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// suite describes an AEAD construction and the lengths it accepts.
type suite struct {
	name         string
	keySizes     []int
	nonceSizes   []int
	tagMin       int
	tagMax       int
	defaultNonce int
	defaultTag   int

	// open builds an AEAD for one operation. The key slice must not be
	// retained by the caller after open returns.
	open func(key []byte, nonceSize, tagSize int) (cipher.AEAD, error)
}

func (s *suite) validNonce(n int) bool {
	for _, size := range s.nonceSizes {
		if n == size {
			return true
		}
	}
	return false
}

func (s *suite) validTag(n int) bool {
	return n >= s.tagMin && n <= s.tagMax
}

// aeadAlgorithm implements Algorithm for any suite. The raw key stays in
// its SecureKey; the AEAD built from it on each call, with its expanded key
// schedule, is ordinary heap memory that is never zeroed and lives until
// the garbage collector reclaims it.
type aeadAlgorithm struct {
	suite *suite
	key   *SecureKey
}

func newAEADAlgorithm(s *suite, key *SecureKey) (*aeadAlgorithm, error) {
	if key == nil {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "%s: nil key", s.name)
	}
	ok := false
	for _, size := range s.keySizes {
		if key.Len() == size {
			ok = true
		}
	}
	if !ok {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "%s: %d byte key", s.name, key.Len())
	}
	return &aeadAlgorithm{suite: s, key: key}, nil
}

func (a *aeadAlgorithm) Name() string { return a.suite.name }

func (a *aeadAlgorithm) Overhead() int {
	return PrefixSize + a.suite.defaultNonce + a.suite.defaultTag
}

func (a *aeadAlgorithm) Close() error { return a.key.Destroy() }

func prefix(nonceLen, tagLen int) []byte {
	p := make([]byte, PrefixSize)
	binary.BigEndian.PutUint32(p[0:4], uint32(nonceLen))
	binary.BigEndian.PutUint32(p[4:8], uint32(tagLen))
	return p
}

func (a *aeadAlgorithm) Encrypt(plaintext []byte) ([]byte, error) {
	nonce, err := randomNonce(a.suite.defaultNonce)
	if err != nil {
		return nil, err
	}
	return a.EncryptWithNonce(plaintext, nonce)
}

func (a *aeadAlgorithm) EncryptWithNonce(plaintext, nonce []byte) ([]byte, error) {
	if !a.suite.validNonce(len(nonce)) {
		return nil, errors.Wrapf(ErrInvalidNonceLength, "%s: %d bytes", a.suite.name, len(nonce))
	}
	tagLen := a.suite.defaultTag

	ad := prefix(len(nonce), tagLen)
	frame := make([]byte, PrefixSize+len(nonce), PrefixSize+len(nonce)+len(plaintext)+tagLen)
	copy(frame, ad)
	copy(frame[PrefixSize:], nonce)

	err := a.key.Use(func(key []byte) error {
		aead, err := a.suite.open(key, len(nonce), tagLen)
		if err != nil {
			return err
		}
		frame = aead.Seal(frame, nonce, plaintext, ad)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (a *aeadAlgorithm) Decrypt(frame []byte) ([]byte, error) {
	if len(frame) < PrefixSize {
		return nil, errors.Wrapf(ErrMalformedCiphertext, "%d bytes, need at least %d", len(frame), PrefixSize)
	}
	nonceLen := binary.BigEndian.Uint32(frame[0:4])
	tagLen := binary.BigEndian.Uint32(frame[4:8])
	if nonceLen > math.MaxInt32 || !a.suite.validNonce(int(nonceLen)) {
		return nil, errors.Wrapf(ErrInvalidNonceLength, "%s: %d bytes", a.suite.name, nonceLen)
	}
	if tagLen > math.MaxInt32 || !a.suite.validTag(int(tagLen)) {
		return nil, errors.Wrapf(ErrInvalidTagLength, "%s: %d bytes", a.suite.name, tagLen)
	}
	if minimum := PrefixSize + int(nonceLen) + int(tagLen); len(frame) < minimum {
		return nil, errors.Wrapf(ErrMalformedCiphertext, "%d bytes, need at least %d", len(frame), minimum)
	}

	nonce := frame[PrefixSize : PrefixSize+int(nonceLen)]
	return a.open(frame[PrefixSize+int(nonceLen):], nonce, int(tagLen), frame[:PrefixSize])
}

func (a *aeadAlgorithm) DecryptWithNonce(ciphertext, nonce []byte) ([]byte, error) {
	if !a.suite.validNonce(len(nonce)) {
		return nil, errors.Wrapf(ErrInvalidNonceLength, "%s: %d bytes", a.suite.name, len(nonce))
	}
	tagLen := a.suite.defaultTag
	if len(ciphertext) < tagLen {
		return nil, errors.Wrapf(ErrMalformedCiphertext, "%d bytes, need at least %d", len(ciphertext), tagLen)
	}
	return a.open(ciphertext, nonce, tagLen, prefix(len(nonce), tagLen))
}

func (a *aeadAlgorithm) open(sealed, nonce []byte, tagLen int, ad []byte) ([]byte, error) {
	var plaintext []byte
	err := a.key.Use(func(key []byte) error {
		aead, err := a.suite.open(key, len(nonce), tagLen)
		if err != nil {
			return err
		}
		out, err := aead.Open(nil, nonce, sealed, ad)
		if err != nil {
			return errors.Wrap(ErrAuthenticationFailed, a.suite.name)
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Package encryption implements the authenticated ciphers that wrap every
// datagram.
//
// Encrypt produces a self-describing frame:
//
//	[4 byte big-endian nonce length][4 byte big-endian tag length][nonce][ciphertext][tag]
//
// The 8 byte length prefix is authenticated as associated data. Decrypt
// validates both lengths against what the cipher supports before touching
// the payload, and fails closed.
package encryption

import (
	"crypto/rand"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidNonceLength   = errors.New("encryption: invalid nonce length")
	ErrInvalidTagLength     = errors.New("encryption: invalid tag length")
	ErrInvalidKeyLength     = errors.New("encryption: invalid key length")
	ErrMalformedCiphertext  = errors.New("encryption: malformed ciphertext")
	ErrAuthenticationFailed = errors.New("encryption: message authentication failed")
	ErrUnknownAlgorithm     = errors.New("encryption: unknown algorithm")
	ErrAlreadyDisposed      = errors.New("encryption: key already destroyed")
)

// PrefixSize is the size of the nonce and tag length prefix.
const PrefixSize = 8

// Algorithm encrypts and decrypts datagrams.
type Algorithm interface {
	// Name identifies the algorithm in configuration.
	Name() string

	// Encrypt seals plaintext under a fresh random nonce.
	Encrypt(plaintext []byte) ([]byte, error)
	// EncryptWithNonce seals plaintext under the caller's nonce. Reusing a
	// nonce with the same key breaks confidentiality.
	EncryptWithNonce(plaintext, nonce []byte) ([]byte, error)

	// Decrypt opens a frame produced by Encrypt.
	Decrypt(frame []byte) ([]byte, error)
	// DecryptWithNonce opens ciphertext||tag sealed under a nonce carried
	// out of band.
	DecryptWithNonce(ciphertext, nonce []byte) ([]byte, error)

	// Overhead is the number of bytes Encrypt adds to a plaintext.
	Overhead() int

	// Close destroys the key. Later operations fail with
	// ErrAlreadyDisposed.
	Close() error
}

// Names of the algorithms New understands.
const (
	AESGCM           = "aes-gcm"
	ChaCha20Poly1305 = "chacha20-poly1305"
	None             = "none"
)

// New returns the algorithm registered under name, keyed by key. The none
// algorithm ignores key, which may be nil.
func New(name string, key *SecureKey) (Algorithm, error) {
	switch strings.ToLower(name) {
	case AESGCM, "":
		return NewAESGCM(key)
	case ChaCha20Poly1305:
		return NewChaCha20Poly1305(key)
	case None, "noop":
		return Noop{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", name)
	}
}

func randomNonce(n int) ([]byte, error) {
	nonce := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "reading nonce")
	}
	return nonce, nil
}

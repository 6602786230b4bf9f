package encryption

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var aesGCM = &suite{
	name:         AESGCM,
	keySizes:     []int{16, 24, 32},
	nonceSizes:   []int{12},
	tagMin:       12,
	tagMax:       16,
	defaultNonce: 12,
	defaultTag:   16,
	open: func(key []byte, nonceSize, tagSize int) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.Wrap(err, "aes")
		}
		return cipher.NewGCMWithTagSize(block, tagSize)
	},
}

var chaCha20Poly1305 = &suite{
	name:         ChaCha20Poly1305,
	keySizes:     []int{chacha20poly1305.KeySize},
	nonceSizes:   []int{chacha20poly1305.NonceSize, chacha20poly1305.NonceSizeX},
	tagMin:       chacha20poly1305.Overhead,
	tagMax:       chacha20poly1305.Overhead,
	defaultNonce: chacha20poly1305.NonceSizeX,
	defaultTag:   chacha20poly1305.Overhead,
	open: func(key []byte, nonceSize, _ int) (cipher.AEAD, error) {
		if nonceSize == chacha20poly1305.NonceSizeX {
			return chacha20poly1305.NewX(key)
		}
		return chacha20poly1305.New(key)
	},
}

// NewAESGCM returns AES-GCM keyed by a 16, 24 or 32 byte key. Frames use a
// 12 byte nonce and a 16 byte tag; tags of 12 to 16 bytes are accepted.
func NewAESGCM(key *SecureKey) (Algorithm, error) {
	return newAEADAlgorithm(aesGCM, key)
}

// NewChaCha20Poly1305 returns XChaCha20-Poly1305 keyed by a 32 byte key.
// Encrypt uses 24 byte nonces; frames with 12 byte ChaCha20-Poly1305 nonces
// are accepted too.
func NewChaCha20Poly1305(key *SecureKey) (Algorithm, error) {
	return newAEADAlgorithm(chaCha20Poly1305, key)
}

// Noop passes data through with no protection.
type Noop struct{}

func (Noop) Name() string  { return None }
func (Noop) Overhead() int { return 0 }
func (Noop) Close() error  { return nil }

func (Noop) Encrypt(plaintext []byte) ([]byte, error) {
	return append([]byte{}, plaintext...), nil
}

func (Noop) EncryptWithNonce(plaintext, _ []byte) ([]byte, error) {
	return append([]byte{}, plaintext...), nil
}

func (Noop) Decrypt(frame []byte) ([]byte, error) {
	return append([]byte{}, frame...), nil
}

func (Noop) DecryptWithNonce(ciphertext, _ []byte) ([]byte, error) {
	return append([]byte{}, ciphertext...), nil
}

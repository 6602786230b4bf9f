// Package secrets loads the symmetric keys shared by a server and its
// clients.
package secrets

import (
	"bytes"
	"encoding/hex"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/intersectFR/Intersect-Engine-FR/encryption"
)

// developmentKey is known to everyone who has read this file. It lets the
// sample server and client talk without provisioning a key.
const developmentKey = "696e746572736563742d646576656c6f706d656e742d6b65792d303030303031"

var ErrInvalidKey = errors.New("secrets: invalid key")

// DevelopmentKey returns a fresh copy of the well known 32 byte key.
func DevelopmentKey() (*encryption.SecureKey, error) {
	glog.Warningln("using the development key; traffic is readable by anyone")
	return ParseKey([]byte(developmentKey))
}

// ParseKey decodes hex key material, ignoring surrounding whitespace. The
// key must suit one of the ciphers: 16, 24 or 32 bytes. src is zeroed.
func ParseKey(src []byte) (*encryption.SecureKey, error) {
	defer wipe(src)
	trimmed := bytes.TrimSpace(src)
	raw := make([]byte, hex.DecodedLen(len(trimmed)))
	n, err := hex.Decode(raw, trimmed)
	if err != nil {
		wipe(raw)
		return nil, errors.Wrapf(ErrInvalidKey, "%v", err)
	}
	raw = raw[:n]
	switch n {
	case 16, 24, 32:
	default:
		wipe(raw)
		return nil, errors.Wrapf(ErrInvalidKey, "%d bytes", n)
	}
	return encryption.SecureKeyFrom(raw)
}

// LoadKey reads a hex encoded key from path.
func LoadKey(path string) (*encryption.SecureKey, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading key")
	}
	k, err := ParseKey(src)
	if err != nil {
		return nil, errors.Wrapf(err, "key file %s", path)
	}
	glog.V(1).Infof("loaded %d byte key from %s", k.Len(), path)
	return k, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

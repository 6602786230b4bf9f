package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/intersectFR/Intersect-Engine-FR/encryption"
	"github.com/intersectFR/Intersect-Engine-FR/ttesting"
)

func TestDevelopmentKeysAgree(t *testing.T) {
	a, err := DevelopmentKey()
	ttesting.MustNotError(t, "first", err)
	b, err := DevelopmentKey()
	ttesting.MustNotError(t, "second", err)
	ttesting.AssertEqualInt(t, "length", a.Len(), 32)

	ca, err := encryption.NewAESGCM(a)
	ttesting.MustNotError(t, "cipher a", err)
	defer ca.Close()
	cb, err := encryption.NewAESGCM(b)
	ttesting.MustNotError(t, "cipher b", err)
	defer cb.Close()

	frame, err := ca.Encrypt([]byte("hello"))
	ttesting.MustNotError(t, "encrypt", err)
	plain, err := cb.Decrypt(frame)
	ttesting.MustNotError(t, "decrypt", err)
	ttesting.AssertEqualBytes(t, "plaintext", plain, []byte("hello"))
}

func TestParseKey(t *testing.T) {
	src := []byte("  000102030405060708090a0b0c0d0e0f\n")
	k, err := ParseKey(src)
	ttesting.MustNotError(t, "parse", err)
	defer k.Destroy()
	ttesting.AssertEqualInt(t, "length", k.Len(), 16)
	for i, c := range src {
		if c != 0 {
			t.Fatalf("source byte %d not wiped", i)
		}
	}

	for _, bad := range []string{"zz", "0001", ""} {
		_, err := ParseKey([]byte(bad))
		ttesting.AssertErrorIs(t, bad, err, ErrInvalidKey)
	}
}

func TestLoadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	ttesting.MustNotError(t, "write", os.WriteFile(path, []byte("00112233445566778899aabbccddeeff0011223344556677"), 0o600))
	k, err := LoadKey(path)
	ttesting.MustNotError(t, "load", err)
	defer k.Destroy()
	ttesting.AssertEqualInt(t, "length", k.Len(), 24)

	_, err = LoadKey(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("loading a missing file succeeded")
	}
}

func TestFindKeyFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INTERSECT_HOME", dir)
	ttesting.AssertEqual(t, "absent", FindKeyFile("intersect-test.key"), "")

	want := filepath.Join(dir, "intersect-test.key")
	ttesting.MustNotError(t, "write", os.WriteFile(want, []byte("00"), 0o600))
	ttesting.AssertEqual(t, "found", FindKeyFile("intersect-test.key"), want)
}

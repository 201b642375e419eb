package encryptfs

import "crypto/subtle"

// CipherKey is an opaque, owned handle to per-volume key material. The
// zero value is not usable; obtain one from a Cipher's key operations.
type CipherKey struct {
	bytes []byte
}

func newCipherKey(b []byte) *CipherKey {
	return &CipherKey{bytes: b}
}

// Bytes exposes the raw key material. Callers must not retain it past
// the CipherKey's lifetime.
func (k *CipherKey) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.bytes
}

// Size returns the key length in bytes.
func (k *CipherKey) Size() int {
	if k == nil {
		return 0
	}
	return len(k.bytes)
}

// Destroy zeroes the key material. Safe to call more than once or on a
// nil receiver.
func (k *CipherKey) Destroy() {
	if k == nil {
		return
	}
	for i := range k.bytes {
		k.bytes[i] = 0
	}
	k.bytes = nil
}

// Equal performs a constant-time comparison of two keys.
func (k *CipherKey) Equal(other *CipherKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	if len(k.bytes) != len(other.bytes) {
		return false
	}
	return subtle.ConstantTimeCompare(k.bytes, other.bytes) == 1
}

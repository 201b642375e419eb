package encryptfs

import (
	"crypto/sha256"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Cipher is the capability interface every registered cipher family
// implements: password/random key derivation, key wrapping, sizing
// metadata, entropy, keyed MACs, and block/stream encryption. A Cipher
// instance holds no key state of its own; the key is threaded through
// each call so one instance is shared across every open file on a
// volume.
type Cipher interface {
	Descriptor() Descriptor

	// NewKeyFromPassword derives a key from password and salt. If
	// iterations is 0, the implementation calibrates by timing
	// throwaway derivations until a single call reaches
	// targetDurationMS, then returns the iteration count used so the
	// caller can persist it.
	NewKeyFromPassword(password, salt []byte, iterations uint32, targetDurationMS int64) (key *CipherKey, actualIterations uint32, err error)

	// NewRandomKey draws KeySize() bytes from the strong entropy source.
	NewRandomKey() (*CipherKey, error)

	// ReadKey unwraps an EncodedKeySize()-byte blob under wrappingKey.
	// When check is set, a keyed checksum embedded in the blob is
	// verified and a mismatch is reported as BadKey.
	ReadKey(blob []byte, wrappingKey *CipherKey, check bool) (*CipherKey, error)

	// WriteKey is the inverse of ReadKey; it always embeds the checksum.
	WriteKey(key *CipherKey, wrappingKey *CipherKey) ([]byte, error)

	// CompareKeys is a constant-time equality check.
	CompareKeys(a, b *CipherKey) bool

	KeySize() int
	EncodedKeySize() int
	CipherBlockSize() int
	HasStreamMode() bool

	// Randomize fills buf with entropy; strong selects the OS CSPRNG.
	Randomize(buf []byte, strong bool) error

	// MAC64 computes a 64-bit keyed MAC over data. When chainedIV is
	// non-nil, its current value is mixed into the MAC input first and
	// then replaced with the new MAC, so callers can chain a sequence
	// of MACs. MAC32 and MAC16 are XOR-fold reductions of MAC64.
	MAC64(data []byte, key *CipherKey, chainedIV *uint64) uint64
	MAC32(data []byte, key *CipherKey, chainedIV *uint64) uint32
	MAC16(data []byte, key *CipherKey, chainedIV *uint64) uint16

	// StreamEncode/StreamDecode perform in-place stream encryption of
	// arbitrary-length data keyed to a 64-bit IV.
	StreamEncode(buf []byte, iv uint64, key *CipherKey)
	StreamDecode(buf []byte, iv uint64, key *CipherKey)

	// BlockEncode/BlockDecode perform in-place block encryption of a
	// buffer whose length is a multiple of CipherBlockSize().
	BlockEncode(buf []byte, iv uint64, key *CipherKey) error
	BlockDecode(buf []byte, iv uint64, key *CipherKey) error
}

// foldMAC32 XOR-folds a 64-bit MAC into 32 bits.
func foldMAC32(v uint64) uint32 { return uint32(v) ^ uint32(v>>32) }

// foldMAC16 XOR-folds a 32-bit MAC into 16 bits.
func foldMAC16(v uint32) uint16 { return uint16(v) ^ uint16(v>>16) }

// calibratePBKDF2 times throwaway PBKDF2-HMAC-SHA256 derivations,
// scaling the iteration count until one derivation takes at least
// targetDurationMS, then returns that derivation's key and count. This
// mirrors the calibration behavior every registered cipher's
// NewKeyFromPassword offers for iterations == 0.
func calibratePBKDF2(clock Clock, password, salt []byte, keyLen int, targetDurationMS int64) ([]byte, uint32) {
	target := time.Duration(targetDurationMS) * time.Millisecond
	iterations := uint32(1000)
	for {
		start := clock.Now()
		key := pbkdf2.Key(password, salt, int(iterations), keyLen, sha256.New)
		elapsed := clock.Now().Sub(start)
		if elapsed >= target || iterations >= 1<<24 {
			return key, iterations
		}
		scale := float64(target) / float64(elapsed+1)
		next := uint32(float64(iterations) * scale)
		if next <= iterations {
			next = iterations * 2
		}
		iterations = next
	}
}

// calibratePBKDF2WithCount runs a single PBKDF2-HMAC-SHA256 derivation
// at a caller-supplied iteration count, for the non-calibrating branch
// of NewKeyFromPassword.
func calibratePBKDF2WithCount(password, salt []byte, keyLen int, iterations uint32) ([]byte, uint32) {
	return pbkdf2.Key(password, salt, int(iterations), keyLen, sha256.New), iterations
}

// Codec is the name-codec capability interface: encode/decode a single
// path component, with optional IV chaining threaded through the
// caller's accumulator.
type Codec interface {
	Descriptor() Descriptor
	MaxEncodedNameLen(plainLen int) int
	MaxDecodedNameLen(encLen int) int

	// Encode reads *iv, mixes in the plaintext's MAC when chaining is
	// enabled, writes the updated IV back to *iv, and returns the
	// encoded ciphertext name.
	Encode(plaintext string, iv *uint64) (string, error)

	// Decode is the inverse; the IV update uses the recovered
	// plaintext's MAC so a chain can be reproduced top-down.
	Decode(ciphertext string, iv *uint64) (string, error)
}

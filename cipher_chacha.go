package encryptfs

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

func init() {
	DefaultRegistry().RegisterCipher(CipherAlgorithm{
		Name:          "ChaCha20",
		Description:   "ChaCha20 stream mode only, HMAC-SHA256-truncated MAC64",
		Descriptor:    Descriptor{Family: "ChaCha20", Current: 1, Age: 0},
		KeyLenBits:    Range{Min: 256, Max: 256},
		HasStreamMode: true,
		newCipher:     newChaChaCipher,
	})
}

// chachaCipher implements Cipher over the raw ChaCha20 stream (not the
// Poly1305 AEAD construction): the spec's cipher contract wants
// separable block/stream/MAC operations, not a bundled AEAD. It offers
// no block mode; BlockEncode/BlockDecode report Unsupported.
type chachaCipher struct {
	descriptor Descriptor
}

func newChaChaCipher(d Descriptor, keyLenBits int) (Cipher, error) {
	if keyLenBits != chacha20.KeySize*8 {
		return nil, newErr(Unsupported, "newChaChaCipher", "", fmt.Errorf("ChaCha20 requires a %d-bit key", chacha20.KeySize*8))
	}
	return &chachaCipher{descriptor: d}, nil
}

func (c *chachaCipher) Descriptor() Descriptor { return c.descriptor }
func (c *chachaCipher) KeySize() int           { return chacha20.KeySize }
func (c *chachaCipher) EncodedKeySize() int    { return chacha20.KeySize + 8 }
func (c *chachaCipher) CipherBlockSize() int   { return 0 }
func (c *chachaCipher) HasStreamMode() bool    { return true }

func (c *chachaCipher) nonce(iv uint64) []byte {
	n := make([]byte, chacha20.NonceSize)
	binary.BigEndian.PutUint64(n[4:], iv)
	return n
}

func (c *chachaCipher) NewKeyFromPassword(password, salt []byte, iterations uint32, targetDurationMS int64) (*CipherKey, uint32, error) {
	if iterations == 0 {
		raw, actual := calibratePBKDF2(defaultClock, password, salt, c.KeySize(), targetDurationMS)
		return newCipherKey(raw), actual, nil
	}
	raw, _ := calibratePBKDF2WithCount(password, salt, c.KeySize(), iterations)
	return newCipherKey(raw), iterations, nil
}

func (c *chachaCipher) NewRandomKey() (*CipherKey, error) {
	buf := make([]byte, c.KeySize())
	if err := defaultEntropy.Strong(buf); err != nil {
		return nil, newErr(Entropy, "chachaCipher.NewRandomKey", "", err)
	}
	return newCipherKey(buf), nil
}

func (c *chachaCipher) ReadKey(blob []byte, wrappingKey *CipherKey, check bool) (*CipherKey, error) {
	if len(blob) != c.EncodedKeySize() {
		return nil, newErr(Invalid, "chachaCipher.ReadKey", "", fmt.Errorf("wrapped key blob is %d bytes, want %d", len(blob), c.EncodedKeySize()))
	}
	plain := make([]byte, len(blob))
	copy(plain, blob)
	c.StreamDecode(plain, 0, wrappingKey)

	keyBytes := plain[:c.KeySize()]
	embedded := plain[c.KeySize():]
	if check {
		want := c.MAC64(keyBytes, wrappingKey, nil)
		got := binary.BigEndian.Uint64(embedded)
		if want != got {
			return nil, newErr(BadKey, "chachaCipher.ReadKey", "", fmt.Errorf("key checksum mismatch"))
		}
	}
	return newCipherKey(append([]byte(nil), keyBytes...)), nil
}

func (c *chachaCipher) WriteKey(key *CipherKey, wrappingKey *CipherKey) ([]byte, error) {
	if key.Size() != c.KeySize() {
		return nil, newErr(Invalid, "chachaCipher.WriteKey", "", fmt.Errorf("key is %d bytes, want %d", key.Size(), c.KeySize()))
	}
	checksum := c.MAC64(key.Bytes(), wrappingKey, nil)
	plain := make([]byte, c.EncodedKeySize())
	copy(plain, key.Bytes())
	binary.BigEndian.PutUint64(plain[c.KeySize():], checksum)

	c.StreamEncode(plain, 0, wrappingKey)
	return plain, nil
}

func (c *chachaCipher) CompareKeys(a, b *CipherKey) bool { return a.Equal(b) }

func (c *chachaCipher) Randomize(buf []byte, strong bool) error {
	if strong {
		return defaultEntropy.Strong(buf)
	}
	return defaultEntropy.Weak(buf)
}

func (c *chachaCipher) macInput(data []byte, chainedIV *uint64) []byte {
	if chainedIV == nil {
		return data
	}
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, *chainedIV)
	return append(prefix, data...)
}

func (c *chachaCipher) MAC64(data []byte, key *CipherKey, chainedIV *uint64) uint64 {
	v := hmacSHA256Truncated(c.macInput(data, chainedIV), key.Bytes())
	if chainedIV != nil {
		*chainedIV = v
	}
	return v
}

func (c *chachaCipher) MAC32(data []byte, key *CipherKey, chainedIV *uint64) uint32 {
	return foldMAC32(c.MAC64(data, key, chainedIV))
}

func (c *chachaCipher) MAC16(data []byte, key *CipherKey, chainedIV *uint64) uint16 {
	return foldMAC16(c.MAC32(data, key, chainedIV))
}

func (c *chachaCipher) StreamEncode(buf []byte, iv uint64, key *CipherKey) {
	s, err := chacha20.NewUnauthenticatedCipher(key.Bytes(), c.nonce(iv))
	if err != nil {
		return
	}
	s.XORKeyStream(buf, buf)
}

func (c *chachaCipher) StreamDecode(buf []byte, iv uint64, key *CipherKey) {
	c.StreamEncode(buf, iv, key) // ChaCha20 keystream XOR is its own inverse
}

func (c *chachaCipher) BlockEncode(buf []byte, iv uint64, key *CipherKey) error {
	return newErr(Unsupported, "chachaCipher.BlockEncode", "", fmt.Errorf("ChaCha20 family offers no block mode"))
}

func (c *chachaCipher) BlockDecode(buf []byte, iv uint64, key *CipherKey) error {
	return newErr(Unsupported, "chachaCipher.BlockDecode", "", fmt.Errorf("ChaCha20 family offers no block mode"))
}

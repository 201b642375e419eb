package encryptfs

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

func init() {
	DefaultRegistry().RegisterCipher(CipherAlgorithm{
		Name:          "AES",
		Description:   "AES in CBC block mode and CTR stream mode, CMAC-based MAC64",
		Descriptor:    Descriptor{Family: "AES", Current: 1, Age: 0},
		KeyLenBits:    Range{Min: 128, Max: 256},
		BlockSize:     Range{Min: 16, Max: 16},
		HasStreamMode: true,
		newCipher:     newAESCipher,
	})
}

// aesCipher implements Cipher using AES-CBC for block mode, AES-CTR for
// stream mode, and AES-CMAC (via the shared cmac helper in siv.go) for
// MAC64. It carries no key state; every method takes the key it needs.
type aesCipher struct {
	descriptor Descriptor
	keyLenByte int
}

func newAESCipher(d Descriptor, keyLenBits int) (Cipher, error) {
	if keyLenBits%8 != 0 {
		return nil, newErr(Invalid, "newAESCipher", "", fmt.Errorf("key length %d bits is not byte-aligned", keyLenBits))
	}
	switch keyLenBits {
	case 128, 192, 256:
	default:
		return nil, newErr(Unsupported, "newAESCipher", "", fmt.Errorf("AES does not support %d-bit keys", keyLenBits))
	}
	return &aesCipher{descriptor: d, keyLenByte: keyLenBits / 8}, nil
}

func (c *aesCipher) Descriptor() Descriptor { return c.descriptor }
func (c *aesCipher) KeySize() int           { return c.keyLenByte }
func (c *aesCipher) EncodedKeySize() int    { return c.keyLenByte + 8 }
func (c *aesCipher) CipherBlockSize() int   { return aes.BlockSize }
func (c *aesCipher) HasStreamMode() bool    { return true }

func (c *aesCipher) block(key *CipherKey) (cipher.Block, error) {
	b, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, newErr(BadKey, "aesCipher", "", err)
	}
	return b, nil
}

func (c *aesCipher) NewKeyFromPassword(password, salt []byte, iterations uint32, targetDurationMS int64) (*CipherKey, uint32, error) {
	if iterations == 0 {
		raw, actual := calibratePBKDF2(defaultClock, password, salt, c.keyLenByte, targetDurationMS)
		return newCipherKey(raw), actual, nil
	}
	raw, _ := calibratePBKDF2WithCount(password, salt, c.keyLenByte, iterations)
	return newCipherKey(raw), iterations, nil
}

func (c *aesCipher) NewRandomKey() (*CipherKey, error) {
	buf := make([]byte, c.keyLenByte)
	if err := defaultEntropy.Strong(buf); err != nil {
		return nil, newErr(Entropy, "aesCipher.NewRandomKey", "", err)
	}
	return newCipherKey(buf), nil
}

func (c *aesCipher) ivBlock(iv uint64) []byte {
	b := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(b[:8], iv)
	return b
}

func (c *aesCipher) ReadKey(blob []byte, wrappingKey *CipherKey, check bool) (*CipherKey, error) {
	if len(blob) != c.EncodedKeySize() {
		return nil, newErr(Invalid, "aesCipher.ReadKey", "", fmt.Errorf("wrapped key blob is %d bytes, want %d", len(blob), c.EncodedKeySize()))
	}
	block, err := c.block(wrappingKey)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(blob))
	ctrMode(block, c.ivBlock(0), blob, plain)

	keyBytes := plain[:c.keyLenByte]
	embedded := plain[c.keyLenByte:]
	if check {
		want := c.MAC64(keyBytes, wrappingKey, nil)
		got := binary.BigEndian.Uint64(embedded)
		if want != got {
			return nil, newErr(BadKey, "aesCipher.ReadKey", "", fmt.Errorf("key checksum mismatch"))
		}
	}
	return newCipherKey(append([]byte(nil), keyBytes...)), nil
}

func (c *aesCipher) WriteKey(key *CipherKey, wrappingKey *CipherKey) ([]byte, error) {
	if key.Size() != c.keyLenByte {
		return nil, newErr(Invalid, "aesCipher.WriteKey", "", fmt.Errorf("key is %d bytes, want %d", key.Size(), c.keyLenByte))
	}
	block, err := c.block(wrappingKey)
	if err != nil {
		return nil, err
	}
	checksum := c.MAC64(key.Bytes(), wrappingKey, nil)
	plain := make([]byte, c.EncodedKeySize())
	copy(plain, key.Bytes())
	binary.BigEndian.PutUint64(plain[c.keyLenByte:], checksum)

	blob := make([]byte, len(plain))
	ctrMode(block, c.ivBlock(0), plain, blob)
	return blob, nil
}

func (c *aesCipher) CompareKeys(a, b *CipherKey) bool { return a.Equal(b) }

func (c *aesCipher) Randomize(buf []byte, strong bool) error {
	if strong {
		return defaultEntropy.Strong(buf)
	}
	return defaultEntropy.Weak(buf)
}

func (c *aesCipher) macInput(data []byte, chainedIV *uint64) []byte {
	if chainedIV == nil {
		return data
	}
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, *chainedIV)
	return append(prefix, data...)
}

func (c *aesCipher) MAC64(data []byte, key *CipherKey, chainedIV *uint64) uint64 {
	block, err := c.block(key)
	if err != nil {
		return 0
	}
	mac := cmac(block, c.macInput(data, chainedIV))
	v := binary.BigEndian.Uint64(mac[:8])
	if chainedIV != nil {
		*chainedIV = v
	}
	return v
}

func (c *aesCipher) MAC32(data []byte, key *CipherKey, chainedIV *uint64) uint32 {
	return foldMAC32(c.MAC64(data, key, chainedIV))
}

func (c *aesCipher) MAC16(data []byte, key *CipherKey, chainedIV *uint64) uint16 {
	return foldMAC16(c.MAC32(data, key, chainedIV))
}

func (c *aesCipher) StreamEncode(buf []byte, iv uint64, key *CipherKey) {
	block, err := c.block(key)
	if err != nil {
		return
	}
	ctrMode(block, c.ivBlock(iv), buf, buf)
}

func (c *aesCipher) StreamDecode(buf []byte, iv uint64, key *CipherKey) {
	c.StreamEncode(buf, iv, key) // AES-CTR is its own inverse
}

func (c *aesCipher) BlockEncode(buf []byte, iv uint64, key *CipherKey) error {
	if len(buf)%aes.BlockSize != 0 {
		return newErr(Invalid, "aesCipher.BlockEncode", "", fmt.Errorf("buffer length %d is not a multiple of %d", len(buf), aes.BlockSize))
	}
	block, err := c.block(key)
	if err != nil {
		return err
	}
	cipher.NewCBCEncrypter(block, c.ivBlock(iv)).CryptBlocks(buf, buf)
	return nil
}

func (c *aesCipher) BlockDecode(buf []byte, iv uint64, key *CipherKey) error {
	if len(buf)%aes.BlockSize != 0 {
		return newErr(Invalid, "aesCipher.BlockDecode", "", fmt.Errorf("buffer length %d is not a multiple of %d", len(buf), aes.BlockSize))
	}
	block, err := c.block(key)
	if err != nil {
		return err
	}
	cipher.NewCBCDecrypter(block, c.ivBlock(iv)).CryptBlocks(buf, buf)
	return nil
}

// hmacSHA256Truncated is shared by any family (ChaCha20) that lacks a
// block primitive to build a CMAC from.
func hmacSHA256Truncated(data, key []byte) uint64 {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	sum := m.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

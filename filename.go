package encryptfs

import (
	"fmt"
	"strings"
)

// fixedNameIV is the IV used for block/stream name encryption when
// directory-IV chaining is disabled.
const fixedNameIV uint64 = 0

func init() {
	r := DefaultRegistry()
	r.RegisterName(NameAlgorithm{
		Name:        "Null",
		Description: "identity name codec, used when filename encryption is disabled",
		Descriptor:  Descriptor{Family: "Null", Current: 1, Age: 0},
		newCodec:    newNullCodec,
	})
	r.RegisterName(NameAlgorithm{
		Name:        "Block",
		Description: "pad-to-block-size, block-encrypt, base64-encode name codec",
		Descriptor:  Descriptor{Family: "Block", Current: 1, Age: 0},
		newCodec:    newBlockCodec,
	})
	r.RegisterName(NameAlgorithm{
		Name:        "Stream",
		Description: "stream-encrypt (no padding), base64-encode name codec",
		Descriptor:  Descriptor{Family: "Stream", Current: 1, Age: 0},
		newCodec:    newStreamCodec,
	})
}

// NullCodec is the identity name codec, matching EncFS's NullNameIO:
// encode and decode are pass-through, and the length bounds are the
// identity function.
type NullCodec struct{ descriptor Descriptor }

func newNullCodec(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) {
	return &NullCodec{descriptor: Descriptor{Family: "Null", Current: 1, Age: 0}}, nil
}

func (c *NullCodec) Descriptor() Descriptor                              { return c.descriptor }
func (c *NullCodec) MaxEncodedNameLen(plainLen int) int                  { return plainLen }
func (c *NullCodec) MaxDecodedNameLen(encLen int) int                    { return encLen }
func (c *NullCodec) Encode(plaintext string, iv *uint64) (string, error) { return plaintext, nil }
func (c *NullCodec) Decode(ciphertext string, iv *uint64) (string, error) {
	return ciphertext, nil
}

// BlockCodec pads a plaintext component to the cipher's block size,
// block-encrypts it under an IV that may be chained from the parent
// directory, and base-64 encodes the ciphertext into the
// filesystem-safe alphabet.
type BlockCodec struct {
	descriptor Descriptor
	cipher     Cipher
	key        *CipherKey
	chained    bool
}

func newBlockCodec(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) {
	if cipher.CipherBlockSize() <= 0 {
		return nil, newErr(Unsupported, "newBlockCodec", "", fmt.Errorf("cipher %s offers no block mode", cipher.Descriptor()))
	}
	return &BlockCodec{
		descriptor: Descriptor{Family: "Block", Current: 1, Age: 0},
		cipher:     cipher,
		key:        key,
		chained:    chainedIV,
	}, nil
}

func (c *BlockCodec) Descriptor() Descriptor { return c.descriptor }

func (c *BlockCodec) MaxEncodedNameLen(plainLen int) int {
	bs := c.cipher.CipherBlockSize()
	padded := ((plainLen / bs) + 1) * bs
	return changeBase2Len(padded, 8, 6, true)
}

func (c *BlockCodec) MaxDecodedNameLen(encLen int) int {
	return (encLen * 6) / 8
}

func (c *BlockCodec) ivFor(iv *uint64) uint64 {
	if c.chained && iv != nil {
		return *iv
	}
	return fixedNameIV
}

func (c *BlockCodec) Encode(plaintext string, iv *uint64) (string, error) {
	bs := c.cipher.CipherBlockSize()
	buf := pad16([]byte(plaintext), bs)
	blockIV := c.ivFor(iv)

	if err := c.cipher.BlockEncode(buf, blockIV, c.key); err != nil {
		return "", err
	}
	if c.chained && iv != nil {
		c.cipher.MAC64([]byte(plaintext), c.key, iv)
	}
	return encodeNameB64(buf), nil
}

func (c *BlockCodec) Decode(ciphertext string, iv *uint64) (string, error) {
	buf, err := decodeNameB64(ciphertext)
	if err != nil {
		return "", err
	}
	bs := c.cipher.CipherBlockSize()
	if len(buf) == 0 || len(buf)%bs != 0 {
		return "", newErr(Invalid, "BlockCodec.Decode", "", fmt.Errorf("ciphertext name is not block-aligned"))
	}
	blockIV := c.ivFor(iv)

	if err := c.cipher.BlockDecode(buf, blockIV, c.key); err != nil {
		return "", err
	}
	plain, err := unpad16(buf)
	if err != nil {
		return "", err
	}
	if c.chained && iv != nil {
		c.cipher.MAC64(plain, c.key, iv)
	}
	return string(plain), nil
}

// StreamCodec stream-encrypts a plaintext component directly, with no
// padding, then base-64 encodes the result.
type StreamCodec struct {
	descriptor Descriptor
	cipher     Cipher
	key        *CipherKey
	chained    bool
}

func newStreamCodec(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) {
	if !cipher.HasStreamMode() {
		return nil, newErr(Unsupported, "newStreamCodec", "", fmt.Errorf("cipher %s offers no stream mode", cipher.Descriptor()))
	}
	return &StreamCodec{
		descriptor: Descriptor{Family: "Stream", Current: 1, Age: 0},
		cipher:     cipher,
		key:        key,
		chained:    chainedIV,
	}, nil
}

func (c *StreamCodec) Descriptor() Descriptor             { return c.descriptor }
func (c *StreamCodec) MaxEncodedNameLen(plainLen int) int { return changeBase2Len(plainLen, 8, 6, true) }
func (c *StreamCodec) MaxDecodedNameLen(encLen int) int   { return (encLen * 6) / 8 }

func (c *StreamCodec) ivFor(iv *uint64) uint64 {
	if c.chained && iv != nil {
		return *iv
	}
	return fixedNameIV
}

func (c *StreamCodec) Encode(plaintext string, iv *uint64) (string, error) {
	buf := []byte(plaintext)
	streamIV := c.ivFor(iv)
	c.cipher.StreamEncode(buf, streamIV, c.key)
	if c.chained && iv != nil {
		c.cipher.MAC64([]byte(plaintext), c.key, iv)
	}
	return encodeNameB64(buf), nil
}

func (c *StreamCodec) Decode(ciphertext string, iv *uint64) (string, error) {
	buf, err := decodeNameB64(ciphertext)
	if err != nil {
		return "", err
	}
	streamIV := c.ivFor(iv)
	c.cipher.StreamDecode(buf, streamIV, c.key)
	if c.chained && iv != nil {
		c.cipher.MAC64(buf, c.key, iv)
	}
	return string(buf), nil
}

// pad16 pads data to a multiple of blockSize using PKCS7-style padding
// (the pad byte value is the pad length, so unpad16 can recover it
// unambiguously, including a full extra block when len(data) is
// already aligned).
func pad16(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func unpad16(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, newErr(Invalid, "unpad16", "", fmt.Errorf("empty padded buffer"))
	}
	padLen := int(data[len(data)-1])
	if padLen <= 0 || padLen > len(data) {
		return nil, newErr(Invalid, "unpad16", "", fmt.Errorf("invalid padding"))
	}
	return data[:len(data)-padLen], nil
}

// EncodePath encodes a full plaintext path component by component from
// root to leaf. When codec's chaining is enabled the IV accumulator
// starts at 0 and threads across components, so sibling names get
// deterministic but distinct ciphertexts; empty components and "."/".."
// pass through unchanged.
func EncodePath(codec Codec, plaintext string) (string, error) {
	if plaintext == "" || plaintext == "." {
		return plaintext, nil
	}
	parts := strings.Split(plaintext, "/")
	iv := uint64(0)
	for i, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		enc, err := codec.Encode(part, &iv)
		if err != nil {
			return "", err
		}
		parts[i] = enc
	}
	return strings.Join(parts, "/"), nil
}

// DecodePath is the inverse of EncodePath, reproducing the same IV
// chain top-down as it walks the path.
func DecodePath(codec Codec, ciphertext string) (string, error) {
	if ciphertext == "" || ciphertext == "." {
		return ciphertext, nil
	}
	parts := strings.Split(ciphertext, "/")
	iv := uint64(0)
	for i, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		dec, err := codec.Decode(part, &iv)
		if err != nil {
			return "", err
		}
		parts[i] = dec
	}
	return strings.Join(parts, "/"), nil
}

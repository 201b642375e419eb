package encryptfs

import "fmt"

// Range describes an inclusive [Min, Max] bound, used for key-length and
// block-size limits advertised by a CipherAlgorithm record.
type Range struct {
	Min int
	Max int
}

// Contains reports whether v falls within the range (inclusive). A
// zero-value Range (Min == Max == 0) is treated as unconstrained.
func (r Range) Contains(v int) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// Descriptor names a cipher or name-codec family and a semantic version,
// per spec.md §3. Compatibility: a descriptor (n, c, a) is satisfied by
// an implementation advertising (n, c', a') iff n == n', c' >= c, and
// c' - a' <= c.
type Descriptor struct {
	Family  string
	Current uint16
	Age     uint16
}

// String renders the descriptor as "family:current/age".
func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%d/%d", d.Family, d.Current, d.Age)
}

// Satisfies reports whether the implementation descriptor d is a
// compatible provider for the descriptor a caller asked for (want).
func (d Descriptor) Satisfies(want Descriptor) bool {
	if d.Family != want.Family {
		return false
	}
	if d.Current < want.Current {
		return false
	}
	if int(d.Current)-int(d.Age) > int(want.Current) {
		return false
	}
	return true
}

// CipherAlgorithm is the registry's catalog record for one cipher family.
type CipherAlgorithm struct {
	Name          string
	Description   string
	Descriptor    Descriptor
	KeyLenBits    Range
	BlockSize     Range
	HasStreamMode bool
	Hidden        bool

	newCipher func(d Descriptor, keyLenBits int) (Cipher, error)
}

// NameAlgorithm is the registry's catalog record for one name-codec family.
type NameAlgorithm struct {
	Name        string
	Description string
	Descriptor  Descriptor
	Hidden      bool

	newCodec func(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error)
}

// VolumeConfig is the persisted, immutable-after-creation metadata for an
// encrypted volume (spec.md §3, §6). Byte blobs are base64 (standard
// alphabet) encoded when serialized to JSON.
type VolumeConfig struct {
	VolumeID string `json:"volume_id"`

	CipherDescriptor Descriptor `json:"cipher_descriptor"`
	NameDescriptor   Descriptor `json:"name_descriptor"`

	KeySizeBits    int `json:"key_size_bits"`
	BlockSizeBytes int `json:"block_size_bytes"`

	BlockMACBytes     int `json:"block_mac_bytes"`
	BlockMACRandBytes int `json:"block_mac_rand_bytes"`

	UniqueIV            bool `json:"unique_iv"`
	ChainedNameIV       bool `json:"chained_name_iv"`
	ExternalIVChaining  bool `json:"external_iv_chaining"`

	EncryptedKey []byte `json:"encrypted_key"`
	Salt         []byte `json:"salt"`
	KDFIterations uint32 `json:"kdf_iterations"`
}

// Validate checks internal consistency of a VolumeConfig. It does not
// check compatibility against the registry; that happens at open time.
func (c *VolumeConfig) Validate() error {
	if c == nil {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("nil config")}
	}
	if c.KeySizeBits <= 0 {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("key size must be positive")}
	}
	if c.BlockSizeBytes <= 0 {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("block size must be positive")}
	}
	if c.BlockMACBytes < 0 || c.BlockMACRandBytes < 0 {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("MAC/rand byte counts cannot be negative")}
	}
	if len(c.EncryptedKey) == 0 {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("encrypted key blob is empty")}
	}
	if len(c.Salt) == 0 {
		return &Error{Kind: Invalid, Op: "VolumeConfig.Validate", Err: fmt.Errorf("salt is empty")}
	}
	return nil
}

// blockMACPrefixLen returns M, the per-block MAC+random prefix size.
func (c *VolumeConfig) blockMACPrefixLen() int {
	if c.BlockMACBytes == 0 {
		return 0
	}
	return c.BlockMACBytes + c.BlockMACRandBytes
}

// headerLen returns H, the byte size of the optional header block,
// including its own MAC prefix when block MAC is enabled (see
// DESIGN.md, "header-block layout under combined unique-IV + block-MAC").
func (c *VolumeConfig) headerLen() int {
	if !c.UniqueIV {
		return 0
	}
	return c.BlockSizeBytes + c.blockMACPrefixLen()
}

// DefaultVolumeConfig returns sensible parameters for a new volume:
// AES-256 in CBC/CTR modes, 4096-byte blocks, an 8-byte MAC plus 4-byte
// random prefix per block, per-file unique IVs, and chained
// directory-IV filename encryption. KDFIterations is left at 0 so
// CreateVolume calibrates the PBKDF2 cost at creation time.
func DefaultVolumeConfig() VolumeConfig {
	return VolumeConfig{
		CipherDescriptor:  Descriptor{Family: "AES", Current: 1, Age: 0},
		NameDescriptor:    Descriptor{Family: "Block", Current: 1, Age: 0},
		KeySizeBits:       256,
		BlockSizeBytes:    4096,
		BlockMACBytes:     8,
		BlockMACRandBytes: 4,
		UniqueIV:          true,
		ChainedNameIV:     true,
	}
}

// Config controls runtime (non-persisted) tuning of a Volume: worker-pool
// sizing for bulk block operations. Grounded on the teacher's
// ParallelConfig (parallel.go).
type Config struct {
	Parallel ParallelConfig
}

// DefaultConfig returns sensible runtime defaults.
func DefaultConfig() Config {
	return Config{Parallel: DefaultParallelConfig()}
}

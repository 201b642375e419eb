// Package encryptfs provides a transparent, stackable encrypting
// filesystem layer over the AbsFs filesystem abstraction: file content
// and filenames are encrypted on the way down to a base absfs.FileSystem
// and decrypted transparently on the way back up.
//
// # Overview
//
// A Volume wraps a base absfs.FileSystem and implements absfs.FileSystem
// itself, so it composes with any AbsFs-compatible backend (osfs,
// memfs, or another absfs.FileSystem). File content flows through a
// block-oriented encrypted file engine (EncryptedFile); path components
// flow through a Codec that encodes each plaintext name into a
// filesystem-safe ciphertext name.
//
// # Cipher and name-codec registry
//
// Cipher and filename-codec implementations are cataloged in a
// Registry by (family, version) Descriptor rather than referenced
// directly, so a volume's persisted configuration can be opened years
// later against a newer build as long as some registered implementation
// still satisfies the descriptor it was created with. The default
// registry (DefaultRegistry) ships two cipher families — AES (CBC block
// mode, CTR stream mode, CMAC-derived MAC64) and ChaCha20 (stream mode
// only, HMAC-SHA256-truncated MAC64) — and three name-codec families —
// Null (identity), Block (pad-and-block-encrypt), and Stream
// (stream-encrypt, no padding).
//
// # Basic usage
//
//	base, _ := memfs.NewFS() // or any absfs.FileSystem
//
//	cfg := encryptfs.DefaultVolumeConfig()
//	vol, err := encryptfs.CreateVolume(base, []byte("correct horse battery staple"), cfg, encryptfs.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := vol.Create("/secret.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	f.WriteString("this is encrypted at rest")
//	f.Close()
//
// Reopening later:
//
//	vol, err := encryptfs.OpenVolume(base, []byte("correct horse battery staple"), encryptfs.DefaultConfig())
//
// # Block-oriented file encryption
//
// Each file is divided into fixed-size plaintext blocks. Every block is
// encrypted independently under an IV derived from the file's own IV
// XORed with the block index, so blocks can be read and rewritten
// without touching the rest of the file. When a volume enables
// per-block MACs, each block on disk carries a MAC over
// (block index, random prefix, ciphertext) ahead of the ciphertext
// itself, and a MAC mismatch on read reports an Integrity error rather
// than returning tampered plaintext. When a volume enables per-file
// unique IVs, a small header block (its own IV fixed at 0) precedes the
// data blocks and carries the file's IV and a plaintext-size hint.
//
// Bulk reads and writes that touch several blocks fan the per-block
// encrypt/decrypt work out across a worker pool (ParallelConfig);
// EncryptedFile itself holds one coarse mutex per open file rather than
// fine-grained per-range locks.
//
// # Filename encryption
//
// A Codec encodes one path component at a time; EncodePath/DecodePath
// walk a whole path splitting on "/". The Block and Stream codecs
// support IV chaining across a directory hierarchy: a directory's MAC
// feeds the IV used to encrypt its children's names, so an attacker
// cannot detect that two files in different directories share a
// plaintext name just by comparing ciphertext names. Encoded names are
// written in a filesystem-safe base-64 alphabet that avoids '/' and
// '.'. The package also carries a base-32 alphabet, but no registered
// codec writes names in it.
//
// # Key management
//
// A volume's own key is generated at random and never derived directly
// from a password: instead, a KEK derived from the password with the
// cipher's PBKDF2 (Cipher.NewKeyFromPassword) wraps the volume key, and
// the wrapped blob is stored in VolumeConfig. Changing a volume's
// password (RotatePassword) only rewraps this small blob; it never
// touches file content. The KeyProvider types (PBKDF2, Argon2id,
// MultiKeyProvider) derive wrapping keys for callers that handle a key
// blob themselves; CreateVolume, OpenVolume and RotatePassword do not
// use them.
//
// # Security considerations
//
// Protected against: unauthorized access to encrypted files at rest,
// per-block tampering detection when block MACs are enabled, and
// offline brute-force against the password (tunable KDF cost).
//
// Not protected against: memory dumps while a volume is open, metadata
// leakage (a file's plaintext size follows from its ciphertext size,
// which adds only the header and per-block MAC prefixes; directory
// structure and mtimes are visible on the base filesystem), timing or
// cache side channels, or a compromised host with the volume already
// mounted.
package encryptfs

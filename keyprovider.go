package encryptfs

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// KeyProvider derives a wrapping key for a volume key from a
// password/passphrase and a persisted salt. Grounded on the teacher's
// PasswordKeyProvider (key_provider.go), split into two concrete types
// (one per KDF) instead of one struct switching internally on a flag.
type KeyProvider interface {
	DeriveKey(cipher Cipher, password, salt []byte) (*CipherKey, error)
}

// PBKDF2KeyProvider derives via PBKDF2-HMAC-SHA256 at a fixed iteration
// count (unlike Cipher.NewKeyFromPassword's calibrating mode, this is
// for callers who already know the iteration count, e.g. one loaded
// from VolumeConfig).
type PBKDF2KeyProvider struct {
	Iterations uint32
}

func (p PBKDF2KeyProvider) DeriveKey(cipher Cipher, password, salt []byte) (*CipherKey, error) {
	if p.Iterations == 0 {
		return nil, newErr(Invalid, "PBKDF2KeyProvider.DeriveKey", "", fmt.Errorf("iterations must be nonzero for a fixed-count provider"))
	}
	key, _, err := cipher.NewKeyFromPassword(password, salt, p.Iterations, 0)
	return key, err
}

// Argon2idKeyProvider derives via Argon2id, independent of the cipher's
// own NewKeyFromPassword (which is PBKDF2-based per cipher.go), for
// callers that wrap or unwrap a key blob under the memory-hard KDF
// themselves. VolumeConfig has no field selecting a KDF, and
// CreateVolume, OpenVolume and RotatePassword always derive through the
// cipher's PBKDF2. The derived key is sized to cipher.KeySize().
type Argon2idKeyProvider struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2idKeyProvider mirrors the teacher's Argon2idParams
// defaults (key_provider.go): 64 MiB memory, 3 passes, 4 threads.
func DefaultArgon2idKeyProvider() Argon2idKeyProvider {
	return Argon2idKeyProvider{Time: 3, Memory: 64 * 1024, Threads: 4}
}

func (p Argon2idKeyProvider) DeriveKey(cipher Cipher, password, salt []byte) (*CipherKey, error) {
	raw := argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, uint32(cipher.KeySize()))
	return newCipherKey(raw), nil
}

// MultiKeyProvider tries each provider in turn until one successfully
// unwraps the volume key, for reading a volume mid-rotation between two
// KDF choices. The first provider is used for anything that needs a
// single answer (e.g. re-wrapping under a chosen KDF).
type MultiKeyProvider struct {
	Providers []KeyProvider
}

func NewMultiKeyProvider(providers ...KeyProvider) (*MultiKeyProvider, error) {
	if len(providers) == 0 {
		return nil, newErr(Invalid, "NewMultiKeyProvider", "", fmt.Errorf("at least one key provider required"))
	}
	return &MultiKeyProvider{Providers: providers}, nil
}

func (m *MultiKeyProvider) DeriveKey(cipher Cipher, password, salt []byte) (*CipherKey, error) {
	return m.Providers[0].DeriveKey(cipher, password, salt)
}

// TryUnwrap attempts ReadKey with each provider's derived wrapping key
// in turn, returning the first one whose embedded checksum verifies.
func (m *MultiKeyProvider) TryUnwrap(cipher Cipher, password, salt, encryptedKey []byte) (*CipherKey, error) {
	var lastErr error
	for _, provider := range m.Providers {
		wrappingKey, err := provider.DeriveKey(cipher, password, salt)
		if err != nil {
			lastErr = err
			continue
		}
		key, err := cipher.ReadKey(encryptedKey, wrappingKey, true)
		wrappingKey.Destroy()
		if err != nil {
			lastErr = err
			continue
		}
		return key, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no key providers available")
	}
	return nil, newErr(BadKey, "MultiKeyProvider.TryUnwrap", "", lastErr)
}

// RotatePassword re-wraps an open volume's key under a freshly derived
// KEK for newPassword, without touching any file content: only the
// small VolumeConfig blob (EncryptedKey, Salt, KDFIterations) changes.
// oldPassword is verified against the volume's current wrapping before
// the rewrap proceeds. Grounded on the teacher's key_rotation.go, which
// instead re-encrypted every file's content under a brand new random
// volume key — this design keeps the volume key itself stable across a
// password change, closer to a LUKS key-slot rewrap.
func RotatePassword(v *Volume, oldPassword, newPassword []byte) error {
	oldWrappingKey, _, err := v.cipher.NewKeyFromPassword(oldPassword, v.cfg.Salt, v.cfg.KDFIterations, 0)
	if err != nil {
		return err
	}
	_, err = v.cipher.ReadKey(v.cfg.EncryptedKey, oldWrappingKey, true)
	oldWrappingKey.Destroy()
	if err != nil {
		return newErr(BadKey, "RotatePassword", "", fmt.Errorf("old password does not unwrap the current volume key"))
	}

	newSalt := make([]byte, len(v.cfg.Salt))
	if err := v.cipher.Randomize(newSalt, true); err != nil {
		return err
	}

	newWrappingKey, iterations, err := v.cipher.NewKeyFromPassword(newPassword, newSalt, 0, 200)
	if err != nil {
		return err
	}
	defer newWrappingKey.Destroy()

	newEncryptedKey, err := v.cipher.WriteKey(v.key, newWrappingKey)
	if err != nil {
		return err
	}

	v.cfg.Salt = newSalt
	v.cfg.KDFIterations = iterations
	v.cfg.EncryptedKey = newEncryptedKey

	return saveVolumeConfig(v.base, v.cfg)
}

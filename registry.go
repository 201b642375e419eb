package encryptfs

import (
	"fmt"
	"sync"
)

// Registry is a process-wide catalog of cipher and name-codec families.
// Registration may occur at any time before first lookup; duplicate
// names replace silently. After the first lookup it is read-mostly,
// guarded only for the registration path.
type Registry struct {
	mu      sync.RWMutex
	ciphers map[string]CipherAlgorithm
	names   map[string]NameAlgorithm
}

// NewRegistry returns an empty registry. Most callers want
// DefaultRegistry, which already carries the built-in AES and ChaCha20
// cipher families and the Null/Block/Stream name codecs.
func NewRegistry() *Registry {
	return &Registry{
		ciphers: make(map[string]CipherAlgorithm),
		names:   make(map[string]NameAlgorithm),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry instance.
func DefaultRegistry() *Registry { return defaultRegistry }

// RegisterCipher adds or replaces a cipher family record.
func (r *Registry) RegisterCipher(a CipherAlgorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ciphers[a.Name] = a
}

// RegisterName adds or replaces a name-codec family record.
func (r *Registry) RegisterName(a NameAlgorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[a.Name] = a
}

// LookupCipher finds a registered cipher family satisfying want and
// constructs an instance for the given key length.
func (r *Registry) LookupCipher(want Descriptor, keyLenBits int) (Cipher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.ciphers {
		if !a.Descriptor.Satisfies(want) {
			continue
		}
		if !a.KeyLenBits.Contains(keyLenBits) {
			continue
		}
		return a.newCipher(a.Descriptor, keyLenBits)
	}
	return nil, newErr(Unsupported, "Registry.LookupCipher", "", fmt.Errorf("no cipher satisfies %s at %d bits", want, keyLenBits))
}

// LookupCipherByName constructs an instance of the named cipher family
// regardless of version, for callers (e.g. volume creation) that pick
// an algorithm explicitly rather than matching a persisted descriptor.
func (r *Registry) LookupCipherByName(name string, keyLenBits int) (Cipher, error) {
	r.mu.RLock()
	a, ok := r.ciphers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, newErr(NotFound, "Registry.LookupCipherByName", "", fmt.Errorf("no cipher named %q", name))
	}
	if !a.KeyLenBits.Contains(keyLenBits) {
		return nil, newErr(Unsupported, "Registry.LookupCipherByName", "", fmt.Errorf("key length %d bits unsupported for %q", keyLenBits, name))
	}
	return a.newCipher(a.Descriptor, keyLenBits)
}

// LookupName finds a registered name-codec family satisfying want and
// binds it to cipher and key.
func (r *Registry) LookupName(want Descriptor, cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.names {
		if !a.Descriptor.Satisfies(want) {
			continue
		}
		return a.newCodec(cipher, key, chainedIV)
	}
	return nil, newErr(Unsupported, "Registry.LookupName", "", fmt.Errorf("no name codec satisfies %s", want))
}

// LookupNameByName binds the named codec family explicitly.
func (r *Registry) LookupNameByName(name string, cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) {
	r.mu.RLock()
	a, ok := r.names[name]
	r.mu.RUnlock()
	if !ok {
		return nil, newErr(NotFound, "Registry.LookupNameByName", "", fmt.Errorf("no name codec named %q", name))
	}
	return a.newCodec(cipher, key, chainedIV)
}

// ListCiphers enumerates registered cipher families, skipping hidden
// ones unless includeHidden is set.
func (r *Registry) ListCiphers(includeHidden bool) []CipherAlgorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CipherAlgorithm, 0, len(r.ciphers))
	for _, a := range r.ciphers {
		if a.Hidden && !includeHidden {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ListNames enumerates registered name-codec families.
func (r *Registry) ListNames(includeHidden bool) []NameAlgorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NameAlgorithm, 0, len(r.names))
	for _, a := range r.names {
		if a.Hidden && !includeHidden {
			continue
		}
		out = append(out, a)
	}
	return out
}

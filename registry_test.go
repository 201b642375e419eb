package encryptfs

import "testing"

func newIsolatedRegistry() *Registry {
	r := NewRegistry()
	r.RegisterCipher(CipherAlgorithm{
		Name:          "Visible",
		Descriptor:    Descriptor{Family: "Visible", Current: 1, Age: 0},
		KeyLenBits:    Range{Min: 128, Max: 128},
		HasStreamMode: true,
		newCipher:     func(d Descriptor, keyLenBits int) (Cipher, error) { return nil, nil },
	})
	r.RegisterCipher(CipherAlgorithm{
		Name:       "Secret",
		Descriptor: Descriptor{Family: "Secret", Current: 1, Age: 0},
		KeyLenBits: Range{Min: 128, Max: 128},
		Hidden:     true,
		newCipher:  func(d Descriptor, keyLenBits int) (Cipher, error) { return nil, nil },
	})
	r.RegisterName(NameAlgorithm{
		Name:       "VisibleName",
		Descriptor: Descriptor{Family: "VisibleName", Current: 1, Age: 0},
		newCodec:   func(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) { return nil, nil },
	})
	r.RegisterName(NameAlgorithm{
		Name:       "SecretName",
		Descriptor: Descriptor{Family: "SecretName", Current: 1, Age: 0},
		Hidden:     true,
		newCodec:   func(cipher Cipher, key *CipherKey, chainedIV bool) (Codec, error) { return nil, nil },
	})
	return r
}

func TestListCiphersSkipsHiddenUnlessRequested(t *testing.T) {
	r := newIsolatedRegistry()

	visible := r.ListCiphers(false)
	if len(visible) != 1 || visible[0].Name != "Visible" {
		t.Fatalf("ListCiphers(false) = %+v, want only the Visible family", visible)
	}

	all := r.ListCiphers(true)
	if len(all) != 2 {
		t.Fatalf("ListCiphers(true) returned %d families, want 2", len(all))
	}
}

func TestListNamesSkipsHiddenUnlessRequested(t *testing.T) {
	r := newIsolatedRegistry()

	visible := r.ListNames(false)
	if len(visible) != 1 || visible[0].Name != "VisibleName" {
		t.Fatalf("ListNames(false) = %+v, want only VisibleName", visible)
	}

	all := r.ListNames(true)
	if len(all) != 2 {
		t.Fatalf("ListNames(true) returned %d families, want 2", len(all))
	}
}

func TestDefaultRegistryListsBuiltinFamilies(t *testing.T) {
	names := map[string]bool{}
	for _, c := range DefaultRegistry().ListCiphers(true) {
		names[c.Name] = true
	}
	if !names["AES"] || !names["ChaCha20"] {
		t.Errorf("DefaultRegistry().ListCiphers(true) missing built-ins: %v", names)
	}

	codecs := map[string]bool{}
	for _, n := range DefaultRegistry().ListNames(true) {
		codecs[n.Name] = true
	}
	for _, want := range []string{"Null", "Block", "Stream"} {
		if !codecs[want] {
			t.Errorf("DefaultRegistry().ListNames(true) missing %q: %v", want, codecs)
		}
	}
}

func TestLookupCipherUnknownFamilyIsUnsupported(t *testing.T) {
	_, err := DefaultRegistry().LookupCipher(Descriptor{Family: "NoSuchCipher", Current: 1, Age: 0}, 256)
	if !IsUnsupported(err) {
		t.Errorf("expected Unsupported, got %v", KindOf(err))
	}
}

func TestLookupCipherByNameUnknownNameIsNotFound(t *testing.T) {
	_, err := DefaultRegistry().LookupCipherByName("NoSuchCipher", 256)
	if !IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", KindOf(err))
	}
}

func TestLookupNameUnknownFamilyIsUnsupported(t *testing.T) {
	cipher, err := DefaultRegistry().LookupCipherByName("AES", 256)
	if err != nil {
		t.Fatalf("LookupCipherByName failed: %v", err)
	}
	key, err := cipher.NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}

	_, err = DefaultRegistry().LookupName(Descriptor{Family: "NoSuchCodec", Current: 1, Age: 0}, cipher, key, false)
	if !IsUnsupported(err) {
		t.Errorf("expected Unsupported, got %v", KindOf(err))
	}
}

func TestLookupNameByNameUnknownNameIsNotFound(t *testing.T) {
	cipher, err := DefaultRegistry().LookupCipherByName("AES", 256)
	if err != nil {
		t.Fatalf("LookupCipherByName failed: %v", err)
	}
	key, err := cipher.NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}

	_, err = DefaultRegistry().LookupNameByName("NoSuchCodec", cipher, key, false)
	if !IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", KindOf(err))
	}
}

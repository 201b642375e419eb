package encryptfs

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

func openTestBackingStore(t *testing.T, base absfs.FileSystem, name string) BackingStore {
	t.Helper()
	f, err := base.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile(%q) failed: %v", name, err)
	}
	return NewAbsfsBackingStore(f)
}

func newTestVolumeConfig(uniqueIV bool, blockSize, macBytes, randBytes int) *VolumeConfig {
	return &VolumeConfig{
		VolumeID:          "test",
		CipherDescriptor:  Descriptor{Family: "AES", Current: 1, Age: 0},
		NameDescriptor:    Descriptor{Family: "Block", Current: 1, Age: 0},
		KeySizeBits:       256,
		BlockSizeBytes:    blockSize,
		BlockMACBytes:     macBytes,
		BlockMACRandBytes: randBytes,
		UniqueIV:          uniqueIV,
		ChainedNameIV:     false,
		EncryptedKey:      []byte{0},
		Salt:              []byte{0},
	}
}

func openTestFile(t *testing.T, cfg *VolumeConfig, name string) (*EncryptedFile, Cipher, *CipherKey, absfs.FileSystem) {
	t.Helper()
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	cipher, err := DefaultRegistry().LookupCipherByName("AES", cfg.KeySizeBits)
	if err != nil {
		t.Fatalf("LookupCipherByName failed: %v", err)
	}
	key, err := cipher.NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}
	store := openTestBackingStore(t, base, name)
	ef, err := OpenEncryptedFile(store, cipher, key, cfg, DefaultParallelConfig(), name)
	if err != nil {
		t.Fatalf("OpenEncryptedFile failed: %v", err)
	}
	return ef, cipher, key, base
}

func reopenTestFile(t *testing.T, base absfs.FileSystem, cipher Cipher, key *CipherKey, cfg *VolumeConfig, name string) *EncryptedFile {
	t.Helper()
	store := openTestBackingStore(t, base, name)
	ef, err := OpenEncryptedFile(store, cipher, key, cfg, DefaultParallelConfig(), name)
	if err != nil {
		t.Fatalf("reopen OpenEncryptedFile failed: %v", err)
	}
	return ef
}

// TestEncryptedFile_LargeRoundTrip writes just over a megabyte spanning
// many blocks and reads it back through a freshly reopened file.
func TestEncryptedFile_LargeRoundTrip(t *testing.T) {
	cfg := newTestVolumeConfig(true, 4096, 8, 4)
	ef, cipher, key, base := openTestFile(t, cfg, "/big.bin")

	data := make([]byte, 1<<20+37)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	if _, err := ef.Write(data, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ef.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ef2 := reopenTestFile(t, base, cipher, key, cfg, "/big.bin")
	defer ef2.Close()

	size, err := ef2.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", size, len(data))
	}

	got := make([]byte, len(data))
	n, err := ef2.Read(got, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Read returned %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(got, data) {
		t.Error("round-tripped content does not match")
	}
}

// TestEncryptedFile_PartialBlockWrite overwrites a byte range in the
// middle of one block, straddling into the next, and checks that bytes
// outside the write survive via the read-modify-write path.
func TestEncryptedFile_PartialBlockWrite(t *testing.T) {
	cfg := newTestVolumeConfig(true, 64, 8, 4)
	ef, _, _, _ := openTestFile(t, cfg, "/partial.bin")
	defer ef.Close()

	initial := bytes.Repeat([]byte("0"), 200)
	if _, err := ef.Write(initial, 0); err != nil {
		t.Fatalf("initial Write failed: %v", err)
	}

	patch := []byte("XXXXXXXXXXXXXXXXXXXXXXXXXX") // 26 bytes, crosses a 64-byte block boundary
	const patchOffset = 50
	if _, err := ef.Write(patch, patchOffset); err != nil {
		t.Fatalf("patch Write failed: %v", err)
	}

	got := make([]byte, 200)
	if _, err := ef.Read(got, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	want := append([]byte(nil), initial...)
	copy(want[patchOffset:], patch)
	if !bytes.Equal(got, want) {
		t.Errorf("partial write corrupted surrounding bytes:\ngot:  %q\nwant: %q", got, want)
	}
}

// TestEncryptedFile_MACTamperDetected flips a byte inside a written
// block's on-disk ciphertext and verifies the read reports Integrity
// rather than returning corrupted plaintext.
func TestEncryptedFile_MACTamperDetected(t *testing.T) {
	cfg := newTestVolumeConfig(true, 64, 8, 4)
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	cipher, err := DefaultRegistry().LookupCipherByName("AES", cfg.KeySizeBits)
	if err != nil {
		t.Fatalf("LookupCipherByName failed: %v", err)
	}
	key, err := cipher.NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}

	store := openTestBackingStore(t, base, "/tamper.bin")
	ef, err := OpenEncryptedFile(store, cipher, key, cfg, DefaultParallelConfig(), "/tamper.bin")
	if err != nil {
		t.Fatalf("OpenEncryptedFile failed: %v", err)
	}
	if _, err := ef.Write(bytes.Repeat([]byte("A"), 64), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ef.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Flip a byte inside the ciphertext, well past the header block.
	raw, err := base.Open("/tamper.bin")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	info, err := raw.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	buf := make([]byte, info.Size())
	if _, err := raw.Read(buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	raw.Close()

	tamperIdx := len(buf) - 1
	buf[tamperIdx] ^= 0xff

	wf, err := base.OpenFile("/tamper.bin", os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := wf.Write(buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	wf.Close()

	ef2 := reopenTestFile(t, base, cipher, key, cfg, "/tamper.bin")
	defer ef2.Close()

	got := make([]byte, 64)
	_, err = ef2.Read(got, 0)
	if err == nil {
		t.Fatal("expected an Integrity error reading tampered ciphertext")
	}
	if !IsIntegrity(err) {
		t.Errorf("expected Integrity, got %v", KindOf(err))
	}
}

// TestEncryptedFile_TruncateThenReadPast grows a file past its old end
// and checks the newly extended range reads back as zero, then shrinks
// it and checks reads past the new end report EOF.
func TestEncryptedFile_TruncateThenReadPast(t *testing.T) {
	cfg := newTestVolumeConfig(true, 32, 8, 4)
	ef, _, _, _ := openTestFile(t, cfg, "/trunc.bin")
	defer ef.Close()

	if _, err := ef.Write([]byte("hello"), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := ef.Truncate(100); err != nil {
		t.Fatalf("grow Truncate failed: %v", err)
	}
	size, err := ef.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 100 {
		t.Fatalf("Size() = %d, want 100", size)
	}

	got := make([]byte, 100)
	if _, err := ef.Read(got, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got[:5], []byte("hello")) {
		t.Errorf("original content lost after growing: %q", got[:5])
	}
	for i := 5; i < 100; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d after grown region is %d, want 0", i, got[i])
		}
	}

	if err := ef.Truncate(3); err != nil {
		t.Fatalf("shrink Truncate failed: %v", err)
	}
	size, err = ef.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 3 {
		t.Fatalf("Size() = %d, want 3", size)
	}

	buf := make([]byte, 10)
	n, err := ef.Read(buf, 0)
	if err != nil {
		t.Fatalf("Read after shrink failed: %v", err)
	}
	if n != 3 || string(buf[:3]) != "hel" {
		t.Errorf("Read after shrink = %q, want %q", buf[:n], "hel")
	}

	if _, err := ef.Read(buf, 3); err == nil {
		t.Fatal("expected EOF reading past the truncated end")
	}
}

// TestEncryptedFile_NonUniqueIVSizeInference exercises
// plainSizeFromCiphertext by reopening a file on a volume with unique
// IVs disabled, where the logical size is inferred from ciphertext
// length rather than a header.
func TestEncryptedFile_NonUniqueIVSizeInference(t *testing.T) {
	cfg := newTestVolumeConfig(false, 16, 0, 0)
	ef, cipher, key, base := openTestFile(t, cfg, "/inferred.bin")

	data := []byte("twenty-nine bytes of data!!!!") // 29 bytes, not block-aligned
	if _, err := ef.Write(data, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := ef.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ef2 := reopenTestFile(t, base, cipher, key, cfg, "/inferred.bin")
	defer ef2.Close()

	size, err := ef2.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != int64(len(data)) {
		t.Fatalf("inferred Size() = %d, want %d", size, len(data))
	}
}

// failingSizeStore fails Size(), the first call OpenEncryptedFile makes
// against a BackingStore.
type failingSizeStore struct{}

func (failingSizeStore) ReadAt(buf []byte, offset int64) (int, error)  { return 0, nil }
func (failingSizeStore) WriteAt(buf []byte, offset int64) (int, error) { return 0, nil }
func (failingSizeStore) Truncate(size int64) error                     { return nil }
func (failingSizeStore) Sync(dataOnly bool) error                      { return nil }
func (failingSizeStore) Size() (int64, error)                          { return 0, errors.New("disk gone") }
func (failingSizeStore) Close() error                                  { return nil }

func TestOpenEncryptedFilePropagatesBackingStoreIOError(t *testing.T) {
	cfg := newTestVolumeConfig(true, 4096, 8, 4)
	cipher, err := DefaultRegistry().LookupCipherByName("AES", cfg.KeySizeBits)
	if err != nil {
		t.Fatalf("LookupCipherByName failed: %v", err)
	}
	key, err := cipher.NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}

	_, err = OpenEncryptedFile(failingSizeStore{}, cipher, key, cfg, DefaultParallelConfig(), "/broken.bin")
	if !IsIOErr(err) {
		t.Errorf("expected IO, got %v", KindOf(err))
	}
}

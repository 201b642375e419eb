package encryptfs

import (
	"bytes"
	"os"
	"testing"

	"github.com/absfs/memfs"
)

func TestAbsfsBackingStoreWriteReadSize(t *testing.T) {
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	f, err := base.OpenFile("/store.bin", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	store := NewAbsfsBackingStore(f)
	defer store.Close()

	data := []byte("some ciphertext bytes")
	if _, err := store.WriteAt(data, 10); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	size, err := store.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != int64(10+len(data)) {
		t.Fatalf("Size() = %d, want %d", size, 10+len(data))
	}

	got := make([]byte, len(data))
	n, err := store.ReadAt(got, 10)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != len(data) || !bytes.Equal(got, data) {
		t.Errorf("ReadAt got %q, want %q", got[:n], data)
	}
}

func TestAbsfsBackingStoreReadAtPastEndIsShortNotError(t *testing.T) {
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	f, err := base.OpenFile("/short.bin", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	store := NewAbsfsBackingStore(f)
	defer store.Close()

	if _, err := store.WriteAt([]byte("abc"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	buf := make([]byte, 10)
	n, err := store.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt should not error on a short read past EOF, got: %v", err)
	}
	if n != 3 {
		t.Fatalf("ReadAt returned %d bytes, want 3", n)
	}
}

func TestAbsfsBackingStoreTruncate(t *testing.T) {
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS failed: %v", err)
	}
	f, err := base.OpenFile("/trunc.bin", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	store := NewAbsfsBackingStore(f)
	defer store.Close()

	if _, err := store.WriteAt(bytes.Repeat([]byte{1}, 100), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := store.Truncate(10); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	size, err := store.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 10 {
		t.Errorf("Size() = %d, want 10", size)
	}
}

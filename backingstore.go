package encryptfs

import (
	"io"
	"os"

	"github.com/absfs/absfs"
)

// BackingStore is the byte-addressable ciphertext store an
// EncryptedFile reads and writes through. It narrows whatever
// underlying file handle a Volume opens down to the pread/pwrite/
// truncate/fsync/size surface the block engine needs.
type BackingStore interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	Truncate(size int64) error
	Sync(dataOnly bool) error
	Size() (int64, error)
	Close() error
}

// osBackingStore adapts an *os.File.
type osBackingStore struct{ f *os.File }

// NewOSBackingStore wraps an already-open OS file as a BackingStore.
func NewOSBackingStore(f *os.File) BackingStore { return &osBackingStore{f: f} }

func (b *osBackingStore) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := b.f.ReadAt(buf, offset)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (b *osBackingStore) WriteAt(buf []byte, offset int64) (int, error) {
	return b.f.WriteAt(buf, offset)
}

func (b *osBackingStore) Truncate(size int64) error { return b.f.Truncate(size) }

// Sync ignores dataOnly: os.File offers no fdatasync distinction on all
// platforms Go supports, so both cases fsync the whole file.
func (b *osBackingStore) Sync(dataOnly bool) error { return b.f.Sync() }

func (b *osBackingStore) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *osBackingStore) Close() error { return b.f.Close() }

// absfsBackingStore adapts an absfs.File, the abstraction a Volume uses
// to talk to a pluggable filesystem (memfs for tests, osfs in
// production, or any other absfs implementation). absfs.File offers
// Seek+Read/Write rather than ReadAt/WriteAt, so pread/pwrite are
// synthesized with a seek under the EncryptedFile's own lock (the
// caller never issues concurrent calls against one absfsBackingStore).
type absfsBackingStore struct{ f absfs.File }

// NewAbsfsBackingStore wraps an already-open absfs file as a
// BackingStore.
func NewAbsfsBackingStore(f absfs.File) BackingStore { return &absfsBackingStore{f: f} }

func (b *absfsBackingStore) ReadAt(buf []byte, offset int64) (int, error) {
	if _, err := b.f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(b.f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}

func (b *absfsBackingStore) WriteAt(buf []byte, offset int64) (int, error) {
	if _, err := b.f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return b.f.Write(buf)
}

func (b *absfsBackingStore) Truncate(size int64) error { return b.f.Truncate(size) }

func (b *absfsBackingStore) Sync(dataOnly bool) error { return b.f.Sync() }

func (b *absfsBackingStore) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *absfsBackingStore) Close() error { return b.f.Close() }

package encryptfs

import "fmt"

// Input validation helpers for defensive programming, returning the
// package's *Error type (Kind: Invalid) instead of a bespoke error
// struct.

// ValidateBuffer checks if a buffer is valid (non-nil and has expected size)
func ValidateBuffer(buf []byte, name string, minSize int) error {
	if buf == nil {
		return newErr(Invalid, "ValidateBuffer", "", fmt.Errorf("%s: buffer cannot be nil", name))
	}
	if minSize > 0 && len(buf) < minSize {
		return newErr(Invalid, "ValidateBuffer", "", fmt.Errorf("%s: buffer too small: got %d bytes, need at least %d", name, len(buf), minSize))
	}
	return nil
}

// ValidateOffset checks if a file offset is valid
func ValidateOffset(offset int64, name string) error {
	if offset < 0 {
		return newErr(Invalid, "ValidateOffset", "", fmt.Errorf("%s: offset cannot be negative", name))
	}
	return nil
}

// ValidateSize checks if a size parameter is valid
func ValidateSize(size int, name string, minSize, maxSize int) error {
	if size < 0 {
		return newErr(Invalid, "ValidateSize", "", fmt.Errorf("%s: size cannot be negative", name))
	}
	if minSize >= 0 && size < minSize {
		return newErr(Invalid, "ValidateSize", "", fmt.Errorf("%s: size too small: got %d, minimum is %d", name, size, minSize))
	}
	if maxSize > 0 && size > maxSize {
		return newErr(Invalid, "ValidateSize", "", fmt.Errorf("%s: size too large: got %d, maximum is %d", name, size, maxSize))
	}
	return nil
}

// ValidateKey checks if a key has the correct size for a cipher.
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil {
		return newErr(Invalid, "ValidateKey", "", fmt.Errorf("key cannot be nil"))
	}
	if len(key) != expectedSize {
		return newErr(Invalid, "ValidateKey", "", fmt.Errorf("invalid key size: got %d bytes, expected %d", len(key), expectedSize))
	}
	return nil
}

// ValidateBlockIndex checks that a block index falls within a file's
// current block count, for callers doing their own block-range math
// outside EncryptedFile.
func ValidateBlockIndex(index, blockCount uint64, context string) error {
	if index >= blockCount {
		return newErr(Invalid, "ValidateBlockIndex", "", fmt.Errorf("%s: block index %d exceeds block count %d", context, index, blockCount))
	}
	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return newErr(Invalid, "ValidateFilePath", "", fmt.Errorf("file path cannot be empty"))
	}
	return nil
}

// ValidateReadWrite checks common preconditions for read/write operations
func ValidateReadWrite(buf []byte, position int64) error {
	if buf == nil {
		return newErr(Invalid, "ValidateReadWrite", "", fmt.Errorf("buffer cannot be nil"))
	}
	if position < 0 {
		return newErr(Invalid, "ValidateReadWrite", "", fmt.Errorf("offset cannot be negative"))
	}
	return nil
}

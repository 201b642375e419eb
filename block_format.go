package encryptfs

import (
	"encoding/binary"
	"fmt"
)

// headerPayload is the plaintext of the unique-IV header block: the
// file's 64-bit IV followed by a plaintext-size hint, per spec.md §6.
type headerPayload struct {
	FileIV        uint64
	PlaintextSize uint64
}

func encodeHeaderPayload(h headerPayload) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], h.FileIV)
	binary.BigEndian.PutUint64(buf[8:16], h.PlaintextSize)
	return buf
}

func decodeHeaderPayload(buf []byte) (headerPayload, error) {
	if len(buf) < 16 {
		return headerPayload{}, newErr(Integrity, "decodeHeaderPayload", "", fmt.Errorf("header payload shorter than 16 bytes"))
	}
	return headerPayload{
		FileIV:        binary.BigEndian.Uint64(buf[:8]),
		PlaintextSize: binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}

// computeBlockMAC computes the keyed MAC over (block_index,
// random_prefix, ciphertext_payload) per spec.md §4.D, truncated to
// macBytes (the cipher's MAC64/32/16 XOR-fold reductions).
func computeBlockMAC(c Cipher, key *CipherKey, macBytes int, blockIndex uint64, randPrefix, payload []byte) []byte {
	data := make([]byte, 0, 8+len(randPrefix)+len(payload))
	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, blockIndex)
	data = append(data, idx...)
	data = append(data, randPrefix...)
	data = append(data, payload...)

	out := make([]byte, macBytes)
	switch {
	case macBytes >= 8:
		v := c.MAC64(data, key, nil)
		full := make([]byte, 8)
		binary.BigEndian.PutUint64(full, v)
		copy(out, full)
	case macBytes >= 4:
		v := c.MAC32(data, key, nil)
		full := make([]byte, 4)
		binary.BigEndian.PutUint32(full, v)
		copy(out, full)
	default:
		v := c.MAC16(data, key, nil)
		full := make([]byte, 2)
		binary.BigEndian.PutUint16(full, v)
		copy(out, full)
	}
	return out
}

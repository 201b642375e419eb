package encryptfs

import (
	"crypto/cipher"
	"encoding/binary"
)

// cmac computes CMAC (NIST SP 800-38B) of data under block, the shared
// primitive behind AES's MAC64 and, via generateSubkeys, its own subkey
// schedule.
func cmac(block cipher.Block, data []byte) []byte {
	k1, k2 := generateSubkeys(block)

	n := (len(data) + 15) / 16
	if n == 0 {
		n = 1
	}

	lastBlock := make([]byte, 16)
	if len(data) == 0 || len(data)%16 != 0 {
		copy(lastBlock, data[16*(n-1):])
		lastBlock = pad(lastBlock[:len(data)-16*(n-1)])
		xorBytes(lastBlock, k2)
	} else {
		copy(lastBlock, data[16*(n-1):])
		xorBytes(lastBlock, k1)
	}

	mac := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		chunk := data[i*16 : (i+1)*16]
		xorBytes(mac, chunk)
		block.Encrypt(mac, mac)
	}
	xorBytes(mac, lastBlock)
	block.Encrypt(mac, mac)

	return mac
}

// ctrMode runs AES-CTR keyed by block, using iv (padded/truncated to 16
// bytes) as the initial counter block.
func ctrMode(block cipher.Block, iv, src, dst []byte) {
	ctr := make([]byte, 16)
	copy(ctr, iv)
	stream := cipher.NewCTR(block, ctr)
	stream.XORKeyStream(dst, src)
}

// dbl implements the doubling operation in GF(2^128), per RFC 5297 §2.3.
func dbl(block []byte) []byte {
	result := make([]byte, 16)
	carry := uint64(0)

	for i := 0; i < 2; i++ {
		offset := (1 - i) * 8
		val := binary.BigEndian.Uint64(block[offset : offset+8])
		newVal := (val << 1) | carry
		binary.BigEndian.PutUint64(result[offset:offset+8], newVal)
		carry = val >> 63
	}

	if carry != 0 {
		result[15] ^= 0x87
	}

	return result
}

// pad applies 10* padding to a short block for CMAC's final-block step.
func pad(data []byte) []byte {
	result := make([]byte, 16)
	copy(result, data)
	result[len(data)] = 0x80
	return result
}

func xorBytes(a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		a[i] ^= b[i]
	}
}

// generateSubkeys derives the two CMAC subkeys from block per NIST
// SP 800-38B.
func generateSubkeys(block cipher.Block) ([]byte, []byte) {
	l := make([]byte, 16)
	block.Encrypt(l, l)

	k1 := dbl(l)
	k2 := dbl(k1)

	return k1, k2
}

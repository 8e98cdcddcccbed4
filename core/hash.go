package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// Hash is the 32-byte content hash used throughout the box model and store.
type Hash [32]byte

// Bytes returns the hash as a byte slice.
func (h Hash) Bytes() []byte { return h[:] }

// H hashes the concatenation of parts with SHA-256, mirroring the pack's
// universal use of crypto/sha256 for content addressing.
func H(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func u64be(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func beToU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// timestampSentinelID is the store key H("timestamp") used to recover the
// current state timestamp across restarts.
func timestampSentinelID() Hash {
	return H([]byte("timestamp"))
}

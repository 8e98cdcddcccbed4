package core

import (
	"crypto/ed25519"
	"fmt"
	"sort"
)

// Ed25519Pub is a 32-byte Ed25519 public key, the native proposition key type
// for every box variant in this model.
type Ed25519Pub [32]byte

// Sig is a 64-byte Ed25519 signature.
type Sig [64]byte

// Bytes returns the raw public key bytes.
func (p Ed25519Pub) Bytes() []byte { return p[:] }

// Verify checks sig against msg under this key.
func (p Ed25519Pub) Verify(msg []byte, sig Sig) bool {
	return ed25519.Verify(ed25519.PublicKey(p[:]), msg, sig[:])
}

// Less imposes the ascending byte order required when encoding MofN key sets.
func (p Ed25519Pub) Less(o Ed25519Pub) bool {
	for i := range p {
		if p[i] != o[i] {
			return p[i] < o[i]
		}
	}
	return false
}

// MofN is satisfied by at least m valid signatures from distinct keys in the
// set. In this system m is always 1, but the general shape is kept for
// forward compatibility (see core/proposition_test.go).
type MofN struct {
	M    uint32
	Keys []Ed25519Pub
}

// sortedKeys returns a copy of Keys in ascending byte order, the order
// required by the box codec's deterministic MofN encoding.
func (p MofN) sortedKeys() []Ed25519Pub {
	keys := make([]Ed25519Pub, len(p.Keys))
	copy(keys, p.Keys)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Encode renders MofN as u32_be(m) || u32_be(n) || n·pub(32), keys emitted in
// ascending byte order for determinism.
func (p MofN) Encode() []byte {
	keys := p.sortedKeys()
	out := make([]byte, 0, 8+32*len(keys))
	out = append(out, u32be(p.M)...)
	out = append(out, u32be(uint32(len(keys)))...)
	for _, k := range keys {
		out = append(out, k.Bytes()...)
	}
	return out
}

// Verify succeeds when at least m signatures each validate under some
// distinct key in the set; each signature may only be consumed once.
func (p MofN) Verify(msg []byte, sigs []Sig) bool {
	if p.M == 0 || len(sigs) < int(p.M) {
		return false
	}
	used := make([]bool, len(p.Keys))
	matched := uint32(0)
	for _, sig := range sigs {
		for ki, key := range p.Keys {
			if used[ki] {
				continue
			}
			if key.Verify(msg, sig) {
				used[ki] = true
				matched++
				break
			}
		}
	}
	return matched >= p.M
}

func parseEd25519Pub(b []byte) (Ed25519Pub, error) {
	var p Ed25519Pub
	if len(b) != 32 {
		return p, fmt.Errorf("ed25519 pub: want 32 bytes, got %d", len(b))
	}
	copy(p[:], b)
	return p, nil
}

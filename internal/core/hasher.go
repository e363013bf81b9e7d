package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// GenesisHashSeed anchors the hash chain. Changing it invalidates every
// persisted envelope, so it is versioned.
const GenesisHashSeed = "SynthLedger:genesis:v1"

// StateHasher maintains the rolling state-hash chain:
// hash[N] = SHA-256(hash[N-1] || sequence || digest).
type StateHasher struct {
	tip [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{tip: sha256.Sum256([]byte(GenesisHashSeed))}
}

// Advance appends one link to the chain and returns the new tip.
func (h *StateHasher) Advance(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.tip[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])
	hasher.Write(stateDigest)

	copy(h.tip[:], hasher.Sum(nil))
	return h.tip
}

// Tip returns the current chain tip.
func (h *StateHasher) Tip() [32]byte {
	return h.tip
}

// SetTip resets the chain tip, used when restoring from a snapshot.
func (h *StateHasher) SetTip(hash [32]byte) {
	h.tip = hash
}

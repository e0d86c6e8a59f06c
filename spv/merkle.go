package spv

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// ErrMalformedProof is returned when a merkle branch is not a whole
	// number of 32 byte sibling hashes.
	ErrMalformedProof = errors.New("merkle branch length not a multiple of 32")

	// ErrProofMismatch is returned when the recomputed merkle root does
	// not equal the root committed to by the block header.
	ErrProofMismatch = errors.New("merkle branch does not reproduce root")
)

// VerifyInclusion recomputes a block's merkle root from a transaction hash,
// a flat concatenation of sibling hashes and the transaction's position in
// the block. Each bit of index selects whether the running hash is the left
// or right child at that level. An empty branch proves inclusion only for a
// single transaction block whose root is the transaction hash itself.
func VerifyInclusion(txHash, root chainhash.Hash, branch []byte,
	index uint32) error {

	if len(branch)%chainhash.HashSize != 0 {
		return ErrMalformedProof
	}

	current := txHash
	buf := make([]byte, 2*chainhash.HashSize)

	for offset := 0; offset < len(branch); offset += chainhash.HashSize {
		sibling := branch[offset : offset+chainhash.HashSize]

		if index&1 == 1 {
			copy(buf[:chainhash.HashSize], sibling)
			copy(buf[chainhash.HashSize:], current[:])
		} else {
			copy(buf[:chainhash.HashSize], current[:])
			copy(buf[chainhash.HashSize:], sibling)
		}

		current = chainhash.DoubleHashH(buf)
		index >>= 1
	}

	if current != root {
		return ErrProofMismatch
	}

	return nil
}

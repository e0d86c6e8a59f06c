package spv

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the encoded size of a block header.
const HeaderSize = 80

var (
	// ErrInvalidChainLength is returned when a header chain buffer is
	// empty or not a whole number of 80 byte headers.
	ErrInvalidChainLength = errors.New("header chain not a multiple of header size")

	// ErrInvalidHeaderChain is returned when a header does not reference
	// its predecessor's hash.
	ErrInvalidHeaderChain = errors.New("header chain linkage broken")

	// ErrInsufficientWork is returned when a header's hash does not meet
	// its own declared target.
	ErrInsufficientWork = errors.New("header hash does not satisfy target")

	// ErrUnrecognizedDifficulty is returned when the chain's difficulty
	// matches neither the current nor the previous epoch difficulty
	// reported by the relay.
	ErrUnrecognizedDifficulty = errors.New("difficulty at unrecognized epoch")

	// ErrInsufficientConfirmations is returned when the chain's
	// accumulated difficulty falls short of the required multiple of the
	// reference difficulty.
	ErrInsufficientConfirmations = errors.New("insufficient accumulated difficulty")
)

// HeaderChain is a parsed contiguous chain of block headers, lowest height
// first.
type HeaderChain struct {
	headers []wire.BlockHeader
}

// ParseHeaderChain decodes a flat concatenation of 80 byte headers.
func ParseHeaderChain(raw []byte) (*HeaderChain, error) {
	if len(raw) == 0 || len(raw)%HeaderSize != 0 {
		return nil, ErrInvalidChainLength
	}

	headers := make([]wire.BlockHeader, len(raw)/HeaderSize)
	for i := range headers {
		r := bytes.NewReader(raw[i*HeaderSize : (i+1)*HeaderSize])
		if err := headers[i].Deserialize(r); err != nil {
			return nil, ErrInvalidChainLength
		}
	}

	return &HeaderChain{headers: headers}, nil
}

// FirstMerkleRoot returns the merkle root committed to by the chain's first
// header, the block the proven transaction is claimed to be part of.
func (c *HeaderChain) FirstMerkleRoot() chainhash.Hash {
	return c.headers[0].MerkleRoot
}

// Validate checks internal linkage and per-header proof of work: every
// header must reference the previous header's hash and every header's hash
// must meet the header's own declared target.
func (c *HeaderChain) Validate() error {
	var prevHash chainhash.Hash

	for i := range c.headers {
		header := &c.headers[i]

		if i > 0 && header.PrevBlock != prevHash {
			return ErrInvalidHeaderChain
		}

		target := blockchain.CompactToBig(header.Bits)
		if target.Sign() <= 0 {
			return ErrInsufficientWork
		}

		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) > 0 {
			return ErrInsufficientWork
		}

		prevHash = hash
	}

	return nil
}

// EvaluateDifficulty checks the chain against the relay's reference
// difficulties. The first header's difficulty must equal either the current
// or the previous epoch difficulty, covering a chain that spans an epoch
// boundary. The summed per-header difficulty must then reach the reference
// difficulty times the confirmation factor.
func (c *HeaderChain) EvaluateDifficulty(params *chaincfg.Params,
	current, previous *big.Int, confirmationFactor int64) error {

	first := difficultyFromBits(params, c.headers[0].Bits)

	var reference *big.Int
	switch {
	case current != nil && current.Sign() > 0 && first.Cmp(current) == 0:
		reference = current

	case previous != nil && previous.Sign() > 0 && first.Cmp(previous) == 0:
		reference = previous

	default:
		return ErrUnrecognizedDifficulty
	}

	required := new(big.Int).Mul(
		reference, big.NewInt(confirmationFactor),
	)
	if c.AccumulatedDifficulty(params).Cmp(required) < 0 {
		return ErrInsufficientConfirmations
	}

	return nil
}

// AccumulatedDifficulty sums the difficulty encoded in every header of the
// chain.
func (c *HeaderChain) AccumulatedDifficulty(
	params *chaincfg.Params) *big.Int {

	total := new(big.Int)
	for i := range c.headers {
		total.Add(total, difficultyFromBits(params, c.headers[i].Bits))
	}

	return total
}

// difficultyFromBits converts a header's compact target into a difficulty
// value relative to the chain's difficulty-1 target.
func difficultyFromBits(params *chaincfg.Params, bits uint32) *big.Int {
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 {
		return new(big.Int)
	}

	diff1 := blockchain.CompactToBig(params.PowLimitBits)
	return new(big.Int).Div(diff1, target)
}

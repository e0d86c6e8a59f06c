package spv_test

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/sputn1ck/sweepbridge/spv"
)

// hashPair is the double hash of two concatenated node hashes.
func hashPair(left, right chainhash.Hash) chainhash.Hash {
	return chainhash.DoubleHashH(append(left[:], right[:]...))
}

func TestVerifyInclusion(t *testing.T) {
	// A four leaf tree built by hand.
	leaves := make([]chainhash.Hash, 4)
	for i := range leaves {
		leaves[i] = chainhash.DoubleHashH([]byte{byte(i)})
	}

	left := hashPair(leaves[0], leaves[1])
	right := hashPair(leaves[2], leaves[3])
	root := hashPair(left, right)

	branches := map[uint32][]byte{
		0: append(append([]byte{}, leaves[1][:]...), right[:]...),
		1: append(append([]byte{}, leaves[0][:]...), right[:]...),
		2: append(append([]byte{}, leaves[3][:]...), left[:]...),
		3: append(append([]byte{}, leaves[2][:]...), left[:]...),
	}

	for index, branch := range branches {
		err := spv.VerifyInclusion(leaves[index], root, branch, index)
		require.NoError(t, err, "leaf %d", index)
	}

	// A correct branch with the wrong position index must not verify.
	err := spv.VerifyInclusion(leaves[0], root, branches[0], 1)
	require.ErrorIs(t, err, spv.ErrProofMismatch)

	// Tampered root.
	badRoot := root
	badRoot[0] ^= 0xff
	err = spv.VerifyInclusion(leaves[0], badRoot, branches[0], 0)
	require.ErrorIs(t, err, spv.ErrProofMismatch)

	// Ragged branch length.
	err = spv.VerifyInclusion(leaves[0], root, branches[0][:33], 0)
	require.ErrorIs(t, err, spv.ErrMalformedProof)
}

// TestVerifyInclusionSingleTx covers a block holding only the proven
// transaction: the root is the transaction hash and the branch is empty.
func TestVerifyInclusionSingleTx(t *testing.T) {
	txHash := chainhash.DoubleHashH([]byte("solo"))

	require.NoError(t, spv.VerifyInclusion(txHash, txHash, nil, 0))

	other := chainhash.DoubleHashH([]byte("other"))
	err := spv.VerifyInclusion(txHash, other, nil, 0)
	require.ErrorIs(t, err, spv.ErrProofMismatch)
}

// mineHeader grinds the nonce until the header hash meets the header's own
// target. With the regression network's relaxed target this terminates after
// a couple of attempts.
func mineHeader(header *wire.BlockHeader) {
	target := blockchain.CompactToBig(header.Bits)
	for {
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return
		}
		header.Nonce++
	}
}

// buildChain mines n linked headers on top of nothing, committing root in
// the first header, and returns their flat serialization.
func buildChain(t *testing.T, n int, bits uint32,
	root chainhash.Hash) []byte {

	var (
		buf      bytes.Buffer
		prevHash chainhash.Hash
	)
	for i := 0; i < n; i++ {
		header := wire.BlockHeader{
			Version:   1,
			PrevBlock: prevHash,
			Timestamp: time.Unix(1600000000+int64(i)*600, 0),
			Bits:      bits,
		}
		if i == 0 {
			header.MerkleRoot = root
		}
		mineHeader(&header)

		require.NoError(t, header.Serialize(&buf))
		prevHash = header.BlockHash()
	}

	return buf.Bytes()
}

func TestParseHeaderChain(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	raw := buildChain(t, 3, params.PowLimitBits, chainhash.Hash{})

	chain, err := spv.ParseHeaderChain(raw)
	require.NoError(t, err)
	require.NoError(t, chain.Validate())

	_, err = spv.ParseHeaderChain(nil)
	require.ErrorIs(t, err, spv.ErrInvalidChainLength)

	_, err = spv.ParseHeaderChain(raw[:len(raw)-1])
	require.ErrorIs(t, err, spv.ErrInvalidChainLength)
}

func TestValidateLinkage(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	raw := buildChain(t, 3, params.PowLimitBits, chainhash.Hash{})

	// Break the second header's previous block reference. The prev block
	// field starts at offset 4 within a header.
	raw[spv.HeaderSize+4] ^= 0xff

	chain, err := spv.ParseHeaderChain(raw)
	require.NoError(t, err)
	require.ErrorIs(t, chain.Validate(), spv.ErrInvalidHeaderChain)
}

func TestValidateProofOfWork(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	raw := buildChain(t, 1, params.PowLimitBits, chainhash.Hash{})

	chain, err := spv.ParseHeaderChain(raw)
	require.NoError(t, err)
	require.NoError(t, chain.Validate())

	// Claiming the mainnet difficulty-1 target without the work to back
	// it up must fail: the bits field starts at offset 72.
	raw[72] = 0xff
	raw[73] = 0xff
	raw[74] = 0x00
	raw[75] = 0x1d

	chain, err = spv.ParseHeaderChain(raw)
	require.NoError(t, err)
	require.ErrorIs(t, chain.Validate(), spv.ErrInsufficientWork)
}

func TestEvaluateDifficulty(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	one := big.NewInt(1)

	chain6, err := spv.ParseHeaderChain(
		buildChain(t, 6, params.PowLimitBits, chainhash.Hash{}),
	)
	require.NoError(t, err)

	chain5, err := spv.ParseHeaderChain(
		buildChain(t, 5, params.PowLimitBits, chainhash.Hash{}),
	)
	require.NoError(t, err)

	// Six regtest headers carry difficulty six.
	require.Equal(t, big.NewInt(6), chain6.AccumulatedDifficulty(params))

	// Reference matches the current epoch.
	require.NoError(t, chain6.EvaluateDifficulty(params, one, one, 6))

	// Reference matches only the previous epoch.
	require.NoError(
		t, chain6.EvaluateDifficulty(params, big.NewInt(9), one, 6),
	)

	// Five headers fall one confirmation short.
	err = chain5.EvaluateDifficulty(params, one, one, 6)
	require.ErrorIs(t, err, spv.ErrInsufficientConfirmations)

	// Neither epoch matches the chain's difficulty.
	err = chain6.EvaluateDifficulty(
		params, big.NewInt(7), big.NewInt(3), 6,
	)
	require.ErrorIs(t, err, spv.ErrUnrecognizedDifficulty)
}

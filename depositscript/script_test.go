package depositscript_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"

	"github.com/sputn1ck/sweepbridge/depositscript"
)

func testParams() *depositscript.Params {
	p := &depositscript.Params{}
	for i := range p.Depositor {
		p.Depositor[i] = 0x01
	}
	for i := range p.BlindingFactor {
		p.BlindingFactor[i] = 0x02
	}
	for i := range p.WalletPubKeyHash {
		p.WalletPubKeyHash[i] = 0x03
	}
	for i := range p.RefundPubKeyHash {
		p.RefundPubKeyHash[i] = 0x04
	}
	p.RefundLocktime = [4]byte{0x60, 0xbc, 0xea, 0x61}
	return p
}

// p2shOutput wraps a script hash into the canonical P2SH locking script.
func p2shOutput(scriptHash []byte) []byte {
	out := []byte{txscript.OP_HASH160, txscript.OP_DATA_20}
	out = append(out, scriptHash...)
	return append(out, txscript.OP_EQUAL)
}

// p2wshOutput wraps a witness script hash into the canonical P2WSH locking
// script.
func p2wshOutput(scriptHash []byte) []byte {
	out := []byte{txscript.OP_0, txscript.OP_DATA_32}
	return append(out, scriptHash...)
}

// TestBuildTemplate pins the opcode template the wallet software expects,
// byte for byte.
func TestBuildTemplate(t *testing.T) {
	p := testParams()

	script, err := depositscript.Build(p)
	require.NoError(t, err)
	require.Len(t, script, 92)

	// <depositor> DROP
	require.Equal(t, byte(txscript.OP_DATA_20), script[0])
	require.Equal(t, p.Depositor[:], script[1:21])
	require.Equal(t, byte(txscript.OP_DROP), script[21])

	// <blindingFactor> DROP
	require.Equal(t, byte(txscript.OP_DATA_8), script[22])
	require.Equal(t, p.BlindingFactor[:], script[23:31])
	require.Equal(t, byte(txscript.OP_DROP), script[31])

	// DUP HASH160 <walletPubKeyHash> EQUAL IF CHECKSIG
	require.Equal(t, byte(txscript.OP_DUP), script[32])
	require.Equal(t, byte(txscript.OP_HASH160), script[33])
	require.Equal(t, byte(txscript.OP_DATA_20), script[34])
	require.Equal(t, p.WalletPubKeyHash[:], script[35:55])
	require.Equal(t, byte(txscript.OP_EQUAL), script[55])
	require.Equal(t, byte(txscript.OP_IF), script[56])
	require.Equal(t, byte(txscript.OP_CHECKSIG), script[57])

	// ELSE DUP HASH160 <refundPubKeyHash> EQUALVERIFY
	require.Equal(t, byte(txscript.OP_ELSE), script[58])
	require.Equal(t, byte(txscript.OP_DUP), script[59])
	require.Equal(t, byte(txscript.OP_HASH160), script[60])
	require.Equal(t, byte(txscript.OP_DATA_20), script[61])
	require.Equal(t, p.RefundPubKeyHash[:], script[62:82])
	require.Equal(t, byte(txscript.OP_EQUALVERIFY), script[82])

	// <refundLocktime> CHECKLOCKTIMEVERIFY DROP CHECKSIG ENDIF. The
	// locktime is pushed as its raw 4 little-endian bytes.
	require.Equal(t, byte(txscript.OP_DATA_4), script[83])
	require.Equal(t, p.RefundLocktime[:], script[84:88])
	require.Equal(t, byte(txscript.OP_CHECKLOCKTIMEVERIFY), script[88])
	require.Equal(t, byte(txscript.OP_DROP), script[89])
	require.Equal(t, byte(txscript.OP_CHECKSIG), script[90])
	require.Equal(t, byte(txscript.OP_ENDIF), script[91])
}

func TestMatchScriptHashOutput(t *testing.T) {
	p := testParams()

	expected, err := depositscript.Build(p)
	require.NoError(t, err)

	output := p2shOutput(btcutil.Hash160(expected))
	require.NoError(t, depositscript.MatchFundingOutput(p, output))

	// A different blinding factor derives a different script.
	other := testParams()
	other.BlindingFactor[0] ^= 0xff
	err = depositscript.MatchFundingOutput(other, output)
	require.ErrorIs(t, err, depositscript.ErrWrongScriptHash)
}

func TestMatchWitnessScriptHashOutput(t *testing.T) {
	p := testParams()

	expected, err := depositscript.Build(p)
	require.NoError(t, err)

	scriptHash := sha256.Sum256(expected)
	output := p2wshOutput(scriptHash[:])
	require.NoError(t, depositscript.MatchFundingOutput(p, output))

	other := testParams()
	other.WalletPubKeyHash[0] ^= 0xff
	err = depositscript.MatchFundingOutput(other, output)
	require.ErrorIs(t, err, depositscript.ErrWrongScriptHash)
}

// TestRejectKeyHashLookalike ensures a plain P2PKH output never matches,
// even when it embeds the expected script's own 20 byte hash.
func TestRejectKeyHashLookalike(t *testing.T) {
	p := testParams()

	expected, err := depositscript.Build(p)
	require.NoError(t, err)

	output := []byte{txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20}
	output = append(output, btcutil.Hash160(expected)...)
	output = append(output, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)

	err = depositscript.MatchFundingOutput(p, output)
	require.ErrorIs(t, err, depositscript.ErrWrongScriptHash)
}

// TestRejectUnsupportedHashLength ensures an embedded hash that is neither
// 20 nor 32 bytes is refused instead of silently passed through.
func TestRejectUnsupportedHashLength(t *testing.T) {
	p := testParams()

	output := []byte{txscript.OP_HASH160, txscript.OP_DATA_21}
	output = append(output, make([]byte, 21)...)
	output = append(output, txscript.OP_EQUAL)

	err := depositscript.MatchFundingOutput(p, output)
	require.ErrorIs(t, err, depositscript.ErrWrongScriptHash)
}

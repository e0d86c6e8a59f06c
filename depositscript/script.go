package depositscript

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrWrongScriptHash is returned when the funding output does not lock
	// to the expected deposit script, or uses an unsupported output form.
	ErrWrongScriptHash = errors.New("funding output locks to a different script")
)

// Params are the reveal fields the deposit script commits to. The script is
// a compatibility contract with the custodian wallet software and must be
// reproduced byte for byte.
type Params struct {
	// Depositor is the 20 byte destination ledger identity.
	Depositor [20]byte

	// BlindingFactor is an opaque 8 byte refund blinding factor. It is
	// never interpreted as a number, only pushed as raw bytes.
	BlindingFactor [8]byte

	// WalletPubKeyHash is the 20 byte hash of the custodian wallet's
	// public key.
	WalletPubKeyHash [20]byte

	// RefundPubKeyHash is the 20 byte hash of the depositor's refund
	// public key.
	RefundPubKeyHash [20]byte

	// RefundLocktime is the raw 4 byte little-endian locktime after which
	// the refund path becomes spendable.
	RefundLocktime [4]byte
}

// Build constructs the deposit locking script:
//
//	<depositor> DROP
//	<blindingFactor> DROP
//	DUP HASH160 <walletPubKeyHash> EQUAL
//	IF
//	  CHECKSIG
//	ELSE
//	  DUP HASH160 <refundPubKeyHash> EQUALVERIFY
//	  <refundLocktime> CHECKLOCKTIMEVERIFY DROP CHECKSIG
//	ENDIF
//
// The locktime is pushed as its raw 4 little-endian bytes, not as a minimal
// script number.
func Build(p *Params) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddData(p.Depositor[:])
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(p.BlindingFactor[:])
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(p.WalletPubKeyHash[:])
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(p.RefundPubKeyHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(p.RefundLocktime[:])
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// MatchFundingOutput checks that outputScript pays to the deposit script
// derived from p. Two output forms are supported: a script-hash output
// embedding the 20 byte HASH160 of the deposit script and a witness
// script-hash output embedding its 32 byte SHA256. Plain key-hash outputs
// never match, even though they also embed 20 byte hashes; the comparison
// target is always the expected script's own hash.
func MatchFundingOutput(p *Params, outputScript []byte) error {
	expected, err := Build(p)
	if err != nil {
		return err
	}

	switch {
	case isScriptHash(outputScript):
		if bytes.Equal(outputScript[2:22], btcutil.Hash160(expected)) {
			return nil
		}

	case isWitnessScriptHash(outputScript):
		scriptHash := sha256.Sum256(expected)
		if bytes.Equal(outputScript[2:34], scriptHash[:]) {
			return nil
		}
	}

	return ErrWrongScriptHash
}

// isScriptHash recognizes the canonical P2SH form:
// OP_HASH160 <20 byte hash> OP_EQUAL.
func isScriptHash(script []byte) bool {
	return len(script) == 23 &&
		script[0] == txscript.OP_HASH160 &&
		script[1] == txscript.OP_DATA_20 &&
		script[22] == txscript.OP_EQUAL
}

// isWitnessScriptHash recognizes the canonical P2WSH form:
// OP_0 <32 byte hash>.
func isWitnessScriptHash(script []byte) bool {
	return len(script) == 34 &&
		script[0] == txscript.OP_0 &&
		script[1] == txscript.OP_DATA_32
}

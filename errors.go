package sweepbridge

import (
	"errors"

	"github.com/sputn1ck/sweepbridge/bridgedb"
	"github.com/sputn1ck/sweepbridge/btctx"
	"github.com/sputn1ck/sweepbridge/depositscript"
	"github.com/sputn1ck/sweepbridge/spv"
)

var (
	// ErrMalformedTransaction is returned when a sweep transaction's
	// input or output vector is not length consistent.
	ErrMalformedTransaction = errors.New("transaction vectors are malformed")

	// ErrInvalidDepositAmount is returned when a funding output's value
	// exceeds btcutil.MaxSatoshi. Amounts held by the registry always
	// fit the signed satoshi range.
	ErrInvalidDepositAmount = errors.New("deposit value exceeds maximum satoshi amount")

	// ErrMultiOutputSweep is returned when a sweep transaction carries
	// more than one output. A single consolidated output keeps the
	// accounting unambiguous.
	ErrMultiOutputSweep = errors.New("sweep must have exactly one output")

	// ErrUnrecognizedInput is returned when a sweep input matches neither
	// a revealed deposit nor the previous sweep's output.
	ErrUnrecognizedInput = errors.New("sweep input matches no revealed deposit or prior sweep")

	// ErrMissingChainedInput is returned when a non-initial sweep does
	// not spend the previous sweep's output.
	ErrMissingChainedInput = errors.New("sweep does not spend the previous sweep output")

	// ErrDoubleSweep is returned when a sweep references a deposit that
	// was already counted in an earlier sweep.
	ErrDoubleSweep = errors.New("sweep references an already swept deposit")

	// ErrValueMismatch is returned when the sweep output claims more
	// value than its recognized inputs supply.
	ErrValueMismatch = errors.New("sweep output value exceeds recognized input value")

	// ErrLedgerCredit is returned when the balance ledger rejects a
	// credit instruction.
	ErrLedgerCredit = errors.New("balance ledger rejected credit")
)

// RejectClass groups rejection reasons for operator visible reporting.
// Every rejection is terminal for the current operation and leaves no
// partial state behind.
type RejectClass uint8

const (
	// RejectUnknown classifies errors outside the engine's taxonomy,
	// such as store I/O failures.
	RejectUnknown RejectClass = iota

	// RejectMalformedInput covers codec and parse failures.
	RejectMalformedInput

	// RejectProofInvalid covers merkle and difficulty proof failures.
	RejectProofInvalid

	// RejectPolicyViolation covers structurally valid but disallowed
	// sweeps.
	RejectPolicyViolation

	// RejectStateConflict covers lifecycle conflicts in the deposit
	// registry.
	RejectStateConflict
)

// String returns the operator visible name of the class.
func (c RejectClass) String() string {
	switch c {
	case RejectMalformedInput:
		return "MalformedInput"
	case RejectProofInvalid:
		return "ProofInvalid"
	case RejectPolicyViolation:
		return "PolicyViolation"
	case RejectStateConflict:
		return "StateConflict"
	default:
		return "Unknown"
	}
}

// Classify maps an engine error onto its rejection class.
func Classify(err error) RejectClass {
	switch {
	case errors.Is(err, btctx.ErrMalformedLength),
		errors.Is(err, btctx.ErrIndexOutOfRange),
		errors.Is(err, btctx.ErrMalformedVector),
		errors.Is(err, ErrMalformedTransaction),
		errors.Is(err, spv.ErrMalformedProof),
		errors.Is(err, spv.ErrInvalidChainLength),
		errors.Is(err, depositscript.ErrWrongScriptHash):

		return RejectMalformedInput

	case errors.Is(err, spv.ErrProofMismatch),
		errors.Is(err, spv.ErrInvalidHeaderChain),
		errors.Is(err, spv.ErrInsufficientWork),
		errors.Is(err, spv.ErrUnrecognizedDifficulty),
		errors.Is(err, spv.ErrInsufficientConfirmations):

		return RejectProofInvalid

	case errors.Is(err, ErrInvalidDepositAmount),
		errors.Is(err, ErrMultiOutputSweep),
		errors.Is(err, ErrUnrecognizedInput),
		errors.Is(err, ErrMissingChainedInput),
		errors.Is(err, ErrValueMismatch):

		return RejectPolicyViolation

	case errors.Is(err, ErrDoubleSweep),
		errors.Is(err, bridgedb.ErrAlreadyRevealed),
		errors.Is(err, bridgedb.ErrNotRevealed),
		errors.Is(err, bridgedb.ErrAlreadySwept):

		return RejectStateConflict

	default:
		return RejectUnknown
	}
}

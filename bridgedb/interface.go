package bridgedb

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/sputn1ck/sweepbridge/btctx"
)

var (
	// ErrAlreadyRevealed is returned when a deposit key has already been
	// revealed.
	ErrAlreadyRevealed = errors.New("deposit already revealed")

	// ErrNotRevealed is returned when a deposit key is unknown to the
	// registry.
	ErrNotRevealed = errors.New("deposit not revealed")

	// ErrAlreadySwept is returned when a deposit has a non-zero sweep
	// timestamp.
	ErrAlreadySwept = errors.New("deposit already swept")
)

// DepositKey addresses a deposit record by its funding outpoint. It is the
// SHA256 of the little-endian funding txid followed by the little-endian
// funding output index.
type DepositKey chainhash.Hash

// NewDepositKey derives the registry key for a funding outpoint.
func NewDepositKey(fundingTxHash chainhash.Hash,
	fundingOutputIndex uint32) DepositKey {

	buf := make([]byte, 36)
	copy(buf, fundingTxHash[:])
	binary.LittleEndian.PutUint32(buf[32:], fundingOutputIndex)

	return DepositKey(chainhash.HashH(buf))
}

// Deposit is a single deposit record. Records are created once on reveal,
// mutated exactly once more to set the sweep timestamp, and never deleted.
type Deposit struct {
	// Depositor is the destination ledger identity to credit.
	Depositor [20]byte

	// AmountLE is the funding output's raw 8 byte little-endian satoshi
	// value. It is widened only at use sites.
	AmountLE [8]byte

	// Vault is the destination vault identity declared at reveal.
	Vault [20]byte

	// RevealedAt is the reveal timestamp.
	RevealedAt time.Time

	// SweptAt is the sweep timestamp. The zero value means unswept.
	SweptAt time.Time
}

// Amount widens the deposit's raw value.
func (d *Deposit) Amount() btcutil.Amount {
	return btcutil.Amount(btctx.LeBytesToU64(d.AmountLE))
}

// ChainState links consecutive sweeps into one value conserving sequence.
type ChainState struct {
	// PrevSweepHash is the previous sweep transaction's id. The zero
	// value means no sweep has happened yet.
	PrevSweepHash chainhash.Hash

	// PrevSweepValueLE is the previous sweep's sole output value as raw
	// little-endian bytes.
	PrevSweepValueLE [8]byte
}

// SweepUpdate is the atomic set of mutations a successful sweep applies:
// every listed deposit gets its sweep timestamp set and the chain state is
// advanced to the new sweep. Stores apply it all or nothing.
type SweepUpdate struct {
	// SweepTxHash is the new sweep transaction's id.
	SweepTxHash chainhash.Hash

	// OutputValueLE is the new sweep's sole output value.
	OutputValueLE [8]byte

	// SweptAt is the timestamp recorded on every swept deposit.
	SweptAt time.Time

	// Deposits are the keys of the deposits consolidated by the sweep.
	Deposits []DepositKey
}

// Store is the deposit registry and chain state store. It is exclusively
// owned by the reconciliation engine; callers serialize access externally.
type Store interface {
	// RevealDeposit inserts a deposit record under key. It fails with
	// ErrAlreadyRevealed if the key exists.
	RevealDeposit(ctx context.Context, key DepositKey,
		deposit *Deposit) error

	// GetDeposit returns the deposit record stored under key, or nil if
	// the key is unknown.
	GetDeposit(ctx context.Context, key DepositKey) (*Deposit, error)

	// ChainState returns the current sweep chain state.
	ChainState(ctx context.Context) (ChainState, error)

	// CommitSweep atomically applies a sweep update. It fails with
	// ErrNotRevealed or ErrAlreadySwept, leaving the store unchanged, if
	// any listed deposit cannot transition to swept.
	CommitSweep(ctx context.Context, update *SweepUpdate) error

	// Close closes the underlying database.
	Close() error
}

package sweepbridge

import (
	"context"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

// DifficultyRelay reports the source chain's epoch difficulties. It is
// queried once per sweep verification.
type DifficultyRelay interface {
	// CurrentEpochDifficulty returns the difficulty of the current
	// epoch.
	CurrentEpochDifficulty(ctx context.Context) (*big.Int, error)

	// PreviousEpochDifficulty returns the difficulty of the previous
	// epoch.
	PreviousEpochDifficulty(ctx context.Context) (*big.Int, error)
}

// BalanceLedger receives one credit per swept deposit. A well formed credit
// is assumed to not fail; an error aborts the enclosing sweep.
type BalanceLedger interface {
	// Credit increases the balance of the given depositor identity.
	Credit(ctx context.Context, depositor [20]byte,
		amount btcutil.Amount) error
}

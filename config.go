package sweepbridge

import "github.com/btcsuite/btcd/chaincfg"

// Config holds the engine's policy parameters.
type Config struct {
	// ChainParams is the source chain configuration (mainnet, testnet...)
	// the engine verifies proofs against.
	ChainParams *chaincfg.Params

	// TxProofDifficultyFactor is the multiple of the reference epoch
	// difficulty a sweep proof's header chain must accumulate. Test
	// configurations run with a lower factor.
	TxProofDifficultyFactor int64
}

// DefaultConfig returns the mainnet policy configuration.
func DefaultConfig() Config {
	return Config{
		ChainParams:             &chaincfg.MainNetParams,
		TxProofDifficultyFactor: 6,
	}
}

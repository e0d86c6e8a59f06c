package sweepbridge

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/sputn1ck/sweepbridge/bridgedb"
	"github.com/sputn1ck/sweepbridge/btctx"
	"github.com/sputn1ck/sweepbridge/depositscript"
	"github.com/sputn1ck/sweepbridge/spv"
)

// revealSubscriptionBuffer is the channel buffer of a reveal notification
// subscriber. Notifications to a full subscriber are dropped.
const revealSubscriptionBuffer = 32

// RevealParams is a depositor's declared intent for a funding output.
// Immutable once submitted.
type RevealParams struct {
	// FundingOutputIndex is the index of the deposit output within the
	// funding transaction.
	FundingOutputIndex uint32

	// Depositor is the destination ledger identity to credit on sweep.
	Depositor [20]byte

	// BlindingFactor is the opaque 8 byte refund blinding factor.
	BlindingFactor [8]byte

	// WalletPubKeyHash is the custodian wallet's public key hash.
	WalletPubKeyHash [20]byte

	// RefundPubKeyHash is the depositor's refund public key hash.
	RefundPubKeyHash [20]byte

	// RefundLocktime is the raw 4 byte little-endian refund locktime.
	RefundLocktime [4]byte

	// Vault is the destination vault identity.
	Vault [20]byte
}

// RevealEvent is the notification emitted on a successful reveal. Custodian
// software observes these to decide sweep inclusion.
type RevealEvent struct {
	FundingTxHash      chainhash.Hash
	FundingOutputIndex uint32
	Depositor          [20]byte
	BlindingFactor     [8]byte
	WalletPubKeyHash   [20]byte
	RefundPubKeyHash   [20]byte
	RefundLocktime     [4]byte
}

// SweepProof is the SPV proof accompanying a sweep transaction: a merkle
// branch into the first header's block and a header chain demonstrating
// accumulated work.
type SweepProof struct {
	// MerkleProof is the flat concatenation of 32 byte sibling hashes.
	MerkleProof []byte

	// TxIndexInBlock is the sweep transaction's position in the block.
	TxIndexInBlock uint32

	// BitcoinHeaders is the flat concatenation of 80 byte headers,
	// lowest height first.
	BitcoinHeaders []byte
}

// Credit is one ledger credit instruction produced by a sweep.
type Credit struct {
	// Depositor is the credited destination ledger identity.
	Depositor [20]byte

	// Amount is the credited deposit value.
	Amount btcutil.Amount
}

// SweepResult reports a committed sweep.
type SweepResult struct {
	// SweepTxHash is the sweep transaction's id.
	SweepTxHash chainhash.Hash

	// TotalSwept is the sum of all newly swept deposit values. The
	// chained input's value is already custodied change and is not
	// included.
	TotalSwept btcutil.Amount

	// Credits are the per-deposit ledger credits, in input order.
	Credits []Credit
}

// Bridge is the deposit and sweep reconciliation engine. It owns the
// deposit registry exclusively; all mutation funnels through RevealDeposit
// and SubmitSweepProof, each of which verifies fully before committing
// once.
type Bridge struct {
	cfg    Config
	store  bridgedb.Store
	relay  DifficultyRelay
	ledger BalanceLedger

	// mtx serializes the two public operations; each runs to completion
	// with no internal suspension.
	mtx sync.Mutex

	revealSubs []chan RevealEvent
}

// NewBridge creates a bridge engine over the given store and collaborators.
func NewBridge(cfg Config, store bridgedb.Store, relay DifficultyRelay,
	ledger BalanceLedger) *Bridge {

	return &Bridge{
		cfg:    cfg,
		store:  store,
		relay:  relay,
		ledger: ledger,
	}
}

// SubscribeReveals registers a reveal notification subscriber. The returned
// channel is buffered; notifications that cannot be delivered immediately
// once the buffer is full are dropped.
func (b *Bridge) SubscribeReveals() <-chan RevealEvent {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub := make(chan RevealEvent, revealSubscriptionBuffer)
	b.revealSubs = append(b.revealSubs, sub)

	return sub
}

// notifyReveal delivers an event to all subscribers without blocking.
func (b *Bridge) notifyReveal(event RevealEvent) {
	for _, sub := range b.revealSubs {
		select {
		case sub <- event:
		default:
			log.Warnf("Dropping reveal notification for %v: "+
				"subscriber buffer full", event.FundingTxHash)
		}
	}
}

// RevealDeposit declares a deposit to the registry. The funding transaction
// is the raw byte string the depositor locked funds with; the reveal
// parameters must reproduce the funding output's locking script byte for
// byte. On success the deposit enters the Revealed state and a reveal
// notification is emitted.
func (b *Bridge) RevealDeposit(ctx context.Context, fundingTx *btctx.TxInfo,
	reveal *RevealParams) (bridgedb.DepositKey, error) {

	b.mtx.Lock()
	defer b.mtx.Unlock()

	var key bridgedb.DepositKey

	if err := btctx.ValidateInputVector(fundingTx.InputVector); err != nil {
		return key, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if err := btctx.ValidateOutputVector(fundingTx.OutputVector); err != nil {
		return key, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	output, err := btctx.ExtractOutputAt(
		fundingTx.OutputVector, reveal.FundingOutputIndex,
	)
	if err != nil {
		return key, err
	}

	outputScript, err := btctx.OutputScript(output)
	if err != nil {
		return key, err
	}

	scriptParams := &depositscript.Params{
		Depositor:        reveal.Depositor,
		BlindingFactor:   reveal.BlindingFactor,
		WalletPubKeyHash: reveal.WalletPubKeyHash,
		RefundPubKeyHash: reveal.RefundPubKeyHash,
		RefundLocktime:   reveal.RefundLocktime,
	}
	err = depositscript.MatchFundingOutput(scriptParams, outputScript)
	if err != nil {
		return key, err
	}

	valueLE, err := btctx.OutputValueLE(output)
	if err != nil {
		return key, err
	}
	if btctx.LeBytesToU64(valueLE) > uint64(btcutil.MaxSatoshi) {
		return key, ErrInvalidDepositAmount
	}

	fundingTxHash := fundingTx.Hash()
	key = bridgedb.NewDepositKey(fundingTxHash, reveal.FundingOutputIndex)

	deposit := &bridgedb.Deposit{
		Depositor:  reveal.Depositor,
		AmountLE:   valueLE,
		Vault:      reveal.Vault,
		RevealedAt: time.Now().UTC(),
	}
	if err := b.store.RevealDeposit(ctx, key, deposit); err != nil {
		return key, err
	}

	log.Infof("Revealed deposit %v:%d of %v for depositor %x",
		fundingTxHash, reveal.FundingOutputIndex, deposit.Amount(),
		reveal.Depositor)

	b.notifyReveal(RevealEvent{
		FundingTxHash:      fundingTxHash,
		FundingOutputIndex: reveal.FundingOutputIndex,
		Depositor:          reveal.Depositor,
		BlindingFactor:     reveal.BlindingFactor,
		WalletPubKeyHash:   reveal.WalletPubKeyHash,
		RefundPubKeyHash:   reveal.RefundPubKeyHash,
		RefundLocktime:     reveal.RefundLocktime,
	})

	return key, nil
}

// SubmitSweepProof verifies a sweep transaction's SPV proof, reconciles its
// inputs against the deposit registry, and on success atomically marks
// every consolidated deposit swept, advances the sweep chain state and
// emits one ledger credit per deposit. Any failure rejects the sweep with
// no state change.
func (b *Bridge) SubmitSweepProof(ctx context.Context, sweepTx *btctx.TxInfo,
	proof *SweepProof) (*SweepResult, error) {

	b.mtx.Lock()
	defer b.mtx.Unlock()

	// Structural well-formedness of both vectors comes first; nothing
	// below may touch a vector that does not parse cleanly.
	if err := btctx.ValidateInputVector(sweepTx.InputVector); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if err := btctx.ValidateOutputVector(sweepTx.OutputVector); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	// A sweep spends at least one input; an inputless transaction is not
	// a valid bitcoin transaction and explains nothing.
	inputCount, err := btctx.InputCount(sweepTx.InputVector)
	if err != nil {
		return nil, err
	}
	if inputCount == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrMalformedTransaction)
	}

	sweepTxHash := sweepTx.Hash()

	if err := b.verifyProof(ctx, sweepTxHash, proof); err != nil {
		return nil, err
	}

	// A sweep consolidates everything into exactly one output.
	outputCount, err := btctx.OutputCount(sweepTx.OutputVector)
	if err != nil {
		return nil, err
	}
	if outputCount != 1 {
		return nil, ErrMultiOutputSweep
	}

	output, err := btctx.ExtractOutputAt(sweepTx.OutputVector, 0)
	if err != nil {
		return nil, err
	}
	outputValueLE, err := btctx.OutputValueLE(output)
	if err != nil {
		return nil, err
	}

	chainState, err := b.store.ChainState(ctx)
	if err != nil {
		return nil, err
	}

	walk, err := b.walkSweepInputs(ctx, sweepTx, chainState)
	if err != nil {
		return nil, err
	}

	// A non-initial sweep must chain off the previous sweep's output.
	zeroHash := chainhash.Hash{}
	if chainState.PrevSweepHash != zeroHash && !walk.chainInputFound {
		return nil, ErrMissingChainedInput
	}

	// Value conservation: the consolidated output cannot claim more than
	// the recognized inputs supply. The difference is the miner fee.
	// walk.totalSwept is non-negative and capped at btcutil.MaxSatoshi,
	// so the widening and the sum below cannot wrap.
	available := uint64(walk.totalSwept)
	if walk.chainInputFound {
		prev := btctx.LeBytesToU64(chainState.PrevSweepValueLE)
		if prev > math.MaxUint64-available {
			return nil, ErrValueMismatch
		}
		available += prev
	}
	if btctx.LeBytesToU64(outputValueLE) > available {
		return nil, ErrValueMismatch
	}

	// Every check has passed; commit all registry mutations at once.
	err = b.store.CommitSweep(ctx, &bridgedb.SweepUpdate{
		SweepTxHash:   sweepTxHash,
		OutputValueLE: outputValueLE,
		SweptAt:       time.Now().UTC(),
		Deposits:      walk.depositKeys,
	})
	if err != nil {
		return nil, err
	}

	// The ledger collaborator is assumed to accept every well formed
	// credit. A failure here is fatal for the caller.
	for _, credit := range walk.credits {
		err := b.ledger.Credit(ctx, credit.Depositor, credit.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerCredit, err)
		}
	}

	log.Infof("Swept %d deposits totalling %v in sweep %v",
		len(walk.depositKeys), walk.totalSwept, sweepTxHash)

	return &SweepResult{
		SweepTxHash: sweepTxHash,
		TotalSwept:  walk.totalSwept,
		Credits:     walk.credits,
	}, nil
}

// verifyProof checks the sweep's merkle inclusion and header chain against
// the relay's reference difficulties. It is pure; no state is touched.
func (b *Bridge) verifyProof(ctx context.Context, sweepTxHash chainhash.Hash,
	proof *SweepProof) error {

	chain, err := spv.ParseHeaderChain(proof.BitcoinHeaders)
	if err != nil {
		return err
	}
	if err := chain.Validate(); err != nil {
		return err
	}

	err = spv.VerifyInclusion(
		sweepTxHash, chain.FirstMerkleRoot(), proof.MerkleProof,
		proof.TxIndexInBlock,
	)
	if err != nil {
		return err
	}

	current, err := b.relay.CurrentEpochDifficulty(ctx)
	if err != nil {
		return err
	}
	previous, err := b.relay.PreviousEpochDifficulty(ctx)
	if err != nil {
		return err
	}

	return chain.EvaluateDifficulty(
		b.cfg.ChainParams, current, previous,
		b.cfg.TxProofDifficultyFactor,
	)
}

// sweepWalk is the outcome of classifying every sweep input.
type sweepWalk struct {
	depositKeys     []bridgedb.DepositKey
	credits         []Credit
	totalSwept      btcutil.Amount
	chainInputFound bool
}

// walkSweepInputs classifies each sweep input as a known unswept deposit or
// the chained output of the previous sweep. Every input must be explained;
// the walk performs lookups only and leaves all mutation to the caller.
func (b *Bridge) walkSweepInputs(ctx context.Context, sweepTx *btctx.TxInfo,
	chainState bridgedb.ChainState) (*sweepWalk, error) {

	inputCount, err := btctx.InputCount(sweepTx.InputVector)
	if err != nil {
		return nil, err
	}

	walk := &sweepWalk{}
	seen := make(map[bridgedb.DepositKey]struct{})
	zeroHash := chainhash.Hash{}

	for i := uint32(0); uint64(i) < inputCount; i++ {
		input, err := btctx.ExtractInputAt(sweepTx.InputVector, i)
		if err != nil {
			return nil, err
		}

		prevTxHash, prevIndex, err := btctx.InputOutpoint(input)
		if err != nil {
			return nil, err
		}

		key := bridgedb.NewDepositKey(prevTxHash, prevIndex)
		deposit, err := b.store.GetDeposit(ctx, key)
		if err != nil {
			return nil, err
		}

		switch {
		case deposit != nil:
			if !deposit.SweptAt.IsZero() {
				return nil, ErrDoubleSweep
			}
			if _, ok := seen[key]; ok {
				return nil, ErrDoubleSweep
			}
			seen[key] = struct{}{}

			// Reveal bounds every stored amount at MaxSatoshi; the
			// running total must stay within that bound too.
			amount := deposit.Amount()
			if amount < 0 || amount > btcutil.MaxSatoshi ||
				walk.totalSwept > btcutil.MaxSatoshi-amount {

				return nil, ErrValueMismatch
			}

			walk.totalSwept += amount
			walk.depositKeys = append(walk.depositKeys, key)
			walk.credits = append(walk.credits, Credit{
				Depositor: deposit.Depositor,
				Amount:    amount,
			})

		case prevTxHash == chainState.PrevSweepHash &&
			chainState.PrevSweepHash != zeroHash &&
			prevIndex == 0 && !walk.chainInputFound:

			// The previous sweep's sole output. Its value is
			// already custodied change and contributes nothing to
			// the swept total.
			walk.chainInputFound = true

		default:
			return nil, ErrUnrecognizedInput
		}
	}

	return walk, nil
}

package bridgedb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/sputn1ck/sweepbridge/bridgedb"
	"github.com/sputn1ck/sweepbridge/btctx"
)

// newTestSqliteStore creates a throwaway sqlite backed store.
func newTestSqliteStore(t *testing.T) *bridgedb.SqliteStore {
	store, err := bridgedb.NewSqliteStore(&bridgedb.SqliteConfig{
		DatabaseFileName: filepath.Join(t.TempDir(), "bridge.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func testDeposit(amount uint64) *bridgedb.Deposit {
	deposit := &bridgedb.Deposit{
		AmountLE:   btctx.U64ToLeBytes(amount),
		RevealedAt: time.Unix(1700000000, 0).UTC(),
	}
	for i := range deposit.Depositor {
		deposit.Depositor[i] = 0x11
	}

	return deposit
}

func testKey(b byte) bridgedb.DepositKey {
	var hash chainhash.Hash
	hash[0] = b
	return bridgedb.NewDepositKey(hash, 0)
}

// storeCases runs every store implementation through the same suite.
func storeCases(t *testing.T, run func(t *testing.T, store bridgedb.Store)) {
	t.Run("inmem", func(t *testing.T) {
		run(t, bridgedb.NewInmemStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		run(t, newTestSqliteStore(t))
	})
}

func TestRevealDeposit(t *testing.T) {
	storeCases(t, func(t *testing.T, store bridgedb.Store) {
		ctx := context.Background()
		key := testKey(1)

		deposit := testDeposit(10000)
		require.NoError(t, store.RevealDeposit(ctx, key, deposit))

		// A second reveal of the same key is rejected and leaves the
		// record unchanged.
		other := testDeposit(99999)
		err := store.RevealDeposit(ctx, key, other)
		require.ErrorIs(t, err, bridgedb.ErrAlreadyRevealed)

		stored, err := store.GetDeposit(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, stored)
		require.Equal(t, deposit.AmountLE, stored.AmountLE)
		require.True(t, stored.SweptAt.IsZero())
		require.Equal(t, bridgedb.StateRevealed, stored.State())
	})
}

func TestGetDepositUnknown(t *testing.T) {
	storeCases(t, func(t *testing.T, store bridgedb.Store) {
		deposit, err := store.GetDeposit(context.Background(), testKey(9))
		require.NoError(t, err)
		require.Nil(t, deposit)
	})
}

func TestCommitSweep(t *testing.T) {
	storeCases(t, func(t *testing.T, store bridgedb.Store) {
		ctx := context.Background()
		key1, key2 := testKey(1), testKey(2)

		require.NoError(t, store.RevealDeposit(ctx, key1, testDeposit(10000)))
		require.NoError(t, store.RevealDeposit(ctx, key2, testDeposit(20000)))

		// Initially there is no sweep chain.
		state, err := store.ChainState(ctx)
		require.NoError(t, err)
		require.Equal(t, chainhash.Hash{}, state.PrevSweepHash)

		sweepHash := chainhash.DoubleHashH([]byte("sweep"))
		update := &bridgedb.SweepUpdate{
			SweepTxHash:   sweepHash,
			OutputValueLE: btctx.U64ToLeBytes(29000),
			SweptAt:       time.Unix(1700000600, 0).UTC(),
			Deposits:      []bridgedb.DepositKey{key1, key2},
		}
		require.NoError(t, store.CommitSweep(ctx, update))

		for _, key := range update.Deposits {
			deposit, err := store.GetDeposit(ctx, key)
			require.NoError(t, err)
			require.Equal(t, bridgedb.StateSwept, deposit.State())
			require.Equal(t, update.SweptAt, deposit.SweptAt)
		}

		state, err = store.ChainState(ctx)
		require.NoError(t, err)
		require.Equal(t, sweepHash, state.PrevSweepHash)
		require.Equal(t, update.OutputValueLE, state.PrevSweepValueLE)

		// Sweeping the same deposits again is a lifecycle conflict.
		err = store.CommitSweep(ctx, update)
		require.ErrorIs(t, err, bridgedb.ErrAlreadySwept)
	})
}

// TestCommitSweepAtomic ensures a rejected update leaves no deposit half
// marked.
func TestCommitSweepAtomic(t *testing.T) {
	storeCases(t, func(t *testing.T, store bridgedb.Store) {
		ctx := context.Background()
		key := testKey(1)

		require.NoError(t, store.RevealDeposit(ctx, key, testDeposit(10000)))

		update := &bridgedb.SweepUpdate{
			SweepTxHash:   chainhash.DoubleHashH([]byte("sweep")),
			OutputValueLE: btctx.U64ToLeBytes(10000),
			SweptAt:       time.Unix(1700000600, 0).UTC(),
			// The second key was never revealed.
			Deposits: []bridgedb.DepositKey{key, testKey(7)},
		}
		err := store.CommitSweep(ctx, update)
		require.ErrorIs(t, err, bridgedb.ErrNotRevealed)

		// The revealed deposit must still be unswept and the chain
		// state untouched.
		deposit, err := store.GetDeposit(ctx, key)
		require.NoError(t, err)
		require.Equal(t, bridgedb.StateRevealed, deposit.State())

		state, err := store.ChainState(ctx)
		require.NoError(t, err)
		require.Equal(t, chainhash.Hash{}, state.PrevSweepHash)
	})
}

func TestDepositKeyDerivation(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 0xab

	// Same outpoint, same key; different index, different key.
	require.Equal(
		t, bridgedb.NewDepositKey(hash, 1), bridgedb.NewDepositKey(hash, 1),
	)
	require.NotEqual(
		t, bridgedb.NewDepositKey(hash, 0), bridgedb.NewDepositKey(hash, 1),
	)
}

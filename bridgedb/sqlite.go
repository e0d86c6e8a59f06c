package bridgedb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // Register relevant drivers.
)

const (
	// sqliteOptionPrefix is the string prefix sqlite uses to set various
	// options. This is used in the following format:
	//   * sqliteOptionPrefix || option_name = option_value.
	sqliteOptionPrefix = "_pragma"
)

// depositSchema bootstraps the registry tables. Deposits are append-mostly:
// a row is inserted on reveal and updated exactly once to set swept_at. The
// chain_state table holds the single sweep-chain row.
const depositSchema = `
CREATE TABLE IF NOT EXISTS deposits (
	deposit_key BLOB PRIMARY KEY,
	depositor BLOB NOT NULL,
	amount_le BLOB NOT NULL,
	vault BLOB NOT NULL,
	revealed_at INTEGER NOT NULL,
	swept_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS chain_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	prev_sweep_hash BLOB NOT NULL,
	prev_sweep_value_le BLOB NOT NULL
);
`

// SqliteConfig holds all the config arguments needed to interact with our
// sqlite DB.
type SqliteConfig struct {
	// DatabaseFileName is the full file path where the database file can
	// be found.
	DatabaseFileName string `long:"dbfile" description:"The full path to the database."`
}

// SqliteStore is a sqlite3 backed deposit registry.
type SqliteStore struct {
	cfg *SqliteConfig
	db  *sql.DB
}

// A compile time check that SqliteStore satisfies the Store interface.
var _ Store = (*SqliteStore)(nil)

// NewSqliteStore attempts to open a new sqlite database based on the passed
// config.
func NewSqliteStore(cfg *SqliteConfig) (*SqliteStore, error) {
	// The set of pragma options are accepted using query options. We want
	// foreign key constraints enforced and WAL journaling, matching the
	// settings the rest of our sqlite databases run with.
	pragmaOptions := []struct {
		name  string
		value string
	}{
		{
			name:  "foreign_keys",
			value: "on",
		},
		{
			name:  "journal_mode",
			value: "WAL",
		},
		{
			name:  "busy_timeout",
			value: "5000",
		},
	}
	sqliteOptions := make(url.Values)
	for _, option := range pragmaOptions {
		sqliteOptions.Add(
			sqliteOptionPrefix,
			fmt.Sprintf("%v=%v", option.name, option.value),
		)
	}

	dsn := fmt.Sprintf(
		"%v?%v", cfg.DatabaseFileName, sqliteOptions.Encode(),
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(depositSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SqliteStore{
		cfg: cfg,
		db:  db,
	}, nil
}

// ExecTx runs fn inside a database transaction, rolling back on error.
func (s *SqliteStore) ExecTx(ctx context.Context,
	fn func(tx *sql.Tx) error) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Rollback is a no-op after a successful commit.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// RevealDeposit inserts a deposit record under key.
func (s *SqliteStore) RevealDeposit(ctx context.Context, key DepositKey,
	deposit *Deposit) error {

	return s.ExecTx(ctx, func(tx *sql.Tx) error {
		existing, err := getDepositTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := advance(existing, OnReveal); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO deposits (deposit_key, depositor, `+
				`amount_le, vault, revealed_at, swept_at) `+
				`VALUES (?, ?, ?, ?, ?, 0)`,
			key[:], deposit.Depositor[:], deposit.AmountLE[:],
			deposit.Vault[:], deposit.RevealedAt.Unix(),
		)
		return err
	})
}

// GetDeposit returns the deposit record stored under key, or nil if the key
// is unknown.
func (s *SqliteStore) GetDeposit(ctx context.Context, key DepositKey) (
	*Deposit, error) {

	var deposit *Deposit
	err := s.ExecTx(ctx, func(tx *sql.Tx) error {
		var err error
		deposit, err = getDepositTx(ctx, tx, key)
		return err
	})

	return deposit, err
}

// getDepositTx reads one deposit row inside an open transaction.
func getDepositTx(ctx context.Context, tx *sql.Tx, key DepositKey) (
	*Deposit, error) {

	row := tx.QueryRowContext(ctx,
		`SELECT depositor, amount_le, vault, revealed_at, swept_at `+
			`FROM deposits WHERE deposit_key = ?`,
		key[:],
	)

	var (
		depositor, amountLE, vault []byte
		revealedAt, sweptAt        int64
	)
	err := row.Scan(&depositor, &amountLE, &vault, &revealedAt, &sweptAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	deposit := &Deposit{
		RevealedAt: time.Unix(revealedAt, 0).UTC(),
	}
	copy(deposit.Depositor[:], depositor)
	copy(deposit.AmountLE[:], amountLE)
	copy(deposit.Vault[:], vault)
	if sweptAt != 0 {
		deposit.SweptAt = time.Unix(sweptAt, 0).UTC()
	}

	return deposit, nil
}

// ChainState returns the current sweep chain state.
func (s *SqliteStore) ChainState(ctx context.Context) (ChainState, error) {
	var state ChainState

	row := s.db.QueryRowContext(ctx,
		`SELECT prev_sweep_hash, prev_sweep_value_le `+
			`FROM chain_state WHERE id = 1`,
	)

	var hash, valueLE []byte
	err := row.Scan(&hash, &valueLE)
	if err == sql.ErrNoRows {
		// No sweep has happened yet.
		return state, nil
	}
	if err != nil {
		return state, err
	}

	copy(state.PrevSweepHash[:], hash)
	copy(state.PrevSweepValueLE[:], valueLE)

	return state, nil
}

// CommitSweep atomically applies a sweep update inside one database
// transaction.
func (s *SqliteStore) CommitSweep(ctx context.Context,
	update *SweepUpdate) error {

	return s.ExecTx(ctx, func(tx *sql.Tx) error {
		for _, key := range update.Deposits {
			deposit, err := getDepositTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if err := advance(deposit, OnSweep); err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`UPDATE deposits SET swept_at = ? `+
					`WHERE deposit_key = ?`,
				update.SweptAt.Unix(), key[:],
			)
			if err != nil {
				return err
			}
		}

		hash := update.SweepTxHash
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chain_state `+
				`(id, prev_sweep_hash, prev_sweep_value_le) `+
				`VALUES (1, ?, ?) `+
				`ON CONFLICT(id) DO UPDATE SET `+
				`prev_sweep_hash = excluded.prev_sweep_hash, `+
				`prev_sweep_value_le = excluded.prev_sweep_value_le`,
			hash[:], update.OutputValueLE[:],
		)
		return err
	})
}

// Close closes the underlying database.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

package bridgedb

import (
	"context"
	"sync"
)

// InmemStore is an in-memory deposit registry, used in tests and by hosts
// that persist state through other means.
type InmemStore struct {
	deposits   map[DepositKey]*Deposit
	chainState ChainState

	sync.Mutex
}

// NewInmemStore creates a new in-memory deposit registry.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		deposits: make(map[DepositKey]*Deposit),
	}
}

// RevealDeposit inserts a deposit record under key.
func (s *InmemStore) RevealDeposit(_ context.Context, key DepositKey,
	deposit *Deposit) error {

	s.Lock()
	defer s.Unlock()

	if err := advance(s.deposits[key], OnReveal); err != nil {
		return err
	}

	stored := *deposit
	s.deposits[key] = &stored

	return nil
}

// GetDeposit returns a copy of the deposit stored under key, or nil if the
// key is unknown.
func (s *InmemStore) GetDeposit(_ context.Context, key DepositKey) (
	*Deposit, error) {

	s.Lock()
	defer s.Unlock()

	deposit, ok := s.deposits[key]
	if !ok {
		return nil, nil
	}

	copied := *deposit
	return &copied, nil
}

// ChainState returns the current sweep chain state.
func (s *InmemStore) ChainState(_ context.Context) (ChainState, error) {
	s.Lock()
	defer s.Unlock()

	return s.chainState, nil
}

// CommitSweep atomically applies a sweep update. All lifecycle checks run
// before the first mutation so a rejection leaves the store untouched.
func (s *InmemStore) CommitSweep(_ context.Context,
	update *SweepUpdate) error {

	s.Lock()
	defer s.Unlock()

	for _, key := range update.Deposits {
		if err := advance(s.deposits[key], OnSweep); err != nil {
			return err
		}
	}

	for _, key := range update.Deposits {
		s.deposits[key].SweptAt = update.SweptAt
	}
	s.chainState = ChainState{
		PrevSweepHash:    update.SweepTxHash,
		PrevSweepValueLE: update.OutputValueLE,
	}

	return nil
}

// Close is a no-op for the in-memory store.
func (s *InmemStore) Close() error {
	return nil
}

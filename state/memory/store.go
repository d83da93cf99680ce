package memory

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/state"
)

// Store keeps the state of one contract in process memory
type Store struct {
	contract core.ContractID
	mu       sync.RWMutex
	state    *state.State
}

func init() {
	state.Register(state.MemoryStoreType, NewStore)
}

// NewStore creates an empty in-memory store for the contract in params
func NewStore(params map[string]any) (state.Store, error) {
	contract, err := state.ContractFromParams(params)
	if err != nil {
		return nil, err
	}
	return &Store{contract: contract, state: state.New(contract)}, nil
}

func (s *Store) ContractID() core.ContractID {
	return s.contract
}

// Global gets the current values of a global slot
func (s *Store) Global(slot string) ([]core.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Global(slot), nil
}

// LiveOutputs gets the unconsumed outputs of a slot
func (s *Store) LiveOutputs(slot string) ([]state.Output, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LiveOutputs(slot), nil
}

func (s *Store) State() (*state.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Apply merges a delta; the state is untouched if it fails
func (s *Store) Apply(id core.OpID, opType string, delta *state.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Apply(id, opType, delta); err != nil {
		return fmt.Errorf("failed to apply %s: %w", id, err)
	}
	slog.Debug("delta applied", "contract", s.contract, "op", id, "type", opType,
		"retired", len(delta.Retire), "created", len(delta.Create))
	return nil
}

func (s *Store) Restore(snap *state.Snapshot) error {
	if snap.Contract != s.contract {
		return fmt.Errorf("snapshot of contract %s restored into %s", snap.Contract, s.contract)
	}
	restored, err := state.FromSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = restored
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	return nil
}

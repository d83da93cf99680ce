package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/govm-net/contractum/core"
)

// SpentSeal records which operation consumed a seal.
type SpentSeal struct {
	Seal core.SealRef `json:"seal"`
	By   core.OpID    `json:"by"`
}

// AppliedOp records an applied operation and its type.
type AppliedOp struct {
	ID   core.OpID `json:"id"`
	Type string    `json:"type"`
}

// Snapshot is the serializable form of a contract state.
type Snapshot struct {
	Contract   core.ContractID         `json:"contract"`
	Globals    map[string][]core.Value `json:"globals"`
	Live       []Output                `json:"live"`
	Spent      []SpentSeal             `json:"spent"`
	Operations []AppliedOp             `json:"operations"`
}

// Snapshot captures the state. Live outputs keep their creation order.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Contract:   s.contract,
		Globals:    make(map[string][]core.Value, len(s.globals)),
		Live:       make([]Output, 0, len(s.bySeal)),
		Spent:      make([]SpentSeal, 0, len(s.spent)),
		Operations: make([]AppliedOp, 0, len(s.ops)),
	}
	for slot, values := range s.globals {
		snap.Globals[slot] = slices.Clone(values)
	}
	for idx, o := range s.outputs {
		if s.live[idx] {
			snap.Live = append(snap.Live, o)
		}
	}
	for seal, by := range s.spent {
		snap.Spent = append(snap.Spent, SpentSeal{Seal: seal, By: by})
	}
	sort.Slice(snap.Spent, func(i, j int) bool {
		return strings.Compare(string(snap.Spent[i].Seal), string(snap.Spent[j].Seal)) < 0
	})
	for id, opType := range s.ops {
		snap.Operations = append(snap.Operations, AppliedOp{ID: id, Type: opType})
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return snap.Operations[i].ID.Less(snap.Operations[j].ID)
	})
	return snap
}

// FromSnapshot rebuilds a state from its snapshot.
func FromSnapshot(snap *Snapshot) (*State, error) {
	s := New(snap.Contract)
	for slot, values := range snap.Globals {
		s.globals[slot] = slices.Clone(values)
	}
	for _, sp := range snap.Spent {
		if _, dup := s.spent[sp.Seal]; dup {
			return nil, fmt.Errorf("%w: %s spent twice", ErrSealUsed, sp.Seal)
		}
		s.spent[sp.Seal] = sp.By
	}
	for _, o := range snap.Live {
		if s.SealUsed(o.Seal) {
			return nil, fmt.Errorf("%w: %s", ErrSealUsed, o.Seal)
		}
		s.addOutput(o)
	}
	for _, op := range snap.Operations {
		if _, dup := s.ops[op.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, op.ID)
		}
		s.ops[op.ID] = op.Type
		s.applied[op.Type]++
	}
	return s, nil
}

// Encode returns the canonical JSON encoding of the snapshot.
func (snap *Snapshot) Encode() ([]byte, error) {
	return core.Canonical(snap)
}

// DecodeSnapshot parses a snapshot produced by Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Globals == nil {
		snap.Globals = make(map[string][]core.Value)
	}
	return snap, nil
}

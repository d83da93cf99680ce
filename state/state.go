// Package state holds the evolving contract state: aggregated global values
// and the set of live outputs, and the store backends that persist it.
package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
)

var (
	ErrNotLive            = errors.New("output is not live")
	ErrSealUsed           = errors.New("seal already used")
	ErrDuplicateOperation = errors.New("operation already applied")
	ErrNotAccumulable     = errors.New("value cannot be accumulated")
	ErrUnknownContract    = errors.New("unknown contract")
)

// Output is a produced unit of owned or public state.
type Output struct {
	Seal  core.SealRef `json:"seal"`
	Slot  string       `json:"slot"`
	Value core.Value   `json:"value"`
	Op    core.OpID    `json:"op"`
}

// GlobalWrite merges values into a global slot under its aggregation rule.
type GlobalWrite struct {
	Slot   string            `json:"slot"`
	Rule   iface.Aggregation `json:"rule"`
	Values []core.Value      `json:"values"`
}

// Delta is the effect of one validated operation.
type Delta struct {
	Globals []GlobalWrite  `json:"globals,omitempty"`
	Retire  []core.SealRef `json:"retire,omitempty"`
	Create  []Output       `json:"create,omitempty"`
}

// Merge folds a delta into d, used to accumulate the effect of a batch.
func (d *Delta) Merge(other *Delta) {
	d.Globals = append(d.Globals, other.Globals...)
	d.Retire = append(d.Retire, other.Retire...)
	d.Create = append(d.Create, other.Create...)
}

// View is the read side of a contract state, as seen by the validator.
type View interface {
	ContractID() core.ContractID
	HasGenesis() bool
	Global(slot string) []core.Value
	Output(seal core.SealRef) (Output, bool)
	LiveOutputs(slot string) []Output
	SealUsed(seal core.SealRef) bool
}

// State is an in-memory contract state. Outputs are kept in a flat table and
// referenced by index, so retiring an output only flips its live flag.
type State struct {
	contract core.ContractID
	globals  map[string][]core.Value
	outputs  []Output
	live     []bool
	bySeal   map[core.SealRef]int
	bySlot   map[string][]int
	spent    map[core.SealRef]core.OpID
	applied  map[string]uint64
	ops      map[core.OpID]string
}

// New returns the empty state of a contract that has no genesis yet.
func New(contract core.ContractID) *State {
	return &State{
		contract: contract,
		globals:  make(map[string][]core.Value),
		bySeal:   make(map[core.SealRef]int),
		bySlot:   make(map[string][]int),
		spent:    make(map[core.SealRef]core.OpID),
		applied:  make(map[string]uint64),
		ops:      make(map[core.OpID]string),
	}
}

func (s *State) ContractID() core.ContractID {
	return s.contract
}

// HasGenesis reports whether any operation has been applied.
func (s *State) HasGenesis() bool {
	return len(s.ops) > 0
}

// Global returns the current values of a global slot.
func (s *State) Global(slot string) []core.Value {
	return slices.Clone(s.globals[slot])
}

// Output returns the live output closed by seal.
func (s *State) Output(seal core.SealRef) (Output, bool) {
	idx, ok := s.bySeal[seal]
	if !ok || !s.live[idx] {
		return Output{}, false
	}
	return s.outputs[idx], true
}

// LiveOutputs returns the live outputs of a slot in creation order.
func (s *State) LiveOutputs(slot string) []Output {
	var out []Output
	for _, idx := range s.bySlot[slot] {
		if s.live[idx] {
			out = append(out, s.outputs[idx])
		}
	}
	return out
}

// SealUsed reports whether seal was ever assigned, live or spent.
func (s *State) SealUsed(seal core.SealRef) bool {
	_, ok := s.bySeal[seal]
	if ok {
		return true
	}
	_, ok = s.spent[seal]
	return ok
}

// SpentBy returns the operation that consumed seal.
func (s *State) SpentBy(seal core.SealRef) (core.OpID, bool) {
	id, ok := s.spent[seal]
	return id, ok
}

// Applied returns how many operations of each type were applied.
func (s *State) Applied() map[string]uint64 {
	out := make(map[string]uint64, len(s.applied))
	for k, v := range s.applied {
		out[k] = v
	}
	return out
}

// HasOperation reports whether the operation was applied.
func (s *State) HasOperation(id core.OpID) bool {
	_, ok := s.ops[id]
	return ok
}

// Check verifies that delta can be applied by operation id without changing
// the state, and returns the merged global values.
func (s *State) Check(id core.OpID, delta *Delta) (map[string][]core.Value, error) {
	if _, ok := s.ops[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}
	retired := make(map[core.SealRef]bool, len(delta.Retire))
	for _, seal := range delta.Retire {
		if _, ok := s.Output(seal); !ok || retired[seal] {
			return nil, fmt.Errorf("%w: %s", ErrNotLive, seal)
		}
		retired[seal] = true
	}
	created := make(map[core.SealRef]bool, len(delta.Create))
	for _, o := range delta.Create {
		if s.SealUsed(o.Seal) || created[o.Seal] {
			return nil, fmt.Errorf("%w: %s", ErrSealUsed, o.Seal)
		}
		created[o.Seal] = true
	}
	merged := make(map[string][]core.Value, len(delta.Globals))
	for _, w := range delta.Globals {
		cur, ok := merged[w.Slot]
		if !ok {
			cur = s.globals[w.Slot]
		}
		next, err := Merge(w.Rule, cur, w.Values)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", w.Slot, err)
		}
		merged[w.Slot] = next
	}
	return merged, nil
}

// Apply merges the delta of operation id. It either fully succeeds or leaves
// the state untouched.
func (s *State) Apply(id core.OpID, opType string, delta *Delta) error {
	merged, err := s.Check(id, delta)
	if err != nil {
		return err
	}
	for slot, values := range merged {
		s.globals[slot] = values
	}
	for _, seal := range delta.Retire {
		s.live[s.bySeal[seal]] = false
		delete(s.bySeal, seal)
		s.spent[seal] = id
	}
	for _, o := range delta.Create {
		o.Op = id
		s.addOutput(o)
	}
	s.applied[opType]++
	s.ops[id] = opType
	return nil
}

func (s *State) addOutput(o Output) {
	idx := len(s.outputs)
	s.outputs = append(s.outputs, o)
	s.live = append(s.live, true)
	s.bySeal[o.Seal] = idx
	s.bySlot[o.Slot] = append(s.bySlot[o.Slot], idx)
}

// Clone returns an independent copy of the state. Retired outputs are
// compacted away.
func (s *State) Clone() *State {
	out, err := FromSnapshot(s.Snapshot())
	if err != nil {
		// a snapshot taken from a consistent state always restores
		panic(err)
	}
	return out
}

// Merge folds values into the current values of a global slot.
func Merge(rule iface.Aggregation, current, values []core.Value) ([]core.Value, error) {
	switch rule {
	case iface.Replace:
		if len(values) == 0 {
			return slices.Clone(current), nil
		}
		return []core.Value{values[len(values)-1]}, nil
	case iface.Accumulate:
		sum := core.NewSum()
		for _, v := range append(slices.Clone(current), values...) {
			if v.Kind != core.KindAmount || v.IsConfidential() {
				return nil, fmt.Errorf("%w: %s", ErrNotAccumulable, v.Kind)
			}
			sum.Add(v.Amount)
		}
		total, err := sum.Uint64()
		if err != nil {
			return nil, err
		}
		return []core.Value{core.NewAmount(total)}, nil
	case iface.AppendSet:
		out := slices.Clone(current)
		seen := make(map[string]bool, len(out)+len(values))
		for _, v := range out {
			key, err := v.Key()
			if err != nil {
				return nil, err
			}
			seen[key] = true
		}
		for _, v := range values {
			key, err := v.Key()
			if err != nil {
				return nil, err
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown aggregation %d", rule)
}

package graph

import (
	"slices"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/state"
)

// batchView is what one operation of a batch sees: globals as of the start
// of the batch plus the writes of its causal ancestors, and outputs from the
// state folded so far.
type batchView struct {
	folded  *state.State
	base    *state.State
	globals map[string][]core.Value
}

var _ state.View = (*batchView)(nil)

func newBatchView(base, folded *state.State, ancestors []*state.Delta) (*batchView, error) {
	v := &batchView{folded: folded, base: base, globals: make(map[string][]core.Value)}
	for _, delta := range ancestors {
		for _, w := range delta.Globals {
			cur, ok := v.globals[w.Slot]
			if !ok {
				cur = base.Global(w.Slot)
			}
			next, err := state.Merge(w.Rule, cur, w.Values)
			if err != nil {
				return nil, err
			}
			v.globals[w.Slot] = next
		}
	}
	return v, nil
}

func (v *batchView) ContractID() core.ContractID {
	return v.folded.ContractID()
}

func (v *batchView) HasGenesis() bool {
	return v.folded.HasGenesis()
}

func (v *batchView) Global(slot string) []core.Value {
	if values, ok := v.globals[slot]; ok {
		return slices.Clone(values)
	}
	return v.base.Global(slot)
}

func (v *batchView) Output(seal core.SealRef) (state.Output, bool) {
	return v.folded.Output(seal)
}

func (v *batchView) LiveOutputs(slot string) []state.Output {
	return v.folded.LiveOutputs(slot)
}

func (v *batchView) SealUsed(seal core.SealRef) bool {
	return v.folded.SealUsed(seal)
}

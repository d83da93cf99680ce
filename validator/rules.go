package validator

import (
	"slices"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/oracle"
	"github.com/govm-net/contractum/state"
)

// evaluation runs the conservation and capability rules of one operation.
type evaluation struct {
	v        *Validator
	view     state.View
	p        *Prepared
	consumed []state.Output
}

func (e *evaluation) run() error {
	proofsChecked := false
	for _, rule := range sortedRules(e.p.Type) {
		if !proofsChecked && rule.Kind > iface.FlowEquality {
			if err := e.proofs(); err != nil {
				return err
			}
			proofsChecked = true
		}
		ok, err := e.eval(rule)
		if err != nil {
			return err
		}
		if !ok {
			return e.v.raise(e.p, rule.ErrorName())
		}
	}
	if !proofsChecked {
		return e.proofs()
	}
	return nil
}

func (e *evaluation) proofs() error {
	if e.p.badProof < 0 {
		return nil
	}
	return e.v.raise(e.p, iface.ErrInvalidProof)
}

func (e *evaluation) eval(rule iface.Rule) (bool, error) {
	switch rule.Kind {
	case iface.SupplyEquality:
		return e.supplyEquality(rule), nil
	case iface.FlowEquality:
		return e.flowEquality(rule), nil
	case iface.ReserveSufficiency:
		return e.covers(e.proofCommitments(operation.ProofReserve), e.written(rule.Global)), nil
	case iface.CoverageSufficiency:
		capacity := append(commitments(e.consumedValues(rule.Slots)), e.proofCommitments(operation.ProofCoverage)...)
		return e.covers(capacity, e.written(rule.Global)), nil
	case iface.AllowanceSufficiency:
		claim := append(e.written(rule.Global), commitments(e.producedValues(rule.Slots))...)
		return e.covers(commitments(e.consumedValues(rule.Slots)), claim), nil
	case iface.FractionBound:
		return e.fractionBound(rule), nil
	case iface.FractionalCapability:
		return e.fractionalCapability(rule)
	case iface.EngravingCapability:
		return e.engravingCapability(rule)
	case iface.AttachmentCapability:
		return e.attachmentCapability(rule)
	}
	return false, Structural(e.p.ID, UndeclaredError, "unknown rule %s", rule.Kind)
}

func (e *evaluation) supplyEquality(rule iface.Rule) bool {
	return e.equal(e.written(rule.Global), commitments(e.producedValues(rule.Slots)))
}

func (e *evaluation) flowEquality(rule iface.Rule) bool {
	in, out := e.consumedValues(rule.Slots), e.producedValues(rule.Slots)
	if !e.equal(commitments(in), commitments(out)) {
		return false
	}
	consumed, produced := fractions(in), fractions(out)
	if len(consumed) != len(produced) {
		return false
	}
	for token, sum := range consumed {
		other, ok := produced[token]
		if !ok || sum.Cmp(other) != 0 {
			return false
		}
	}
	return true
}

// fractionBound sums, per token, the live fractions the operation leaves in
// place and the fractions it produces.
func (e *evaluation) fractionBound(rule iface.Rule) bool {
	produced := fractions(e.producedValues(rule.Slots))
	if len(produced) == 0 {
		return true
	}
	spent := make(map[core.SealRef]bool, len(e.consumed))
	for _, out := range e.consumed {
		spent[out.Seal] = true
	}
	unit := core.NewSum(core.FractionUnit)
	for token, total := range produced {
		for _, slot := range rule.Slots {
			for _, out := range e.view.LiveOutputs(slot) {
				if spent[out.Seal] || out.Value.Allocation == nil || out.Value.Allocation.Token != token {
					continue
				}
				total.Add(out.Value.Allocation.Fraction)
			}
		}
		if total.Cmp(unit) > 0 {
			return false
		}
	}
	return true
}

func (e *evaluation) fractionalCapability(rule iface.Rule) (bool, error) {
	catalog, err := e.catalog(rule.Catalog)
	if err != nil {
		return false, err
	}
	for _, value := range e.producedValues(rule.Slots) {
		if value.Allocation == nil {
			continue
		}
		td, ok := catalog[value.Allocation.Token]
		if !ok {
			return false, Structural(e.p.ID, UnknownToken, "token %d is not in %s", value.Allocation.Token, rule.Catalog)
		}
		if value.Allocation.Fraction < core.FractionUnit && !td.Fractionable {
			return false, nil
		}
	}
	return true, nil
}

func (e *evaluation) engravingCapability(rule iface.Rule) (bool, error) {
	catalog, err := e.catalog(rule.Catalog)
	if err != nil {
		return false, err
	}
	for _, value := range e.p.Op.Globals[rule.Global] {
		engraving, err := iface.Decode[iface.Engraving](value)
		if err != nil {
			return false, Structural(e.p.ID, InvalidValue, "%s: %v", rule.Global, err)
		}
		td, ok := catalog[engraving.TokenIndex]
		if !ok {
			return false, Structural(e.p.ID, UnknownToken, "token %d is not in %s", engraving.TokenIndex, rule.Catalog)
		}
		if !td.Engravable {
			return false, nil
		}
	}
	return true, nil
}

func (e *evaluation) attachmentCapability(rule iface.Rule) (bool, error) {
	decl, ok := e.v.ifc.Slot(rule.Global)
	if !ok {
		return false, Structural(e.p.ID, UnknownSlot, "global %s is not declared", rule.Global)
	}
	catalog, err := e.catalog(rule.Catalog)
	if err != nil {
		return false, err
	}
	for _, value := range e.p.Op.Globals[rule.Global] {
		switch decl.SemType {
		case iface.SemTokenData:
			td, err := iface.Decode[iface.TokenData](value)
			if err != nil {
				return false, Structural(e.p.ID, InvalidValue, "%s: %v", rule.Global, err)
			}
			if td.Media != nil && !iface.MediaTypeAllowed(td.AttachmentTypes, td.Media.Type) {
				return false, nil
			}
		case iface.SemEngraving:
			engraving, err := iface.Decode[iface.Engraving](value)
			if err != nil {
				return false, Structural(e.p.ID, InvalidValue, "%s: %v", rule.Global, err)
			}
			if engraving.Media == nil {
				continue
			}
			td, ok := catalog[engraving.TokenIndex]
			if !ok {
				return false, Structural(e.p.ID, UnknownToken, "token %d is not in %s", engraving.TokenIndex, rule.Catalog)
			}
			if !iface.MediaTypeAllowed(td.AttachmentTypes, engraving.Media.Type) {
				return false, nil
			}
		}
	}
	return true, nil
}

// catalog returns the token declarations visible to the operation,
// including the ones it writes itself.
func (e *evaluation) catalog(slot string) (map[uint32]iface.TokenData, error) {
	values := append(e.view.Global(slot), e.p.Op.Globals[slot]...)
	out := make(map[uint32]iface.TokenData, len(values))
	for _, value := range values {
		td, err := iface.Decode[iface.TokenData](value)
		if err != nil {
			return nil, Structural(e.p.ID, InvalidValue, "catalog %s: %v", slot, err)
		}
		out[td.Index] = td
	}
	return out, nil
}

// equal checks that two amount lists have the same total, asking the
// oracle when any amount is confidential.
func (e *evaluation) equal(a, b []core.Commitment) bool {
	sa, okA := oracle.RevealedSum(a)
	sb, okB := oracle.RevealedSum(b)
	if okA && okB {
		return sa.Cmp(sb) == 0
	}
	return e.v.oracle.VerifySumEquality(a, b)
}

// covers checks that the capacity total is at least the claimed total.
// A single confidential capacity amount is range-checked against the part
// of the claim the revealed capacity leaves open; anything else must
// balance exactly, the change output absorbing the remainder.
func (e *evaluation) covers(capacity, claim []core.Commitment) bool {
	claimed, claimRevealed := oracle.RevealedSum(claim)
	revealed := core.NewSum()
	var hidden []core.Commitment
	for _, c := range capacity {
		if amount, ok := c.Revealed(); ok {
			revealed.Add(amount)
		} else {
			hidden = append(hidden, c)
		}
	}
	if claimRevealed {
		if revealed.Cmp(claimed) >= 0 {
			return true
		}
		switch len(hidden) {
		case 0:
			return false
		case 1:
			bound, err := claimed.Sub(revealed).Uint64()
			if err != nil {
				return false
			}
			return e.v.oracle.VerifyRangeBound(hidden[0], bound)
		}
	}
	return e.v.oracle.VerifySumEquality(capacity, claim)
}

func (e *evaluation) written(slot string) []core.Commitment {
	return commitments(e.p.Op.Globals[slot])
}

func (e *evaluation) proofCommitments(kind operation.ProofKind) []core.Commitment {
	var out []core.Commitment
	for _, proof := range e.p.Op.Proofs {
		if proof.Kind == kind && proof.Commitment != nil {
			out = append(out, proof.Commitment)
		}
	}
	return out
}

func (e *evaluation) consumedValues(slots []string) []core.Value {
	var out []core.Value
	for _, o := range e.consumed {
		if slices.Contains(slots, o.Slot) {
			out = append(out, o.Value)
		}
	}
	return out
}

func (e *evaluation) producedValues(slots []string) []core.Value {
	var out []core.Value
	for _, o := range e.p.Op.OutputsIn(slots...) {
		out = append(out, o.Value)
	}
	return out
}

// commitments keeps the amount values and returns their commitments.
func commitments(values []core.Value) []core.Commitment {
	out := make([]core.Commitment, 0, len(values))
	for _, v := range values {
		if v.Kind == core.KindAmount {
			out = append(out, v.AmountCommitment())
		}
	}
	return out
}

// fractions sums allocation fractions per token.
func fractions(values []core.Value) map[uint32]*core.Sum {
	out := make(map[uint32]*core.Sum)
	for _, v := range values {
		if v.Kind != core.KindAllocation || v.Allocation == nil {
			continue
		}
		sum, ok := out[v.Allocation.Token]
		if !ok {
			sum = core.NewSum()
			out[v.Allocation.Token] = sum
		}
		sum.Add(v.Allocation.Fraction)
	}
	return out
}

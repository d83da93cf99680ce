// Package validator decides whether one operation is a legal step of a
// contract, given its interface and the current contract state, and computes
// the delta the state store applies.
package validator

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/oracle"
	"github.com/govm-net/contractum/state"
)

// Validator checks operations of one interface.
type Validator struct {
	ifc    *iface.Interface
	oracle oracle.Oracle
}

// New returns a validator for ifc. A nil oracle selects oracle.Plain.
func New(ifc *iface.Interface, o oracle.Oracle) *Validator {
	if o == nil {
		o = oracle.Plain{}
	}
	return &Validator{ifc: ifc, oracle: o}
}

func (v *Validator) Interface() *iface.Interface {
	return v.ifc
}

// Prepared is an operation that passed every check not depending on the
// contract state. Proof verdicts are computed but only raised by Check, so
// they surface in rule order.
type Prepared struct {
	ID   core.OpID
	Op   *operation.Operation
	Type *iface.OperationType

	badProof int
}

// Prepare resolves defaults and runs the type, meta-evidence, arity and
// value checks. It does not read contract state and is safe to call
// concurrently.
func (v *Validator) Prepare(op *operation.Operation) (*Prepared, error) {
	rawID, err := op.ID()
	if err != nil {
		return nil, Structural(core.ZeroOpID, InvalidValue, "%v", err)
	}

	resolved, err := op.Resolve(v.ifc)
	switch {
	case errors.Is(err, iface.ErrNotFound), errors.Is(err, operation.ErrNoDefaultOperation):
		return nil, Structural(rawID, UnknownOperation, "%v", err)
	case errors.Is(err, operation.ErrNoDefaultAssignment):
		return nil, Structural(rawID, UnknownSlot, "%v", err)
	case err != nil:
		return nil, Structural(rawID, UnknownOperation, "%v", err)
	}
	opType, err := v.ifc.LookupOperationType(resolved.Type)
	if err != nil {
		return nil, Structural(rawID, UnknownOperation, "%v", err)
	}
	id, err := resolved.ID()
	if err != nil {
		return nil, Structural(rawID, InvalidValue, "%v", err)
	}

	p := &Prepared{ID: id, Op: resolved, Type: opType, badProof: -1}
	if err := v.checkMeta(p); err != nil {
		return nil, err
	}
	if err := v.checkArity(p); err != nil {
		return nil, err
	}
	if err := v.checkValues(p); err != nil {
		return nil, err
	}
	if err := checkSeals(p); err != nil {
		return nil, err
	}
	if err := v.verifyProofs(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (v *Validator) checkMeta(p *Prepared) error {
	spec := p.Type.Meta
	if spec == nil {
		if len(p.Op.Meta) > 0 {
			return Structural(p.ID, InvalidMeta, "%s takes no meta-evidence", p.Type.Name)
		}
		return nil
	}
	if len(p.Op.Meta) == 0 {
		return Structural(p.ID, MissingMeta, "%s requires %s", p.Type.Name, spec.Type)
	}
	if err := iface.ValidateMeta(spec, p.Op.Meta); err != nil {
		return Structural(p.ID, InvalidMeta, "%v", err)
	}
	return nil
}

func (v *Validator) checkArity(p *Prepared) error {
	op, t := p.Op, p.Type
	for _, slot := range op.GlobalSlots() {
		if _, ok := t.Global(slot); !ok {
			return Structural(p.ID, UnknownSlot, "%s does not write global %s", t.Name, slot)
		}
	}
	for _, in := range op.Inputs {
		if _, ok := t.Input(in.Slot); !ok {
			return Structural(p.ID, UnknownSlot, "%s does not consume %s", t.Name, in.Slot)
		}
	}
	for _, out := range op.Outputs {
		if _, ok := t.Assign(out.Slot); !ok {
			return Structural(p.ID, UnknownSlot, "%s does not assign %s", t.Name, out.Slot)
		}
	}

	for _, ref := range t.Globals {
		if n := len(op.Globals[ref.Slot]); !ref.Multiplicity.Allows(n) {
			return Structural(p.ID, Arity, "global %s: %d values, want %s", ref.Slot, n, ref.Multiplicity)
		}
	}
	for _, ref := range t.Inputs {
		if n := op.CountInputs(ref.Slot); !ref.Multiplicity.Allows(n) {
			return Structural(p.ID, Arity, "input %s: %d values, want %s", ref.Slot, n, ref.Multiplicity)
		}
	}
	for _, ref := range t.Assigns {
		if n := op.CountOutputs(ref.Slot); !ref.Multiplicity.Allows(n) {
			return Structural(p.ID, Arity, "assignment %s: %d values, want %s", ref.Slot, n, ref.Multiplicity)
		}
	}
	return nil
}

func (v *Validator) checkValues(p *Prepared) error {
	for _, slot := range p.Op.GlobalSlots() {
		decl, ok := v.ifc.Slot(slot)
		if !ok {
			return Structural(p.ID, UnknownSlot, "global %s is not declared", slot)
		}
		for _, value := range p.Op.Globals[slot] {
			if err := v.checkValue(p.ID, decl, value); err != nil {
				return err
			}
			if decl.Aggregation == iface.Accumulate && value.IsConfidential() {
				return Structural(p.ID, InvalidValue, "global %s accumulates revealed amounts only", slot)
			}
		}
	}
	for _, out := range p.Op.Outputs {
		decl, ok := v.ifc.Slot(out.Slot)
		if !ok {
			return Structural(p.ID, UnknownSlot, "slot %s is not declared", out.Slot)
		}
		if err := v.checkValue(p.ID, decl, out.Value); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) checkValue(id core.OpID, decl *iface.StateSlot, value core.Value) error {
	if value.Kind != decl.Kind {
		return Structural(id, ValueType, "%s holds %s, got %s", decl.Name, decl.Kind, value.Kind)
	}
	if err := value.Validate(); err != nil {
		return Structural(id, InvalidValue, "%s: %v", decl.Name, err)
	}
	if decl.SemType != "" {
		if err := iface.ValidateSemantic(decl.SemType, value.Data); err != nil {
			return Structural(id, InvalidValue, "%s: %v", decl.Name, err)
		}
	}
	return nil
}

func checkSeals(p *Prepared) error {
	seen := make(map[core.SealRef]bool, len(p.Op.Inputs)+len(p.Op.Outputs))
	for _, seal := range p.Op.ConsumedSeals() {
		if seal == "" {
			return Structural(p.ID, InvalidValue, "input without seal")
		}
		if seen[seal] {
			return Structural(p.ID, DuplicateSeal, "seal %s consumed twice", seal)
		}
		seen[seal] = true
	}
	for _, seal := range p.Op.ProducedSeals() {
		if seal == "" {
			return Structural(p.ID, InvalidValue, "output without seal")
		}
		if seen[seal] {
			return Structural(p.ID, DuplicateSeal, "seal %s used twice", seal)
		}
		seen[seal] = true
	}
	return nil
}

func (v *Validator) verifyProofs(p *Prepared) error {
	if len(p.Op.Proofs) == 0 {
		return nil
	}
	for n, proof := range p.Op.Proofs {
		public, err := p.Op.ProofInputs(proof.Kind, proof.Commitment)
		if err != nil {
			return Structural(p.ID, InvalidValue, "%v", err)
		}
		if !v.oracle.VerifyProof(proof.Material, public) {
			p.badProof = n
			break
		}
	}
	return nil
}

// Check validates a prepared operation against the contract state and
// returns the delta to apply. View is not modified.
func (v *Validator) Check(view state.View, p *Prepared) (*state.Delta, error) {
	if err := v.checkContract(view, p); err != nil {
		return nil, err
	}

	consumed := make([]state.Output, 0, len(p.Op.Inputs))
	for _, in := range p.Op.Inputs {
		out, ok := view.Output(in.Seal)
		if !ok {
			return nil, &ConflictError{Op: p.ID, Seal: in.Seal}
		}
		if out.Slot != in.Slot {
			return nil, Structural(p.ID, UnknownSlot, "input %s belongs to %s, not %s", in.Seal, out.Slot, in.Slot)
		}
		consumed = append(consumed, out)
	}
	for _, seal := range p.Op.ProducedSeals() {
		if view.SealUsed(seal) {
			return nil, Structural(p.ID, DuplicateSeal, "seal %s already used", seal)
		}
	}

	delta, err := v.delta(view, p)
	if err != nil {
		return nil, err
	}
	if err := v.checkCatalogs(view, p); err != nil {
		return nil, err
	}

	c := &evaluation{v: v, view: view, p: p, consumed: consumed}
	if err := c.run(); err != nil {
		return nil, err
	}
	return delta, nil
}

// Validate prepares and checks op in one step.
func (v *Validator) Validate(view state.View, op *operation.Operation) (*Prepared, *state.Delta, error) {
	p, err := v.Prepare(op)
	if err != nil {
		return nil, nil, err
	}
	delta, err := v.Check(view, p)
	if err != nil {
		return p, nil, err
	}
	return p, delta, nil
}

func (v *Validator) checkContract(view state.View, p *Prepared) error {
	if p.Type.Genesis {
		if !p.Op.Contract.IsZero() {
			return Structural(p.ID, ContractMismatch, "genesis names contract %s", p.Op.Contract)
		}
		if view.ContractID() != core.ContractID(p.ID) {
			return Structural(p.ID, ContractMismatch, "genesis of %s validated against %s", p.ID, view.ContractID())
		}
		if view.HasGenesis() {
			return Structural(p.ID, GenesisExists, "contract %s already has a genesis", view.ContractID())
		}
		return nil
	}
	if p.Op.Contract != view.ContractID() {
		return Structural(p.ID, ContractMismatch, "operation of %s validated against %s", p.Op.Contract, view.ContractID())
	}
	if !view.HasGenesis() {
		return Structural(p.ID, NoGenesis, "contract %s has no genesis", view.ContractID())
	}
	return nil
}

// delta builds the state change and verifies the global writes merge.
func (v *Validator) delta(view state.View, p *Prepared) (*state.Delta, error) {
	delta := &state.Delta{}
	for _, slot := range p.Op.GlobalSlots() {
		decl, _ := v.ifc.Slot(slot)
		values := p.Op.Globals[slot]
		if _, err := state.Merge(decl.Aggregation, view.Global(slot), values); err != nil {
			if errors.Is(err, core.ErrAmountOverflow) {
				return nil, Structural(p.ID, Overflow, "global %s: %v", slot, err)
			}
			return nil, Structural(p.ID, InvalidValue, "global %s: %v", slot, err)
		}
		delta.Globals = append(delta.Globals, state.GlobalWrite{Slot: slot, Rule: decl.Aggregation, Values: values})
	}
	delta.Retire = p.Op.ConsumedSeals()
	for _, out := range p.Op.Outputs {
		delta.Create = append(delta.Create, state.Output{Seal: out.Seal, Slot: out.Slot, Value: out.Value, Op: p.ID})
	}
	return delta, nil
}

// checkCatalogs rejects token declarations reusing an index already in the
// catalog.
func (v *Validator) checkCatalogs(view state.View, p *Prepared) error {
	for _, slot := range p.Op.GlobalSlots() {
		decl, _ := v.ifc.Slot(slot)
		if decl.SemType != iface.SemTokenData {
			continue
		}
		known := make(map[uint32]bool)
		for _, value := range view.Global(slot) {
			td, err := iface.Decode[iface.TokenData](value)
			if err != nil {
				return Structural(p.ID, InvalidValue, "catalog %s: %v", slot, err)
			}
			known[td.Index] = true
		}
		for _, value := range p.Op.Globals[slot] {
			td, err := iface.Decode[iface.TokenData](value)
			if err != nil {
				return Structural(p.ID, InvalidValue, "catalog %s: %v", slot, err)
			}
			if known[td.Index] {
				return Structural(p.ID, InvalidValue, "token %d already declared in %s", td.Index, slot)
			}
			known[td.Index] = true
		}
	}
	return nil
}

// raise turns a violated rule into the declared error, or into a
// structural failure when the operation type does not declare it.
func (v *Validator) raise(p *Prepared, name string) error {
	if !p.Type.RaisesError(name) {
		return Structural(p.ID, UndeclaredError, "%s raised %s outside its declared errors", p.Type.Name, name)
	}
	kind, ok := v.ifc.ErrorKind(name)
	if !ok {
		return Structural(p.ID, UndeclaredError, "error %s is not in the catalogue", name)
	}
	slog.Debug("contract rule violated", "op", p.ID, "type", p.Type.Name, "error", kind)
	return &RuleError{Op: p.ID, Kind: kind}
}

// sortedRules returns the rules of the operation type in evaluation order.
func sortedRules(t *iface.OperationType) []iface.Rule {
	rules := make([]iface.Rule, len(t.Rules))
	copy(rules, t.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Kind < rules[j].Kind })
	return rules
}

func (p *Prepared) String() string {
	return fmt.Sprintf("%s(%s)", p.Type.Name, p.ID)
}

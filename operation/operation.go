// Package operation defines concrete contract operations: a genesis or a
// transition instance with the values it writes, the outputs it consumes and
// produces, and the evidence it carries.
package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
)

var (
	ErrNoDefaultOperation  = errors.New("operation type omitted and no default operation declared")
	ErrNoDefaultAssignment = errors.New("output slot omitted and no default assignment declared")
)

// ProofKind tells the validator which rule a proof feeds.
type ProofKind uint8

const (
	ProofGeneric ProofKind = iota
	ProofReserve
	ProofCoverage
)

var proofKindNames = map[ProofKind]string{
	ProofGeneric:  "generic",
	ProofReserve:  "reserve",
	ProofCoverage: "coverage",
}

func (k ProofKind) String() string {
	if name, ok := proofKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("proof(%d)", uint8(k))
}

func (k ProofKind) MarshalText() ([]byte, error) {
	name, ok := proofKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown proof kind %d", uint8(k))
	}
	return []byte(name), nil
}

func (k *ProofKind) UnmarshalText(text []byte) error {
	for kind, name := range proofKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown proof kind %q", text)
}

// Input references a live output by its seal.
type Input struct {
	Seal core.SealRef `json:"seal"`
	Slot string       `json:"slot"`
}

// Output is a produced unit of owned or public state. An empty Slot
// resolves to the operation type's default assignment.
type Output struct {
	Slot  string       `json:"slot,omitempty"`
	Seal  core.SealRef `json:"seal"`
	Value core.Value   `json:"value"`
}

// Proof is opaque cryptographic material checked by the proof oracle. The
// commitment states the amount the proof attests to, if any.
type Proof struct {
	Kind       ProofKind       `json:"kind"`
	Commitment core.Commitment `json:"commitment,omitempty"`
	Material   []byte          `json:"material"`
}

// Operation is a genesis or transition instance. An empty Type resolves to
// the interface's default transition.
type Operation struct {
	Contract core.ContractID         `json:"contract"`
	Type     string                  `json:"type,omitempty"`
	Globals  map[string][]core.Value `json:"globals,omitempty"`
	Inputs   []Input                 `json:"inputs,omitempty"`
	Outputs  []Output                `json:"outputs,omitempty"`
	Meta     json.RawMessage         `json:"meta,omitempty"`
	Proofs   []Proof                 `json:"proofs,omitempty"`
}

// ID returns the content-derived identifier of the operation.
func (op *Operation) ID() (core.OpID, error) {
	h, err := core.CanonicalHash(op)
	if err != nil {
		return core.ZeroOpID, fmt.Errorf("failed to compute operation id: %w", err)
	}
	return core.OpID(h), nil
}

// PublicInputs returns the canonical encoding of the operation without its
// proofs.
func (op *Operation) PublicInputs() ([]byte, error) {
	body := *op
	body.Proofs = nil
	return core.Canonical(&body)
}

// statement is what one proof attests to: the operation body together with
// the proof's own kind and commitment.
type statement struct {
	Operation  json.RawMessage `json:"operation"`
	Kind       ProofKind       `json:"kind"`
	Commitment core.Commitment `json:"commitment,omitempty"`
}

// ProofInputs returns the public inputs a proof of the given kind and
// commitment is verified against. Changing the commitment changes the
// statement, so the material of one proof cannot back another amount.
func (op *Operation) ProofInputs(kind ProofKind, commitment core.Commitment) ([]byte, error) {
	body, err := op.PublicInputs()
	if err != nil {
		return nil, err
	}
	return core.Canonical(statement{Operation: body, Kind: kind, Commitment: commitment})
}

// Clone returns a deep copy of the operation.
func (op *Operation) Clone() *Operation {
	out := *op
	if op.Globals != nil {
		out.Globals = make(map[string][]core.Value, len(op.Globals))
		for k, v := range op.Globals {
			out.Globals[k] = slices.Clone(v)
		}
	}
	out.Inputs = slices.Clone(op.Inputs)
	out.Outputs = slices.Clone(op.Outputs)
	out.Meta = slices.Clone(op.Meta)
	out.Proofs = slices.Clone(op.Proofs)
	return &out
}

// Resolve returns a copy of the operation with the default operation type
// and default assignment slots filled in.
func (op *Operation) Resolve(ifc *iface.Interface) (*Operation, error) {
	out := op.Clone()
	if out.Type == "" {
		def := ifc.DefaultOperation()
		if def == nil {
			return nil, ErrNoDefaultOperation
		}
		out.Type = def.Name
	}
	opType, err := ifc.LookupOperationType(out.Type)
	if err != nil {
		return nil, err
	}
	def := opType.DefaultAssign()
	for n := range out.Outputs {
		if out.Outputs[n].Slot != "" {
			continue
		}
		if def == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoDefaultAssignment, out.Type)
		}
		out.Outputs[n].Slot = def
	}
	return out, nil
}

// ConsumedSeals returns the seals of all inputs.
func (op *Operation) ConsumedSeals() []core.SealRef {
	out := make([]core.SealRef, len(op.Inputs))
	for n, in := range op.Inputs {
		out[n] = in.Seal
	}
	return out
}

// ProducedSeals returns the seals of all outputs.
func (op *Operation) ProducedSeals() []core.SealRef {
	out := make([]core.SealRef, len(op.Outputs))
	for n, o := range op.Outputs {
		out[n] = o.Seal
	}
	return out
}

// GlobalSlots returns the names of the written global slots in sorted order.
func (op *Operation) GlobalSlots() []string {
	names := slices.Collect(maps.Keys(op.Globals))
	sort.Strings(names)
	return names
}

// OutputsIn returns the outputs assigned to any of the given slots.
func (op *Operation) OutputsIn(slots ...string) []Output {
	var out []Output
	for _, o := range op.Outputs {
		if slices.Contains(slots, o.Slot) {
			out = append(out, o)
		}
	}
	return out
}

// CountInputs returns how many inputs consume the given slot.
func (op *Operation) CountInputs(slot string) int {
	n := 0
	for _, in := range op.Inputs {
		if in.Slot == slot {
			n++
		}
	}
	return n
}

// CountOutputs returns how many outputs are assigned to the given slot.
func (op *Operation) CountOutputs(slot string) int {
	n := 0
	for _, o := range op.Outputs {
		if o.Slot == slot {
			n++
		}
	}
	return n
}

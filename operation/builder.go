package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/govm-net/contractum/core"
)

// Builder assembles an operation step by step.
type Builder struct {
	op  *Operation
	err error
}

// New starts an operation of the given type for a contract. Use the zero
// contract id for a genesis.
func New(contract core.ContractID, opType string) *Builder {
	return &Builder{op: &Operation{Contract: contract, Type: opType}}
}

func (b *Builder) Global(slot string, values ...core.Value) *Builder {
	if b.op.Globals == nil {
		b.op.Globals = make(map[string][]core.Value)
	}
	b.op.Globals[slot] = append(b.op.Globals[slot], values...)
	return b
}

// GlobalData marshals v into a data value written to slot.
func (b *Builder) GlobalData(slot string, v any) *Builder {
	value, err := core.NewData(v)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("global %s: %w", slot, err)
	}
	return b.Global(slot, value)
}

func (b *Builder) Input(slot string, seal core.SealRef) *Builder {
	b.op.Inputs = append(b.op.Inputs, Input{Seal: seal, Slot: slot})
	return b
}

// Output assigns value to slot under seal. An empty slot selects the
// default assignment.
func (b *Builder) Output(slot string, seal core.SealRef, value core.Value) *Builder {
	b.op.Outputs = append(b.op.Outputs, Output{Slot: slot, Seal: seal, Value: value})
	return b
}

func (b *Builder) Meta(v any) *Builder {
	raw, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("meta: %w", err)
	}
	b.op.Meta = raw
	return b
}

func (b *Builder) Proof(kind ProofKind, commitment core.Commitment, material []byte) *Builder {
	b.op.Proofs = append(b.op.Proofs, Proof{Kind: kind, Commitment: commitment, Material: material})
	return b
}

// Build returns the assembled operation.
func (b *Builder) Build() (*Operation, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.op.Clone(), nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Operation {
	op, err := b.Build()
	if err != nil {
		panic(err)
	}
	return op
}

// DecodeBatch reads a JSON array of operations, or a single operation.
func DecodeBatch(r io.Reader) ([]*Operation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		op := &Operation{}
		if err := json.Unmarshal(data, op); err != nil {
			return nil, fmt.Errorf("failed to decode operation: %w", err)
		}
		return []*Operation{op}, nil
	}
	var ops []*Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	return ops, nil
}

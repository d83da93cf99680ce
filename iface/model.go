// Package iface holds the in-memory model of a contract interface: its
// state slots, error catalogue and operation types.
package iface

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/govm-net/contractum/core"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrFinalOverride  = errors.New("final operation type overridden")
	ErrNoOverride     = errors.New("operation type redefined without override")
	ErrIncompatible   = errors.New("incompatible interfaces")
	ErrInconsistent   = errors.New("inconsistent interface")
	ErrUnknownSemType = errors.New("unknown semantic type")
)

// Category is the kind of state a slot holds.
type Category uint8

const (
	Global Category = iota + 1
	Owned
	Public
)

var categoryNames = map[Category]string{
	Global: "global",
	Owned:  "owned",
	Public: "public",
}

func (c Category) String() string { return enumString(categoryNames, c) }

func (c Category) MarshalText() ([]byte, error) { return enumMarshal(categoryNames, c) }

func (c *Category) UnmarshalText(text []byte) error {
	return enumUnmarshal(categoryNames, text, c)
}

// Multiplicity bounds how many values an operation may supply for a slot.
// The zero value is ExactlyOne.
type Multiplicity uint8

const (
	ExactlyOne Multiplicity = iota
	ZeroOrOne
	ZeroOrMany
	OneOrMany
)

var multiplicityNames = map[Multiplicity]string{
	ExactlyOne: "exactlyOne",
	ZeroOrOne:  "zeroOrOne",
	ZeroOrMany: "zeroOrMany",
	OneOrMany:  "oneOrMany",
}

var multiplicitySugar = map[Multiplicity]string{
	ExactlyOne: "",
	ZeroOrOne:  "?",
	ZeroOrMany: "*",
	OneOrMany:  "+",
}

// Allows reports whether n values satisfy the multiplicity.
func (m Multiplicity) Allows(n int) bool {
	switch m {
	case ExactlyOne:
		return n == 1
	case ZeroOrOne:
		return n == 0 || n == 1
	case ZeroOrMany:
		return n >= 0
	case OneOrMany:
		return n >= 1
	}
	return false
}

// IsMultiple reports whether more than one value is allowed.
func (m Multiplicity) IsMultiple() bool {
	return m == ZeroOrMany || m == OneOrMany
}

// IsRequired reports whether at least one value is needed.
func (m Multiplicity) IsRequired() bool {
	return m == ExactlyOne || m == OneOrMany
}

// Sugar returns the short postfix form used in rendered interfaces.
func (m Multiplicity) Sugar() string {
	return multiplicitySugar[m]
}

func (m Multiplicity) String() string { return enumString(multiplicityNames, m) }

func (m Multiplicity) MarshalText() ([]byte, error) { return enumMarshal(multiplicityNames, m) }

// UnmarshalText accepts both the long names and the ?, * and + forms.
func (m *Multiplicity) UnmarshalText(text []byte) error {
	for k, v := range multiplicitySugar {
		if v != "" && v == string(text) {
			*m = k
			return nil
		}
	}
	if len(text) == 0 || string(text) == "1" {
		*m = ExactlyOne
		return nil
	}
	return enumUnmarshal(multiplicityNames, text, m)
}

// Aggregation defines how a global slot folds new values into its state.
// The zero value is Replace.
type Aggregation uint8

const (
	Replace Aggregation = iota
	Accumulate
	AppendSet
)

var aggregationNames = map[Aggregation]string{
	Replace:    "replace",
	Accumulate: "accumulate",
	AppendSet:  "appendSet",
}

func (a Aggregation) String() string { return enumString(aggregationNames, a) }

func (a Aggregation) MarshalText() ([]byte, error) { return enumMarshal(aggregationNames, a) }

func (a *Aggregation) UnmarshalText(text []byte) error {
	return enumUnmarshal(aggregationNames, text, a)
}

// StateSlot declares one piece of contract state.
type StateSlot struct {
	Name         string         `json:"name"`
	Category     Category       `json:"category"`
	Multiplicity Multiplicity   `json:"multiplicity,omitempty"`
	Kind         core.ValueKind `json:"kind"`
	SemType      string         `json:"semType,omitempty"`
	Aggregation  Aggregation    `json:"aggregation,omitempty"`
	Description  string         `json:"description,omitempty"`
}

// ErrorKind is a declared contract-rule violation.
type ErrorKind struct {
	Code        uint8  `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (e ErrorKind) String() string {
	return fmt.Sprintf("%s(%d)", e.Name, e.Code)
}

// Modifier controls whether a derived interface may redefine an operation
// type. The zero value is Final.
type Modifier uint8

const (
	Final Modifier = iota
	Abstract
	Override
)

var modifierNames = map[Modifier]string{
	Final:    "final",
	Abstract: "abstract",
	Override: "override",
}

func (m Modifier) String() string { return enumString(modifierNames, m) }

func (m Modifier) MarshalText() ([]byte, error) { return enumMarshal(modifierNames, m) }

func (m *Modifier) UnmarshalText(text []byte) error {
	return enumUnmarshal(modifierNames, text, m)
}

// SlotRef is an operation's reference to a slot.
type SlotRef struct {
	Slot         string       `json:"slot"`
	Multiplicity Multiplicity `json:"multiplicity,omitempty"`
	Default      bool         `json:"default,omitempty"`
}

// MetaSpec requires the operation to carry meta-evidence of a semantic type.
// Schema, when set, replaces the JSON schema registered for Type.
type MetaSpec struct {
	Type   string          `json:"type"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// OperationType declares a genesis or a transition.
type OperationType struct {
	Name     string    `json:"name"`
	Genesis  bool      `json:"genesis,omitempty"`
	Modifier Modifier  `json:"modifier,omitempty"`
	Required bool      `json:"required,omitempty"`
	Default  bool      `json:"default,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Meta     *MetaSpec `json:"meta,omitempty"`
	Globals  []SlotRef `json:"globals,omitempty"`
	Inputs   []SlotRef `json:"inputs,omitempty"`
	Assigns  []SlotRef `json:"assigns,omitempty"`
	Rules    []Rule    `json:"rules,omitempty"`
}

// Global returns the reference to a written global slot.
func (o *OperationType) Global(slot string) (SlotRef, bool) {
	return findRef(o.Globals, slot)
}

// Input returns the reference to a consumed slot.
func (o *OperationType) Input(slot string) (SlotRef, bool) {
	return findRef(o.Inputs, slot)
}

// Assign returns the reference to an assigned slot.
func (o *OperationType) Assign(slot string) (SlotRef, bool) {
	return findRef(o.Assigns, slot)
}

// DefaultAssign returns the name of the default assignment, if any.
func (o *OperationType) DefaultAssign() string {
	for _, ref := range o.Assigns {
		if ref.Default {
			return ref.Slot
		}
	}
	return ""
}

// RaisesError reports whether name is in the declared error set.
func (o *OperationType) RaisesError(name string) bool {
	for _, e := range o.Errors {
		if e == name {
			return true
		}
	}
	return false
}

func findRef(refs []SlotRef, slot string) (SlotRef, bool) {
	for _, ref := range refs {
		if ref.Slot == slot {
			return ref, true
		}
	}
	return SlotRef{}, false
}

// Parent names an inherited interface and the versions accepted.
type Parent struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Interface is a complete contract interface. It is read-only once built.
type Interface struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Inherits   []Parent        `json:"inherits,omitempty"`
	Slots      []StateSlot     `json:"slots"`
	Errors     []ErrorKind     `json:"errors,omitempty"`
	Operations []OperationType `json:"operations"`

	once    sync.Once
	slotIdx map[string]int
	opIdx   map[string]int
	errIdx  map[string]int
}

func (i *Interface) index() {
	i.once.Do(func() {
		i.slotIdx = make(map[string]int, len(i.Slots))
		for n, s := range i.Slots {
			if _, dup := i.slotIdx[s.Name]; !dup {
				i.slotIdx[s.Name] = n
			}
		}
		i.opIdx = make(map[string]int, len(i.Operations))
		for n, op := range i.Operations {
			if _, dup := i.opIdx[op.Name]; !dup {
				i.opIdx[op.Name] = n
			}
		}
		i.errIdx = make(map[string]int, len(i.Errors))
		for n, e := range i.Errors {
			if _, dup := i.errIdx[e.Name]; !dup {
				i.errIdx[e.Name] = n
			}
		}
	})
}

// LookupOperationType returns the operation type with the given name.
func (i *Interface) LookupOperationType(name string) (*OperationType, error) {
	i.index()
	n, ok := i.opIdx[name]
	if !ok {
		return nil, fmt.Errorf("operation type %q: %w", name, ErrNotFound)
	}
	return &i.Operations[n], nil
}

// Slot returns the declaration of a state slot.
func (i *Interface) Slot(name string) (*StateSlot, bool) {
	i.index()
	n, ok := i.slotIdx[name]
	if !ok {
		return nil, false
	}
	return &i.Slots[n], true
}

// ErrorKind returns the catalogue entry for an error name.
func (i *Interface) ErrorKind(name string) (ErrorKind, bool) {
	i.index()
	n, ok := i.errIdx[name]
	if !ok {
		return ErrorKind{}, false
	}
	return i.Errors[n], true
}

// ErrorCatalogue returns the error kinds an operation type may raise,
// ordered by code.
func (i *Interface) ErrorCatalogue(opType string) ([]ErrorKind, error) {
	op, err := i.LookupOperationType(opType)
	if err != nil {
		return nil, err
	}
	out := make([]ErrorKind, 0, len(op.Errors))
	for _, name := range op.Errors {
		if kind, ok := i.ErrorKind(name); ok {
			out = append(out, kind)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Code < out[b].Code })
	return out, nil
}

// DefaultAssignmentSlot returns the slot an output without an explicit slot
// is assigned to, or nil when the operation type declares none.
func (i *Interface) DefaultAssignmentSlot(opType string) (*StateSlot, error) {
	op, err := i.LookupOperationType(opType)
	if err != nil {
		return nil, err
	}
	name := op.DefaultAssign()
	if name == "" {
		return nil, nil
	}
	slot, ok := i.Slot(name)
	if !ok {
		return nil, fmt.Errorf("default assignment %q: %w", name, ErrNotFound)
	}
	return slot, nil
}

// DefaultOperation returns the transition used when an operation omits its
// type, or nil.
func (i *Interface) DefaultOperation() *OperationType {
	for n := range i.Operations {
		if i.Operations[n].Default && !i.Operations[n].Genesis {
			return &i.Operations[n]
		}
	}
	return nil
}

// Genesis returns the genesis operation type, or nil.
func (i *Interface) Genesis() *OperationType {
	for n := range i.Operations {
		if i.Operations[n].Genesis {
			return &i.Operations[n]
		}
	}
	return nil
}

// RequiredOperations lists the names of operation types every lifecycle must contain.
func (i *Interface) RequiredOperations() []string {
	var out []string
	for _, op := range i.Operations {
		if op.Required {
			out = append(out, op.Name)
		}
	}
	return out
}

// ID commits to the whole interface definition.
func (i *Interface) ID() (core.IfaceID, error) {
	h, err := core.CanonicalHash(i)
	if err != nil {
		return core.ZeroIfaceID, fmt.Errorf("failed to compute interface id: %w", err)
	}
	return core.IfaceID(h), nil
}

func enumString[T comparable](names map[T]string, v T) string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("%d", any(v))
}

func enumMarshal[T comparable](names map[T]string, v T) ([]byte, error) {
	name, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("unknown value %d", any(v))
	}
	return []byte(name), nil
}

func enumUnmarshal[T comparable](names map[T]string, text []byte, out *T) error {
	for k, v := range names {
		if v == string(text) {
			*out = k
			return nil
		}
	}
	return fmt.Errorf("unknown value %q", text)
}

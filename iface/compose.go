package iface

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Compose derives a new interface from base and the extension ext, which
// must inherit base. Operation types of base can be redefined only when they
// are not final and the extension marks the redefinition as an override.
// Slots and errors shared by both must agree.
func Compose(base, ext *Interface) (*Interface, error) {
	parent, ok := findParent(ext.Inherits, base.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not inherit %s", ErrIncompatible, ext.Name, base.Name)
	}
	if parent.Version != "" {
		constraint, err := semver.NewConstraint(parent.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid version constraint %q: %w", parent.Version, err)
		}
		v, err := semver.NewVersion(base.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q of %s: %w", base.Version, base.Name, err)
		}
		if !constraint.Check(v) {
			return nil, fmt.Errorf("%w: %s requires %s %s, got %s", ErrIncompatible, ext.Name, base.Name, parent.Version, base.Version)
		}
	}

	out := &Interface{
		Name:     ext.Name,
		Version:  ext.Version,
		Inherits: slices.Clone(ext.Inherits),
		Slots:    slices.Clone(base.Slots),
		Errors:   slices.Clone(base.Errors),
	}

	for _, s := range ext.Slots {
		prev, ok := base.Slot(s.Name)
		if !ok {
			out.Slots = append(out.Slots, s)
			continue
		}
		if prev.Category != s.Category || prev.Multiplicity != s.Multiplicity || prev.Kind != s.Kind ||
			prev.SemType != s.SemType || prev.Aggregation != s.Aggregation {
			return nil, fmt.Errorf("%w: slot %s redefined with a different shape", ErrIncompatible, s.Name)
		}
	}

	for _, e := range ext.Errors {
		if prev, ok := base.ErrorKind(e.Name); ok {
			if prev.Code != e.Code {
				return nil, fmt.Errorf("%w: error %s redefined with code %d", ErrIncompatible, e.Name, e.Code)
			}
			continue
		}
		for _, other := range out.Errors {
			if other.Code == e.Code {
				return nil, fmt.Errorf("%w: error %s reuses code %d of %s", ErrIncompatible, e.Name, e.Code, other.Name)
			}
		}
		out.Errors = append(out.Errors, e)
	}

	ops := make([]OperationType, 0, len(base.Operations)+len(ext.Operations))
	for _, op := range base.Operations {
		ops = append(ops, cloneOperation(op))
	}
	extDefault := ext.DefaultOperation() != nil
	for _, op := range ext.Operations {
		idx := slices.IndexFunc(ops, func(o OperationType) bool {
			return o.Name == op.Name || (op.Genesis && o.Genesis)
		})
		if idx < 0 {
			if op.Modifier == Override {
				return nil, fmt.Errorf("%w: %s overrides nothing in %s", ErrIncompatible, op.Name, base.Name)
			}
			ops = append(ops, cloneOperation(op))
			continue
		}
		if ops[idx].Modifier == Final {
			return nil, fmt.Errorf("%w: %s", ErrFinalOverride, ops[idx].Name)
		}
		if op.Modifier != Override {
			return nil, fmt.Errorf("%w: %s", ErrNoOverride, ops[idx].Name)
		}
		required := ops[idx].Required
		ops[idx] = cloneOperation(op)
		ops[idx].Required = ops[idx].Required || required
	}
	if extDefault {
		for n := range ops {
			ops[n].Default = ops[n].Default && findOperation(ext.Operations, ops[n].Name)
		}
	}
	out.Operations = ops

	if err := out.Check(); err != nil {
		return nil, fmt.Errorf("composed interface %s: %w", out.Name, err)
	}
	return out, nil
}

func findParent(parents []Parent, name string) (Parent, bool) {
	for _, p := range parents {
		if p.Name == name {
			return p, true
		}
	}
	return Parent{}, false
}

func findOperation(ops []OperationType, name string) bool {
	return slices.ContainsFunc(ops, func(o OperationType) bool { return o.Name == name })
}

func cloneOperation(op OperationType) OperationType {
	op.Errors = slices.Clone(op.Errors)
	op.Globals = slices.Clone(op.Globals)
	op.Inputs = slices.Clone(op.Inputs)
	op.Assigns = slices.Clone(op.Assigns)
	op.Rules = slices.Clone(op.Rules)
	if op.Meta != nil {
		meta := *op.Meta
		op.Meta = &meta
	}
	return op
}

package iface

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/govm-net/contractum/core"
)

// Check validates the internal consistency of the interface and returns
// every problem found, joined into one error.
func (i *Interface) Check() error {
	var errs []error
	report := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...)))
	}

	if i.Name == "" {
		report("interface name is empty")
	}
	if _, err := semver.NewVersion(i.Version); err != nil {
		report("invalid version %q: %v", i.Version, err)
	}
	for _, p := range i.Inherits {
		if p.Version == "" {
			continue
		}
		if _, err := semver.NewConstraint(p.Version); err != nil {
			report("invalid version constraint %q for parent %s: %v", p.Version, p.Name, err)
		}
	}

	i.checkSlots(report)
	i.checkErrors(report)
	i.checkOperations(report)

	return errors.Join(errs...)
}

type reporter func(format string, args ...any)

func (i *Interface) checkSlots(report reporter) {
	seen := make(map[string]bool, len(i.Slots))
	for _, s := range i.Slots {
		if s.Name == "" {
			report("slot without name")
			continue
		}
		if seen[s.Name] {
			report("slot %s declared more than once", s.Name)
		}
		seen[s.Name] = true
		if _, ok := categoryNames[s.Category]; !ok {
			report("slot %s has unknown category %d", s.Name, s.Category)
		}
		if _, ok := multiplicityNames[s.Multiplicity]; !ok {
			report("slot %s has unknown multiplicity %d", s.Name, s.Multiplicity)
		}
		if _, err := s.Kind.MarshalText(); err != nil {
			report("slot %s: %v", s.Name, err)
		}
		if s.SemType != "" {
			if s.Kind != core.KindData {
				report("slot %s names semantic type %s but holds %s values", s.Name, s.SemType, s.Kind)
			} else if !KnownSemType(s.SemType) {
				report("slot %s: %v: %s", s.Name, ErrUnknownSemType, s.SemType)
			}
		}
		if s.Category != Global {
			if s.Aggregation != Replace {
				report("slot %s: aggregation applies to global slots only", s.Name)
			}
			continue
		}
		switch s.Aggregation {
		case Replace:
			if s.Multiplicity.IsMultiple() {
				report("global %s replaces a multi-valued slot", s.Name)
			}
		case Accumulate:
			if s.Kind != core.KindAmount {
				report("global %s accumulates %s values", s.Name, s.Kind)
			}
		case AppendSet:
		default:
			report("global %s has unknown aggregation %d", s.Name, s.Aggregation)
		}
	}
}

func (i *Interface) checkErrors(report reporter) {
	names := make(map[string]bool, len(i.Errors))
	codes := make(map[uint8]string, len(i.Errors))
	for _, e := range i.Errors {
		if names[e.Name] {
			report("error %s declared more than once", e.Name)
		}
		names[e.Name] = true
		if other, ok := codes[e.Code]; ok {
			report("errors %s and %s share code %d", other, e.Name, e.Code)
		}
		codes[e.Code] = e.Name
	}
}

func (i *Interface) checkOperations(report reporter) {
	names := make(map[string]bool, len(i.Operations))
	genesis := 0
	defaults := 0
	for n := range i.Operations {
		op := &i.Operations[n]
		if names[op.Name] {
			report("repeated operation name %s", op.Name)
		}
		names[op.Name] = true
		if _, ok := modifierNames[op.Modifier]; !ok {
			report("operation %s has unknown modifier %d", op.Name, op.Modifier)
		}
		if op.Modifier == Override && len(i.Inherits) == 0 {
			report("operation %s overrides but %s inherits nothing", op.Name, i.Name)
		}
		if op.Genesis {
			genesis++
			if len(op.Inputs) > 0 {
				report("genesis %s consumes inputs", op.Name)
			}
		} else if op.Default {
			defaults++
		}
		i.checkOperation(op, report)
	}
	if genesis != 1 {
		report("expected exactly one genesis, found %d", genesis)
	}
	if defaults > 1 {
		report("%d default operations declared", defaults)
	}

	g := i.Genesis()
	if g == nil {
		return
	}
	for _, s := range i.Slots {
		if !s.Multiplicity.IsRequired() {
			continue
		}
		switch s.Category {
		case Global:
			if _, ok := g.Global(s.Name); !ok {
				report("required global %s is not written by genesis", s.Name)
			}
		case Owned, Public:
			if _, ok := g.Assign(s.Name); !ok {
				report("required assignment %s is not made by genesis", s.Name)
			}
		}
	}
}

func (i *Interface) checkOperation(op *OperationType, report reporter) {
	checkRefs := func(refs []SlotRef, what string, want func(Category) bool) {
		seen := make(map[string]bool, len(refs))
		for _, ref := range refs {
			if seen[ref.Slot] {
				report("operation %s lists %s %s twice", op.Name, what, ref.Slot)
			}
			seen[ref.Slot] = true
			slot, ok := i.Slot(ref.Slot)
			if !ok || !want(slot.Category) {
				report("operation %s references unknown %s %s", op.Name, what, ref.Slot)
				continue
			}
			if _, ok := multiplicityNames[ref.Multiplicity]; !ok {
				report("operation %s has unknown multiplicity for %s", op.Name, ref.Slot)
			}
			if ref.Multiplicity.IsMultiple() && !slot.Multiplicity.IsMultiple() {
				report("operation %s allows multiple %s %s for a single-valued slot", op.Name, what, ref.Slot)
			}
		}
	}
	isGlobal := func(c Category) bool { return c == Global }
	isOwned := func(c Category) bool { return c == Owned || c == Public }
	checkRefs(op.Globals, "global", isGlobal)
	checkRefs(op.Inputs, "input", isOwned)
	checkRefs(op.Assigns, "assignment", isOwned)

	for _, ref := range op.Globals {
		if ref.Default {
			report("operation %s marks global %s as default assignment", op.Name, ref.Slot)
		}
	}
	for _, ref := range op.Inputs {
		if ref.Default {
			report("operation %s marks input %s as default assignment", op.Name, ref.Slot)
		}
	}
	defaults := 0
	for _, ref := range op.Assigns {
		if ref.Default {
			defaults++
		}
	}
	if defaults > 1 {
		report("operation %s declares %d default assignments", op.Name, defaults)
	}

	seen := make(map[string]bool, len(op.Errors))
	for _, e := range op.Errors {
		if seen[e] {
			report("operation %s lists error %s twice", op.Name, e)
		}
		seen[e] = true
		if _, ok := i.ErrorKind(e); !ok {
			report("operation %s references unknown error %s", op.Name, e)
		}
	}

	if op.Meta != nil && len(op.Meta.Schema) == 0 && !KnownSemType(op.Meta.Type) {
		report("operation %s: meta %v: %s", op.Name, ErrUnknownSemType, op.Meta.Type)
	}

	for _, r := range op.Rules {
		i.checkRule(op, r, report)
	}
}

func (i *Interface) checkRule(op *OperationType, r Rule, report reporter) {
	if _, ok := defaultRuleErrors[r.Kind]; !ok || r.Kind == proofValidity {
		report("operation %s declares unknown rule %d", op.Name, r.Kind)
		return
	}
	needGlobal, needSlots, needCatalog := r.Kind.needs()
	if needGlobal {
		slot, ok := i.Slot(r.Global)
		if !ok || slot.Category != Global {
			report("rule %s of %s references unknown global %q", r.Kind, op.Name, r.Global)
		}
	}
	if needSlots && len(r.Slots) == 0 {
		report("rule %s of %s names no slots", r.Kind, op.Name)
	}
	for _, name := range r.Slots {
		slot, ok := i.Slot(name)
		if !ok || slot.Category == Global {
			report("rule %s of %s references unknown slot %q", r.Kind, op.Name, name)
		}
	}
	if needCatalog {
		slot, ok := i.Slot(r.Catalog)
		if !ok || slot.Category != Global || slot.SemType != SemTokenData {
			report("rule %s of %s needs a token catalogue, got %q", r.Kind, op.Name, r.Catalog)
		}
	}
	if !op.RaisesError(r.ErrorName()) {
		report("rule %s of %s raises undeclared error %s", r.Kind, op.Name, r.ErrorName())
	}
}

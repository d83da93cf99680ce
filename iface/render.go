package iface

import (
	"fmt"
	"io"
	"strings"
)

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// Render writes the human-readable declaration of the interface to w.
func Render(w io.Writer, ifc *Interface) error {
	out := &errWriter{w: w}

	out.printf("@version(%s)\n", ifc.Version)
	out.printf("interface %s", ifc.Name)
	if len(ifc.Inherits) > 0 {
		parents := make([]string, len(ifc.Inherits))
		for n, p := range ifc.Inherits {
			parents[n] = strings.TrimSpace(p.Name + " " + p.Version)
		}
		out.printf(": %s", strings.Join(parents, ", "))
	}
	out.printf("\n")

	for _, cat := range []Category{Global, Owned, Public} {
		wrote := false
		for _, s := range ifc.Slots {
			if s.Category != cat {
				continue
			}
			wrote = true
			out.printf("\t%s %s%s: %s", cat, s.Name, sugar(s.Multiplicity), slotType(s))
			if cat == Global && s.Aggregation != Replace {
				out.printf(", %s", s.Aggregation)
			}
			out.printf("\n")
		}
		if wrote {
			out.printf("\n")
		}
	}

	for _, e := range ifc.Errors {
		out.printf("\terror %s: %d\n", e.Name, e.Code)
		if e.Description != "" {
			out.printf("\t\t%q\n", e.Description)
		}
	}
	if len(ifc.Errors) > 0 {
		out.printf("\n")
	}

	for _, op := range ifc.Operations {
		renderOperation(out, &op)
	}
	return out.err
}

func renderOperation(out *errWriter, op *OperationType) {
	out.printf("\t")
	if op.Required {
		out.printf("required ")
	}
	if op.Default {
		out.printf("default ")
	}
	out.printf("%s ", op.Modifier)
	if op.Genesis {
		out.printf("genesis %s\n", op.Name)
	} else {
		out.printf("transition %s\n", op.Name)
	}

	if len(op.Errors) > 0 {
		out.printf("\t\terrors: %s\n", strings.Join(op.Errors, ", "))
	}
	if op.Meta != nil {
		out.printf("\t\tmeta: %s\n", op.Meta.Type)
	}
	if len(op.Globals) > 0 {
		out.printf("\t\tglobals: %s\n", refList(op.Globals))
	}
	if len(op.Assigns) > 0 {
		out.printf("\t\tassigns: %s\n", refList(op.Assigns))
	}
	if def := op.DefaultAssign(); def != "" {
		out.printf("\t\tdefault: %s\n", def)
	}
	if len(op.Inputs) > 0 {
		out.printf("\t\tinputs: %s\n", refList(op.Inputs))
	}
	if len(op.Rules) > 0 {
		rules := make([]string, len(op.Rules))
		for n, r := range op.Rules {
			rules[n] = renderRule(r)
		}
		out.printf("\t\trules: %s\n", strings.Join(rules, ", "))
	}
	out.printf("\n")
}

func renderRule(r Rule) string {
	var args []string
	if r.Global != "" {
		args = append(args, r.Global)
	}
	args = append(args, r.Slots...)
	if r.Catalog != "" {
		args = append(args, "in "+r.Catalog)
	}
	s := fmt.Sprintf("%s(%s)", r.Kind, strings.Join(args, " "))
	if r.Error != "" {
		s += " raises " + r.Error
	}
	return s
}

func refList(refs []SlotRef) string {
	parts := make([]string, len(refs))
	for n, ref := range refs {
		parts[n] = ref.Slot + sugar(ref.Multiplicity)
	}
	return strings.Join(parts, ", ")
}

func sugar(m Multiplicity) string {
	if s := m.Sugar(); s != "" {
		return "(" + s + ")"
	}
	return ""
}

func slotType(s StateSlot) string {
	if s.SemType != "" {
		return s.SemType
	}
	return s.Kind.String()
}

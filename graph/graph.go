// Package graph validates batches of operations: it orders them causally,
// resolves double consumption, folds the contract state forward and commits
// each accepted operation to the store.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/state"
	"github.com/govm-net/contractum/validator"
)

// Policy selects how lifecycle completeness is enforced.
type Policy string

const (
	// LifecycleOff skips the check.
	LifecycleOff Policy = "off"
	// LifecycleReport attaches a LifecycleError to the report.
	LifecycleReport Policy = "report"
	// LifecycleEnforce also returns it as the batch error.
	LifecycleEnforce Policy = "enforce"
)

// ParsePolicy accepts off, report and enforce. Empty selects report.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return LifecycleReport, nil
	case LifecycleOff, LifecycleReport, LifecycleEnforce:
		return p, nil
	}
	return "", fmt.Errorf("unknown lifecycle policy %q", s)
}

// Options tune batch validation.
type Options struct {
	// Workers bounds parallel preparation; 0 uses GOMAXPROCS.
	Workers int
	// MaxBatchSize rejects larger batches; 0 disables the limit.
	MaxBatchSize int
	Lifecycle    Policy
}

// Report describes the outcome of a batch. It is returned even when the
// batch stopped early; Applied then lists the committed prefix.
type Report struct {
	Batch     uuid.UUID
	Contract  core.ContractID
	Applied   []core.OpID
	Delta     *state.Delta
	Lifecycle *LifecycleError
	Started   time.Time
	Finished  time.Time
}

// Validator validates batches of one interface.
type Validator struct {
	v    *validator.Validator
	opts Options
}

func New(v *validator.Validator, opts Options) *Validator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Lifecycle == "" {
		opts.Lifecycle = LifecycleReport
	}
	return &Validator{v: v, opts: opts}
}

// ValidateBatch validates ops against the store and commits the accepted
// ones in causal order. Cancelling ctx before the first commit abandons the
// batch without effect; later cancellation is ignored.
func (g *Validator) ValidateBatch(ctx context.Context, store state.Store, ops []*operation.Operation) (*Report, error) {
	report := &Report{
		Batch:    uuid.New(),
		Contract: store.ContractID(),
		Delta:    &state.Delta{},
		Started:  time.Now(),
	}
	defer func() { report.Finished = time.Now() }()
	log := slog.With("batch", report.Batch, "contract", report.Contract)
	log.Info("batch started", "ops", len(ops))

	if g.opts.MaxBatchSize > 0 && len(ops) > g.opts.MaxBatchSize {
		err := validator.Structural(core.ZeroOpID, validator.BatchTooLarge, "%d operations, limit %d", len(ops), g.opts.MaxBatchSize)
		return report, &BatchError{Index: -1, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	prepared, err := g.prepare(ops)
	if err != nil {
		log.Warn("batch rejected", "error", err)
		return report, err
	}
	index := make(map[core.OpID]int, len(prepared))
	for i, p := range prepared {
		if j, ok := index[p.ID]; ok {
			err := validator.Structural(p.ID, validator.DuplicateOperation, "submitted at %d and %d", j, i)
			return report, &BatchError{Op: p.ID, Index: i, Err: err}
		}
		index[p.ID] = i
	}

	d := newDAG(prepared)
	if sorted, ok := d.sort(d.causal); !ok {
		stuck := d.cycle(sorted)
		err := validator.Structural(stuck[0], validator.CyclicGraph, "%d operations form a cycle", len(stuck))
		log.Warn("batch rejected", "error", err)
		return report, &BatchError{Index: -1, Err: err}
	}
	d.addConflicts(prepared)
	order, ok := d.sort(d.order)
	if !ok {
		return report, &BatchError{Index: -1, Err: errors.New("conflict ordering introduced a cycle")}
	}

	folded, err := store.State()
	if err != nil {
		return report, fmt.Errorf("failed to read contract state: %w", err)
	}
	base := folded.Clone()
	ancestors := d.ancestors()
	deltas := make([]*state.Delta, len(prepared))
	position := make([]int, len(prepared))
	for pos, i := range order {
		position[i] = pos
	}

	for _, i := range order {
		p := prepared[i]
		if len(report.Applied) == 0 {
			if err := ctx.Err(); err != nil {
				log.Info("batch cancelled before commit")
				return report, err
			}
		}

		var chain []*state.Delta
		for _, a := range sortedByPosition(ancestors[i], position) {
			chain = append(chain, deltas[a])
		}
		view, err := newBatchView(base, folded, chain)
		if err != nil {
			return report, g.fail(log, p, i, validator.Structural(p.ID, validator.Overflow, "%v", err))
		}

		delta, err := g.v.Check(view, p)
		if err != nil {
			var conflict *validator.ConflictError
			if errors.As(err, &conflict) {
				conflict.Winner, _ = folded.SpentBy(conflict.Seal)
			}
			return report, g.fail(log, p, i, err)
		}
		if err := folded.Apply(p.ID, p.Type.Name, delta); err != nil {
			return report, g.fail(log, p, i, foldError(p.ID, err))
		}
		if err := store.Apply(p.ID, p.Type.Name, delta); err != nil {
			log.Error("failed to persist operation", "op", p.ID, "error", err)
			return report, &BatchError{Op: p.ID, Index: i, Err: err}
		}
		deltas[i] = delta
		report.Applied = append(report.Applied, p.ID)
		report.Delta.Merge(delta)
		log.Info("operation accepted", "op", p.ID, "type", p.Type.Name)
	}

	if g.opts.Lifecycle != LifecycleOff {
		if missing := g.missingRequired(folded); len(missing) > 0 {
			report.Lifecycle = &LifecycleError{Contract: report.Contract, Missing: missing}
			log.Warn("lifecycle incomplete", "missing", missing)
			if g.opts.Lifecycle == LifecycleEnforce {
				return report, report.Lifecycle
			}
		}
	}
	log.Info("batch finished", "applied", len(report.Applied))
	return report, nil
}

// prepare runs the state-independent checks in parallel. The error of the
// first failing operation in submission order is returned.
func (g *Validator) prepare(ops []*operation.Operation) ([]*validator.Prepared, error) {
	prepared := make([]*validator.Prepared, len(ops))
	errs := make([]error, len(ops))
	var eg errgroup.Group
	eg.SetLimit(g.opts.Workers)
	for i, op := range ops {
		eg.Go(func() error {
			prepared[i], errs[i] = g.v.Prepare(op)
			return nil
		})
	}
	_ = eg.Wait()
	for i, err := range errs {
		if err != nil {
			var se *validator.StructuralError
			var op core.OpID
			if errors.As(err, &se) {
				op = se.Op
			}
			return nil, &BatchError{Op: op, Index: i, Err: err}
		}
	}
	return prepared, nil
}

func (g *Validator) fail(log *slog.Logger, p *validator.Prepared, index int, err error) error {
	log.Warn("operation rejected", "op", p.ID, "type", p.Type.Name, "error", err)
	return &BatchError{Op: p.ID, Index: index, Err: err}
}

func (g *Validator) missingRequired(folded *state.State) []string {
	applied := folded.Applied()
	var missing []string
	for _, name := range g.v.Interface().RequiredOperations() {
		if applied[name] == 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

// Lifecycle checks that every required operation type occurred in the
// contract state.
func (g *Validator) Lifecycle(st *state.State) error {
	if missing := g.missingRequired(st); len(missing) > 0 {
		return &LifecycleError{Contract: st.ContractID(), Missing: missing}
	}
	return nil
}

func foldError(id core.OpID, err error) error {
	switch {
	case errors.Is(err, state.ErrDuplicateOperation):
		return validator.Structural(id, validator.DuplicateOperation, "%v", err)
	case errors.Is(err, core.ErrAmountOverflow):
		return validator.Structural(id, validator.Overflow, "%v", err)
	case errors.Is(err, state.ErrSealUsed):
		return validator.Structural(id, validator.DuplicateSeal, "%v", err)
	}
	return validator.Structural(id, validator.InvalidValue, "%v", err)
}

func sortedByPosition(set map[int]bool, position []int) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b int) int { return position[a] - position[b] })
	return out
}

// Package engine hosts many contracts: it creates them from a registered
// interface, opens their stores and serializes batches per contract while
// different contracts validate concurrently.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/graph"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/oracle"
	"github.com/govm-net/contractum/oracle/wasm"
	"github.com/govm-net/contractum/repository"
	"github.com/govm-net/contractum/state"
	"github.com/govm-net/contractum/validator"

	_ "github.com/govm-net/contractum/state/db"
	_ "github.com/govm-net/contractum/state/memory"
)

var (
	ErrContractExists  = errors.New("contract already exists")
	ErrUnknownContract = errors.New("unknown contract")
)

// Engine validates operations of the contracts it hosts.
type Engine struct {
	config *Config
	repo   *repository.Manager
	oracle oracle.Oracle
	closer io.Closer
	policy graph.Policy

	mu        sync.Mutex
	contracts map[core.ContractID]*contract
}

type contract struct {
	mu    sync.Mutex
	ifc   *iface.Interface
	store state.Store
	graph *graph.Validator
}

// NewEngine creates an engine
func NewEngine(ctx context.Context, config *Config) (*Engine, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, _ := graph.ParsePolicy(config.Lifecycle)

	repo, err := repository.NewManager(config.RepositoryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create interface repository: %w", err)
	}

	e := &Engine{
		config:    config,
		repo:      repo,
		oracle:    oracle.Plain{},
		policy:    policy,
		contracts: make(map[core.ContractID]*contract),
	}
	if config.Oracle == OracleWasm {
		o, err := wasm.NewFromFile(ctx, config.OracleWasmPath,
			wasm.WithMemoryLimit(config.OracleMemoryPages),
			wasm.WithCallTimeout(config.OracleTimeout))
		if err != nil {
			return nil, fmt.Errorf("failed to load wasm oracle: %w", err)
		}
		e.oracle, e.closer = o, o
	}
	return e, nil
}

// WithOracle replaces the proof oracle for contracts opened afterwards.
func (e *Engine) WithOracle(o oracle.Oracle) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oracle = o
	return e
}

// Repository returns the interface repository.
func (e *Engine) Repository() *repository.Manager {
	return e.repo
}

// RegisterInterface stores ifc in the repository and returns its identifier.
func (e *Engine) RegisterInterface(ifc *iface.Interface) (core.IfaceID, error) {
	return e.repo.RegisterInterface(ifc)
}

// CreateContract validates a batch that carries the genesis of a new
// contract of interface id. The contract is kept only when its genesis is
// accepted; its identifier is the genesis operation identifier.
func (e *Engine) CreateContract(ctx context.Context, id core.IfaceID, ops []*operation.Operation) (*graph.Report, error) {
	ifc, err := e.repo.GetInterface(id)
	if err != nil {
		return nil, err
	}
	v := validator.New(ifc, e.currentOracle())

	genesis := ifc.Genesis()
	var found []*operation.Operation
	for _, op := range ops {
		if op.Type == genesis.Name {
			found = append(found, op)
		}
	}
	switch len(found) {
	case 0:
		return nil, validator.Structural(core.ZeroOpID, validator.NoGenesis, "batch carries no %s", genesis.Name)
	case 1:
	default:
		return nil, validator.Structural(core.ZeroOpID, validator.GenesisExists, "batch carries %d genesis operations", len(found))
	}
	p, err := v.Prepare(found[0])
	if err != nil {
		return nil, err
	}
	contractID := core.ContractID(p.ID)

	e.mu.Lock()
	if _, ok := e.contracts[contractID]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", contractID, ErrContractExists)
	}
	if _, err := e.repo.Binding(contractID); err == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", contractID, ErrContractExists)
	}
	c, err := e.newContract(contractID, ifc, v)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	// state without a binding is left over from an interrupted creation
	if err := discardOrphan(c.store); err != nil {
		e.mu.Unlock()
		c.store.Close()
		return nil, err
	}
	// hold the contract before publishing it so no batch runs ahead of genesis
	c.mu.Lock()
	e.contracts[contractID] = c
	e.mu.Unlock()

	report, err := e.run(ctx, c, ops)
	created := report != nil && slices.Contains(report.Applied, p.ID)
	if created {
		if bindErr := e.repo.Bind(contractID, id); bindErr != nil {
			created = false
			err = errors.Join(err, bindErr)
		}
	}
	c.mu.Unlock()

	if !created {
		e.mu.Lock()
		delete(e.contracts, contractID)
		e.mu.Unlock()
		if remover, ok := c.store.(state.Remover); ok {
			if rmErr := remover.Remove(); rmErr != nil {
				slog.Error("failed to remove rejected contract", "contract", contractID, "error", rmErr)
				err = errors.Join(err, rmErr)
			}
		}
		c.store.Close()
		return report, err
	}
	slog.Info("contract created", "contract", contractID, "interface", ifc.Name, "version", ifc.Version)
	return report, err
}

// Submit validates a batch of operations of an existing contract. Batches
// of one contract are validated one at a time.
func (e *Engine) Submit(ctx context.Context, contractID core.ContractID, ops []*operation.Operation) (*graph.Report, error) {
	c, err := e.open(contractID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.run(ctx, c, ops)
}

// State returns a copy of the current state of a contract.
func (e *Engine) State(contractID core.ContractID) (*state.State, error) {
	c, err := e.open(contractID)
	if err != nil {
		return nil, err
	}
	return c.store.State()
}

// Interface returns the interface a contract was created with.
func (e *Engine) Interface(contractID core.ContractID) (*iface.Interface, error) {
	c, err := e.open(contractID)
	if err != nil {
		return nil, err
	}
	return c.ifc, nil
}

// Lifecycle reports whether every required operation type of the contract
// interface occurred.
func (e *Engine) Lifecycle(contractID core.ContractID) error {
	c, err := e.open(contractID)
	if err != nil {
		return err
	}
	st, err := c.store.State()
	if err != nil {
		return err
	}
	return c.graph.Lifecycle(st)
}

// Contracts lists the contracts opened by the engine.
func (e *Engine) Contracts() []core.ContractID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := slices.Collect(maps.Keys(e.contracts))
	slices.SortFunc(ids, func(a, b core.ContractID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

// Close closes the engine
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for id, c := range e.contracts {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store of %s: %w", id, err))
		}
	}
	clear(e.contracts)
	if e.closer != nil {
		if err := e.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close oracle: %w", err))
		}
	}
	return errors.Join(errs...)
}

func discardOrphan(store state.Store) error {
	remover, ok := store.(state.Remover)
	if !ok {
		return nil
	}
	st, err := store.State()
	if err != nil {
		return err
	}
	if !st.HasGenesis() {
		return nil
	}
	slog.Warn("discarding unbound contract state", "contract", store.ContractID())
	return remover.Remove()
}

func (e *Engine) run(ctx context.Context, c *contract, ops []*operation.Operation) (*graph.Report, error) {
	report, err := c.graph.ValidateBatch(ctx, c.store, ops)
	if recorder, ok := c.store.(state.BatchRecorder); ok && report != nil {
		rec := state.BatchRecord{
			ID:       report.Batch,
			Contract: report.Contract,
			Applied:  report.Applied,
			Started:  report.Started,
			Finished: report.Finished,
		}
		if err != nil {
			rec.Failed = err.Error()
		}
		if recErr := recorder.RecordBatch(rec); recErr != nil {
			slog.Error("failed to record batch", "batch", report.Batch, "error", recErr)
		}
	}
	return report, err
}

// open returns a hosted contract, loading it from the repository binding
// and the store backend when the engine has not seen it yet.
func (e *Engine) open(contractID core.ContractID) (*contract, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.contracts[contractID]; ok {
		return c, nil
	}
	binding, err := e.repo.Binding(contractID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", contractID, ErrUnknownContract)
	}
	if err != nil {
		return nil, err
	}
	ifc, err := e.repo.GetInterface(binding.Interface)
	if err != nil {
		return nil, err
	}
	c, err := e.newContract(contractID, ifc, validator.New(ifc, e.oracle))
	if err != nil {
		return nil, err
	}
	e.contracts[contractID] = c
	return c, nil
}

// newContract opens the store of a contract. Callers hold e.mu.
func (e *Engine) newContract(contractID core.ContractID, ifc *iface.Interface, v *validator.Validator) (*contract, error) {
	params := make(map[string]any, len(e.config.StoreParams)+1)
	maps.Copy(params, e.config.StoreParams)
	params[state.ParamContract] = contractID
	store, err := state.Get(state.StoreType(e.config.StoreType), params)
	if err != nil {
		return nil, fmt.Errorf("failed to open store of %s: %w", contractID, err)
	}
	g := graph.New(v, graph.Options{
		Workers:      e.config.Workers,
		MaxBatchSize: e.config.MaxBatchSize,
		Lifecycle:    e.policy,
	})
	return &contract{ifc: ifc, store: store, graph: g}, nil
}

func (e *Engine) currentOracle() oracle.Oracle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle
}

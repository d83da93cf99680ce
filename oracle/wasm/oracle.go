// Package wasm runs a proof oracle compiled to WebAssembly.
//
// The module must export "memory", "allocate(len) ptr" and the three
// verification entry points, each taking (ptr, len) of a JSON payload and
// returning a non-zero i32 on success:
//
//	verify_proof         {"material": base64, "publicInputs": base64}
//	verify_sum_equality  {"inputs": [hex], "outputs": [hex]}
//	verify_range_bound   {"commitment": hex, "bound": uint64}
//
// An optional "deallocate(ptr, len)" export is called after each request.
// The host exposes env.log(ptr, len) so the module can write to the process log.
package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/oracle"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	fnAllocate          = "allocate"
	fnDeallocate        = "deallocate"
	fnVerifyProof       = "verify_proof"
	fnVerifySumEquality = "verify_sum_equality"
	fnVerifyRangeBound  = "verify_range_bound"
)

// ErrMissingExport is returned when the module lacks a required export.
var ErrMissingExport = errors.New("wasm oracle: missing export")

// Oracle calls into a single wasm module instance. Calls are serialized
// because the instance memory is shared.
type Oracle struct {
	mu      sync.Mutex
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
	timeout time.Duration
}

type limits struct {
	memoryPages uint32
	timeout     time.Duration
}

// Option limits the resources of the oracle module.
type Option func(*limits)

// WithMemoryLimit caps the linear memory of the module, in 64KiB pages.
func WithMemoryLimit(pages uint32) Option {
	return func(l *limits) { l.memoryPages = pages }
}

// WithCallTimeout bounds each verification call. A call that runs out of
// time closes the module, so every later call is rejected.
func WithCallTimeout(d time.Duration) Option {
	return func(l *limits) { l.timeout = d }
}

var _ oracle.Oracle = (*Oracle)(nil)

type proofRequest struct {
	Material     []byte `json:"material"`
	PublicInputs []byte `json:"publicInputs"`
}

type sumRequest struct {
	Inputs  []core.Commitment `json:"inputs"`
	Outputs []core.Commitment `json:"outputs"`
}

type rangeRequest struct {
	Commitment core.Commitment `json:"commitment"`
	Bound      uint64          `json:"bound"`
}

// NewFromFile loads the oracle module from path.
func NewFromFile(ctx context.Context, path string, opts ...Option) (*Oracle, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle module: %w", err)
	}
	return New(ctx, code, opts...)
}

// New compiles and instantiates the oracle module.
func New(ctx context.Context, wasmCode []byte, opts ...Option) (*Oracle, error) {
	if len(wasmCode) == 0 {
		return nil, errors.New("oracle module cannot be empty")
	}
	var l limits
	for _, opt := range opts {
		opt(&l)
	}
	rc := wazero.NewRuntimeConfig()
	if l.memoryPages > 0 {
		rc = rc.WithMemoryLimitPages(l.memoryPages)
	}
	if l.timeout > 0 {
		rc = rc.WithCloseOnContextDone(true)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, rc)

	compiled, err := runtime.CompileModule(ctx, wasmCode)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	_, err = runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithParameterNames("ptr", "len").
		WithFunc(func(_ context.Context, m api.Module, ptr, length uint32) {
			msg, ok := m.Memory().Read(ptr, length)
			if !ok {
				return
			}
			slog.Info("wasm oracle", "msg", string(msg))
		}).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate env module: %w", err)
	}
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	config := wazero.NewModuleConfig().
		WithName("oracle").
		WithStartFunctions("_initialize")
	module, err := runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate oracle module: %w", err)
	}

	for _, name := range []string{fnAllocate, fnVerifyProof, fnVerifySumEquality, fnVerifyRangeBound} {
		if module.ExportedFunction(name) == nil {
			runtime.Close(ctx)
			return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}
	if module.Memory() == nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("%w: memory", ErrMissingExport)
	}

	return &Oracle{ctx: ctx, runtime: runtime, module: module, timeout: l.timeout}, nil
}

// Close releases the runtime.
func (o *Oracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtime.Close(o.ctx)
}

func (o *Oracle) VerifyProof(material, publicInputs []byte) bool {
	return o.verify(fnVerifyProof, proofRequest{Material: material, PublicInputs: publicInputs})
}

func (o *Oracle) VerifySumEquality(inputs, outputs []core.Commitment) bool {
	return o.verify(fnVerifySumEquality, sumRequest{Inputs: inputs, Outputs: outputs})
}

func (o *Oracle) VerifyRangeBound(c core.Commitment, bound uint64) bool {
	return o.verify(fnVerifyRangeBound, rangeRequest{Commitment: c, Bound: bound})
}

// verify fails closed: any host or guest error counts as a rejection.
func (o *Oracle) verify(name string, req any) bool {
	payload, err := json.Marshal(req)
	if err != nil {
		slog.Error("failed to encode oracle request", "fn", name, "error", err)
		return false
	}
	ok, err := o.call(name, payload)
	if err != nil {
		slog.Error("oracle call failed", "fn", name, "error", err)
		return false
	}
	return ok
}

func (o *Oracle) call(name string, payload []byte) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx := o.ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	allocate := o.module.ExportedFunction(fnAllocate)
	results, err := allocate.Call(ctx, uint64(len(payload)))
	if err != nil {
		return false, fmt.Errorf("allocate: %w", err)
	}
	if len(results) == 0 {
		return false, errors.New("allocate returned no pointer")
	}
	ptr := uint32(results[0])
	if !o.module.Memory().Write(ptr, payload) {
		return false, fmt.Errorf("failed to write %d bytes at %d", len(payload), ptr)
	}
	if dealloc := o.module.ExportedFunction(fnDeallocate); dealloc != nil {
		defer func() {
			if _, err := dealloc.Call(ctx, uint64(ptr), uint64(len(payload))); err != nil {
				slog.Warn("oracle deallocate failed", "error", err)
			}
		}()
	}

	results, err = o.module.ExportedFunction(name).Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	if len(results) == 0 {
		return false, fmt.Errorf("%s returned no result", name)
	}
	return api.DecodeI32(results[0]) != 0, nil
}

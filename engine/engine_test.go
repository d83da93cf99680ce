package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/graph"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/internal/fixture"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/oracle/mock"
	"github.com/govm-net/contractum/repository"
	"github.com/govm-net/contractum/state"
	"github.com/govm-net/contractum/state/db"
	"github.com/govm-net/contractum/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	config := DefaultConfig()
	config.RepositoryDir = filepath.Join(t.TempDir(), "repo")
	if mutate != nil {
		mutate(config)
	}
	e, err := NewEngine(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func registerRGB20(t *testing.T, e *Engine) core.IfaceID {
	t.Helper()
	id, err := e.RegisterInterface(iface.RGB20())
	require.NoError(t, err)
	return id
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"nil store type selects default", func(c *Config) { c.StoreType = "" }, false},
		{"db store", func(c *Config) { c.StoreType = "db" }, false},
		{"unknown store", func(c *Config) { c.StoreType = "redis" }, true},
		{"empty repository", func(c *Config) { c.RepositoryDir = "" }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"negative batch size", func(c *Config) { c.MaxBatchSize = -1 }, true},
		{"unknown lifecycle", func(c *Config) { c.Lifecycle = "strict" }, true},
		{"wasm without module", func(c *Config) { c.Oracle = OracleWasm }, true},
		{"unknown oracle", func(c *Config) { c.Oracle = "zk" }, true},
		{"negative oracle timeout", func(c *Config) { c.OracleTimeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := validateConfig(config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Error(t, validateConfig(nil))

	_, err := NewEngine(context.Background(), &Config{
		RepositoryDir:  t.TempDir(),
		Oracle:         OracleWasm,
		OracleWasmPath: filepath.Join(t.TempDir(), "missing.wasm"),
	})
	assert.Error(t, err)
}

func TestCreateAndSubmit(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	id := registerRGB20(t, e)

	genesis := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 60}, fixture.Owner{Seal: "b", Amount: 40})
	contract := fixture.ContractOf(genesis)
	transfer := fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "c", Amount: 60})

	report, err := e.CreateContract(ctx, id, []*operation.Operation{transfer, genesis})
	require.NoError(t, err)
	assert.Len(t, report.Applied, 2)
	assert.Nil(t, report.Lifecycle)
	assert.Equal(t, []core.ContractID{contract}, e.Contracts())

	ifc, err := e.Interface(contract)
	require.NoError(t, err)
	assert.Equal(t, "RGB20", ifc.Name)
	assert.NoError(t, e.Lifecycle(contract))

	binding, err := e.Repository().Binding(contract)
	require.NoError(t, err)
	assert.Equal(t, id, binding.Interface)

	_, err = e.CreateContract(ctx, id, []*operation.Operation{genesis})
	assert.ErrorIs(t, err, ErrContractExists)

	spend := fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "d", Amount: 60})
	_, err = e.Submit(ctx, contract, []*operation.Operation{spend})
	assert.ErrorIs(t, err, validator.ErrConflict)

	merge := fixture.Transfer(contract, []core.SealRef{"b", "c"}, fixture.Owner{Seal: "e", Amount: 100})
	_, err = e.Submit(ctx, contract, []*operation.Operation{merge})
	require.NoError(t, err)

	st, err := e.State(contract)
	require.NoError(t, err)
	live := st.LiveOutputs(iface.SlotAssetOwner)
	require.Len(t, live, 1)
	assert.Equal(t, core.NewAmount(100), live[0].Value)

	_, err = e.Submit(ctx, core.ContractID{1}, []*operation.Operation{merge})
	assert.ErrorIs(t, err, ErrUnknownContract)
}

func TestCreateContractNeedsAcceptedGenesis(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	id := registerRGB20(t, e)

	_, err := e.CreateContract(ctx, id, nil)
	code, ok := validator.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, validator.NoGenesis, code)

	twice := []*operation.Operation{
		fixture.RGB20Genesis(1, 0, fixture.Owner{Seal: "a", Amount: 1}),
		fixture.RGB20Genesis(2, 0, fixture.Owner{Seal: "a", Amount: 2}),
	}
	_, err = e.CreateContract(ctx, id, twice)
	code, ok = validator.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, validator.GenesisExists, code)

	// issued supply does not match the owners
	bad := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 99})
	report, err := e.CreateContract(ctx, id, []*operation.Operation{bad})
	name, ok := validator.ErrorName(err)
	require.True(t, ok)
	assert.Equal(t, iface.ErrSupplyMismatch, name)
	assert.Empty(t, report.Applied)
	assert.Empty(t, e.Contracts())
	_, err = e.Repository().Binding(fixture.ContractOf(bad))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = e.CreateContract(ctx, core.IfaceID{9}, []*operation.Operation{bad})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func dbConfig(dir string) func(*Config) {
	return func(c *Config) {
		c.StoreType = string(state.DBStoreType)
		c.StoreParams = map[string]any{state.ParamDBPath: filepath.Join(dir, "state.db")}
		c.RepositoryDir = filepath.Join(dir, "repo")
	}
}

func TestRejectedGenesisLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	e := newEngine(t, dbConfig(dir))
	id := registerRGB20(t, e)

	bad := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 99})
	_, err := e.CreateContract(ctx, id, []*operation.Operation{bad})
	require.Error(t, err)
	assert.Empty(t, e.Contracts())

	contracts, err := db.Contracts(dbPath)
	require.NoError(t, err)
	assert.Empty(t, contracts)
	store, err := db.NewStore(map[string]any{state.ParamContract: fixture.ContractOf(bad), state.ParamDBPath: dbPath})
	require.NoError(t, err)
	defer store.Close()
	batches, err := store.(*db.Store).Batches()
	require.NoError(t, err)
	assert.Empty(t, batches)

	good := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 100})
	_, err = e.CreateContract(ctx, id, []*operation.Operation{good})
	require.NoError(t, err)
	contracts, err = db.Contracts(dbPath)
	require.NoError(t, err)
	assert.Equal(t, []core.ContractID{fixture.ContractOf(good)}, contracts)
}

func TestFailedBindCanBeRetried(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	e := newEngine(t, dbConfig(dir))
	id := registerRGB20(t, e)

	genesis := fixture.RGB20Genesis(10, 0, fixture.Owner{Seal: "a", Amount: 10})
	contract := fixture.ContractOf(genesis)
	blocker := filepath.Join(dir, "repo", "contracts", contract.String()+".json")
	require.NoError(t, os.MkdirAll(blocker, 0755))

	report, err := e.CreateContract(ctx, id, []*operation.Operation{genesis})
	require.Error(t, err)
	assert.Equal(t, []core.OpID{core.OpID(contract)}, report.Applied)
	assert.Empty(t, e.Contracts())
	contracts, err := db.Contracts(dbPath)
	require.NoError(t, err)
	assert.Empty(t, contracts)

	require.NoError(t, os.Remove(blocker))
	_, err = e.CreateContract(ctx, id, []*operation.Operation{genesis})
	require.NoError(t, err)
	assert.Equal(t, []core.ContractID{contract}, e.Contracts())
}

func TestUnboundStateIsDiscarded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")

	genesis := fixture.RGB20Genesis(10, 0, fixture.Owner{Seal: "a", Amount: 10})
	contract := fixture.ContractOf(genesis)
	// state committed by a creation that never reached its binding
	store, err := db.NewStore(map[string]any{state.ParamContract: contract, state.ParamDBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, store.Apply(core.OpID(contract), iface.OpGenesis, &state.Delta{
		Create: []state.Output{{Seal: "stale", Slot: iface.SlotAssetOwner, Value: core.NewAmount(1)}},
	}))
	require.NoError(t, store.Close())

	e := newEngine(t, dbConfig(dir))
	id := registerRGB20(t, e)
	_, err = e.CreateContract(ctx, id, []*operation.Operation{genesis})
	require.NoError(t, err)

	st, err := e.State(contract)
	require.NoError(t, err)
	live := st.LiveOutputs(iface.SlotAssetOwner)
	require.Len(t, live, 1)
	assert.Equal(t, core.SealRef("a"), live[0].Seal)
}

func TestLifecycleEnforced(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, func(c *Config) { c.Lifecycle = string(graph.LifecycleEnforce) })
	id := registerRGB20(t, e)

	genesis := fixture.RGB20Genesis(5, 0, fixture.Owner{Seal: "a", Amount: 5})
	contract := fixture.ContractOf(genesis)
	report, err := e.CreateContract(ctx, id, []*operation.Operation{genesis})
	assert.ErrorIs(t, err, graph.ErrIncompleteLifecycle)
	require.NotNil(t, report.Lifecycle)

	// the genesis itself was accepted
	assert.Equal(t, []core.ContractID{contract}, e.Contracts())
	assert.ErrorIs(t, e.Lifecycle(contract), graph.ErrIncompleteLifecycle)

	_, err = e.Submit(ctx, contract, []*operation.Operation{
		fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "b", Amount: 5}),
	})
	require.NoError(t, err)
	assert.NoError(t, e.Lifecycle(contract))
}

func TestDBStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	config := dbConfig(dir)

	first := newEngine(t, config)
	id := registerRGB20(t, first)
	genesis := fixture.RGB20Genesis(10, 0, fixture.Owner{Seal: "a", Amount: 10})
	contract := fixture.ContractOf(genesis)
	_, err := first.CreateContract(ctx, id, []*operation.Operation{genesis})
	require.NoError(t, err)
	_, err = first.Submit(ctx, contract, []*operation.Operation{
		fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "b", Amount: 10}),
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newEngine(t, config)
	st, err := second.State(contract)
	require.NoError(t, err)
	live := st.LiveOutputs(iface.SlotAssetOwner)
	require.Len(t, live, 1)
	assert.Equal(t, core.SealRef("b"), live[0].Seal)
	assert.Equal(t, uint64(1), st.Applied()[iface.OpTransfer])
	require.NoError(t, second.Close())

	contracts, err := db.Contracts(dbPath)
	require.NoError(t, err)
	assert.Equal(t, []core.ContractID{contract}, contracts)

	store, err := db.NewStore(map[string]any{state.ParamContract: contract, state.ParamDBPath: dbPath})
	require.NoError(t, err)
	defer store.Close()
	batches, err := store.(*db.Store).Batches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Applied, 1)
	assert.Empty(t, batches[1].Failed)
}

func TestConfidentialTransferWithOracle(t *testing.T) {
	ctx := context.Background()
	o := mock.New()
	e := newEngine(t, nil).WithOracle(o)
	id := registerRGB20(t, e)

	genesis := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 100})
	contract := fixture.ContractOf(genesis)
	transfer := operation.New(contract, "").
		Input(iface.SlotAssetOwner, "a").
		Output("", "hidden-1", core.NewConfidential(o.Commit(70))).
		Output("", "hidden-2", core.NewConfidential(o.Commit(30))).
		MustBuild()

	_, err := e.CreateContract(ctx, id, []*operation.Operation{genesis, transfer})
	require.NoError(t, err)
	assert.Positive(t, o.Calls().Sum)

	cheat := operation.New(contract, "").
		Input(iface.SlotAssetOwner, "hidden-1").
		Output("", "hidden-3", core.NewConfidential(o.Commit(71))).
		MustBuild()
	_, err = e.Submit(ctx, contract, []*operation.Operation{cheat})
	name, ok := validator.ErrorName(err)
	require.True(t, ok)
	assert.Equal(t, iface.ErrNonEqualAmounts, name)
}

func TestWasmOracleFromConfig(t *testing.T) {
	ctx := context.Background()
	opaque := func(b byte) core.Commitment {
		c := make(core.Commitment, 33)
		c[0], c[1] = 0x02, b
		return c
	}

	for _, tc := range []struct {
		name    string
		verdict byte
	}{
		{"accepting", 1},
		{"rejecting", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "oracle.wasm")
			require.NoError(t, os.WriteFile(path, fixture.OracleModule(tc.verdict), 0644))
			e := newEngine(t, func(c *Config) {
				c.Oracle = OracleWasm
				c.OracleWasmPath = path
				c.OracleMemoryPages = 4
				c.OracleTimeout = time.Second
			})
			id := registerRGB20(t, e)

			genesis := fixture.RGB20Genesis(10, 0, fixture.Owner{Seal: "a", Amount: 10})
			transfer := operation.New(fixture.ContractOf(genesis), "").
				Input(iface.SlotAssetOwner, "a").
				Output("", "hidden", core.NewConfidential(opaque(tc.verdict))).
				MustBuild()

			res, err := e.CreateContract(ctx, id, []*operation.Operation{genesis, transfer})
			if tc.verdict == 1 {
				require.NoError(t, err)
				assert.Len(t, res.Applied, 2)
				return
			}
			name, ok := validator.ErrorName(err)
			require.True(t, ok, "%v", err)
			assert.Equal(t, iface.ErrNonEqualAmounts, name)
		})
	}
}

func TestParallelContracts(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, func(c *Config) { c.Workers = 4 })
	id := registerRGB20(t, e)

	const contracts = 8
	const transfers = 5
	ids := make([]core.ContractID, contracts)

	var eg errgroup.Group
	for n := range contracts {
		eg.Go(func() error {
			supply := uint64(1000 + n)
			genesis := fixture.RGB20Genesis(supply, 0, fixture.Owner{Seal: "owner-0", Amount: supply})
			contract := fixture.ContractOf(genesis)
			ids[n] = contract
			if _, err := e.CreateContract(ctx, id, []*operation.Operation{genesis}); err != nil {
				return err
			}
			// each contract moves its whole supply along a chain, one batch per hop
			for hop := range transfers {
				from := core.SealRef(fmt.Sprintf("owner-%d", hop))
				to := core.SealRef(fmt.Sprintf("owner-%d", hop+1))
				op := fixture.Transfer(contract, []core.SealRef{from}, fixture.Owner{Seal: to, Amount: supply})
				if _, err := e.Submit(ctx, contract, []*operation.Operation{op}); err != nil {
					return fmt.Errorf("contract %d hop %d: %w", n, hop, err)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Len(t, e.Contracts(), contracts)

	for n, contract := range ids {
		st, err := e.State(contract)
		require.NoError(t, err)
		live := st.LiveOutputs(iface.SlotAssetOwner)
		require.Len(t, live, 1)
		assert.Equal(t, core.SealRef(fmt.Sprintf("owner-%d", transfers)), live[0].Seal)
		assert.Equal(t, core.NewAmount(uint64(1000+n)), live[0].Value)
	}
}

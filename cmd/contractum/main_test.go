package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/internal/fixture"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/oracle/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeBatch(t *testing.T, dir, name string, ops ...*operation.Operation) string {
	t.Helper()
	data, err := json.Marshal(ops)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func decodeSummary(t *testing.T, out string) batchSummary {
	t.Helper()
	var s batchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	return s
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contractum "+version)
}

func TestIfaceShowAndCheck(t *testing.T) {
	out, err := run(t, "iface", "show", "RGB20")
	require.NoError(t, err)
	assert.Contains(t, out, "interface RGB20")

	out, err = run(t, "iface", "show", "--yaml", "rgb21")
	require.NoError(t, err)
	assert.Contains(t, out, "name: RGB21")

	data, err := iface.Marshal(iface.RGB25())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rgb25.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	out, err = run(t, "iface", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "RGB25@1.0.0 is consistent")

	require.NoError(t, os.WriteFile(path, []byte("name: broken\nversion: x\n"), 0644))
	_, err = run(t, "iface", "check", path)
	assert.ErrorIs(t, err, iface.ErrInconsistent)
}

func TestValidateFlow(t *testing.T) {
	dir := t.TempDir()
	common := []string{
		"--repo", filepath.Join(dir, "repo"),
		"--store", "db",
		"--db-path", filepath.Join(dir, "state.db"),
	}
	with := func(args ...string) []string {
		return append(append([]string{}, args...), common...)
	}

	out, err := run(t, with("iface", "register", "RGB20")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Interface registered: RGB20@1.0.0")

	out, err = run(t, with("iface", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "RGB20\t1.0.0")

	genesis := fixture.RGB20Genesis(100, 0, fixture.Owner{Seal: "a", Amount: 100})
	contract := fixture.ContractOf(genesis)
	transfer := fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "b", Amount: 100})
	create := writeBatch(t, dir, "create.json", genesis, transfer)

	out, err = run(t, with("validate", "-f", create, "--interface", "RGB20@^1.0")...)
	require.NoError(t, err, out)
	summary := decodeSummary(t, out)
	assert.Equal(t, contract, summary.Contract)
	assert.Len(t, summary.Applied, 2)
	assert.Empty(t, summary.Missing)

	out, err = run(t, with("state", "show", contract.String())...)
	require.NoError(t, err)
	assert.Contains(t, out, `"seal": "b"`)

	spend := fixture.Transfer(contract, []core.SealRef{"a"}, fixture.Owner{Seal: "c", Amount: 100})
	again := writeBatch(t, dir, "again.json", spend)
	out, err = run(t, with("validate", "-f", again, "--contract", contract.String())...)
	require.Error(t, err)
	summary = decodeSummary(t, out)
	assert.Equal(t, "Conflict", summary.Failure)
	assert.Empty(t, summary.Applied)

	_, err = run(t, with("validate", "-f", again)...)
	assert.Error(t, err)
}

func TestConfigSources(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "contractum.yaml")
	require.NoError(t, os.WriteFile(config, []byte("lifecycle: enforce\nrepository_dir: "+filepath.Join(dir, "repo")+"\n"), 0644))

	genesis := fixture.RGB20Genesis(5, 0, fixture.Owner{Seal: "a", Amount: 5})
	batch := writeBatch(t, dir, "genesis.json", genesis)

	out, err := run(t, "--config", config, "validate", "-f", batch, "--interface", "RGB20")
	require.Error(t, err)
	summary := decodeSummary(t, out)
	assert.Equal(t, []string{iface.OpTransfer}, summary.Missing)
	assert.Len(t, summary.Applied, 1)

	// environment overrides the file, flags override the environment
	t.Setenv("CONTRACTUM_LIFECYCLE", "strict")
	_, err = run(t, "--config", config, "iface", "list")
	assert.ErrorContains(t, err, "unknown lifecycle policy")

	_, err = run(t, "--config", config, "--lifecycle", "off", "iface", "list")
	assert.NoError(t, err)
}

func TestOracleInspect(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "oracle.wasm")
	require.NoError(t, os.WriteFile(good, fixture.OracleModule(1), 0644))

	out, err := run(t, "oracle", "inspect", good)
	require.NoError(t, err)
	assert.Contains(t, out, "verify_sum_equality(i32, i32) -> (i32)")

	out, err = run(t, "oracle", "inspect", "--json", good)
	require.NoError(t, err)
	var report wasm.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Memory)
	assert.Len(t, report.Exports, 4)

	empty := filepath.Join(dir, "empty.wasm")
	require.NoError(t, os.WriteFile(empty, fixture.EmptyModule(), 0644))
	_, err = run(t, "oracle", "inspect", empty)
	assert.ErrorIs(t, err, wasm.ErrMissingExport)

	// the engine loads the module with its limits
	repo := filepath.Join(dir, "repo")
	_, err = run(t, "--repo", repo, "--oracle", "wasm", "--oracle-wasm", good,
		"--oracle-timeout", "2s", "--oracle-memory-pages", "4", "iface", "list")
	assert.NoError(t, err)
	_, err = run(t, "--repo", repo, "--oracle", "wasm", "--oracle-wasm", good, "--oracle-timeout", "-1s", "iface", "list")
	assert.ErrorContains(t, err, "invalid oracle timeout")
	_, err = run(t, "--repo", repo, "--oracle", "wasm", "--oracle-wasm", empty, "iface", "list")
	assert.ErrorIs(t, err, wasm.ErrMissingExport)
}

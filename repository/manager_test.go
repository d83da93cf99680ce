package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	tmpDir := t.TempDir()
	manager, err := NewManager(tmpDir)
	require.NoError(t, err)

	ifc := iface.RGB20()
	id, err := manager.RegisterInterface(ifc)
	require.NoError(t, err)
	want, err := ifc.ID()
	require.NoError(t, err)
	assert.Equal(t, want, id)

	dir := filepath.Join(tmpDir, interfacesDir, id.String())
	assert.FileExists(t, filepath.Join(dir, definitionFile))
	assert.FileExists(t, filepath.Join(dir, metadataFile))

	loaded, err := manager.GetInterface(id)
	require.NoError(t, err)
	assert.Equal(t, ifc.Name, loaded.Name)
	assert.Len(t, loaded.Operations, len(ifc.Operations))

	// registering the same definition again is a no-op
	again, err := manager.RegisterInterface(iface.RGB20())
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = manager.GetInterface(core.IfaceID{1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterRejectsInconsistentInterface(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	ifc := iface.RGB20()
	ifc.Version = "not-a-version"
	_, err = manager.RegisterInterface(ifc)
	assert.ErrorIs(t, err, iface.ErrInconsistent)

	list, err := manager.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFindByName(t *testing.T) {
	manager, err := NewManager(t.TempDir())
	require.NoError(t, err)

	for _, version := range []string{"1.0.0", "1.2.0", "2.0.0"} {
		ifc := iface.RGB21()
		ifc.Version = version
		_, err := manager.RegisterInterface(ifc)
		require.NoError(t, err)
	}
	_, err = manager.RegisterInterface(iface.RGB25())
	require.NoError(t, err)

	latest, err := manager.FindByName("RGB21", "")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", latest.Version)

	minor, err := manager.FindByName("RGB21", "^1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", minor.Version)

	_, err = manager.FindByName("RGB21", ">=3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = manager.FindByName("RGB21", "bogus")
	assert.Error(t, err)

	list, err := manager.List()
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "RGB21", list[0].Name)
	assert.Equal(t, "RGB25", list[3].Name)
}

func TestBindingImmutability(t *testing.T) {
	tmpDir := t.TempDir()
	manager, err := NewManager(tmpDir)
	require.NoError(t, err)

	id, err := manager.RegisterInterface(iface.RGB20())
	require.NoError(t, err)
	contract := core.ContractID{0xab}

	_, err = manager.Binding(contract)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, manager.Bind(contract, id))
	err = manager.Bind(contract, core.IfaceID{2})
	assert.ErrorIs(t, err, ErrAlreadyBound)

	b, err := manager.Binding(contract)
	require.NoError(t, err)
	assert.Equal(t, id, b.Interface)
	assert.Equal(t, contract, b.Contract)

	// a reopened manager sees the same binding
	reopened, err := NewManager(tmpDir)
	require.NoError(t, err)
	b, err = reopened.Binding(contract)
	require.NoError(t, err)
	assert.Equal(t, id, b.Interface)

	_, err = os.Stat(filepath.Join(tmpDir, contractsDir, contract.String()+".json"))
	assert.NoError(t, err)
}

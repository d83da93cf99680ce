package memory

import (
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/internal/storetest"
	"github.com/govm-net/contractum/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, contract core.ContractID) state.Store {
		s, err := NewStore(map[string]any{state.ParamContract: contract})
		require.NoError(t, err)
		return s
	})
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, state.ListRegistered(), state.MemoryStoreType)

	s, err := state.Get("", map[string]any{state.ParamContract: storetest.Contract.String()})
	require.NoError(t, err)
	assert.IsType(t, &Store{}, s)
	assert.Equal(t, storetest.Contract, s.ContractID())

	_, err = NewStore(nil)
	assert.Error(t, err)
	_, err = NewStore(map[string]any{state.ParamContract: 42})
	assert.Error(t, err)
}

func TestStateIsACopy(t *testing.T) {
	s, err := NewStore(map[string]any{state.ParamContract: storetest.Contract})
	require.NoError(t, err)
	require.NoError(t, s.Apply(core.OpID(storetest.Contract), "genesis", storetest.GenesisDelta()))

	st, err := s.State()
	require.NoError(t, err)
	require.NoError(t, st.Apply(core.OpID{0x09}, "transfer", storetest.TransferDelta()))

	again, err := s.State()
	require.NoError(t, err)
	_, live := again.Output("a")
	assert.True(t, live)
	assert.False(t, again.HasOperation(core.OpID{0x09}))
}

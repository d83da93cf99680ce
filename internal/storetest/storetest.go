// Package storetest checks that a state.Store backend honors the store
// contract. Backends call Run from their own tests.
package storetest

import (
	"errors"
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store for contract.
type Factory func(t *testing.T, contract core.ContractID) state.Store

var (
	Contract = core.ContractID{0xc0, 0x01}
	genesis  = core.OpID(Contract)
	transfer = core.OpID{0x02}
)

// GenesisDelta issues 100 to seal a and writes the supply.
func GenesisDelta() *state.Delta {
	return &state.Delta{
		Globals: []state.GlobalWrite{
			{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(100)}},
			{Slot: iface.SlotSpec, Rule: iface.Replace, Values: []core.Value{core.NewAmount(1)}},
		},
		Create: []state.Output{
			{Seal: "a", Slot: iface.SlotAssetOwner, Value: core.NewAmount(60)},
			{Seal: "b", Slot: iface.SlotAssetOwner, Value: core.NewAmount(40)},
		},
	}
}

// TransferDelta spends a and creates c.
func TransferDelta() *state.Delta {
	return &state.Delta{
		Retire: []core.SealRef{"a"},
		Create: []state.Output{{Seal: "c", Slot: iface.SlotAssetOwner, Value: core.NewAmount(60)}},
	}
}

func snapshot(t *testing.T, s state.Store) *state.Snapshot {
	t.Helper()
	st, err := s.State()
	require.NoError(t, err)
	return st.Snapshot()
}

// Run exercises the backend built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("apply", func(t *testing.T) {
		s := factory(t, Contract)
		assert.Equal(t, Contract, s.ContractID())
		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		require.NoError(t, s.Apply(transfer, iface.OpTransfer, TransferDelta()))

		supply, err := s.Global(iface.SlotIssuedSupply)
		require.NoError(t, err)
		assert.Equal(t, []core.Value{core.NewAmount(100)}, supply)
		missing, err := s.Global(iface.SlotBurnedSupply)
		require.NoError(t, err)
		assert.Empty(t, missing)

		live, err := s.LiveOutputs(iface.SlotAssetOwner)
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, core.SealRef("b"), live[0].Seal)
		assert.Equal(t, core.SealRef("c"), live[1].Seal)
		assert.Equal(t, transfer, live[1].Op)

		st, err := s.State()
		require.NoError(t, err)
		by, ok := st.SpentBy("a")
		require.True(t, ok)
		assert.Equal(t, transfer, by)
		assert.True(t, st.HasOperation(genesis))
		assert.Equal(t, map[string]uint64{iface.OpGenesis: 1, iface.OpTransfer: 1}, st.Applied())
	})

	t.Run("accumulate", func(t *testing.T) {
		s := factory(t, Contract)
		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		issue := &state.Delta{Globals: []state.GlobalWrite{
			{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(25)}},
		}}
		require.NoError(t, s.Apply(core.OpID{0x03}, iface.OpIssue, issue))
		supply, err := s.Global(iface.SlotIssuedSupply)
		require.NoError(t, err)
		assert.Equal(t, []core.Value{core.NewAmount(125)}, supply)
	})

	t.Run("failed apply leaves state untouched", func(t *testing.T) {
		s := factory(t, Contract)
		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		before := snapshot(t, s)

		cases := []struct {
			name  string
			id    core.OpID
			delta *state.Delta
			want  error
		}{
			{"duplicate operation", genesis, &state.Delta{}, state.ErrDuplicateOperation},
			{"spent twice in one delta", transfer, &state.Delta{Retire: []core.SealRef{"a", "a"}}, nil},
			{"unknown input", transfer, &state.Delta{
				Retire: []core.SealRef{"a", "zz"},
				Create: []state.Output{{Seal: "d", Slot: iface.SlotAssetOwner, Value: core.NewAmount(1)}},
			}, state.ErrNotLive},
			{"reused seal", transfer, &state.Delta{
				Retire: []core.SealRef{"a"},
				Create: []state.Output{{Seal: "b", Slot: iface.SlotAssetOwner, Value: core.NewAmount(60)}},
			}, state.ErrSealUsed},
			{"overflow", transfer, &state.Delta{
				Retire: []core.SealRef{"a"},
				Globals: []state.GlobalWrite{
					{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(^uint64(0))}},
				},
			}, core.ErrAmountOverflow},
		}
		for _, tc := range cases {
			err := s.Apply(tc.id, iface.OpTransfer, tc.delta)
			require.Error(t, err, tc.name)
			if tc.want != nil {
				assert.True(t, errors.Is(err, tc.want), "%s: %v", tc.name, err)
			}
			assert.Equal(t, before, snapshot(t, s), tc.name)
		}
	})

	t.Run("restore", func(t *testing.T) {
		s := factory(t, Contract)
		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		require.NoError(t, s.Apply(transfer, iface.OpTransfer, TransferDelta()))
		saved := snapshot(t, s)

		encoded, err := saved.Encode()
		require.NoError(t, err)
		decoded, err := state.DecodeSnapshot(encoded)
		require.NoError(t, err)

		more := &state.Delta{Retire: []core.SealRef{"b"}}
		require.NoError(t, s.Apply(core.OpID{0x04}, iface.OpTransfer, more))
		require.NoError(t, s.Restore(decoded))
		assert.Equal(t, saved, snapshot(t, s))

		other := *saved
		other.Contract = core.ContractID{0xff}
		assert.Error(t, s.Restore(&other))

		broken := *saved
		broken.Live = append(broken.Live, broken.Live[0])
		assert.ErrorIs(t, s.Restore(&broken), state.ErrSealUsed)
		assert.Equal(t, saved, snapshot(t, s))
	})

	t.Run("remove", func(t *testing.T) {
		s := factory(t, Contract)
		remover, ok := s.(state.Remover)
		if !ok {
			t.Skip("backend keeps nothing after close")
		}
		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		require.NoError(t, remover.Remove())

		st, err := s.State()
		require.NoError(t, err)
		assert.False(t, st.HasGenesis())
		live, err := s.LiveOutputs(iface.SlotAssetOwner)
		require.NoError(t, err)
		assert.Empty(t, live)

		require.NoError(t, s.Apply(genesis, iface.OpGenesis, GenesisDelta()))
		assert.Equal(t, Contract, snapshot(t, s).Contract)
	})
}

package state

import (
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contract = core.ContractID{0x01}

func genesisState(t *testing.T) *State {
	t.Helper()
	s := New(contract)
	require.False(t, s.HasGenesis())
	err := s.Apply(core.OpID(contract), iface.OpGenesis, &Delta{
		Globals: []GlobalWrite{{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(10)}}},
		Create: []Output{
			{Seal: "a", Slot: iface.SlotAssetOwner, Value: core.NewAmount(4)},
			{Seal: "b", Slot: iface.SlotAssetOwner, Value: core.NewAmount(6)},
		},
	})
	require.NoError(t, err)
	return s
}

func TestMerge(t *testing.T) {
	tag := func(s string) core.Value {
		v, err := core.NewData(s)
		require.NoError(t, err)
		return v
	}

	got, err := Merge(iface.Replace, []core.Value{tag("old")}, []core.Value{tag("x"), tag("new")})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{tag("new")}, got)

	got, err = Merge(iface.Replace, []core.Value{tag("old")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.Value{tag("old")}, got)

	got, err = Merge(iface.Accumulate, []core.Value{core.NewAmount(5)}, []core.Value{core.NewAmount(2), core.NewAmount(3)})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.NewAmount(10)}, got)

	got, err = Merge(iface.Accumulate, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.NewAmount(0)}, got)

	_, err = Merge(iface.Accumulate, nil, []core.Value{core.NewConfidential(core.Reveal(1))})
	assert.ErrorIs(t, err, ErrNotAccumulable)
	_, err = Merge(iface.Accumulate, nil, []core.Value{tag("x")})
	assert.ErrorIs(t, err, ErrNotAccumulable)
	_, err = Merge(iface.Accumulate, []core.Value{core.NewAmount(^uint64(0))}, []core.Value{core.NewAmount(1)})
	assert.ErrorIs(t, err, core.ErrAmountOverflow)

	got, err = Merge(iface.AppendSet, []core.Value{tag("a")}, []core.Value{tag("b"), tag("a"), tag("b")})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{tag("a"), tag("b")}, got)

	_, err = Merge(iface.Aggregation(99), nil, nil)
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	s := genesisState(t)
	assert.True(t, s.HasGenesis())
	assert.Equal(t, contract, s.ContractID())

	transfer := core.OpID{0x02}
	require.NoError(t, s.Apply(transfer, iface.OpTransfer, &Delta{
		Retire: []core.SealRef{"a"},
		Create: []Output{{Seal: "c", Slot: iface.SlotAssetOwner, Value: core.NewAmount(4)}},
	}))

	_, ok := s.Output("a")
	assert.False(t, ok)
	assert.True(t, s.SealUsed("a"))
	by, ok := s.SpentBy("a")
	require.True(t, ok)
	assert.Equal(t, transfer, by)

	c, ok := s.Output("c")
	require.True(t, ok)
	assert.Equal(t, transfer, c.Op)

	live := s.LiveOutputs(iface.SlotAssetOwner)
	require.Len(t, live, 2)
	assert.Equal(t, core.SealRef("b"), live[0].Seal)
	assert.Equal(t, core.SealRef("c"), live[1].Seal)
	assert.Equal(t, map[string]uint64{iface.OpGenesis: 1, iface.OpTransfer: 1}, s.Applied())

	// returned slices do not alias the state
	s.Global(iface.SlotIssuedSupply)[0] = core.NewAmount(0)
	assert.Equal(t, []core.Value{core.NewAmount(10)}, s.Global(iface.SlotIssuedSupply))
}

func TestApplyIsAtomic(t *testing.T) {
	s := genesisState(t)
	before := s.Snapshot()

	cases := map[string]*Delta{
		"retire twice":   {Retire: []core.SealRef{"a", "a"}},
		"retire unknown": {Retire: []core.SealRef{"a", "nope"}},
		"reuse seal":     {Retire: []core.SealRef{"a"}, Create: []Output{{Seal: "a", Slot: iface.SlotAssetOwner, Value: core.NewAmount(4)}}},
		"create twice": {Create: []Output{
			{Seal: "x", Slot: iface.SlotAssetOwner, Value: core.NewAmount(1)},
			{Seal: "x", Slot: iface.SlotAssetOwner, Value: core.NewAmount(1)},
		}},
		"not accumulable": {
			Retire:  []core.SealRef{"a"},
			Globals: []GlobalWrite{{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewRights()}}},
		},
	}
	for name, delta := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Apply(core.OpID{0x03}, iface.OpTransfer, delta))
			assert.Equal(t, before, s.Snapshot())
		})
	}

	assert.ErrorIs(t, s.Apply(core.OpID(contract), iface.OpGenesis, &Delta{}), ErrDuplicateOperation)
}

func TestCheckMergesRepeatedSlots(t *testing.T) {
	s := genesisState(t)
	merged, err := s.Check(core.OpID{0x04}, &Delta{Globals: []GlobalWrite{
		{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(1)}},
		{Slot: iface.SlotIssuedSupply, Rule: iface.Accumulate, Values: []core.Value{core.NewAmount(2)}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []core.Value{core.NewAmount(13)}, merged[iface.SlotIssuedSupply])
	assert.Equal(t, []core.Value{core.NewAmount(10)}, s.Global(iface.SlotIssuedSupply))
}

func TestSnapshot(t *testing.T) {
	s := genesisState(t)
	require.NoError(t, s.Apply(core.OpID{0x02}, iface.OpTransfer, &Delta{Retire: []core.SealRef{"a"}}))

	data, err := s.Snapshot().Encode()
	require.NoError(t, err)
	again, err := s.Snapshot().Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	snap, err := DecodeSnapshot(data)
	require.NoError(t, err)
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	assert.True(t, restored.SealUsed("a"))
	assert.Equal(t, s.Applied(), restored.Applied())

	dup := *snap
	dup.Operations = append(dup.Operations, dup.Operations[0])
	_, err = FromSnapshot(&dup)
	assert.ErrorIs(t, err, ErrDuplicateOperation)

	_, err = DecodeSnapshot([]byte("{"))
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	s := genesisState(t)
	clone := s.Clone()
	require.NoError(t, clone.Apply(core.OpID{0x02}, iface.OpTransfer, &Delta{Retire: []core.SealRef{"a"}}))

	_, ok := s.Output("a")
	assert.True(t, ok)
	assert.False(t, s.HasOperation(core.OpID{0x02}))
	assert.True(t, clone.HasOperation(core.OpID{0x02}))
}

func TestAccumulateIsOrderIndependent(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("sum does not depend on order", prop.ForAll(
		func(values []uint32) bool {
			forward := make([]core.Value, len(values))
			backward := make([]core.Value, len(values))
			for i, v := range values {
				forward[i] = core.NewAmount(uint64(v))
				backward[len(values)-1-i] = core.NewAmount(uint64(v))
			}
			a, err := Merge(iface.Accumulate, nil, forward)
			if err != nil {
				return false
			}
			b, err := Merge(iface.Accumulate, nil, backward)
			if err != nil {
				return false
			}
			return a[0].Amount == b[0].Amount
		},
		gen.SliceOf(gen.UInt32()),
	))
	properties.TestingRun(t)
}

func TestContractFromParams(t *testing.T) {
	id, err := ContractFromParams(map[string]any{ParamContract: contract})
	require.NoError(t, err)
	assert.Equal(t, contract, id)

	id, err = ContractFromParams(map[string]any{ParamContract: contract.String()})
	require.NoError(t, err)
	assert.Equal(t, contract, id)

	_, err = ContractFromParams(nil)
	assert.Error(t, err)
	_, err = ContractFromParams(map[string]any{ParamContract: "zz"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, MemoryStoreType, r.DefaultStoreType())

	ctor := func(params map[string]any) (Store, error) { return nil, nil }
	require.NoError(t, r.Register("b", ctor))
	require.NoError(t, r.Register("a", ctor))
	assert.Error(t, r.Register("a", ctor))
	assert.Equal(t, []StoreType{"a", "b"}, r.ListRegistered())

	assert.Error(t, r.SetDefault("missing"))
	require.NoError(t, r.SetDefault("b"))
	assert.Equal(t, StoreType("b"), r.DefaultStoreType())

	_, err := r.Get("missing", nil)
	assert.Error(t, err)
	_, err = r.GetDefault(nil)
	assert.NoError(t, err)
}

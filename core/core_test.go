package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	h := GetHash([]byte("genesis"))

	id, err := ContractIDFromString("0x" + h.String())
	require.NoError(t, err)
	assert.Equal(t, ContractID(h), id)

	_, err = OpIDFromString("abcd")
	assert.Error(t, err)

	_, err = IfaceIDFromString("zz")
	assert.Error(t, err)
}

func TestOpIDLess(t *testing.T) {
	a := OpID{0x01}
	b := OpID{0x02}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
	assert.True(t, ZeroOpID.IsZero())
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a, err := Canonical(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	b, err := Canonical(map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":"x","b":1}`, string(a))
}

func TestRevealRoundTrip(t *testing.T) {
	c := Reveal(1000)
	amount, ok := c.Revealed()
	require.True(t, ok)
	assert.Equal(t, uint64(1000), amount)

	_, ok = Commitment([]byte{0x01, 0x02}).Revealed()
	assert.False(t, ok)
}

func TestValueJSON(t *testing.T) {
	v := NewAttachment("image/png", GetHash([]byte("img")))
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"attachment"`)

	var back Value
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, v, back)

	conf := NewConfidential(Commitment{0xaa, 0xbb})
	raw, err = json.Marshal(conf)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"commitment":"aabb"`)
}

func TestValueValidate(t *testing.T) {
	data, err := NewData(map[string]string{"k": "v"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		value Value
		ok    bool
	}{
		{"amount", NewAmount(5), true},
		{"confidential", NewConfidential(Commitment{1}), true},
		{"rights", NewRights(), true},
		{"data", data, true},
		{"allocation", NewAllocation(1, FractionUnit), true},
		{"attachment", NewAttachment("text/plain", Hash{}), true},
		{"zero fraction", NewAllocation(1, 0), false},
		{"fraction above unit", NewAllocation(1, FractionUnit+1), false},
		{"rights with amount", Value{Kind: KindRights, Amount: 1}, false},
		{"empty data", Value{Kind: KindData}, false},
		{"attachment without type", NewAttachment("", Hash{}), false},
		{"unknown kind", Value{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValueKeyDistinguishesValues(t *testing.T) {
	k1, err := NewAllocation(1, 10).Key()
	require.NoError(t, err)
	k2, err := NewAllocation(1, 10).Key()
	require.NoError(t, err)
	k3, err := NewAllocation(2, 10).Key()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestSumOverflow(t *testing.T) {
	s := NewSum(math.MaxUint64, 1)
	_, err := s.Uint64()
	assert.ErrorIs(t, err, ErrAmountOverflow)

	total, err := NewSum(1, 2, 3).Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), total)

	assert.Equal(t, 1, NewSum(10).Cmp(NewSum(9)))
	assert.True(t, NewSum(3).Sub(NewSum(5)).IsZero())
	rest, err := NewSum(5).Sub(NewSum(3)).Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rest)
}

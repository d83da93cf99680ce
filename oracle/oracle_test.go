package oracle

import (
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/stretchr/testify/assert"
)

func TestPlainVerifyProof(t *testing.T) {
	public := []byte(`{"type":"issue"}`)
	assert.True(t, Plain{}.VerifyProof(Attest(public), public))
	assert.False(t, Plain{}.VerifyProof(Attest(public), []byte(`{"type":"burn"}`)))
	assert.False(t, Plain{}.VerifyProof(nil, public))
}

func TestPlainSumEquality(t *testing.T) {
	o := Plain{}
	in := []core.Commitment{core.Reveal(60), core.Reveal(40)}
	assert.True(t, o.VerifySumEquality(in, []core.Commitment{core.Reveal(100)}))
	assert.False(t, o.VerifySumEquality(in, []core.Commitment{core.Reveal(99)}))
	assert.True(t, o.VerifySumEquality(nil, nil))

	confidential := core.Commitment{0x02, 0xaa, 0xbb}
	assert.False(t, o.VerifySumEquality([]core.Commitment{confidential}, in))
}

func TestPlainRangeBound(t *testing.T) {
	o := Plain{}
	assert.True(t, o.VerifyRangeBound(core.Reveal(10), 10))
	assert.True(t, o.VerifyRangeBound(core.Reveal(10), 0))
	assert.False(t, o.VerifyRangeBound(core.Reveal(9), 10))
	assert.False(t, o.VerifyRangeBound(core.Commitment{0x02}, 0))
}

func TestRevealedSum(t *testing.T) {
	sum, ok := RevealedSum([]core.Commitment{core.Reveal(^uint64(0)), core.Reveal(1)})
	assert.True(t, ok)
	assert.Equal(t, "18446744073709551616", sum.String())

	_, ok = RevealedSum([]core.Commitment{core.Reveal(1), {0x01}})
	assert.False(t, ok)
}

package mock

import (
	"testing"

	"github.com/govm-net/contractum/core"
	"github.com/stretchr/testify/assert"
)

func TestCommitments(t *testing.T) {
	o := New()
	a := o.Commit(70)
	b := o.Commit(30)

	_, revealed := a.Revealed()
	assert.False(t, revealed)
	assert.NotEqual(t, a, b)

	assert.True(t, o.VerifySumEquality([]core.Commitment{a, b}, []core.Commitment{core.Reveal(100)}))
	assert.False(t, o.VerifySumEquality([]core.Commitment{a}, []core.Commitment{core.Reveal(100)}))
	assert.True(t, o.VerifyRangeBound(a, 70))
	assert.False(t, o.VerifyRangeBound(a, 71))
	assert.False(t, o.VerifyRangeBound(core.Commitment{0x02, 0x01}, 0))
	assert.Equal(t, Calls{Sum: 2, Range: 3}, o.Calls())
}

func TestProofs(t *testing.T) {
	o := New()
	public := []byte("inputs")
	material := o.Prove(public)
	assert.True(t, o.VerifyProof(material, public))
	assert.False(t, o.VerifyProof(material, []byte("other")))
	assert.False(t, o.VerifyProof([]byte("forged"), public))
	assert.Equal(t, 3, o.Calls().Proof)
}

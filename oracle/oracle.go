// Package oracle defines the proof oracle the validator calls to check
// cryptographic assertions without knowing their internal structure.
package oracle

import (
	"bytes"
	"crypto/sha256"

	"github.com/govm-net/contractum/core"
)

// Oracle verifies proofs and commitment relations. All calls are synchronous
// and bounded; an oracle that cannot decide returns false.
type Oracle interface {
	// VerifyProof checks proof material against the public inputs it commits to.
	VerifyProof(material, publicInputs []byte) bool
	// VerifySumEquality checks that the committed inputs sum to the committed outputs.
	VerifySumEquality(inputs, outputs []core.Commitment) bool
	// VerifyRangeBound checks that the committed value is at least bound.
	VerifyRangeBound(c core.Commitment, bound uint64) bool
}

// Plain is an oracle for deployments without confidential amounts. It
// understands revealed commitments only and accepts proof material equal to
// the SHA-256 digest of the public inputs.
type Plain struct{}

var _ Oracle = Plain{}

func (Plain) VerifyProof(material, publicInputs []byte) bool {
	digest := sha256.Sum256(publicInputs)
	return bytes.Equal(material, digest[:])
}

func (Plain) VerifySumEquality(inputs, outputs []core.Commitment) bool {
	in, ok := RevealedSum(inputs)
	if !ok {
		return false
	}
	out, ok := RevealedSum(outputs)
	if !ok {
		return false
	}
	return in.Cmp(out) == 0
}

func (Plain) VerifyRangeBound(c core.Commitment, bound uint64) bool {
	amount, ok := c.Revealed()
	return ok && amount >= bound
}

// Attest returns proof material the Plain oracle accepts for publicInputs.
func Attest(publicInputs []byte) []byte {
	digest := sha256.Sum256(publicInputs)
	return digest[:]
}

// RevealedSum adds up revealed commitments. It fails if any commitment is
// confidential.
func RevealedSum(cs []core.Commitment) (*core.Sum, bool) {
	sum := core.NewSum()
	for _, c := range cs {
		amount, ok := c.Revealed()
		if !ok {
			return nil, false
		}
		sum.Add(amount)
	}
	return sum, true
}

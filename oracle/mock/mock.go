// Package mock provides an in-memory proof oracle for tests. Confidential
// commitments are random blobs whose amounts only the mock knows.
package mock

import (
	"crypto/rand"
	"sync"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/oracle"
)

// Oracle records the amounts behind the commitments it issued and the
// proofs it considers valid.
type Oracle struct {
	mu      sync.Mutex
	amounts map[string]uint64
	proofs  map[string]string
	calls   Calls
}

// Calls counts oracle invocations.
type Calls struct {
	Proof int
	Sum   int
	Range int
}

var _ oracle.Oracle = (*Oracle)(nil)

func New() *Oracle {
	return &Oracle{
		amounts: make(map[string]uint64),
		proofs:  make(map[string]string),
	}
}

// Commit returns a confidential commitment to amount.
func (o *Oracle) Commit(amount uint64) core.Commitment {
	blob := make([]byte, 33)
	if _, err := rand.Read(blob); err != nil {
		panic(err)
	}
	blob[0] = 0x02
	o.mu.Lock()
	o.amounts[string(blob)] = amount
	o.mu.Unlock()
	return blob
}

// Prove returns proof material that verifies against publicInputs.
func (o *Oracle) Prove(publicInputs []byte) []byte {
	material := make([]byte, 16)
	if _, err := rand.Read(material); err != nil {
		panic(err)
	}
	o.mu.Lock()
	o.proofs[string(material)] = string(publicInputs)
	o.mu.Unlock()
	return material
}

// Calls returns the invocation counters.
func (o *Oracle) Calls() Calls {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *Oracle) VerifyProof(material, publicInputs []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls.Proof++
	public, ok := o.proofs[string(material)]
	return ok && public == string(publicInputs)
}

func (o *Oracle) VerifySumEquality(inputs, outputs []core.Commitment) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls.Sum++
	in, ok := o.sum(inputs)
	if !ok {
		return false
	}
	out, ok := o.sum(outputs)
	if !ok {
		return false
	}
	return in.Cmp(out) == 0
}

func (o *Oracle) VerifyRangeBound(c core.Commitment, bound uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls.Range++
	amount, ok := o.open(c)
	return ok && amount >= bound
}

func (o *Oracle) open(c core.Commitment) (uint64, bool) {
	if amount, ok := c.Revealed(); ok {
		return amount, true
	}
	amount, ok := o.amounts[string(c)]
	return amount, ok
}

func (o *Oracle) sum(cs []core.Commitment) (*core.Sum, bool) {
	sum := core.NewSum()
	for _, c := range cs {
		amount, ok := o.open(c)
		if !ok {
			return nil, false
		}
		sum.Add(amount)
	}
	return sum, true
}

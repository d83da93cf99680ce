// Package fixture builds contracts and operations of the standard interfaces
// for tests.
package fixture

import (
	"fmt"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/operation"
	"github.com/govm-net/contractum/state"
)

// Seals assigned by the genesis builders.
const (
	EpochSeal     core.SealRef = "epoch"
	AllowanceSeal core.SealRef = "allowance"
	IssueSeal     core.SealRef = "issue-right"
)

// Owner is an amount assigned to a seal.
type Owner struct {
	Seal   core.SealRef
	Amount uint64
}

func AssetSpec() iface.AssetSpec {
	return iface.AssetSpec{Ticker: "TEST", Name: "Test asset", Precision: 8}
}

func Terms() iface.ContractTerms {
	return iface.ContractTerms{Text: "test terms"}
}

// RGB20Genesis issues supply to owners. It also assigns a burn epoch right
// under EpochSeal, and an inflation allowance under AllowanceSeal when
// allowance is positive.
func RGB20Genesis(supply, allowance uint64, owners ...Owner) *operation.Operation {
	b := operation.New(core.ZeroContractID, iface.OpGenesis).
		GlobalData(iface.SlotSpec, AssetSpec()).
		GlobalData(iface.SlotTerms, Terms()).
		Global(iface.SlotIssuedSupply, core.NewAmount(supply)).
		Output(iface.SlotBurnEpoch, EpochSeal, core.NewRights())
	for _, o := range owners {
		b.Output(iface.SlotAssetOwner, o.Seal, core.NewAmount(o.Amount))
	}
	if allowance > 0 {
		b.Output(iface.SlotInflationAllowance, AllowanceSeal, core.NewAmount(allowance))
	}
	return b.MustBuild()
}

// Transfer moves the amounts behind inputs to owners with the default
// transition and default assignment.
func Transfer(contract core.ContractID, inputs []core.SealRef, owners ...Owner) *operation.Operation {
	b := operation.New(contract, "")
	for _, seal := range inputs {
		b.Input(iface.SlotAssetOwner, seal)
	}
	for _, o := range owners {
		b.Output("", o.Seal, core.NewAmount(o.Amount))
	}
	return b.MustBuild()
}

// Token declares an RGB21 token.
func Token(index uint32, fractionable bool) iface.TokenData {
	return iface.TokenData{
		Index:        index,
		Ticker:       fmt.Sprintf("T%d", index),
		Name:         fmt.Sprintf("token %d", index),
		Fractionable: fractionable,
	}
}

// Allocation is a fraction of a token assigned to a seal.
type Allocation struct {
	Seal     core.SealRef
	Token    uint32
	Fraction uint64
}

// RGB21Genesis declares tokens, allocates them and assigns issueRights
// issue rights under IssueSeal, IssueSeal-1, and so on.
func RGB21Genesis(tokens []iface.TokenData, allocations []Allocation, issueRights int) *operation.Operation {
	b := operation.New(core.ZeroContractID, iface.OpGenesis).
		GlobalData(iface.SlotSpec, AssetSpec()).
		GlobalData(iface.SlotTerms, Terms())
	for _, td := range tokens {
		b.GlobalData(iface.SlotTokens, td)
	}
	for _, a := range allocations {
		b.Output(iface.SlotAssetOwner, a.Seal, core.NewAllocation(a.Token, a.Fraction))
	}
	for n := range issueRights {
		b.Output(iface.SlotIssueRight, IssueRightSeal(n), core.NewRights())
	}
	return b.MustBuild()
}

// IssueRightSeal returns the seal of the n-th issue right of RGB21Genesis.
func IssueRightSeal(n int) core.SealRef {
	if n == 0 {
		return IssueSeal
	}
	return core.SealRef(fmt.Sprintf("%s-%d", IssueSeal, n))
}

// ContractOf returns the contract a genesis creates.
func ContractOf(genesis *operation.Operation) core.ContractID {
	id, err := genesis.ID()
	if err != nil {
		panic(err)
	}
	return core.ContractID(id)
}

// NewState returns the empty state of the contract created by genesis.
func NewState(genesis *operation.Operation) *state.State {
	return state.New(ContractOf(genesis))
}

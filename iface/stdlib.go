package iface

import "github.com/govm-net/contractum/core"

// Slot names shared by the standard interfaces.
const (
	SlotSpec               = "spec"
	SlotTerms              = "terms"
	SlotIssuedSupply       = "issuedSupply"
	SlotBurnedSupply       = "burnedSupply"
	SlotReplacedSupply     = "replacedSupply"
	SlotTokens             = "tokens"
	SlotEngravings         = "engravings"
	SlotAssetOwner         = "assetOwner"
	SlotInflationAllowance = "inflationAllowance"
	SlotUpdateRight        = "updateRight"
	SlotBurnEpoch          = "burnEpoch"
	SlotBurnRight          = "burnRight"
	SlotIssueRight         = "issueRight"
)

// Operation names shared by the standard interfaces.
const (
	OpGenesis   = "genesis"
	OpTransfer  = "transfer"
	OpIssue     = "issue"
	OpOpenEpoch = "openEpoch"
	OpBurn      = "burn"
	OpReplace   = "replace"
	OpRename    = "rename"
	OpEngrave   = "engrave"
)

func global(name string, m Multiplicity, kind core.ValueKind, semType string, agg Aggregation) StateSlot {
	return StateSlot{Name: name, Category: Global, Multiplicity: m, Kind: kind, SemType: semType, Aggregation: agg}
}

func owned(name string, m Multiplicity, kind core.ValueKind) StateSlot {
	return StateSlot{Name: name, Category: Owned, Multiplicity: m, Kind: kind}
}

func public(name string, m Multiplicity) StateSlot {
	return StateSlot{Name: name, Category: Public, Multiplicity: m, Kind: core.KindRights}
}

func ref(slot string, m Multiplicity) SlotRef {
	return SlotRef{Slot: slot, Multiplicity: m}
}

func defaultRef(slot string, m Multiplicity) SlotRef {
	return SlotRef{Slot: slot, Multiplicity: m, Default: true}
}

// RGB20 returns the fungible asset interface.
func RGB20() *Interface {
	return &Interface{
		Name:    "RGB20",
		Version: "1.0.0",
		Slots: []StateSlot{
			global(SlotSpec, ExactlyOne, core.KindData, SemAssetSpec, Replace),
			global(SlotTerms, ExactlyOne, core.KindData, SemContractTerms, Replace),
			global(SlotIssuedSupply, OneOrMany, core.KindAmount, "", Accumulate),
			global(SlotBurnedSupply, ZeroOrMany, core.KindAmount, "", Accumulate),
			global(SlotReplacedSupply, ZeroOrMany, core.KindAmount, "", Accumulate),
			owned(SlotAssetOwner, ZeroOrMany, core.KindAmount),
			owned(SlotInflationAllowance, ZeroOrMany, core.KindAmount),
			public(SlotUpdateRight, ZeroOrOne),
			public(SlotBurnEpoch, ZeroOrOne),
			public(SlotBurnRight, ZeroOrMany),
		},
		Errors: []ErrorKind{
			{Code: 1, Name: ErrSupplyMismatch, Description: "supply specified as a global parameter doesn't match the amount allocated to the asset owners"},
			{Code: 2, Name: ErrNonEqualAmounts, Description: "the sum of spent assets doesn't equal the sum of assets in the outputs"},
			{Code: 3, Name: ErrInvalidProof, Description: "the provided proof is invalid"},
			{Code: 4, Name: ErrInsufficientReserves, Description: "reserve is insufficient to cover the issued assets"},
			{Code: 5, Name: ErrInsufficientCoverage, Description: "the claimed amount of burned assets is not covered by the operation inputs"},
			{Code: 6, Name: ErrIssueExceedsAllowance, Description: "attempt to issue more assets than allowed by the inflation allowance"},
		},
		Operations: []OperationType{
			{
				Name:     OpGenesis,
				Modifier: Abstract,
				Genesis:  true,
				Errors:   []string{ErrSupplyMismatch, ErrInvalidProof, ErrInsufficientReserves},
				Globals:  []SlotRef{ref(SlotSpec, ExactlyOne), ref(SlotTerms, ExactlyOne), ref(SlotIssuedSupply, ExactlyOne)},
				Assigns: []SlotRef{
					ref(SlotAssetOwner, ZeroOrMany),
					ref(SlotInflationAllowance, ZeroOrMany),
					ref(SlotUpdateRight, ZeroOrOne),
					ref(SlotBurnEpoch, ZeroOrOne),
				},
				Rules: []Rule{
					{Kind: SupplyEquality, Global: SlotIssuedSupply, Slots: []string{SlotAssetOwner}},
				},
			},
			{
				Name:     OpTransfer,
				Required: true,
				Default:  true,
				Errors:   []string{ErrNonEqualAmounts},
				Inputs:   []SlotRef{ref(SlotAssetOwner, OneOrMany)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, OneOrMany)},
				Rules: []Rule{
					{Kind: FlowEquality, Slots: []string{SlotAssetOwner}},
				},
			},
			{
				Name:     OpIssue,
				Modifier: Abstract,
				Errors:   []string{ErrSupplyMismatch, ErrInvalidProof, ErrInsufficientReserves, ErrIssueExceedsAllowance},
				Meta:     &MetaSpec{Type: SemIssueMeta},
				Globals:  []SlotRef{ref(SlotIssuedSupply, ExactlyOne)},
				Inputs:   []SlotRef{ref(SlotInflationAllowance, OneOrMany)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, ZeroOrMany), ref(SlotInflationAllowance, ZeroOrMany)},
				Rules: []Rule{
					{Kind: SupplyEquality, Global: SlotIssuedSupply, Slots: []string{SlotAssetOwner}},
					{Kind: ReserveSufficiency, Global: SlotIssuedSupply},
					{Kind: AllowanceSufficiency, Global: SlotIssuedSupply, Slots: []string{SlotInflationAllowance}},
				},
			},
			{
				Name:     OpOpenEpoch,
				Modifier: Abstract,
				Inputs:   []SlotRef{ref(SlotBurnEpoch, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotBurnRight, ExactlyOne)},
			},
			{
				Name:     OpBurn,
				Modifier: Abstract,
				Errors:   []string{ErrInvalidProof, ErrInsufficientCoverage},
				Meta:     &MetaSpec{Type: SemBurnMeta},
				Globals:  []SlotRef{ref(SlotBurnedSupply, ExactlyOne)},
				Inputs:   []SlotRef{ref(SlotBurnRight, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotBurnRight, ZeroOrOne)},
				Rules: []Rule{
					{Kind: CoverageSufficiency, Global: SlotBurnedSupply, Slots: []string{SlotBurnRight}},
				},
			},
			{
				Name:     OpReplace,
				Modifier: Abstract,
				Errors:   []string{ErrSupplyMismatch, ErrInvalidProof, ErrInsufficientCoverage},
				Meta:     &MetaSpec{Type: SemBurnMeta},
				Globals:  []SlotRef{ref(SlotReplacedSupply, ExactlyOne)},
				Inputs:   []SlotRef{ref(SlotBurnRight, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, ZeroOrMany), ref(SlotBurnRight, ZeroOrOne)},
				Rules: []Rule{
					{Kind: SupplyEquality, Global: SlotReplacedSupply, Slots: []string{SlotAssetOwner}},
					{Kind: CoverageSufficiency, Global: SlotReplacedSupply, Slots: []string{SlotBurnRight}},
				},
			},
			{
				Name:     OpRename,
				Modifier: Abstract,
				Globals:  []SlotRef{ref(SlotSpec, ExactlyOne)},
				Inputs:   []SlotRef{ref(SlotUpdateRight, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotUpdateRight, ZeroOrOne)},
			},
		},
	}
}

// RGB21 returns the unique and fractional token interface.
func RGB21() *Interface {
	return &Interface{
		Name:    "RGB21",
		Version: "1.0.0",
		Slots: []StateSlot{
			global(SlotSpec, ExactlyOne, core.KindData, SemAssetSpec, Replace),
			global(SlotTerms, ExactlyOne, core.KindData, SemContractTerms, Replace),
			global(SlotTokens, OneOrMany, core.KindData, SemTokenData, AppendSet),
			global(SlotEngravings, ZeroOrMany, core.KindData, SemEngraving, AppendSet),
			owned(SlotAssetOwner, ZeroOrMany, core.KindAllocation),
			public(SlotIssueRight, ZeroOrMany),
		},
		Errors: []ErrorKind{
			{Code: 1, Name: ErrFractionOverflow, Description: "the sum of fractions of a token exceeds one whole unit"},
			{Code: 2, Name: ErrNonEqualValues, Description: "the spent allocations don't match the allocations in the outputs"},
			{Code: 3, Name: ErrNonFractionalToken, Description: "attempt to split a token which is not fractionable"},
			{Code: 4, Name: ErrNonEngravableToken, Description: "attempt to engrave a token which is not engravable"},
			{Code: 5, Name: ErrInvalidAttachmentType, Description: "the attachment media type is not permitted for the token"},
			{Code: 6, Name: ErrInvalidProof, Description: "the provided proof is invalid"},
		},
		Operations: []OperationType{
			{
				Name:     OpGenesis,
				Modifier: Abstract,
				Genesis:  true,
				Errors:   []string{ErrFractionOverflow, ErrNonFractionalToken, ErrInvalidAttachmentType},
				Globals:  []SlotRef{ref(SlotSpec, ExactlyOne), ref(SlotTerms, ExactlyOne), ref(SlotTokens, OneOrMany)},
				Assigns:  []SlotRef{ref(SlotAssetOwner, ZeroOrMany), ref(SlotIssueRight, ZeroOrMany)},
				Rules: []Rule{
					{Kind: FractionBound, Slots: []string{SlotAssetOwner}},
					{Kind: FractionalCapability, Slots: []string{SlotAssetOwner}, Catalog: SlotTokens},
					{Kind: AttachmentCapability, Global: SlotTokens, Catalog: SlotTokens},
				},
			},
			{
				Name:     OpTransfer,
				Required: true,
				Default:  true,
				Errors:   []string{ErrNonEqualValues, ErrFractionOverflow, ErrNonFractionalToken},
				Inputs:   []SlotRef{ref(SlotAssetOwner, OneOrMany)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, OneOrMany)},
				Rules: []Rule{
					{Kind: FlowEquality, Slots: []string{SlotAssetOwner}, Error: ErrNonEqualValues},
					{Kind: FractionBound, Slots: []string{SlotAssetOwner}},
					{Kind: FractionalCapability, Slots: []string{SlotAssetOwner}, Catalog: SlotTokens},
				},
			},
			{
				Name:     OpEngrave,
				Modifier: Abstract,
				Errors:   []string{ErrNonEqualValues, ErrNonEngravableToken, ErrInvalidAttachmentType},
				Globals:  []SlotRef{ref(SlotEngravings, OneOrMany)},
				Inputs:   []SlotRef{ref(SlotAssetOwner, OneOrMany)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, OneOrMany)},
				Rules: []Rule{
					{Kind: FlowEquality, Slots: []string{SlotAssetOwner}, Error: ErrNonEqualValues},
					{Kind: EngravingCapability, Global: SlotEngravings, Catalog: SlotTokens},
					{Kind: AttachmentCapability, Global: SlotEngravings, Catalog: SlotTokens},
				},
			},
			{
				Name:     OpIssue,
				Modifier: Abstract,
				Errors:   []string{ErrFractionOverflow, ErrNonFractionalToken, ErrInvalidAttachmentType},
				Globals:  []SlotRef{ref(SlotTokens, ZeroOrMany)},
				Inputs:   []SlotRef{ref(SlotIssueRight, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, OneOrMany), ref(SlotIssueRight, ZeroOrOne)},
				Rules: []Rule{
					{Kind: FractionBound, Slots: []string{SlotAssetOwner}},
					{Kind: FractionalCapability, Slots: []string{SlotAssetOwner}, Catalog: SlotTokens},
					{Kind: AttachmentCapability, Global: SlotTokens, Catalog: SlotTokens},
				},
			},
		},
	}
}

// RGB25 returns the collectible fungible asset interface.
func RGB25() *Interface {
	return &Interface{
		Name:    "RGB25",
		Version: "1.0.0",
		Slots: []StateSlot{
			global(SlotSpec, ExactlyOne, core.KindData, SemAssetSpec, Replace),
			global(SlotTerms, ExactlyOne, core.KindData, SemContractTerms, Replace),
			global(SlotIssuedSupply, OneOrMany, core.KindAmount, "", Accumulate),
			global(SlotBurnedSupply, ZeroOrMany, core.KindAmount, "", Accumulate),
			owned(SlotAssetOwner, ZeroOrMany, core.KindAmount),
			public(SlotBurnRight, ZeroOrMany),
		},
		Errors: []ErrorKind{
			{Code: 1, Name: ErrSupplyMismatch, Description: "supply specified as a global parameter doesn't match the amount allocated to the asset owners"},
			{Code: 2, Name: ErrNonEqualAmounts, Description: "the sum of spent assets doesn't equal the sum of assets in the outputs"},
			{Code: 3, Name: ErrInvalidProof, Description: "the provided proof is invalid"},
			{Code: 4, Name: ErrInsufficientCoverage, Description: "the claimed amount of burned assets is not covered by the operation inputs"},
		},
		Operations: []OperationType{
			{
				Name:     OpGenesis,
				Modifier: Abstract,
				Genesis:  true,
				Errors:   []string{ErrSupplyMismatch},
				Globals:  []SlotRef{ref(SlotSpec, ExactlyOne), ref(SlotTerms, ExactlyOne), ref(SlotIssuedSupply, ExactlyOne)},
				Assigns:  []SlotRef{ref(SlotAssetOwner, ZeroOrMany), ref(SlotBurnRight, ZeroOrMany)},
				Rules: []Rule{
					{Kind: SupplyEquality, Global: SlotIssuedSupply, Slots: []string{SlotAssetOwner}},
				},
			},
			{
				Name:     OpTransfer,
				Required: true,
				Default:  true,
				Errors:   []string{ErrNonEqualAmounts},
				Inputs:   []SlotRef{ref(SlotAssetOwner, OneOrMany)},
				Assigns:  []SlotRef{defaultRef(SlotAssetOwner, OneOrMany)},
				Rules: []Rule{
					{Kind: FlowEquality, Slots: []string{SlotAssetOwner}},
				},
			},
			{
				Name:     OpBurn,
				Modifier: Abstract,
				Errors:   []string{ErrInvalidProof, ErrInsufficientCoverage},
				Meta:     &MetaSpec{Type: SemBurnMeta},
				Globals:  []SlotRef{ref(SlotBurnedSupply, ExactlyOne)},
				Inputs:   []SlotRef{ref(SlotBurnRight, ExactlyOne)},
				Assigns:  []SlotRef{defaultRef(SlotBurnRight, ZeroOrOne)},
				Rules: []Rule{
					{Kind: CoverageSufficiency, Global: SlotBurnedSupply, Slots: []string{SlotBurnRight}},
				},
			},
		},
	}
}

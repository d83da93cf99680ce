package iface

// RuleKind is one of the fixed conservation and capability rules an
// operation type may enforce. Rules are evaluated in ascending kind order.
type RuleKind uint8

const (
	// SupplyEquality: the amount written to Global equals the sum of the
	// amounts assigned to Slots by the same operation.
	SupplyEquality RuleKind = iota + 1
	// FlowEquality: consumed amounts (or per-token fractions) in Slots equal
	// the produced ones.
	FlowEquality
	// proofValidity is evaluated implicitly for every attached proof.
	proofValidity
	// ReserveSufficiency: the amount written to Global does not exceed the
	// attested reserves.
	ReserveSufficiency
	// CoverageSufficiency: the amount written to Global does not exceed the
	// capacity carried by consumed Slots and coverage proofs.
	CoverageSufficiency
	// AllowanceSufficiency: the amount written to Global plus the allowance
	// re-assigned to Slots does not exceed the consumed allowance.
	AllowanceSufficiency
	// FractionBound: the live and produced fractions of every token in Slots
	// never exceed one whole unit.
	FractionBound
	// FractionalCapability: only tokens flagged fractionable in Catalog may
	// be assigned in partial fractions.
	FractionalCapability
	// EngravingCapability: engravings written to Global only target tokens
	// flagged engravable in Catalog.
	EngravingCapability
	// AttachmentCapability: media written to Global uses a type the token
	// permits in Catalog.
	AttachmentCapability
)

var ruleNames = map[RuleKind]string{
	SupplyEquality:       "supplyEquality",
	FlowEquality:         "flowEquality",
	proofValidity:        "proofValidity",
	ReserveSufficiency:   "reserveSufficiency",
	CoverageSufficiency:  "coverageSufficiency",
	AllowanceSufficiency: "allowanceSufficiency",
	FractionBound:        "fractionBound",
	FractionalCapability: "fractionalCapability",
	EngravingCapability:  "engravingCapability",
	AttachmentCapability: "attachmentCapability",
}

// Error names raised by the rules unless a rule overrides its error.
const (
	ErrSupplyMismatch        = "supplyMismatch"
	ErrNonEqualAmounts       = "nonEqualAmounts"
	ErrNonEqualValues        = "nonEqualValues"
	ErrInvalidProof          = "invalidProof"
	ErrInsufficientReserves  = "insufficientReserves"
	ErrInsufficientCoverage  = "insufficientCoverage"
	ErrIssueExceedsAllowance = "issueExceedsAllowance"
	ErrFractionOverflow      = "fractionOverflow"
	ErrNonFractionalToken    = "nonFractionalToken"
	ErrNonEngravableToken    = "nonEngravableToken"
	ErrInvalidAttachmentType = "invalidAttachmentType"
)

var defaultRuleErrors = map[RuleKind]string{
	SupplyEquality:       ErrSupplyMismatch,
	FlowEquality:         ErrNonEqualAmounts,
	proofValidity:        ErrInvalidProof,
	ReserveSufficiency:   ErrInsufficientReserves,
	CoverageSufficiency:  ErrInsufficientCoverage,
	AllowanceSufficiency: ErrIssueExceedsAllowance,
	FractionBound:        ErrFractionOverflow,
	FractionalCapability: ErrNonFractionalToken,
	EngravingCapability:  ErrNonEngravableToken,
	AttachmentCapability: ErrInvalidAttachmentType,
}

func (k RuleKind) String() string { return enumString(ruleNames, k) }

func (k RuleKind) MarshalText() ([]byte, error) { return enumMarshal(ruleNames, k) }

func (k *RuleKind) UnmarshalText(text []byte) error {
	return enumUnmarshal(ruleNames, text, k)
}

// Rule binds a rule kind to the slots it reads.
type Rule struct {
	Kind    RuleKind `json:"kind"`
	Global  string   `json:"global,omitempty"`
	Slots   []string `json:"slots,omitempty"`
	Catalog string   `json:"catalog,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ErrorName returns the error the rule raises when violated.
func (r Rule) ErrorName() string {
	if r.Error != "" {
		return r.Error
	}
	return defaultRuleErrors[r.Kind]
}

// needs reports which references a rule kind requires.
func (k RuleKind) needs() (global, slots, catalog bool) {
	switch k {
	case SupplyEquality:
		return true, true, false
	case FlowEquality, FractionBound:
		return false, true, false
	case ReserveSufficiency:
		return true, false, false
	case CoverageSufficiency:
		return true, false, false
	case AllowanceSufficiency:
		return true, true, false
	case FractionalCapability:
		return false, true, true
	case EngravingCapability, AttachmentCapability:
		return true, false, true
	}
	return false, false, false
}

package core

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// FractionUnit is the number of fraction units making one whole token.
const FractionUnit uint64 = 100_000_000

// ValueKind is the semantic category of a state value.
type ValueKind uint8

const (
	KindAmount ValueKind = iota + 1
	KindRights
	KindData
	KindAllocation
	KindAttachment
)

var kindNames = map[ValueKind]string{
	KindAmount:     "amount",
	KindRights:     "rights",
	KindData:       "data",
	KindAllocation: "allocation",
	KindAttachment: "attachment",
}

func (k ValueKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k ValueKind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown value kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *ValueKind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown value kind %q", text)
}

// Commitment is an opaque amount commitment. The engine never looks inside a
// confidential commitment; it only builds the revealed form for amounts it
// already knows in plain text.
type Commitment []byte

const revealedTag byte = 0x00

// Reveal encodes a publicly known amount in commitment form so it can be
// passed to a proof oracle together with confidential commitments.
func Reveal(amount uint64) Commitment {
	c := make(Commitment, 9)
	c[0] = revealedTag
	binary.BigEndian.PutUint64(c[1:], amount)
	return c
}

// Revealed returns the plain amount of a commitment built by Reveal.
func (c Commitment) Revealed() (uint64, bool) {
	if len(c) != 9 || c[0] != revealedTag {
		return 0, false
	}
	return binary.BigEndian.Uint64(c[1:]), true
}

func (c Commitment) String() string {
	return hex.EncodeToString(c)
}

func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(c)), nil
}

func (c *Commitment) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid commitment: %w", err)
	}
	*c = b
	return nil
}

// Allocation is a fractional share of a unique token.
type Allocation struct {
	Token    uint32 `json:"token"`
	Fraction uint64 `json:"fraction"`
}

// Attachment references off-chain media by type and digest.
type Attachment struct {
	Type   string `json:"type"`
	Digest Hash   `json:"digest"`
}

// Value is a concrete state value. Exactly the fields matching Kind are set.
type Value struct {
	Kind       ValueKind       `json:"kind"`
	Amount     uint64          `json:"amount,omitempty"`
	Commitment Commitment      `json:"commitment,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Allocation *Allocation     `json:"allocation,omitempty"`
	Attachment *Attachment     `json:"attachment,omitempty"`
}

func NewAmount(amount uint64) Value {
	return Value{Kind: KindAmount, Amount: amount}
}

func NewConfidential(c Commitment) Value {
	return Value{Kind: KindAmount, Commitment: c}
}

func NewRights() Value {
	return Value{Kind: KindRights}
}

// NewData marshals v to JSON and wraps it in a data value.
func NewData(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("failed to marshal data value: %w", err)
	}
	return Value{Kind: KindData, Data: raw}, nil
}

func NewAllocation(token uint32, fraction uint64) Value {
	return Value{Kind: KindAllocation, Allocation: &Allocation{Token: token, Fraction: fraction}}
}

func NewAttachment(mediaType string, digest Hash) Value {
	return Value{Kind: KindAttachment, Attachment: &Attachment{Type: mediaType, Digest: digest}}
}

// IsConfidential reports whether the value is an amount hidden behind a commitment.
func (v Value) IsConfidential() bool {
	return v.Kind == KindAmount && v.Commitment != nil
}

// AmountCommitment returns the commitment to an amount value, building the
// revealed form for plain amounts.
func (v Value) AmountCommitment() Commitment {
	if v.Commitment != nil {
		return v.Commitment
	}
	return Reveal(v.Amount)
}

// Key returns a canonical identity for the value, used for set semantics.
func (v Value) Key() (string, error) {
	h, err := CanonicalHash(v)
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

var (
	ErrValueShape    = errors.New("value fields do not match its kind")
	ErrFractionRange = errors.New("fraction out of range")
)

// Validate checks that the value carries exactly the fields its kind needs.
func (v Value) Validate() error {
	hasData := len(v.Data) > 0
	switch v.Kind {
	case KindAmount:
		if hasData || v.Allocation != nil || v.Attachment != nil {
			return ErrValueShape
		}
		if v.Commitment != nil && v.Amount != 0 {
			return fmt.Errorf("%w: confidential amount carries a plain amount", ErrValueShape)
		}
	case KindRights:
		if v.Amount != 0 || v.Commitment != nil || hasData || v.Allocation != nil || v.Attachment != nil {
			return ErrValueShape
		}
	case KindData:
		if !hasData || v.Amount != 0 || v.Commitment != nil || v.Allocation != nil || v.Attachment != nil {
			return ErrValueShape
		}
		if !json.Valid(v.Data) {
			return fmt.Errorf("%w: data is not valid JSON", ErrValueShape)
		}
	case KindAllocation:
		if v.Allocation == nil || v.Amount != 0 || v.Commitment != nil || hasData || v.Attachment != nil {
			return ErrValueShape
		}
		if v.Allocation.Fraction == 0 || v.Allocation.Fraction > FractionUnit {
			return fmt.Errorf("%w: %d", ErrFractionRange, v.Allocation.Fraction)
		}
	case KindAttachment:
		if v.Attachment == nil || v.Amount != 0 || v.Commitment != nil || hasData || v.Allocation != nil {
			return ErrValueShape
		}
		if v.Attachment.Type == "" {
			return fmt.Errorf("%w: attachment without media type", ErrValueShape)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrValueShape, uint8(v.Kind))
	}
	return nil
}

// Package core defines the primitive types shared by the interface model,
// the operation model, the state store and the validators.
package core

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a SHA-256 digest.
type Hash [32]byte

// OpID is the content-derived identifier of an operation.
type OpID Hash

// ContractID identifies a contract instance. It equals the OpID of its genesis.
type ContractID Hash

// IfaceID commits to the whole interface definition.
type IfaceID Hash

// SealRef binds an output to a unique external locus (for example a
// transaction outpoint). A seal can be closed exactly once.
type SealRef string

var (
	ZeroOpID       = OpID{}
	ZeroContractID = ContractID{}
	ZeroIfaceID    = IfaceID{}
)

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := parseHash(string(text))
	if err != nil {
		return fmt.Errorf("invalid hash: %w", err)
	}
	*h = parsed
	return nil
}

func (id OpID) String() string {
	return hex.EncodeToString(id[:])
}

// Less orders identifiers lexicographically by their bytes.
func (id OpID) Less(other OpID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

func (id OpID) IsZero() bool {
	return id == ZeroOpID
}

func (id OpID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *OpID) UnmarshalText(text []byte) error {
	h, err := parseHash(string(text))
	if err != nil {
		return fmt.Errorf("invalid operation id: %w", err)
	}
	*id = OpID(h)
	return nil
}

func (id ContractID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContractID) IsZero() bool {
	return id == ZeroContractID
}

func (id ContractID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ContractID) UnmarshalText(text []byte) error {
	h, err := parseHash(string(text))
	if err != nil {
		return fmt.Errorf("invalid contract id: %w", err)
	}
	*id = ContractID(h)
	return nil
}

func (id IfaceID) String() string {
	return hex.EncodeToString(id[:])
}

func (id IfaceID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *IfaceID) UnmarshalText(text []byte) error {
	h, err := parseHash(string(text))
	if err != nil {
		return fmt.Errorf("invalid interface id: %w", err)
	}
	*id = IfaceID(h)
	return nil
}

// ContractIDFromString parses a hex contract identifier, with or without 0x prefix.
func ContractIDFromString(str string) (ContractID, error) {
	h, err := parseHash(str)
	return ContractID(h), err
}

// IfaceIDFromString parses a hex interface identifier.
func IfaceIDFromString(str string) (IfaceID, error) {
	h, err := parseHash(str)
	return IfaceID(h), err
}

// OpIDFromString parses a hex operation identifier.
func OpIDFromString(str string) (OpID, error) {
	h, err := parseHash(str)
	return OpID(h), err
}

func parseHash(str string) (Hash, error) {
	str = strings.TrimPrefix(str, "0x")
	b, err := hex.DecodeString(str)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != len(Hash{}) {
		return Hash{}, fmt.Errorf("expected %d bytes, got %d", len(Hash{}), len(b))
	}
	var out Hash
	copy(out[:], b)
	return out, nil
}

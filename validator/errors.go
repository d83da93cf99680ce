package validator

import (
	"errors"
	"fmt"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
)

var (
	// ErrStructural matches every StructuralError.
	ErrStructural = errors.New("structural failure")
	// ErrConflict matches every ConflictError.
	ErrConflict = errors.New("input conflict")
	// ErrRule matches every RuleError.
	ErrRule = errors.New("contract rule violated")
)

// Code classifies a structural failure.
type Code string

const (
	UnknownOperation   Code = "UnknownOperation"
	MissingMeta        Code = "MissingMeta"
	InvalidMeta        Code = "InvalidMeta"
	Arity              Code = "Arity"
	UnknownSlot        Code = "UnknownSlot"
	ValueType          Code = "ValueType"
	InvalidValue       Code = "InvalidValue"
	CyclicGraph        Code = "CyclicGraph"
	DuplicateSeal      Code = "DuplicateSeal"
	DuplicateOperation Code = "DuplicateOperation"
	UndeclaredError    Code = "UndeclaredError"
	GenesisExists      Code = "GenesisExists"
	NoGenesis          Code = "NoGenesis"
	ContractMismatch   Code = "ContractMismatch"
	Overflow           Code = "Overflow"
	UnknownToken       Code = "UnknownToken"
	BatchTooLarge      Code = "BatchTooLarge"
)

// StructuralError reports a malformed submission. It is never declared by
// an interface and always rejects the operation.
type StructuralError struct {
	Op     core.OpID
	Code   Code
	Detail string
}

func (e *StructuralError) Error() string {
	if e.Op.IsZero() {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("operation %s: %s: %s", e.Op, e.Code, e.Detail)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// Structural builds a StructuralError with a formatted detail.
func Structural(op core.OpID, code Code, format string, args ...any) *StructuralError {
	return &StructuralError{Op: op, Code: code, Detail: fmt.Sprintf(format, args...)}
}

// ConflictError reports an input that is not live, either because an
// earlier operation consumed it or because a sibling in the same batch won
// the tie-break. Winner is zero when the input is simply unknown.
type ConflictError struct {
	Op     core.OpID
	Seal   core.SealRef
	Winner core.OpID
}

func (e *ConflictError) Error() string {
	if e.Winner.IsZero() {
		return fmt.Sprintf("operation %s: input %s is not live", e.Op, e.Seal)
	}
	return fmt.Sprintf("operation %s: input %s consumed by %s", e.Op, e.Seal, e.Winner)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// RuleError reports a declared contract-rule violation.
type RuleError struct {
	Op   core.OpID
	Kind iface.ErrorKind
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.Op, e.Kind)
}

func (e *RuleError) Is(target error) bool {
	return target == ErrRule
}

// CodeOf returns the structural code of err, if it is a structural failure.
func CodeOf(err error) (Code, bool) {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// ErrorName returns the declared error name of err, if it is a rule violation.
func ErrorName(err error) (string, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Kind.Name, true
	}
	return "", false
}

package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/govm-net/contractum/core"
)

// ErrIncompleteLifecycle matches every LifecycleError.
var ErrIncompleteLifecycle = errors.New("IncompleteLifecycle")

// LifecycleError reports required operation types that never occurred in
// the accepted graph of a contract.
type LifecycleError struct {
	Contract core.ContractID
	Missing  []string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("IncompleteLifecycle: contract %s lacks required operations %s",
		e.Contract, strings.Join(e.Missing, ", "))
}

func (e *LifecycleError) Is(target error) bool {
	return target == ErrIncompleteLifecycle
}

// BatchError wraps the failure that stopped a batch. Index is the position
// of the failing operation in the submitted slice, or -1 when the batch as a
// whole was rejected.
type BatchError struct {
	Op    core.OpID
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("batch rejected: %v", e.Err)
	}
	return fmt.Sprintf("batch operation %d failed: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

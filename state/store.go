package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govm-net/contractum/core"
)

// Constructor parameters understood by the store backends.
const (
	ParamContract = "contract"
	ParamDBPath   = "db_path"
)

// Store persists the state of one contract instance. Reads may run
// concurrently; Apply calls must be serialized by the caller.
type Store interface {
	ContractID() core.ContractID
	// Global returns the current values of a global slot.
	Global(slot string) ([]core.Value, error)
	// LiveOutputs returns the unconsumed outputs of a slot.
	LiveOutputs(slot string) ([]Output, error)
	// State returns a consistent in-memory copy of the whole state.
	State() (*State, error)
	// Apply atomically merges the delta of operation id.
	Apply(id core.OpID, opType string, delta *Delta) error
	// Restore replaces the stored state with snap.
	Restore(snap *Snapshot) error
	Close() error
}

// BatchRecord summarizes one graph validation run.
type BatchRecord struct {
	ID       uuid.UUID
	Contract core.ContractID
	Applied  []core.OpID
	Failed   string
	Started  time.Time
	Finished time.Time
}

// BatchRecorder is implemented by stores that keep a batch history.
type BatchRecorder interface {
	RecordBatch(rec BatchRecord) error
}

// Remover is implemented by stores whose data outlives Close. Remove
// deletes everything kept for the contract.
type Remover interface {
	Remove() error
}

// ContractFromParams extracts the contract id parameter.
func ContractFromParams(params map[string]any) (core.ContractID, error) {
	switch v := params[ParamContract].(type) {
	case core.ContractID:
		return v, nil
	case string:
		return core.ContractIDFromString(v)
	case nil:
		return core.ZeroContractID, fmt.Errorf("missing %s parameter", ParamContract)
	default:
		return core.ZeroContractID, fmt.Errorf("invalid %s parameter of type %T", ParamContract, v)
	}
}

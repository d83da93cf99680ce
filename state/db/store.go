package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
	"github.com/govm-net/contractum/state"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultDBPath = "./contractum.db"
)

// DBContract registers a contract instance
type DBContract struct {
	gorm.Model
	ContractID string `gorm:"column:contract_id;not null;unique;index;size:64"`
}

func (DBContract) TableName() string {
	return "contracts"
}

// DBGlobal holds the aggregated values of one global slot
type DBGlobal struct {
	gorm.Model
	ContractID string `gorm:"column:contract_id;not null;uniqueIndex:idx_global_slot;size:64"`
	Slot       string `gorm:"column:slot;not null;uniqueIndex:idx_global_slot;size:255"`
	Values     []byte `gorm:"column:slot_values;type:blob;not null"` // JSON encoded []core.Value
}

func (DBGlobal) TableName() string {
	return "globals"
}

// DBOutput is a produced output; SpentBy is empty while it is live
type DBOutput struct {
	gorm.Model
	ContractID string `gorm:"column:contract_id;not null;uniqueIndex:idx_output_seal;size:64"`
	Seal       string `gorm:"column:seal;not null;uniqueIndex:idx_output_seal;size:255"`
	Slot       string `gorm:"column:slot;index;size:255"`
	Value      []byte `gorm:"column:output_value;type:blob"` // JSON encoded core.Value
	OpID       string `gorm:"column:op_id;size:64"`
	SpentBy    string `gorm:"column:spent_by;not null;default:'';index;size:64"`
}

func (DBOutput) TableName() string {
	return "outputs"
}

// DBOperation records an applied operation
type DBOperation struct {
	gorm.Model
	ContractID string `gorm:"column:contract_id;not null;uniqueIndex:idx_operation;size:64"`
	OpID       string `gorm:"column:op_id;not null;uniqueIndex:idx_operation;size:64"`
	OpType     string `gorm:"column:op_type;not null;index;size:255"`
}

func (DBOperation) TableName() string {
	return "operations"
}

// DBBatch records one graph validation run
type DBBatch struct {
	gorm.Model
	BatchID    string    `gorm:"column:batch_id;not null;unique;size:36"`
	ContractID string    `gorm:"column:contract_id;not null;index;size:64"`
	Applied    []byte    `gorm:"column:applied;type:blob"` // JSON encoded []core.OpID
	Failed     string    `gorm:"column:failed"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
}

func (DBBatch) TableName() string {
	return "batches"
}

type handle struct {
	db   *gorm.DB
	refs int
}

var (
	handlesMu sync.Mutex
	handles   = make(map[string]*handle)
)

// Store persists the state of one contract in sqlite
type Store struct {
	db       *gorm.DB
	path     string
	contract core.ContractID
}

func init() {
	state.Register(state.DBStoreType, NewStore)
}

// NewStore opens (or creates) the sqlite database in params. The contract is
// registered by its first committed delta. Stores of the same path share one
// connection.
func NewStore(params map[string]any) (state.Store, error) {
	if params == nil {
		params = make(map[string]any)
	}
	contract, err := state.ContractFromParams(params)
	if err != nil {
		return nil, err
	}
	dbPath := defaultDBPath
	if path, ok := params[state.ParamDBPath].(string); ok && path != "" {
		dbPath = path
	}

	db, err := acquire(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: dbPath, contract: contract}, nil
}

func register(tx *gorm.DB, contract string) error {
	err := tx.Where(DBContract{ContractID: contract}).
		FirstOrCreate(&DBContract{ContractID: contract}).Error
	if err != nil {
		return fmt.Errorf("failed to register contract: %w", err)
	}
	return nil
}

func acquire(dbPath string) (*gorm.DB, error) {
	handlesMu.Lock()
	defer handlesMu.Unlock()

	if h, ok := handles[dbPath]; ok {
		h.refs++
		return h.db, nil
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := initDB(db); err != nil {
		sqlDB.Close()
		return nil, err
	}
	handles[dbPath] = &handle{db: db, refs: 1}
	slog.Info("state database opened", "path", dbPath)
	return db, nil
}

func release(dbPath string) error {
	handlesMu.Lock()
	defer handlesMu.Unlock()

	h, ok := handles[dbPath]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(handles, dbPath)
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func initDB(db *gorm.DB) error {
	// Auto migrate the schemas with indexes
	err := db.AutoMigrate(
		&DBContract{},
		&DBGlobal{},
		&DBOutput{},
		&DBOperation{},
		&DBBatch{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) ContractID() core.ContractID {
	return s.contract
}

// Global implements state.Store
func (s *Store) Global(slot string) ([]core.Value, error) {
	return loadGlobal(s.db, s.contract.String(), slot)
}

func loadGlobal(tx *gorm.DB, contract, slot string) ([]core.Value, error) {
	var row DBGlobal
	result := tx.Where("contract_id = ? AND slot = ?", contract, slot).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get global %s: %w", slot, result.Error)
	}
	var values []core.Value
	if err := json.Unmarshal(row.Values, &values); err != nil {
		return nil, fmt.Errorf("failed to decode global %s: %w", slot, err)
	}
	return values, nil
}

// LiveOutputs implements state.Store
func (s *Store) LiveOutputs(slot string) ([]state.Output, error) {
	var rows []DBOutput
	result := s.db.Where("contract_id = ? AND slot = ? AND spent_by = ''", s.contract.String(), slot).
		Order("id").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get outputs of %s: %w", slot, result.Error)
	}
	out := make([]state.Output, 0, len(rows))
	for _, row := range rows {
		o, err := row.output()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (row DBOutput) output() (state.Output, error) {
	o := state.Output{Seal: core.SealRef(row.Seal), Slot: row.Slot}
	if err := json.Unmarshal(row.Value, &o.Value); err != nil {
		return o, fmt.Errorf("failed to decode output %s: %w", row.Seal, err)
	}
	id, err := core.OpIDFromString(row.OpID)
	if err != nil {
		return o, fmt.Errorf("invalid producer of output %s: %w", row.Seal, err)
	}
	o.Op = id
	return o, nil
}

// State loads the whole contract state in one read transaction
func (s *Store) State() (*state.State, error) {
	var snap *state.Snapshot
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = s.snapshot(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state.FromSnapshot(snap)
}

func (s *Store) snapshot(tx *gorm.DB) (*state.Snapshot, error) {
	contract := s.contract.String()
	snap := &state.Snapshot{
		Contract: s.contract,
		Globals:  make(map[string][]core.Value),
	}

	var globals []DBGlobal
	if err := tx.Where("contract_id = ?", contract).Find(&globals).Error; err != nil {
		return nil, fmt.Errorf("failed to load globals: %w", err)
	}
	for _, g := range globals {
		var values []core.Value
		if err := json.Unmarshal(g.Values, &values); err != nil {
			return nil, fmt.Errorf("failed to decode global %s: %w", g.Slot, err)
		}
		snap.Globals[g.Slot] = values
	}

	var outputs []DBOutput
	if err := tx.Where("contract_id = ?", contract).Order("id").Find(&outputs).Error; err != nil {
		return nil, fmt.Errorf("failed to load outputs: %w", err)
	}
	for _, row := range outputs {
		if row.SpentBy != "" {
			by, err := core.OpIDFromString(row.SpentBy)
			if err != nil {
				return nil, fmt.Errorf("invalid spender of %s: %w", row.Seal, err)
			}
			snap.Spent = append(snap.Spent, state.SpentSeal{Seal: core.SealRef(row.Seal), By: by})
			continue
		}
		o, err := row.output()
		if err != nil {
			return nil, err
		}
		snap.Live = append(snap.Live, o)
	}

	var ops []DBOperation
	if err := tx.Where("contract_id = ?", contract).Order("id").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}
	for _, row := range ops {
		id, err := core.OpIDFromString(row.OpID)
		if err != nil {
			return nil, fmt.Errorf("invalid operation id %s: %w", row.OpID, err)
		}
		snap.Operations = append(snap.Operations, state.AppliedOp{ID: id, Type: row.OpType})
	}
	return snap, nil
}

// Apply implements state.Store; the whole delta commits in one transaction
func (s *Store) Apply(id core.OpID, opType string, delta *state.Delta) error {
	contract := s.contract.String()
	opID := id.String()
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DBOperation{}).Where("contract_id = ? AND op_id = ?", contract, opID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up operation: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", state.ErrDuplicateOperation, id)
		}

		for _, seal := range delta.Retire {
			result := tx.Model(&DBOutput{}).
				Where("contract_id = ? AND seal = ? AND spent_by = ''", contract, string(seal)).
				Update("spent_by", opID)
			if result.Error != nil {
				return fmt.Errorf("failed to retire %s: %w", seal, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", state.ErrNotLive, seal)
			}
		}

		for _, o := range delta.Create {
			var used int64
			if err := tx.Model(&DBOutput{}).Where("contract_id = ? AND seal = ?", contract, string(o.Seal)).
				Count(&used).Error; err != nil {
				return fmt.Errorf("failed to look up seal: %w", err)
			}
			if used > 0 {
				return fmt.Errorf("%w: %s", state.ErrSealUsed, o.Seal)
			}
			value, err := json.Marshal(o.Value)
			if err != nil {
				return fmt.Errorf("failed to encode output %s: %w", o.Seal, err)
			}
			row := &DBOutput{ContractID: contract, Seal: string(o.Seal), Slot: o.Slot, Value: value, OpID: opID}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to create output %s: %w", o.Seal, err)
			}
		}

		for _, w := range delta.Globals {
			if err := mergeGlobal(tx, contract, w.Slot, w.Rule, w.Values); err != nil {
				return err
			}
		}

		if err := tx.Create(&DBOperation{ContractID: contract, OpID: opID, OpType: opType}).Error; err != nil {
			return fmt.Errorf("failed to record operation: %w", err)
		}
		return register(tx, contract)
	})
}

func mergeGlobal(tx *gorm.DB, contract, slot string, rule iface.Aggregation, values []core.Value) error {
	current, err := loadGlobal(tx, contract, slot)
	if err != nil {
		return err
	}
	merged, err := state.Merge(rule, current, values)
	if err != nil {
		return fmt.Errorf("global %s: %w", slot, err)
	}
	return saveGlobal(tx, contract, slot, merged)
}

func saveGlobal(tx *gorm.DB, contract, slot string, values []core.Value) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode global %s: %w", slot, err)
	}
	result := tx.Where("contract_id = ? AND slot = ?", contract, slot).
		Assign(DBGlobal{Values: raw}).
		FirstOrCreate(&DBGlobal{ContractID: contract, Slot: slot, Values: raw})
	if result.Error != nil {
		return fmt.Errorf("failed to update global %s: %w", slot, result.Error)
	}
	return nil
}

// Restore replaces the stored state of the contract with a snapshot
func (s *Store) Restore(snap *state.Snapshot) error {
	if snap.Contract != s.contract {
		return fmt.Errorf("snapshot of contract %s restored into %s", snap.Contract, s.contract)
	}
	// reject inconsistent snapshots before touching the database
	if _, err := state.FromSnapshot(snap); err != nil {
		return err
	}
	contract := s.contract.String()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&DBGlobal{}, &DBOutput{}, &DBOperation{}} {
			if err := tx.Unscoped().Where("contract_id = ?", contract).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to clear state: %w", err)
			}
		}
		if err := register(tx, contract); err != nil {
			return err
		}
		for slot, values := range snap.Globals {
			if err := saveGlobal(tx, contract, slot, values); err != nil {
				return err
			}
		}
		for _, sp := range snap.Spent {
			row := &DBOutput{ContractID: contract, Seal: string(sp.Seal), SpentBy: sp.By.String()}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to restore spent seal %s: %w", sp.Seal, err)
			}
		}
		for _, o := range snap.Live {
			value, err := json.Marshal(o.Value)
			if err != nil {
				return fmt.Errorf("failed to encode output %s: %w", o.Seal, err)
			}
			row := &DBOutput{ContractID: contract, Seal: string(o.Seal), Slot: o.Slot, Value: value, OpID: o.Op.String()}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to restore output %s: %w", o.Seal, err)
			}
		}
		for _, op := range snap.Operations {
			row := &DBOperation{ContractID: contract, OpID: op.ID.String(), OpType: op.Type}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to restore operation %s: %w", op.ID, err)
			}
		}
		return nil
	})
}

// Remove implements state.Remover: it deletes the state, the batch history
// and the registration of the contract
func (s *Store) Remove() error {
	contract := s.contract.String()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&DBGlobal{}, &DBOutput{}, &DBOperation{}, &DBBatch{}, &DBContract{}} {
			if err := tx.Unscoped().Where("contract_id = ?", contract).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to remove contract %s: %w", contract, err)
			}
		}
		return nil
	})
}

// RecordBatch implements state.BatchRecorder
func (s *Store) RecordBatch(rec state.BatchRecord) error {
	applied, err := json.Marshal(rec.Applied)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	row := &DBBatch{
		BatchID:    rec.ID.String(),
		ContractID: rec.Contract.String(),
		Applied:    applied,
		Failed:     rec.Failed,
		StartedAt:  rec.Started,
		FinishedAt: rec.Finished,
	}
	if err := s.db.Create(row).Error; err != nil {
		return fmt.Errorf("failed to record batch: %w", err)
	}
	return nil
}

// Batches returns the recorded batches of the contract, oldest first
func (s *Store) Batches() ([]state.BatchRecord, error) {
	var rows []DBBatch
	if err := s.db.Where("contract_id = ?", s.contract.String()).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	out := make([]state.BatchRecord, 0, len(rows))
	for _, row := range rows {
		rec := state.BatchRecord{
			Contract: s.contract,
			Failed:   row.Failed,
			Started:  row.StartedAt,
			Finished: row.FinishedAt,
		}
		if err := rec.ID.UnmarshalText([]byte(row.BatchID)); err != nil {
			return nil, fmt.Errorf("invalid batch id %s: %w", row.BatchID, err)
		}
		if len(row.Applied) > 0 {
			if err := json.Unmarshal(row.Applied, &rec.Applied); err != nil {
				return nil, fmt.Errorf("failed to decode batch %s: %w", row.BatchID, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Contracts lists the contracts stored in the database at dbPath
func Contracts(dbPath string) ([]core.ContractID, error) {
	db, err := acquire(dbPath)
	if err != nil {
		return nil, err
	}
	defer release(dbPath)

	var rows []DBContract
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	out := make([]core.ContractID, 0, len(rows))
	for _, row := range rows {
		id, err := core.ContractIDFromString(row.ContractID)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) Close() error {
	return release(s.path)
}

// Package repository keeps interface definitions on disk, indexed by their
// identifier, and records which interface each contract was created with.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/govm-net/contractum/core"
	"github.com/govm-net/contractum/iface"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyBound = errors.New("contract already bound to an interface")
)

const (
	interfacesDir  = "interfaces"
	contractsDir   = "contracts"
	definitionFile = "interface.json"
	metadataFile   = "metadata.json"
)

// Manager is an interface repository rooted at a directory.
type Manager struct {
	rootDir string
}

// Metadata describes a registered interface.
type Metadata struct {
	ID           core.IfaceID `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// Binding records the interface a contract was created with.
type Binding struct {
	Contract  core.ContractID `json:"contract"`
	Interface core.IfaceID    `json:"interface"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewManager creates the repository directories under rootDir.
func NewManager(rootDir string) (*Manager, error) {
	for _, dir := range []string{interfacesDir, contractsDir} {
		if err := os.MkdirAll(filepath.Join(rootDir, dir), 0755); err != nil {
			slog.Error("failed to create repository directory", "dir", rootDir, "error", err)
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
	}
	return &Manager{rootDir: rootDir}, nil
}

// RegisterInterface checks and stores ifc. Registering an identical
// interface twice is a no-op.
func (m *Manager) RegisterInterface(ifc *iface.Interface) (core.IfaceID, error) {
	if err := ifc.Check(); err != nil {
		return core.ZeroIfaceID, err
	}
	id, err := ifc.ID()
	if err != nil {
		return core.ZeroIfaceID, err
	}

	dir := m.interfaceDir(id)
	if _, err := os.Stat(dir); err == nil {
		slog.Debug("interface already registered", "id", id, "name", ifc.Name)
		return id, nil
	} else if !os.IsNotExist(err) {
		return core.ZeroIfaceID, fmt.Errorf("failed to check interface directory: %w", err)
	}

	definition, err := json.MarshalIndent(ifc, "", "  ")
	if err != nil {
		return core.ZeroIfaceID, fmt.Errorf("failed to encode interface: %w", err)
	}
	meta := Metadata{ID: id, Name: ifc.Name, Version: ifc.Version, RegisteredAt: time.Now().UTC()}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.ZeroIfaceID, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return core.ZeroIfaceID, fmt.Errorf("failed to create interface directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, definitionFile), definition, 0644); err != nil {
		os.RemoveAll(dir)
		return core.ZeroIfaceID, fmt.Errorf("failed to save interface: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), metaBytes, 0644); err != nil {
		os.RemoveAll(dir)
		return core.ZeroIfaceID, fmt.Errorf("failed to save metadata: %w", err)
	}
	slog.Info("interface registered", "id", id, "name", ifc.Name, "version", ifc.Version)
	return id, nil
}

// GetInterface loads the interface with the given identifier.
func (m *Manager) GetInterface(id core.IfaceID) (*iface.Interface, error) {
	path := filepath.Join(m.interfaceDir(id), definitionFile)
	ifc, err := iface.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("interface %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	got, err := ifc.ID()
	if err != nil {
		return nil, err
	}
	if got != id {
		return nil, fmt.Errorf("interface %s is stored with identifier %s", got, id)
	}
	return ifc, nil
}

// List returns the metadata of every registered interface ordered by name
// and version.
func (m *Manager) List() ([]Metadata, error) {
	entries, err := os.ReadDir(filepath.Join(m.rootDir, interfacesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read repository: %w", err)
	}
	out := make([]Metadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.rootDir, interfacesDir, entry.Name(), metadataFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// FindByName returns the highest version of the named interface satisfying
// constraint. An empty constraint accepts any version.
func (m *Manager) FindByName(name, constraint string) (*iface.Interface, error) {
	var c *semver.Constraints
	if constraint != "" {
		parsed, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
		}
		c = parsed
	}
	all, err := m.List()
	if err != nil {
		return nil, err
	}

	var best *Metadata
	var bestVersion *semver.Version
	for n := range all {
		meta := &all[n]
		if meta.Name != name {
			continue
		}
		v, err := semver.NewVersion(meta.Version)
		if err != nil {
			slog.Warn("skipping interface with invalid version", "id", meta.ID, "version", meta.Version)
			continue
		}
		if c != nil && !c.Check(v) {
			continue
		}
		if bestVersion == nil || v.GreaterThan(bestVersion) {
			best, bestVersion = meta, v
		}
	}
	if best == nil {
		return nil, fmt.Errorf("interface %s %s: %w", name, constraint, ErrNotFound)
	}
	return m.GetInterface(best.ID)
}

// Bind records that contract was created with interface id.
func (m *Manager) Bind(contract core.ContractID, id core.IfaceID) error {
	if _, err := m.Binding(contract); err == nil {
		return fmt.Errorf("%s: %w", contract, ErrAlreadyBound)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	data, err := json.MarshalIndent(Binding{Contract: contract, Interface: id, CreatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal binding: %w", err)
	}
	if err := os.WriteFile(m.bindingPath(contract), data, 0644); err != nil {
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

// Binding returns the interface binding of contract.
func (m *Manager) Binding(contract core.ContractID) (*Binding, error) {
	data, err := os.ReadFile(m.bindingPath(contract))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("contract %s: %w", contract, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read binding: %w", err)
	}
	var b Binding
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binding: %w", err)
	}
	return &b, nil
}

func (m *Manager) interfaceDir(id core.IfaceID) string {
	return filepath.Join(m.rootDir, interfacesDir, id.String())
}

func (m *Manager) bindingPath(contract core.ContractID) string {
	return filepath.Join(m.rootDir, contractsDir, contract.String()+".json")
}

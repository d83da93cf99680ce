package state

import (
	"fmt"
	"sort"
	"sync"
)

// StoreType names a store backend
type StoreType string

const (
	// MemoryStoreType keeps the state in process memory
	MemoryStoreType StoreType = "memory"
	// DBStoreType persists the state in sqlite through gorm
	DBStoreType StoreType = "db"
)

// StoreConstructor creates a Store for the contract named in params
type StoreConstructor func(params map[string]any) (Store, error)

// Registry manages the available Store backends
type Registry interface {
	// Register adds a backend to the registry
	Register(st StoreType, constructor StoreConstructor) error
	// SetDefault sets the default backend
	SetDefault(st StoreType) error
	// Get returns a new store of the given backend
	Get(st StoreType, params map[string]any) (Store, error)
	// GetDefault returns a new store of the default backend
	GetDefault(params map[string]any) (Store, error)
	// DefaultStoreType returns the current default backend
	DefaultStoreType() StoreType
	// ListRegistered returns the registered backends
	ListRegistered() []StoreType
}

type registry struct {
	mu        sync.RWMutex
	stores    map[StoreType]StoreConstructor
	defaultSt StoreType
}

var defaultRegistry Registry

func init() {
	defaultRegistry = NewRegistry()
}

// NewRegistry returns an empty registry
func NewRegistry() Registry {
	return &registry{
		stores: make(map[StoreType]StoreConstructor),
	}
}

// GetRegistry returns the global Registry instance
func GetRegistry() Registry {
	return defaultRegistry
}

func (r *registry) Register(st StoreType, constructor StoreConstructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[st]; exists {
		return fmt.Errorf("store type %s already registered", st)
	}

	r.stores[st] = constructor
	return nil
}

func (r *registry) SetDefault(st StoreType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[st]; !exists {
		return fmt.Errorf("store type %s not registered", st)
	}

	r.defaultSt = st
	return nil
}

func (r *registry) Get(st StoreType, params map[string]any) (Store, error) {
	r.mu.RLock()
	constructor, exists := r.stores[st]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("store type %s not found", st)
	}

	return constructor(params)
}

func (r *registry) GetDefault(params map[string]any) (Store, error) {
	return r.Get(r.DefaultStoreType(), params)
}

// DefaultStoreType falls back to the memory backend when no default was set
func (r *registry) DefaultStoreType() StoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultSt == "" {
		return MemoryStoreType
	}
	return r.defaultSt
}

func (r *registry) ListRegistered() []StoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]StoreType, 0, len(r.stores))
	for st := range r.stores {
		types = append(types, st)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Package level functions that delegate to defaultRegistry

// Register adds a backend to the global registry
func Register(st StoreType, constructor StoreConstructor) error {
	return GetRegistry().Register(st, constructor)
}

// SetDefault sets the default backend of the global registry
func SetDefault(st StoreType) error {
	return GetRegistry().SetDefault(st)
}

// Get returns a new store; an empty type selects the default backend
func Get(st StoreType, params map[string]any) (Store, error) {
	if st == "" {
		st = GetRegistry().DefaultStoreType()
	}
	return GetRegistry().Get(st, params)
}

// GetDefault returns a new store of the default backend
func GetDefault(params map[string]any) (Store, error) {
	return GetRegistry().GetDefault(params)
}

// DefaultStoreType returns the default backend of the global registry
func DefaultStoreType() StoreType {
	return GetRegistry().DefaultStoreType()
}

// ListRegistered returns the backends of the global registry
func ListRegistered() []StoreType {
	return GetRegistry().ListRegistered()
}

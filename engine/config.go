package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/govm-net/contractum/graph"
	"github.com/govm-net/contractum/state"
)

// Oracle backends.
const (
	OraclePlain = "plain"
	OracleWasm  = "wasm"
)

// Config represents engine configuration
type Config struct {
	// State store backend and its parameters, for example db_path
	StoreType   string         `mapstructure:"store_type"`
	StoreParams map[string]any `mapstructure:"store_params"`
	// Directory of the interface repository
	RepositoryDir string `mapstructure:"repository_dir"`

	Workers      int    `mapstructure:"workers"`
	MaxBatchSize int    `mapstructure:"max_batch_size"`
	Lifecycle    string `mapstructure:"lifecycle"`

	Oracle         string `mapstructure:"oracle"`
	OracleWasmPath string `mapstructure:"oracle_wasm_path"`
	// Resource limits of the wasm oracle; zero means unlimited
	OracleMemoryPages uint32        `mapstructure:"oracle_memory_pages"`
	OracleTimeout     time.Duration `mapstructure:"oracle_timeout"`
}

// DefaultConfig returns an in-memory configuration with the plain oracle.
func DefaultConfig() *Config {
	return &Config{
		StoreType:     string(state.MemoryStoreType),
		RepositoryDir: ".contractum",
		Lifecycle:     string(graph.LifecycleReport),
		Oracle:        OraclePlain,
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}
	if config.RepositoryDir == "" {
		return fmt.Errorf("repository directory is empty")
	}
	if config.StoreType != "" && !slices.Contains(state.ListRegistered(), state.StoreType(config.StoreType)) {
		return fmt.Errorf("unknown store type %q", config.StoreType)
	}
	if config.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", config.Workers)
	}
	if config.MaxBatchSize < 0 {
		return fmt.Errorf("invalid max batch size: %d", config.MaxBatchSize)
	}
	if _, err := graph.ParsePolicy(config.Lifecycle); err != nil {
		return err
	}
	if config.OracleTimeout < 0 {
		return fmt.Errorf("invalid oracle timeout: %s", config.OracleTimeout)
	}
	switch config.Oracle {
	case "", OraclePlain:
	case OracleWasm:
		if config.OracleWasmPath == "" {
			return fmt.Errorf("wasm oracle needs a module path")
		}
	default:
		return fmt.Errorf("unknown oracle %q", config.Oracle)
	}
	return nil
}

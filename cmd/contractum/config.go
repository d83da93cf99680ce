package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/govm-net/contractum/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "contractum"
	configFileType = "yaml"
	envPrefix      = "CONTRACTUM"

	cfgKeyStoreType      = "store_type"
	cfgKeyDBPath         = "store_params.db_path"
	cfgKeyRepositoryDir  = "repository_dir"
	cfgKeyWorkers        = "workers"
	cfgKeyMaxBatchSize   = "max_batch_size"
	cfgKeyLifecycle      = "lifecycle"
	cfgKeyOracle         = "oracle"
	cfgKeyOracleWasmPath = "oracle_wasm_path"
	cfgKeyOracleMemory   = "oracle_memory_pages"
	cfgKeyOracleTimeout  = "oracle_timeout"
)

// options holds the persistent flags shared by every command.
type options struct {
	configFile string
	verbose    bool
}

// flag name -> config key
var flagKeys = map[string]string{
	"store":       cfgKeyStoreType,
	"db-path":     cfgKeyDBPath,
	"repo":        cfgKeyRepositoryDir,
	"workers":     cfgKeyWorkers,
	"max-batch":   cfgKeyMaxBatchSize,
	"lifecycle":   cfgKeyLifecycle,
	"oracle":      cfgKeyOracle,
	"oracle-wasm": cfgKeyOracleWasmPath,

	"oracle-memory-pages": cfgKeyOracleMemory,
	"oracle-timeout":      cfgKeyOracleTimeout,
}

func (o *options) bind(cmd *cobra.Command) {
	def := engine.DefaultConfig()
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "config file (default: ./contractum.yaml)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	flags.String("store", def.StoreType, "state store backend (memory|db)")
	flags.String("db-path", "", "sqlite database path of the db store")
	flags.String("repo", def.RepositoryDir, "interface repository directory")
	flags.Int("workers", def.Workers, "parallel preparation workers (0: GOMAXPROCS)")
	flags.Int("max-batch", def.MaxBatchSize, "maximum operations per batch (0: unlimited)")
	flags.String("lifecycle", def.Lifecycle, "lifecycle completeness policy (off|report|enforce)")
	flags.String("oracle", def.Oracle, "proof oracle (plain|wasm)")
	flags.String("oracle-wasm", "", "path of the wasm proof oracle module")
	flags.Uint32("oracle-memory-pages", 0, "memory limit of the wasm oracle in 64KiB pages (0: unlimited)")
	flags.Duration("oracle-timeout", 0, "time limit of one wasm oracle call (0: unlimited)")
}

// loadConfig merges defaults, the config file, CONTRACTUM_* environment
// variables and flags, in increasing priority.
func (o *options) loadConfig(cmd *cobra.Command) (*engine.Config, error) {
	v := viper.New()
	def := engine.DefaultConfig()
	v.SetDefault(cfgKeyStoreType, def.StoreType)
	v.SetDefault(cfgKeyRepositoryDir, def.RepositoryDir)
	v.SetDefault(cfgKeyLifecycle, def.Lifecycle)
	v.SetDefault(cfgKeyOracle, def.Oracle)

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	config := engine.DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return config, nil
}

func (o *options) newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	config, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return engine.NewEngine(ctx, config)
}

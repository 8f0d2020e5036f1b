package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cellfuzz/txpoolfuzz/types"
)

const (
	// LogFormatPlain is a format for colored text.
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output.
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	// DefaultDataDir is the directory inside --data-dir holding the database.
	DefaultDataDir = "data"
	// DefaultDBName is the name of the database inside DefaultDataDir.
	DefaultDBName = "fuzzer"
)

// DBDir returns the directory of the database for a data directory.
func DBDir(dataDir string) string {
	return filepath.Join(dataDir, DefaultDataDir)
}

// BaseConfig holds the settings shared by every subcommand file.
type BaseConfig struct {
	// Output level for logging, including package level options
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// DefaultBaseConfig returns a default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
	}
}

// ValidateBasic performs basic validation.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return ErrUnknownLogFormat
	}
	if cfg.LogLevel == "" {
		return errors.New("log_level can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InitConfig

// InitConfig is the content of the file given to `init`.
type InitConfig struct {
	BaseConfig `mapstructure:",squash" yaml:",inline"`

	Genesis GenesisConfig `mapstructure:"genesis" yaml:"genesis"`
}

// DefaultInitConfig returns a default init configuration.
func DefaultInitConfig() *InitConfig {
	return &InitConfig{
		BaseConfig: DefaultBaseConfig(),
		Genesis:    DefaultGenesisConfig(),
	}
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg *InitConfig) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Genesis.ValidateBasic(); err != nil {
		return ErrInSection{Section: "genesis", Err: err}
	}
	return nil
}

// GenesisConfig describes the mock chain at height 0 and the seed of every
// run that follows.
type GenesisConfig struct {
	Seed          uint64                `mapstructure:"seed" yaml:"seed"`
	Timestamp     uint64                `mapstructure:"timestamp" yaml:"timestamp"`
	CompactTarget uint32                `mapstructure:"compact_target" yaml:"compact_target"`
	Params        types.ConsensusParams `mapstructure:"params" yaml:"params"`
	Endowments    []EndowmentConfig     `mapstructure:"endowments" yaml:"endowments"`
}

// EndowmentConfig creates Count cells of Capacity shannons at genesis, each
// carrying DataSize bytes of data.
type EndowmentConfig struct {
	Capacity uint64 `mapstructure:"capacity" yaml:"capacity"`
	Count    uint32 `mapstructure:"count" yaml:"count"`
	DataSize uint32 `mapstructure:"data_size" yaml:"data_size"`
}

// DefaultGenesisConfig returns a genesis with 100 cells of 10_000 units.
func DefaultGenesisConfig() GenesisConfig {
	return GenesisConfig{
		Seed:          1,
		Timestamp:     1_700_000_000_000,
		CompactTarget: 0x1e015555,
		Params:        types.DefaultConsensusParams(),
		Endowments: []EndowmentConfig{
			{Capacity: 10_000 * types.ShannonsPerUnit, Count: 100},
		},
	}
}

// maxGenesisCells bounds the number of cells a genesis block may create.
const maxGenesisCells = 1 << 20

// ValidateBasic performs basic validation.
func (cfg GenesisConfig) ValidateBasic() error {
	if err := cfg.Params.ValidateBasic(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if len(cfg.Endowments) == 0 {
		return errors.New("at least one endowment is required")
	}
	var cells uint64
	for i, e := range cfg.Endowments {
		if e.Capacity == 0 {
			return fmt.Errorf("endowments[%d]: capacity can't be 0", i)
		}
		if e.Count == 0 {
			return fmt.Errorf("endowments[%d]: count can't be 0", i)
		}
		if uint64(e.DataSize) > cfg.Params.MaxTxBytes {
			return fmt.Errorf("endowments[%d]: data_size %d exceeds max_tx_bytes", i, e.DataSize)
		}
		cells += uint64(e.Count)
	}
	if cells > maxGenesisCells {
		return fmt.Errorf("genesis creates %d cells, at most %d allowed", cells, maxGenesisCells)
	}
	return nil
}

//-----------------------------------------------------------------------------
// RunConfig

// RunConfig is the content of the file given to `run`.
type RunConfig struct {
	BaseConfig `mapstructure:",squash" yaml:",inline"`

	Driver          DriverConfig           `mapstructure:"driver" yaml:"driver"`
	Pool            PoolConfig             `mapstructure:"pool" yaml:"pool"`
	Plan            GenerationPlan         `mapstructure:"plan" yaml:"plan"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
}

// DefaultRunConfig returns a default run configuration.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		BaseConfig:      DefaultBaseConfig(),
		Driver:          DefaultDriverConfig(),
		Pool:            DefaultPoolConfig(),
		Plan:            DefaultGenerationPlan(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestRunConfig returns a configuration for tests: no sleeping, a snapshot
// every iteration and a bounded run.
func TestRunConfig() *RunConfig {
	cfg := DefaultRunConfig()
	cfg.Driver.StepInterval = 0
	cfg.Driver.SnapshotInterval = 1
	cfg.Driver.MaxIterations = 10
	cfg.Instrumentation = TestInstrumentationConfig()
	return cfg
}

// ValidateBasic performs basic validation and returns an error if any check
// fails.
func (cfg *RunConfig) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Driver.ValidateBasic(); err != nil {
		return ErrInSection{Section: "driver", Err: err}
	}
	if err := cfg.Pool.ValidateBasic(); err != nil {
		return ErrInSection{Section: "pool", Err: err}
	}
	if err := cfg.Plan.ValidateBasic(); err != nil {
		return ErrInSection{Section: "plan", Err: err}
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return ErrInSection{Section: "instrumentation", Err: err}
	}
	return nil
}

// DriverConfig controls the fuzz loop.
type DriverConfig struct {
	// Number of transactions generated per iteration (one block).
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// Persist a snapshot every this many iterations.
	SnapshotInterval uint64 `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`

	// Stop after this many iterations of this run. 0 runs until interrupted.
	MaxIterations uint64 `mapstructure:"max_iterations" yaml:"max_iterations"`

	// Wall-clock pause between iterations.
	StepInterval time.Duration `mapstructure:"step_interval" yaml:"step_interval"`

	// Mean virtual time between blocks.
	BlockInterval time.Duration `mapstructure:"block_interval" yaml:"block_interval"`

	// Attempts for appending an outcome record before giving up.
	StoreRetries uint64 `mapstructure:"store_retries" yaml:"store_retries"`

	// Stop the run on the first finding-severity invariant violation.
	HaltOnViolation bool `mapstructure:"halt_on_violation" yaml:"halt_on_violation"`

	// Stop the run on the first engine fault.
	HaltOnFault bool `mapstructure:"halt_on_fault" yaml:"halt_on_fault"`
}

// DefaultDriverConfig returns a default driver configuration.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		BatchSize:        8,
		SnapshotInterval: 10,
		MaxIterations:    0,
		StepInterval:     100 * time.Millisecond,
		BlockInterval:    8 * time.Second,
		StoreRetries:     3,
		HaltOnViolation:  true,
		HaltOnFault:      false,
	}
}

// ValidateBasic performs basic validation.
func (cfg DriverConfig) ValidateBasic() error {
	if cfg.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if cfg.SnapshotInterval == 0 {
		return errors.New("snapshot_interval must be positive")
	}
	if cfg.StepInterval < 0 {
		return errors.New("step_interval can't be negative")
	}
	if cfg.BlockInterval <= 0 {
		return errors.New("block_interval must be positive")
	}
	return nil
}

// PoolConfig configures the adapter and the in-process engine.
type PoolConfig struct {
	// Upper bound on a single submission. Exceeding it is an engine fault.
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`

	// How long an answer may still arrive once the deadline fired. The
	// engine's answer wins over the timeout if it arrives in time.
	SubmitGrace time.Duration `mapstructure:"submit_grace" yaml:"submit_grace"`

	// Maximum number of pending transactions.
	MaxTxs int `mapstructure:"max_txs" yaml:"max_txs"`

	// Script groups verified concurrently per transaction.
	ScriptWorkers int `mapstructure:"script_workers" yaml:"script_workers"`

	// Transactions remembered as rejected, answered without re-verification.
	RecentRejectSize int `mapstructure:"recent_reject_size" yaml:"recent_reject_size"`

	// Committed transaction hashes remembered for duplicate detection.
	KnownTxsSize int `mapstructure:"known_txs_size" yaml:"known_txs_size"`
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		SubmitTimeout:    5 * time.Second,
		SubmitGrace:      time.Second,
		MaxTxs:           5000,
		ScriptWorkers:    4,
		RecentRejectSize: 10_000,
		KnownTxsSize:     100_000,
	}
}

// ValidateBasic performs basic validation.
func (cfg PoolConfig) ValidateBasic() error {
	if cfg.SubmitTimeout <= 0 {
		return errors.New("submit_timeout must be positive")
	}
	if cfg.SubmitGrace < 0 {
		return errors.New("submit_grace can't be negative")
	}
	if cfg.MaxTxs <= 0 {
		return errors.New("max_txs must be positive")
	}
	if cfg.ScriptWorkers <= 0 {
		return errors.New("script_workers must be positive")
	}
	if cfg.RecentRejectSize <= 0 {
		return errors.New("recent_reject_size must be positive")
	}
	if cfg.KnownTxsSize <= 0 {
		return errors.New("known_txs_size must be positive")
	}
	return nil
}

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus" yaml:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "txpoolfuzz",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting in tests.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg == nil {
		return errors.New("section missing")
	}
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus_listen_addr can't be empty when prometheus is enabled")
	}
	return nil
}

// IsPrometheusEnabled returns true if the server should expose metrics.
func (cfg *InstrumentationConfig) IsPrometheusEnabled() bool {
	return cfg.Prometheus && cfg.PrometheusListenAddr != ""
}

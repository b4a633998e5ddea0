// Copyright 2025 ZeroXBridge
//
// Configuration for the bridge sequencer. Read once at startup from an
// optional YAML file with environment-variable overrides for URLs and
// secrets; hot reload is not supported.

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sequencer service
type Config struct {
	Contracts ContractsConfig `yaml:"contracts"`
	Ethereum  EthereumConfig  `yaml:"ethereum"`
	Starknet  StarknetConfig  `yaml:"starknet"`
	Relayer   RelayerConfig   `yaml:"relayer"`
	Queue     QueueConfig     `yaml:"queue"`
	Merkle    MerkleConfig    `yaml:"merkle"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Herodotus HerodotusConfig `yaml:"herodotus"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Prover    ProverConfig    `yaml:"prover"`
}

// ContractsConfig filters event queries to the bridge contracts.
type ContractsConfig struct {
	L1ContractAddress string `yaml:"l1_contract_address"`
	L2ContractAddress string `yaml:"l2_contract_address"`
}

// EthereumConfig shapes the L1 connection and reorg buffer.
type EthereumConfig struct {
	ChainID       int64  `yaml:"chain_id"`
	Confirmations uint64 `yaml:"confirmations"`
	StartBlock    uint64 `yaml:"start_block"`
	RPCURLEnv     string `yaml:"rpc_url_env"`

	// Resolved from the environment at load time.
	RPCURL     string `yaml:"-"`
	PrivateKey string `yaml:"-"`
}

// StarknetConfig shapes the L2 client identity and retry behaviour.
type StarknetConfig struct {
	ChainID              string `yaml:"chain_id"`
	ContractAddress      string `yaml:"contract_address"`
	AccountAddress       string `yaml:"account_address"`
	StartBlock           uint64 `yaml:"start_block"`
	MaxRetries           int    `yaml:"max_retries"`
	RetryDelayMS         int64  `yaml:"retry_delay_ms"`
	TransactionTimeoutMS int64  `yaml:"transaction_timeout_ms"`
	RPCURLEnv            string `yaml:"rpc_url_env"`

	// Resolved from the environment at load time.
	RPCURL     string `yaml:"-"`
	PrivateKey string `yaml:"-"`
}

// RelayerConfig shapes the L1 fund-unlock relayer.
type RelayerConfig struct {
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	GasLimit          uint64 `yaml:"gas_limit"`
}

// QueueConfig sets the transition engine cadence.
type QueueConfig struct {
	ProcessIntervalSec        int `yaml:"process_interval_sec"`
	WaitTimeSeconds           int `yaml:"wait_time_seconds"`
	MaxRetries                int `yaml:"max_retries"`
	InitialRetryDelaySec      int `yaml:"initial_retry_delay_sec"`
	RetryDelaySeconds         int `yaml:"retry_delay_seconds"`
	MerkleUpdateConfirmations int `yaml:"merkle_update_confirmations"`
}

// MerkleConfig bounds accumulator resources.
type MerkleConfig struct {
	TreeDepth int `yaml:"tree_depth"`
	CacheSize int `yaml:"cache_size"`
}

// OracleConfig shapes the TVL sync loop.
type OracleConfig struct {
	TolerancePercent       float64 `yaml:"tolerance_percent"`
	PollingIntervalSeconds int     `yaml:"polling_interval_seconds"`
}

// HerodotusConfig points at the remote proving service.
type HerodotusConfig struct {
	Endpoint  string `yaml:"herodotus_endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`

	// Resolved from the environment at load time.
	APIKey string `yaml:"-"`
}

// LoggingConfig selects the observability sink.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DatabaseConfig shapes the journal connection pool.
type DatabaseConfig struct {
	URL         string `yaml:"-"` // always from DATABASE_URL
	MaxConns    int    `yaml:"max_conns"`
	MinConns    int    `yaml:"min_conns"`
	MaxIdleTime int    `yaml:"max_idle_time"` // seconds
	MaxLifetime int    `yaml:"max_lifetime"`  // seconds
}

// ProverConfig fixes the external prover invocation.
type ProverConfig struct {
	SierraPath         string `yaml:"sierra_path"`
	ProverParams       string `yaml:"prover_params"`
	ProverConfig       string `yaml:"prover_config"`
	Layout             string `yaml:"layout"`
	Hasher             string `yaml:"hasher"`
	StoneVersion       string `yaml:"stone_version"`
	MemoryVerification string `yaml:"memory_verification"`
	RunVerifier        bool   `yaml:"run_verifier"`
	KeepTempFiles      bool   `yaml:"keep_temp_files"`
}

// Load reads configuration from the YAML file at path (optional; pass ""
// for environment-only operation) and applies environment overrides.
//
// SECURITY: secrets are never read from the file. The environment supplies
// DATABASE_URL, ETH_PRIVATE_KEY, STARKNET_PRIVATE_KEY and the RPC URLs named
// by the *_env options.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Ethereum.RPCURL = getEnv(cfg.Ethereum.RPCURLEnv, "")
	cfg.Ethereum.PrivateKey = getEnv("ETH_PRIVATE_KEY", "")
	cfg.Starknet.RPCURL = getEnv(cfg.Starknet.RPCURLEnv, "")
	cfg.Starknet.PrivateKey = getEnv("STARKNET_PRIVATE_KEY", "")
	cfg.Herodotus.APIKey = getEnv(cfg.Herodotus.APIKeyEnv, "")

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Ethereum: EthereumConfig{
			ChainID:       getEnvInt64("ETH_CHAIN_ID", 11155111),
			Confirmations: 6,
			RPCURLEnv:     "ETHEREUM_RPC_URL",
		},
		Starknet: StarknetConfig{
			ChainID:              "SN_MAIN",
			MaxRetries:           5,
			RetryDelayMS:         5000,
			TransactionTimeoutMS: 300000,
			RPCURLEnv:            "STARKNET_RPC_URL",
		},
		Relayer: RelayerConfig{
			MaxRetries:        3,
			RetryDelaySeconds: 30,
			GasLimit:          500000,
		},
		Queue: QueueConfig{
			ProcessIntervalSec:        30,
			WaitTimeSeconds:           10,
			MaxRetries:                5,
			InitialRetryDelaySec:      1,
			RetryDelaySeconds:         30,
			MerkleUpdateConfirmations: 1,
		},
		Merkle: MerkleConfig{
			TreeDepth: 32,
			CacheSize: 1024,
		},
		Oracle: OracleConfig{
			TolerancePercent:       0.01,
			PollingIntervalSeconds: 60,
		},
		Herodotus: HerodotusConfig{
			APIKeyEnv: "HERODOTUS_API_KEY",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			MaxIdleTime: 300,
			MaxLifetime: 3600,
		},
		Prover: ProverConfig{
			ProverParams:       "prover_params.json",
			ProverConfig:       "prover_config.json",
			Layout:             "recursive_with_poseidon",
			Hasher:             "keccak_160_lsb",
			StoneVersion:       "stone6",
			MemoryVerification: "false",
			RunVerifier:        true,
		},
	}
}

// Validate checks that every required option is present. Called after
// Load(); a failure refuses startup.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Contracts.L1ContractAddress == "" {
		missing = append(missing, "contracts.l1_contract_address")
	}
	if c.Contracts.L2ContractAddress == "" {
		missing = append(missing, "contracts.l2_contract_address")
	}
	if c.Ethereum.RPCURL == "" {
		missing = append(missing, c.Ethereum.RPCURLEnv)
	}
	if c.Starknet.RPCURL == "" {
		missing = append(missing, c.Starknet.RPCURLEnv)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}

	if c.Queue.MaxRetries <= 0 {
		return fmt.Errorf("queue.max_retries must be positive")
	}
	if c.Queue.ProcessIntervalSec <= 0 {
		return fmt.Errorf("queue.process_interval_sec must be positive")
	}

	return nil
}

// getEnv returns the value of an environment variable or a default
func getEnv(key, defaultValue string) string {
	if key == "" {
		return defaultValue
	}
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	configSubdir   = "config"
	configFileName = "dropline_config.json"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Validate addresses when present; whether they are set at all is the
	// start command's concern
	if cfg.DistributorAddress != "" && !ethcommon.IsHexAddress(cfg.DistributorAddress) {
		return fmt.Errorf("distributor address %q is not a valid hex address", cfg.DistributorAddress)
	}
	for _, creator := range cfg.CampaignCreators {
		if !ethcommon.IsHexAddress(creator) {
			return fmt.Errorf("campaign creator %q is not a valid hex address", creator)
		}
	}

	// Validate executor mode
	if cfg.ExecutorMode == "" {
		cfg.ExecutorMode = ExecutorModeSim
	}
	if cfg.ExecutorMode != ExecutorModeSim && cfg.ExecutorMode != ExecutorModeWebhook {
		return fmt.Errorf("executor mode must be 'sim' or 'webhook'")
	}
	if cfg.ExecutorMode == ExecutorModeWebhook && cfg.ExecutorURL == "" {
		return fmt.Errorf("executor url is required in webhook mode")
	}

	// Set defaults for the API server
	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}

	// Set defaults for the executor
	if cfg.ExecutorTimeoutSeconds == 0 {
		cfg.ExecutorTimeoutSeconds = 10
	}

	// Set defaults for dispatch retries
	if cfg.RetryIntervalSeconds == 0 {
		cfg.RetryIntervalSeconds = 30
	}
	if cfg.RetryBaseBackoffSeconds == 0 {
		cfg.RetryBaseBackoffSeconds = 10
	}
	if cfg.RetryMaxBackoffSeconds == 0 {
		cfg.RetryMaxBackoffSeconds = 600
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 10
	}
	if cfg.RetryBatchSize == 0 {
		cfg.RetryBatchSize = 50
	}

	// Set defaults for receipt cleanup
	if cfg.ReceiptCleanupIntervalSeconds == 0 {
		cfg.ReceiptCleanupIntervalSeconds = 3600
	}
	if cfg.ReceiptRetentionPeriodSeconds == 0 {
		cfg.ReceiptRetentionPeriodSeconds = 86400
	}

	return nil
}

// Save writes the given config to <basePath>/config/dropline_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, configFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads and returns the config from <basePath>/config/dropline_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, configSubdir, configFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return &cfg, nil
}

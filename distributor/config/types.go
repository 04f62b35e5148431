package config

import (
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ExecutorMode selects which settlement backend the node dispatches to
type ExecutorMode string

const (
	// ExecutorModeSim is the in-process simulated executor (no external calls)
	ExecutorModeSim ExecutorMode = "sim"

	// ExecutorModeWebhook posts action batches to an external executor endpoint
	ExecutorModeWebhook ExecutorMode = "webhook"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.dropline)

	// Distributor identity
	DistributorAddress string   `json:"distributor_address"` // Address this node signs execution ids with (0x hex)
	CampaignCreators   []string `json:"campaign_creators"`   // Addresses allowed to create and manage campaigns

	// API Server Config
	APIPort int `json:"api_port"` // Port for the HTTP API server (default: 8080)

	// Executor Config
	ExecutorMode           ExecutorMode `json:"executor_mode"`            // Settlement backend, "sim" or "webhook" (default: sim)
	ExecutorURL            string       `json:"executor_url"`             // Webhook executor endpoint (required in webhook mode)
	ExecutorTimeoutSeconds int          `json:"executor_timeout_seconds"` // Per-dispatch HTTP timeout in seconds (default: 10)

	// Dispatch Retry Config
	RetryIntervalSeconds    int    `json:"retry_interval_seconds"`     // How often the retry sweep runs (default: 30)
	RetryBaseBackoffSeconds int    `json:"retry_base_backoff_seconds"` // Backoff before the first redispatch (default: 10)
	RetryMaxBackoffSeconds  int    `json:"retry_max_backoff_seconds"`  // Backoff ceiling per receipt (default: 600)
	RetryMaxAttempts        uint64 `json:"retry_max_attempts"`         // Attempts before a receipt is left to operators (default: 10)
	RetryBatchSize          int    `json:"retry_batch_size"`           // Max receipts redispatched per sweep (default: 50)

	// Receipt Cleanup Config
	ReceiptCleanupIntervalSeconds int `json:"receipt_cleanup_interval_seconds"` // How often executed receipts are pruned (default: 3600)
	ReceiptRetentionPeriodSeconds int `json:"receipt_retention_period_seconds"` // How long executed receipts are kept (default: 86400)

	// External Chain Read Config
	ChainRPCURLs []string `json:"chain_rpc_urls"` // Ethereum JSON-RPC endpoints for delegated eligibility reads
	ChainID      int64    `json:"chain_id"`       // Expected chain id for the endpoints above
}

// Distributor returns the configured node identity as an address.
func (c *Config) Distributor() (ethcommon.Address, error) {
	if c.DistributorAddress == "" {
		return ethcommon.Address{}, fmt.Errorf("distributor_address is not set")
	}
	if !ethcommon.IsHexAddress(c.DistributorAddress) {
		return ethcommon.Address{}, fmt.Errorf("distributor_address %q is not a valid hex address", c.DistributorAddress)
	}
	return ethcommon.HexToAddress(c.DistributorAddress), nil
}

// Creators returns the campaign creator allowlist as addresses.
func (c *Config) Creators() []ethcommon.Address {
	creators := make([]ethcommon.Address, 0, len(c.CampaignCreators))
	for _, creator := range c.CampaignCreators {
		creators = append(creators, ethcommon.HexToAddress(creator))
	}
	return creators
}

// ExecutorTimeout returns the per-dispatch timeout for the webhook executor.
func (c *Config) ExecutorTimeout() time.Duration {
	return time.Duration(c.ExecutorTimeoutSeconds) * time.Second
}

// DispatchRetrySettings returns the retry sweep schedule as durations.
func (c *Config) DispatchRetrySettings() (interval, baseBackoff, maxBackoff time.Duration) {
	return time.Duration(c.RetryIntervalSeconds) * time.Second,
		time.Duration(c.RetryBaseBackoffSeconds) * time.Second,
		time.Duration(c.RetryMaxBackoffSeconds) * time.Second
}

// ReceiptCleanupSettings returns the cleanup cadence and retention window.
func (c *Config) ReceiptCleanupSettings() (cleanupInterval, retentionPeriod time.Duration) {
	return time.Duration(c.ReceiptCleanupIntervalSeconds) * time.Second,
		time.Duration(c.ReceiptRetentionPeriodSeconds) * time.Second
}

// ChainReadEnabled reports whether delegated eligibility reads have endpoints
// to run against.
func (c *Config) ChainReadEnabled() bool {
	return len(c.ChainRPCURLs) > 0
}

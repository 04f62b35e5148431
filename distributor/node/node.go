// Package node assembles the distributor into one process: storage, kind
// registry, engine, executor dispatch, periodic jobs and the HTTP API.
package node

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/api"
	"github.com/dropline-network/dropline-node/distributor/authz"
	"github.com/dropline-network/dropline-node/distributor/chainread"
	"github.com/dropline-network/dropline-node/distributor/config"
	"github.com/dropline-network/dropline-node/distributor/constant"
	"github.com/dropline-network/dropline-node/distributor/core"
	"github.com/dropline-network/dropline-node/distributor/cron"
	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/encoder"
	"github.com/dropline-network/dropline-node/distributor/executor"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/strategy"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// Node wires the distributor components together and owns their lifecycle.
type Node struct {
	ctx context.Context
	log zerolog.Logger
	cfg *config.Config

	database    *db.DB
	registry    *registry.Registry
	engine      *core.Engine
	dispatcher  *executor.Dispatcher
	apiServer   *api.Server
	retrier     *cron.DispatchRetrier
	cleaner     *cron.ReceiptCleaner
	chainReader *chainread.RPCCaller // nil unless chain reads are configured
}

// NewNode builds every component from the config. Nothing is started yet;
// Start brings the node up and blocks until the context is cancelled.
func NewNode(ctx context.Context, cfg *config.Config, basePath string, log zerolog.Logger) (*Node, error) {
	identity, err := cfg.Distributor()
	if err != nil {
		return nil, err
	}

	database, err := db.OpenFileDB(filepath.Join(basePath, constant.DatabasesSubdir), constant.DatabaseFileName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	reg := registry.New(database, log)

	// The sim backend doubles as the external reader so delegated
	// eligibility checks work out of the box in local setups.
	var backend types.Executor
	var reader types.ExternalReader
	switch cfg.ExecutorMode {
	case config.ExecutorModeWebhook:
		backend = executor.NewWebhookExecutor(cfg.ExecutorURL, cfg.ExecutorTimeout(), log)
	default:
		sim := executor.NewSimExecutor(log)
		backend = sim
		reader = sim
	}

	var chainReader *chainread.RPCCaller
	if cfg.ChainReadEnabled() {
		chainReader, err = chainread.NewRPCCaller(cfg.ChainRPCURLs, cfg.ChainID, log)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to set up chain reader: %w", err)
		}
		reader = chainReader
	}

	dispatcher := executor.NewDispatcher(backend, database, log)

	checker := authz.NewChecker(log)
	checker.GrantAll(authz.CapabilityCampaignCreator, cfg.Creators())

	engine := core.NewEngine(identity, reg, database, dispatcher, checker, log)

	if err := strategy.RegisterBuiltins(reg, strategy.Deps{
		DB:     database,
		Claims: engine.Ledger(),
		Reader: reader,
		Logger: log,
	}, identity); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to register allocator kinds: %w", err)
	}
	if err := encoder.RegisterBuiltins(reg, encoder.Deps{
		DB:     database,
		Logger: log,
	}, identity); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to register payout kinds: %w", err)
	}

	interval, baseBackoff, maxBackoff := cfg.DispatchRetrySettings()
	retrier := cron.NewDispatchRetrier(dispatcher, cron.RetryPolicy{
		Interval:    interval,
		BaseBackoff: baseBackoff,
		MaxBackoff:  maxBackoff,
		MaxAttempts: cfg.RetryMaxAttempts,
		BatchSize:   cfg.RetryBatchSize,
	}, log)

	cleanupInterval, retentionPeriod := cfg.ReceiptCleanupSettings()
	cleaner := cron.NewReceiptCleaner(database, cleanupInterval, retentionPeriod, log)

	apiServer := api.NewServer(engine, engine.Ledger(), dispatcher.Receipts(), log, cfg.APIPort)

	// Rebuild live strategy and encoder instances from their persisted
	// deployments. A constructed node always has its instances live, for
	// the daemon loop and for one-shot CLI operations alike.
	if err := reg.Restore(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to restore registry instances: %w", err)
	}

	return &Node{
		ctx:         ctx,
		log:         log,
		cfg:         cfg,
		database:    database,
		registry:    reg,
		engine:      engine,
		dispatcher:  dispatcher,
		apiServer:   apiServer,
		retrier:     retrier,
		cleaner:     cleaner,
		chainReader: chainReader,
	}, nil
}

// Engine exposes the campaign engine, mainly for the CLI commands that run
// in-process.
func (n *Node) Engine() *core.Engine {
	return n.engine
}

// Start brings every component up and blocks until the context is
// cancelled, then shuts them down in reverse order.
func (n *Node) Start() error {
	n.log.Info().Msg("🚀 Starting distributor node...")

	if err := n.retrier.Start(n.ctx); err != nil {
		return fmt.Errorf("failed to start dispatch retrier: %w", err)
	}
	if err := n.cleaner.Start(n.ctx); err != nil {
		return fmt.Errorf("failed to start receipt cleaner: %w", err)
	}
	if err := n.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}

	n.log.Info().
		Str("distributor", n.engine.Identity().Hex()).
		Int("api_port", n.cfg.APIPort).
		Str("executor_mode", string(n.cfg.ExecutorMode)).
		Msg("✅ Initialization complete. Entering main loop...")

	<-n.ctx.Done()

	n.log.Info().Msg("🛑 Shutting down distributor node...")

	if err := n.apiServer.Stop(); err != nil {
		n.log.Error().Err(err).Msg("failed to stop api server")
	}
	n.retrier.Stop()
	n.cleaner.Stop()
	if n.chainReader != nil {
		n.chainReader.Close()
	}
	return n.database.Close()
}

// Close releases the node's resources without entering the main loop. One-shot
// CLI operations use it in place of Start.
func (n *Node) Close() error {
	if n.chainReader != nil {
		n.chainReader.Close()
	}
	return n.database.Close()
}

// Package chainread provides read-only access to external contracts over
// JSON-RPC. The call-delegation allocator uses it as its eligibility and
// amount oracle; everything it exposes is a static call, no transaction is
// ever sent.
package chainread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// RPCCaller performs static calls with round-robin failover across a pool of
// RPC endpoints.
type RPCCaller struct {
	clients []*ethclient.Client
	index   uint64
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewRPCCaller connects to the given RPC URLs and validates their chain ID.
// Endpoints that fail to connect or report the wrong chain are skipped; at
// least one usable endpoint is required.
func NewRPCCaller(rpcURLs []string, expectedChainID int64, logger zerolog.Logger) (*RPCCaller, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	log := logger.With().Str("component", "chainread").Logger()
	clients := make([]*ethclient.Client, 0, len(rpcURLs))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, url := range rpcURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}

		clientChainID, err := client.ChainID(ctx)
		if err != nil {
			// Verification being slow or unavailable is not fatal, keep the
			// endpoint and let real calls decide.
			log.Warn().
				Err(err).
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Msg("failed to verify chain ID, proceeding with client anyway")
			clients = append(clients, client)
			continue
		}

		if clientChainID.Int64() != expectedChainID {
			client.Close()
			log.Warn().
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Int64("actual_chain_id", clientChainID.Int64()).
				Msg("chain ID mismatch, closing client")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("failed to connect to any valid RPC endpoints")
	}

	return &RPCCaller{
		clients: clients,
		logger:  log,
	}, nil
}

// executeWithFailover executes a function with round-robin failover
func (rc *RPCCaller) executeWithFailover(ctx context.Context, operation string, fn func(*ethclient.Client) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no RPC clients available for %s", operation)
	}

	maxAttempts := len(clients)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := fn(client)
		if err == nil {
			return nil
		}

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return fmt.Errorf("operation %s failed after trying %d endpoints", operation, maxAttempts)
}

// Call performs a static call of data against target at the latest block.
func (rc *RPCCaller) Call(ctx context.Context, target ethcommon.Address, data []byte) ([]byte, error) {
	var out []byte
	err := rc.executeWithFailover(ctx, "static_call", func(client *ethclient.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var innerErr error
		out, innerErr = client.CallContract(callCtx, ethereum.CallMsg{
			To:   &target,
			Data: data,
		}, nil)
		return innerErr
	})
	return out, err
}

// LatestBlock returns the latest block number.
func (rc *RPCCaller) LatestBlock(ctx context.Context) (uint64, error) {
	var blockNum uint64
	err := rc.executeWithFailover(ctx, "get_block_number", func(client *ethclient.Client) error {
		var innerErr error
		blockNum, innerErr = client.BlockNumber(ctx)
		return innerErr
	})
	return blockNum, err
}

// IsHealthy checks if any RPC in the pool responds.
func (rc *RPCCaller) IsHealthy(ctx context.Context) bool {
	rc.mu.RLock()
	hasClients := len(rc.clients) > 0
	rc.mu.RUnlock()

	if !hasClients {
		return false
	}

	_, err := rc.LatestBlock(ctx)
	return err == nil
}

// Close closes all RPC connections.
func (rc *RPCCaller) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, client := range rc.clients {
		if client != nil {
			client.Close()
		}
	}
	rc.clients = nil
}

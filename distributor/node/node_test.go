package node

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropline-network/dropline-node/distributor/config"
	"github.com/dropline-network/dropline-node/distributor/core"
	"github.com/dropline-network/dropline-node/distributor/strategy"
	"github.com/dropline-network/dropline-node/distributor/types"
)

var (
	nodeDistributor = ethcommon.HexToAddress("0x000000000000000000000000000000000000dddd")
	nodeCreator     = ethcommon.HexToAddress("0x0000000000000000000000000000000000c0FFee")
	nodeToken       = ethcommon.HexToAddress("0x00000000000000000000000000000000000070C3")
	nodeAlice       = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11CE")
)

func testConfig(t *testing.T, apiPort int) *config.Config {
	t.Helper()

	cfg, err := config.LoadDefaultConfig()
	require.NoError(t, err)

	cfg.DistributorAddress = nodeDistributor.Hex()
	cfg.CampaignCreators = []string{nodeCreator.Hex()}
	cfg.APIPort = apiPort
	return cfg
}

func TestNewNode(t *testing.T) {
	t.Run("builds every component", func(t *testing.T) {
		cfg := testConfig(t, 18090)

		n, err := NewNode(context.Background(), cfg, t.TempDir(), zerolog.Nop())
		require.NoError(t, err)
		defer n.Close()

		assert.NotNil(t, n.database)
		assert.NotNil(t, n.registry)
		assert.NotNil(t, n.engine)
		assert.NotNil(t, n.dispatcher)
		assert.NotNil(t, n.apiServer)
		assert.NotNil(t, n.retrier)
		assert.NotNil(t, n.cleaner)
		assert.Nil(t, n.chainReader)
		assert.Equal(t, nodeDistributor, n.Engine().Identity())
	})

	t.Run("rejects a missing distributor address", func(t *testing.T) {
		cfg := testConfig(t, 18090)
		cfg.DistributorAddress = ""

		_, err := NewNode(context.Background(), cfg, t.TempDir(), zerolog.Nop())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "distributor_address is not set")
	})

	t.Run("campaigns work on a constructed node without Start", func(t *testing.T) {
		cfg := testConfig(t, 18091)
		home := t.TempDir()

		n, err := NewNode(context.Background(), cfg, home, zerolog.Nop())
		require.NoError(t, err)

		aux, err := strategy.EncodeOpenSetup(big.NewInt(25))
		require.NoError(t, err)

		id, err := n.Engine().CreateCampaign(context.Background(), nodeCreator, core.CampaignParams{
			Token: nodeToken,
			Strategy: core.InstanceBinding{
				Kind: types.KindIDFromString(types.KindAllocatorOpen),
				Aux:  aux,
			},
		})
		require.NoError(t, err)
		require.NoError(t, n.Close())

		// A fresh node over the same home restores the deployed strategy
		// instance, so the persisted campaign stays claimable.
		n, err = NewNode(context.Background(), cfg, home, zerolog.Nop())
		require.NoError(t, err)
		defer n.Close()

		amount, err := n.Engine().GetCampaignPayout(context.Background(), id, nodeAlice, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(25), amount.Int64())
	})
}

func TestNodeLifecycle(t *testing.T) {
	cfg := testConfig(t, 18092)

	ctx, cancel := context.WithCancel(context.Background())
	n, err := NewNode(ctx, cfg, t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- n.Start()
	}()

	healthURL := fmt.Sprintf("http://localhost:%d/health", cfg.APIPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "api server never became healthy")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not shut down after context cancellation")
	}
}

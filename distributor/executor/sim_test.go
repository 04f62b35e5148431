package executor

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropline-network/dropline-node/distributor/types"
)

var (
	simToken    = ethcommon.HexToAddress("0x70c3")
	simVault    = ethcommon.HexToAddress("0x4a017")
	simStreamer = ethcommon.HexToAddress("0x57e4")
	simAlice    = ethcommon.HexToAddress("0xa11ce")
)

func simCallData(selector []byte, words ...[]byte) []byte {
	data := append([]byte{}, selector...)
	for _, word := range words {
		data = append(data, word...)
	}
	return data
}

func addrWord(addr ethcommon.Address) []byte {
	return ethcommon.LeftPadBytes(addr.Bytes(), 32)
}

func intWord(value int64) []byte {
	word := make([]byte, 32)
	big.NewInt(value).FillBytes(word)
	return word
}

func execID(campaignID uint64) types.ExecutionID {
	return types.NewExecutionID(testDistributor, campaignID)
}

func TestSimExecutorTransfer(t *testing.T) {
	ctx := context.Background()
	sim := NewSimExecutor(zerolog.Nop())
	sim.Fund(simToken, big.NewInt(100))

	transfer := types.NewAction(simToken, simCallData(simTransferSelector, addrWord(simAlice), intWord(60)))
	require.NoError(t, sim.Execute(ctx, execID(1), []types.Action{transfer}))

	assert.Equal(t, big.NewInt(60), sim.BalanceOf(simToken, simAlice))
	assert.Equal(t, big.NewInt(40), sim.TreasuryBalance(simToken))
	assert.Equal(t, 1, sim.Executions())

	t.Run("insufficient treasury fails without effects", func(t *testing.T) {
		tooBig := types.NewAction(simToken, simCallData(simTransferSelector, addrWord(simAlice), intWord(50)))
		err := sim.Execute(ctx, execID(1), []types.Action{tooBig})
		require.ErrorContains(t, err, "insufficient treasury balance")

		assert.Equal(t, big.NewInt(60), sim.BalanceOf(simToken, simAlice))
		assert.Equal(t, big.NewInt(40), sim.TreasuryBalance(simToken))
		assert.Equal(t, 1, sim.Executions())
	})
}

func TestSimExecutorVaultDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("approve then deposit credits shares", func(t *testing.T) {
		sim := NewSimExecutor(zerolog.Nop())
		sim.Fund(simToken, big.NewInt(100))
		sim.RegisterVault(simVault, simToken)

		actions := []types.Action{
			types.NewAction(simToken, simCallData(simApproveSelector, addrWord(simVault), intWord(80))),
			types.NewAction(simVault, simCallData(simDepositSelector, intWord(80), addrWord(simAlice))),
		}
		require.NoError(t, sim.Execute(ctx, execID(2), actions))

		assert.Equal(t, big.NewInt(80), sim.SharesOf(simVault, simAlice))
		assert.Equal(t, big.NewInt(80), sim.BalanceOf(simToken, simVault))
		assert.Equal(t, big.NewInt(20), sim.TreasuryBalance(simToken))
		assert.Zero(t, sim.AllowanceOf(simToken, simVault).Sign())
	})

	t.Run("deposit without approval rolls back the whole list", func(t *testing.T) {
		sim := NewSimExecutor(zerolog.Nop())
		sim.Fund(simToken, big.NewInt(100))
		sim.RegisterVault(simVault, simToken)

		actions := []types.Action{
			types.NewAction(simToken, simCallData(simApproveSelector, addrWord(simVault), intWord(10))),
			types.NewAction(simVault, simCallData(simDepositSelector, intWord(80), addrWord(simAlice))),
		}
		err := sim.Execute(ctx, execID(2), actions)
		require.ErrorContains(t, err, "insufficient allowance")

		// The approve from the same list must not survive the failure.
		assert.Zero(t, sim.AllowanceOf(simToken, simVault).Sign())
		assert.Equal(t, big.NewInt(100), sim.TreasuryBalance(simToken))
		assert.Zero(t, sim.SharesOf(simVault, simAlice).Sign())
	})

	t.Run("unregistered vault rejected", func(t *testing.T) {
		sim := NewSimExecutor(zerolog.Nop())
		sim.Fund(simToken, big.NewInt(100))

		deposit := types.NewAction(simVault, simCallData(simDepositSelector, intWord(10), addrWord(simAlice)))
		err := sim.Execute(ctx, execID(2), []types.Action{deposit})
		require.ErrorContains(t, err, "not a registered vault")
	})
}

func TestSimExecutorStream(t *testing.T) {
	ctx := context.Background()
	sim := NewSimExecutor(zerolog.Nop())
	sim.Fund(simToken, big.NewInt(100))
	sim.RegisterStreamer(simStreamer)

	sender := ethcommon.HexToAddress("0xA0A0")
	create := simCallData(simStreamSelector,
		addrWord(sender),
		addrWord(simAlice),
		intWord(70),
		addrWord(simToken),
		intWord(0), // cancelable
		intWord(0), // transferable
		intWord(600),
		intWord(3600),
		addrWord(ethcommon.Address{}),
		intWord(0),
	)
	actions := []types.Action{
		types.NewAction(simToken, simCallData(simApproveSelector, addrWord(simStreamer), intWord(70))),
		types.NewAction(simStreamer, create),
	}
	require.NoError(t, sim.Execute(ctx, execID(3), actions))

	streams := sim.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, simStreamer, streams[0].Streamer)
	assert.Equal(t, sender, streams[0].Sender)
	assert.Equal(t, simAlice, streams[0].Recipient)
	assert.Equal(t, simToken, streams[0].Asset)
	assert.Equal(t, big.NewInt(70), streams[0].Amount)
	assert.Equal(t, uint64(600), streams[0].Cliff)
	assert.Equal(t, uint64(3600), streams[0].Duration)
	assert.Equal(t, big.NewInt(30), sim.TreasuryBalance(simToken))
}

func TestSimExecutorFailureInjection(t *testing.T) {
	ctx := context.Background()
	sim := NewSimExecutor(zerolog.Nop())
	sim.Fund(simToken, big.NewInt(100))

	transfer := types.NewAction(simToken, simCallData(simTransferSelector, addrWord(simAlice), intWord(10)))

	sim.SetFailure(assert.AnError)
	require.ErrorIs(t, sim.Execute(ctx, execID(4), []types.Action{transfer}), assert.AnError)
	assert.Zero(t, sim.Executions())

	sim.ClearFailure()
	require.NoError(t, sim.Execute(ctx, execID(4), []types.Action{transfer}))
	assert.Equal(t, 1, sim.Executions())
}

func TestSimExecutorRejectsUnknownCalls(t *testing.T) {
	ctx := context.Background()
	sim := NewSimExecutor(zerolog.Nop())

	err := sim.Execute(ctx, execID(5), nil)
	require.ErrorContains(t, err, "empty action list")

	short := types.NewAction(simToken, []byte{0x01})
	err = sim.Execute(ctx, execID(5), []types.Action{short})
	require.ErrorContains(t, err, "calldata too short")

	unknown := types.NewAction(simToken, simCallData([]byte{0xde, 0xad, 0xbe, 0xef}, intWord(1)))
	err = sim.Execute(ctx, execID(5), []types.Action{unknown})
	require.ErrorContains(t, err, "unsupported selector")
}

func TestSimExecutorReads(t *testing.T) {
	ctx := context.Background()
	sim := NewSimExecutor(zerolog.Nop())

	oracle := ethcommon.HexToAddress("0x04ac1e")
	selector := [4]byte{0x01, 0x02, 0x03, 0x04}
	sim.RespondRead(oracle, selector, intWord(42))

	out, err := sim.Call(ctx, oracle, simCallData(selector[:], addrWord(simAlice)))
	require.NoError(t, err)
	assert.Equal(t, intWord(42), out)

	_, err = sim.Call(ctx, simAlice, simCallData(selector[:], addrWord(simAlice)))
	require.ErrorContains(t, err, "no read registered")
}

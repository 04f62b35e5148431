package encoder

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
)

var testVault = ethcommon.HexToAddress("0x4a017")

func newVaultEncoder(t *testing.T, deps Deps) *VaultEncoder {
	t.Helper()
	instance, err := NewVaultBuilder(deps)(
		ethcommon.HexToAddress("0xe4c0"),
		ethcommon.HexToAddress("0xA0A0"),
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, instance.Initialize(context.Background()))
	return instance.(*VaultEncoder)
}

func vaultAux(t *testing.T, vault ethcommon.Address) []byte {
	t.Helper()
	aux, err := EncodeVaultSetup(vault)
	require.NoError(t, err)
	return aux
}

func TestVaultEncoderSetup(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")

	t.Run("setup is set-once per owner and campaign", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)
		require.NoError(t, enc.SetupCampaign(ctx, owner, 1, vaultAux(t, testVault)))

		err := enc.SetupCampaign(ctx, owner, 1, vaultAux(t, testVault))
		require.ErrorIs(t, err, disterrors.ErrCampaignAlreadyExists)

		// Same campaign id under a different owner is a distinct key.
		other := ethcommon.HexToAddress("0xd15c1")
		require.NoError(t, enc.SetupCampaign(ctx, other, 1, vaultAux(t, testVault)))
	})

	t.Run("zero vault rejected", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)

		err := enc.SetupCampaign(ctx, owner, 1, vaultAux(t, ethcommon.Address{}))
		require.ErrorIs(t, err, disterrors.ErrZeroAddress)
	})

	t.Run("malformed aux rejected", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)

		err := enc.SetupCampaign(ctx, owner, 1, []byte{0x01, 0x02})
		require.ErrorIs(t, err, disterrors.ErrInvalidAuxData)
	})
}

func TestVaultEncoderActions(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")

	t.Run("builds approve then deposit", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)
		require.NoError(t, enc.SetupCampaign(ctx, owner, 1, vaultAux(t, testVault)))

		actions, err := enc.BuildActions(ctx, owner, 1, testToken, testRecipient, sdkmath.NewInt(500))
		require.NoError(t, err)
		require.Len(t, actions, 2)

		approve := actions[0]
		assert.Equal(t, testToken, approve.Target)
		assert.Equal(t, approveSelector, approve.Payload[:4])
		spender, amount := decodeAddressAmount(t, approve.Payload)
		assert.Equal(t, testVault, spender)
		assert.Equal(t, big.NewInt(500), amount)

		deposit := actions[1]
		assert.Equal(t, testVault, deposit.Target)
		assert.Equal(t, depositSelector, deposit.Payload[:4])
		assets, receiver := decodeAmountAddress(t, deposit.Payload)
		assert.Equal(t, big.NewInt(500), assets)
		assert.Equal(t, testRecipient, receiver)
	})

	t.Run("unconfigured campaign fails", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)

		_, err := enc.BuildActions(ctx, owner, 9, testToken, testRecipient, sdkmath.NewInt(500))
		require.ErrorIs(t, err, disterrors.ErrConfigNotSet)
	})

	t.Run("zero amount fails", func(t *testing.T) {
		deps := setupDeps(t)
		enc := newVaultEncoder(t, deps)
		require.NoError(t, enc.SetupCampaign(ctx, owner, 1, vaultAux(t, testVault)))

		_, err := enc.BuildActions(ctx, owner, 1, testToken, testRecipient, sdkmath.ZeroInt())
		require.ErrorIs(t, err, disterrors.ErrAmountZero)
	})
}

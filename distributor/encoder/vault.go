package encoder

import (
	"context"

	sdkerrors "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// VaultEncoder routes payouts into an ERC-4626 vault. Instead of handing
// tokens to the recipient directly, the action list approves the configured
// vault and deposits on the recipient's behalf, so the recipient ends up
// holding vault shares.
type VaultEncoder struct {
	self      ethcommon.Address
	authority ethcommon.Address
	store     *PayoutStore
	logger    zerolog.Logger
}

// NewVaultBuilder returns the registry builder for the vault encoder kind.
func NewVaultBuilder(deps Deps) registry.Builder {
	return func(self, authority ethcommon.Address, initParams []byte) (registry.Instance, error) {
		return &VaultEncoder{
			self:      self,
			authority: authority,
			store:     NewPayoutStore(deps.DB),
			logger: deps.Logger.With().
				Str("component", "vault_encoder").
				Str("instance", self.Hex()).
				Logger(),
		}, nil
	}
}

// Initialize implements registry.Instance.
func (v *VaultEncoder) Initialize(_ context.Context) error {
	v.logger.Info().Str("authority", v.authority.Hex()).Msg("vault encoder initialized")
	return nil
}

// SetupCampaign stores the campaign's destination vault. Aux data is
// ABI-encoded (address vault).
func (v *VaultEncoder) SetupCampaign(_ context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error {
	vault, err := decodeVaultSetup(aux)
	if err != nil {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}
	if vault == (ethcommon.Address{}) {
		return sdkerrors.Wrap(disterrors.ErrZeroAddress, "vault address is required")
	}

	inserted, err := v.store.InsertConfigIfNotExists(&store.PayoutConfig{
		Instance:   v.self.Hex(),
		Owner:      owner.Hex(),
		CampaignID: campaignID,
		KindID:     types.KindIDFromString(types.KindEncoderVault).Hex(),
		Aux:        aux,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return sdkerrors.Wrapf(disterrors.ErrCampaignAlreadyExists, "campaign %d already configured for owner %s", campaignID, owner.Hex())
	}

	v.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("vault", vault.Hex()).
		Msg("payout campaign configured")

	return nil
}

// BuildActions builds the two-step vault payout: approve the vault for
// amount, then deposit(amount, recipient).
func (v *VaultEncoder) BuildActions(_ context.Context, owner ethcommon.Address, campaignID uint64, token, recipient ethcommon.Address, amount sdkmath.Int) ([]types.Action, error) {
	if !amount.IsPositive() {
		return nil, sdkerrors.Wrapf(disterrors.ErrAmountZero, "campaign %d", campaignID)
	}

	config, found, err := v.store.GetConfig(v.self.Hex(), owner.Hex(), campaignID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sdkerrors.Wrapf(disterrors.ErrConfigNotSet, "campaign %d has no vault configured", campaignID)
	}

	vault, err := decodeVaultSetup(config.Aux)
	if err != nil {
		return nil, sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "stored vault setup corrupt: %s", err)
	}

	approveData, err := erc20ApproveData(vault, amount.BigInt())
	if err != nil {
		return nil, err
	}
	depositData, err := vaultDepositData(amount.BigInt(), recipient)
	if err != nil {
		return nil, err
	}

	return []types.Action{
		types.NewAction(token, approveData),
		types.NewAction(vault, depositData),
	}, nil
}

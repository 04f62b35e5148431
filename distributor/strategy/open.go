package strategy

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

// OpenAllocator treats every account as eligible for a fixed per-campaign
// amount. Claim policy enforcement is left entirely to the ledger, which
// makes this the simplest allocator and the usual choice for tests and
// flat-rate drops.
type OpenAllocator struct {
	self      ethcommon.Address
	authority ethcommon.Address
	store     *AllocationStore
	logger    zerolog.Logger
}

// NewOpenBuilder returns the registry builder for the open allocator kind.
func NewOpenBuilder(deps Deps) registry.Builder {
	return func(self, authority ethcommon.Address, initParams []byte) (registry.Instance, error) {
		return &OpenAllocator{
			self:      self,
			authority: authority,
			store:     NewAllocationStore(deps.DB),
			logger: deps.Logger.With().
				Str("component", "open_allocator").
				Str("instance", self.Hex()).
				Logger(),
		}, nil
	}
}

// Initialize implements registry.Instance.
func (o *OpenAllocator) Initialize(_ context.Context) error {
	o.logger.Info().Str("authority", o.authority.Hex()).Msg("open allocator initialized")
	return nil
}

// SetAllocationCampaign stores the campaign's fixed amount. Aux data is
// ABI-encoded (uint256 fixedAmount), which must be positive.
func (o *OpenAllocator) SetAllocationCampaign(_ context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error {
	amount, err := decodeOpenSetup(aux)
	if err != nil {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}
	if amount.Sign() <= 0 {
		return sdkerrors.Wrap(disterrors.ErrAmountZero, "fixed amount must be positive")
	}

	inserted, err := o.store.InsertConfigIfNotExists(&store.AllocationConfig{
		Instance:   o.self.Hex(),
		Owner:      owner.Hex(),
		CampaignID: campaignID,
		KindID:     types.KindIDFromString(types.KindAllocatorOpen).Hex(),
		Aux:        aux,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return sdkerrors.Wrapf(disterrors.ErrCampaignAlreadyExists, "campaign %d already configured for owner %s", campaignID, owner.Hex())
	}

	o.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("fixed_amount", amount.String()).
		Msg("allocation campaign set")

	return nil
}

// GetClaimeableAmount returns the configured fixed amount for every account,
// or zero when the campaign is unknown to this allocator.
func (o *OpenAllocator) GetClaimeableAmount(_ context.Context, owner ethcommon.Address, campaignID uint64, _ ethcommon.Address, _ []byte) (sdkmath.Int, error) {
	config, found, err := o.store.GetConfig(o.self.Hex(), owner.Hex(), campaignID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}

	amount, err := decodeOpenSetup(config.Aux)
	if err != nil {
		return sdkmath.ZeroInt(), sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "stored setup corrupt: %s", err)
	}

	return sdkmath.NewIntFromBigInt(amount), nil
}

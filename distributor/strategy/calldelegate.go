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

// CallDelegateAllocator defers eligibility and amount to external read
// calls. Setup binds two descriptors per (owner, campaign): an eligibility
// read and an amount read, each a (target, selector) pair invoked with the
// claiming account as the sole argument.
type CallDelegateAllocator struct {
	self      ethcommon.Address
	authority ethcommon.Address
	store     *AllocationStore
	claims    types.ClaimReader
	reader    types.ExternalReader
	logger    zerolog.Logger
}

// NewCallDelegateBuilder returns the registry builder for the
// call-delegation allocator kind.
func NewCallDelegateBuilder(deps Deps) registry.Builder {
	return func(self, authority ethcommon.Address, initParams []byte) (registry.Instance, error) {
		return &CallDelegateAllocator{
			self:      self,
			authority: authority,
			store:     NewAllocationStore(deps.DB),
			claims:    deps.Claims,
			reader:    deps.Reader,
			logger: deps.Logger.With().
				Str("component", "calldelegate_allocator").
				Str("instance", self.Hex()).
				Logger(),
		}, nil
	}
}

// Initialize implements registry.Instance.
func (c *CallDelegateAllocator) Initialize(_ context.Context) error {
	c.logger.Info().Str("authority", c.authority.Hex()).Msg("call-delegation allocator initialized")
	return nil
}

// SetAllocationCampaign binds the campaign's call descriptors. Aux data is
// ABI-encoded (address,bytes4,address,bytes4,bool); a zero eligibility
// target means every account is eligible, the amount target is mandatory.
func (c *CallDelegateAllocator) SetAllocationCampaign(_ context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error {
	desc, err := decodeCallDelegateSetup(aux)
	if err != nil {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}
	if desc.AmountTarget == (ethcommon.Address{}) {
		return sdkerrors.Wrap(disterrors.ErrZeroAddress, "amount target is required")
	}

	inserted, err := c.store.InsertConfigIfNotExists(&store.AllocationConfig{
		Instance:       c.self.Hex(),
		Owner:          owner.Hex(),
		CampaignID:     campaignID,
		KindID:         types.KindIDFromString(types.KindAllocatorCallDelegate).Hex(),
		Aux:            aux,
		MultipleClaims: desc.MultipleClaims,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return sdkerrors.Wrapf(disterrors.ErrCampaignAlreadyExists, "campaign %d already configured for owner %s", campaignID, owner.Hex())
	}

	c.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("amount_target", desc.AmountTarget.Hex()).
		Bool("multiple_claims", desc.MultipleClaims).
		Msg("allocation campaign set")

	return nil
}

// GetClaimeableAmount runs the bound reads for the account. An ineligible
// account, an unknown campaign, or a repeat claim under single-claim policy
// yields zero; a failing external call is a hard failure, never a zero.
func (c *CallDelegateAllocator) GetClaimeableAmount(ctx context.Context, owner ethcommon.Address, campaignID uint64, account ethcommon.Address, _ []byte) (sdkmath.Int, error) {
	config, found, err := c.store.GetConfig(c.self.Hex(), owner.Hex(), campaignID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}

	desc, err := decodeCallDelegateSetup(config.Aux)
	if err != nil {
		return sdkmath.ZeroInt(), sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "stored descriptors corrupt: %s", err)
	}

	if desc.EligibilityTarget != (ethcommon.Address{}) {
		eligible, err := c.readEligibility(ctx, desc, account)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !eligible {
			return sdkmath.ZeroInt(), nil
		}
	}

	if !desc.MultipleClaims {
		claimed, err := c.claims.ClaimedAmount(ctx, campaignID, account)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if claimed.IsPositive() {
			return sdkmath.ZeroInt(), nil
		}
	}

	amount, err := c.readAmount(ctx, desc, account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	return amount, nil
}

// readEligibility static-calls the eligibility descriptor. Any nonzero return
// word counts as eligible, so bool and balance style oracles both work.
func (c *CallDelegateAllocator) readEligibility(ctx context.Context, desc CallDescriptors, account ethcommon.Address) (bool, error) {
	data, err := accountCallData(desc.EligibilitySelector, account)
	if err != nil {
		return false, sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}

	out, err := c.reader.Call(ctx, desc.EligibilityTarget, data)
	if err != nil {
		return false, sdkerrors.Wrapf(disterrors.ErrDelegatedCallFailed, "eligibility call to %s: %s", desc.EligibilityTarget.Hex(), err)
	}

	value, err := decodeUint256(out)
	if err != nil {
		return false, sdkerrors.Wrapf(disterrors.ErrDelegatedCallFailed, "eligibility return from %s: %s", desc.EligibilityTarget.Hex(), err)
	}

	return value.Sign() > 0, nil
}

// readAmount static-calls the amount descriptor and decodes a uint256.
func (c *CallDelegateAllocator) readAmount(ctx context.Context, desc CallDescriptors, account ethcommon.Address) (sdkmath.Int, error) {
	data, err := accountCallData(desc.AmountSelector, account)
	if err != nil {
		return sdkmath.ZeroInt(), sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}

	out, err := c.reader.Call(ctx, desc.AmountTarget, data)
	if err != nil {
		return sdkmath.ZeroInt(), sdkerrors.Wrapf(disterrors.ErrDelegatedCallFailed, "amount call to %s: %s", desc.AmountTarget.Hex(), err)
	}

	value, err := decodeUint256(out)
	if err != nil {
		return sdkmath.ZeroInt(), sdkerrors.Wrapf(disterrors.ErrDelegatedCallFailed, "amount return from %s: %s", desc.AmountTarget.Hex(), err)
	}

	return sdkmath.NewIntFromBigInt(value), nil
}

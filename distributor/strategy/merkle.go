package strategy

import (
	"context"

	sdkerrors "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/merkle"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// MerkleAllocator answers claims against a committed allocation table. Each
// (owner, campaign) pair stores one root; a claim supplies the leaf amount
// and the sibling path, and the allocator pays the committed amount exactly
// once per account.
type MerkleAllocator struct {
	self      ethcommon.Address
	authority ethcommon.Address
	store     *AllocationStore
	claims    types.ClaimReader
	logger    zerolog.Logger
}

// NewMerkleBuilder returns the registry builder for the merkle allocator
// kind.
func NewMerkleBuilder(deps Deps) registry.Builder {
	return func(self, authority ethcommon.Address, initParams []byte) (registry.Instance, error) {
		return &MerkleAllocator{
			self:      self,
			authority: authority,
			store:     NewAllocationStore(deps.DB),
			claims:    deps.Claims,
			logger: deps.Logger.With().
				Str("component", "merkle_allocator").
				Str("instance", self.Hex()).
				Logger(),
		}, nil
	}
}

// Initialize implements registry.Instance. The merkle allocator carries no
// deployment-time state beyond its binding.
func (m *MerkleAllocator) Initialize(_ context.Context) error {
	m.logger.Info().Str("authority", m.authority.Hex()).Msg("merkle allocator initialized")
	return nil
}

// SetAllocationCampaign stores the campaign's root. Aux data is the raw
// 32-byte root; the binding is set-once per (owner, campaign).
func (m *MerkleAllocator) SetAllocationCampaign(_ context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error {
	if len(aux) != ethcommon.HashLength {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "merkle root must be %d bytes, got %d", ethcommon.HashLength, len(aux))
	}
	root := ethcommon.BytesToHash(aux)
	if root == (ethcommon.Hash{}) {
		return sdkerrors.Wrap(disterrors.ErrInvalidAuxData, "merkle root cannot be zero")
	}

	inserted, err := m.store.InsertConfigIfNotExists(&store.AllocationConfig{
		Instance:   m.self.Hex(),
		Owner:      owner.Hex(),
		CampaignID: campaignID,
		KindID:     types.KindIDFromString(types.KindAllocatorMerkle).Hex(),
		Root:       root.Hex(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return sdkerrors.Wrapf(disterrors.ErrCampaignAlreadyExists, "campaign %d already configured for owner %s", campaignID, owner.Hex())
	}

	m.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("root", root.Hex()).
		Msg("allocation campaign set")

	return nil
}

// GetClaimeableAmount verifies the claim proof against the stored root and
// returns the committed amount while the account has not claimed it in full.
// Unknown campaigns, malformed aux data, failed proofs and exhausted
// entitlements all return zero.
func (m *MerkleAllocator) GetClaimeableAmount(ctx context.Context, owner ethcommon.Address, campaignID uint64, account ethcommon.Address, aux []byte) (sdkmath.Int, error) {
	config, found, err := m.store.GetConfig(m.self.Hex(), owner.Hex(), campaignID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}

	amount, proof, err := decodeMerkleClaim(aux)
	if err != nil {
		return sdkmath.ZeroInt(), nil
	}
	if amount.Sign() <= 0 {
		return sdkmath.ZeroInt(), nil
	}

	candidate := sdkmath.NewIntFromBigInt(amount)
	leaf := merkle.Leaf(account, candidate)
	if !merkle.Verify(proof, ethcommon.HexToHash(config.Root), leaf) {
		return sdkmath.ZeroInt(), nil
	}

	claimed, err := m.claims.ClaimedAmount(ctx, campaignID, account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if claimed.GTE(candidate) {
		return sdkmath.ZeroInt(), nil
	}

	return candidate, nil
}

// UpdateRoot replaces the stored root for an already configured campaign.
// Separate from SetAllocationCampaign so callers can gate it independently.
func (m *MerkleAllocator) UpdateRoot(_ context.Context, owner ethcommon.Address, campaignID uint64, root ethcommon.Hash) error {
	if root == (ethcommon.Hash{}) {
		return sdkerrors.Wrap(disterrors.ErrInvalidAuxData, "merkle root cannot be zero")
	}

	updated, err := m.store.UpdateRoot(m.self.Hex(), owner.Hex(), campaignID, root.Hex())
	if err != nil {
		return err
	}
	if updated == 0 {
		return sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d not configured for owner %s", campaignID, owner.Hex())
	}

	m.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("root", root.Hex()).
		Msg("allocation root updated")

	return nil
}

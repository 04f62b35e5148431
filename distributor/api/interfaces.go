package api

import (
	"context"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/dropline-network/dropline-node/distributor/store"
)

// EngineInterface defines the campaign operations the API server exposes.
// Campaign creation and deactivation stay off HTTP; they run through the
// CLI where the creator capability is checked against configured keys.
type EngineInterface interface {
	GetCampaign(campaignID uint64) (*store.Campaign, error)
	ListCampaigns(activeOnly bool) ([]store.Campaign, error)
	IsCampaignActive(ctx context.Context, campaignID uint64) (bool, error)
	GetCampaignPayout(ctx context.Context, campaignID uint64, recipient ethcommon.Address, aux []byte) (sdkmath.Int, error)
	ClaimCampaignPayout(ctx context.Context, campaignID uint64, recipient ethcommon.Address, aux []byte) (sdkmath.Int, error)
	BatchClaimCampaignPayout(ctx context.Context, campaignIDs []uint64, recipients []ethcommon.Address, auxes [][]byte) ([]sdkmath.Int, error)
}

// ClaimLedgerInterface reads per-recipient claim records.
type ClaimLedgerInterface interface {
	GetClaim(campaignID uint64, account string) (*store.ClaimRecord, bool, error)
}

// ReceiptReaderInterface lists execution receipts for a campaign.
type ReceiptReaderInterface interface {
	ListByCampaign(campaignID uint64) ([]store.ExecutionReceipt, error)
}

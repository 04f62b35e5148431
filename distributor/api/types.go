package api

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/dropline-network/dropline-node/distributor/store"
)

// CampaignResponse is one campaign row as served over HTTP.
type CampaignResponse struct {
	ID              uint64    `json:"id"`
	Owner           string    `json:"owner"`
	Token           string    `json:"token"`
	StrategyAddress string    `json:"strategy_address"`
	EncoderAddress  string    `json:"encoder_address,omitempty"`
	Metadata        string    `json:"metadata,omitempty"` // 0x-prefixed hex
	MultipleClaims  bool      `json:"multiple_claims"`
	StartTime       int64     `json:"start_time"`
	EndTime         int64     `json:"end_time"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

// CampaignListResponse wraps a campaign listing.
type CampaignListResponse struct {
	Campaigns []CampaignResponse `json:"campaigns"`
	Count     int                `json:"count"`
}

// ActiveResponse reports whether a campaign currently accepts claims.
type ActiveResponse struct {
	CampaignID uint64 `json:"campaign_id"`
	Active     bool   `json:"active"`
}

// ClaimRequest asks the engine to settle (or preview) a payout. Aux carries
// the allocator-specific payload, e.g. a merkle proof, as 0x-prefixed hex.
type ClaimRequest struct {
	Recipient string `json:"recipient"`
	Aux       string `json:"aux,omitempty"`
}

// ClaimResponse reports one settled (or previewed) amount.
type ClaimResponse struct {
	CampaignID uint64 `json:"campaign_id"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
}

// BatchClaimEntry is one tuple of a batch claim.
type BatchClaimEntry struct {
	CampaignID uint64 `json:"campaign_id"`
	Recipient  string `json:"recipient"`
	Aux        string `json:"aux,omitempty"`
}

// BatchClaimRequest settles several payouts in one atomic batch.
type BatchClaimRequest struct {
	Entries []BatchClaimEntry `json:"entries"`
}

// BatchClaimResponse reports the settled amounts in entry order.
type BatchClaimResponse struct {
	Results []ClaimResponse `json:"results"`
}

// ClaimStatusResponse reports the running claim record for one recipient.
type ClaimStatusResponse struct {
	CampaignID    uint64 `json:"campaign_id"`
	Recipient     string `json:"recipient"`
	ClaimedAmount string `json:"claimed_amount"`
	ClaimCount    uint64 `json:"claim_count"`
}

// ReceiptResponse is one execution receipt row.
type ReceiptResponse struct {
	ID          uint64    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	CampaignID  uint64    `json:"campaign_id"`
	Recipient   string    `json:"recipient"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	Attempts    uint64    `json:"attempts"`
	ErrorMsg    string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReceiptListResponse wraps a receipt listing.
type ReceiptListResponse struct {
	Receipts []ReceiptResponse `json:"receipts"`
	Count    int               `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func toCampaignResponse(c store.Campaign) CampaignResponse {
	resp := CampaignResponse{
		ID:              uint64(c.ID),
		Owner:           c.Owner,
		Token:           c.Token,
		StrategyAddress: c.StrategyAddress,
		EncoderAddress:  c.EncoderAddress,
		MultipleClaims:  c.MultipleClaims,
		StartTime:       c.StartTime,
		EndTime:         c.EndTime,
		Active:          c.Active,
		CreatedAt:       c.CreatedAt,
	}
	if len(c.Metadata) > 0 {
		resp.Metadata = hexutil.Encode(c.Metadata)
	}
	return resp
}

func toReceiptResponse(r store.ExecutionReceipt) ReceiptResponse {
	return ReceiptResponse{
		ID:          uint64(r.ID),
		ExecutionID: r.ExecutionID,
		CampaignID:  r.CampaignID,
		Recipient:   r.Recipient,
		Amount:      r.Amount,
		Status:      r.Status,
		Attempts:    r.Attempts,
		ErrorMsg:    r.ErrorMsg,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toClaimResponse(campaignID uint64, recipient string, amount sdkmath.Int) ClaimResponse {
	return ClaimResponse{
		CampaignID: campaignID,
		Recipient:  recipient,
		Amount:     amount.String(),
	}
}

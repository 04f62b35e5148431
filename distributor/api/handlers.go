package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeEngineError maps an engine error onto an HTTP status and writes it.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// statusForError maps engine sentinels onto HTTP status codes. Anything
// unmapped is a 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, disterrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, disterrors.ErrCampaignNotFound),
		errors.Is(err, disterrors.ErrTypeNotFound):
		return http.StatusNotFound
	case errors.Is(err, disterrors.ErrCampaignInactive),
		errors.Is(err, disterrors.ErrCampaignAlreadyExists),
		errors.Is(err, disterrors.ErrAlreadyRegistered),
		errors.Is(err, disterrors.ErrConfigNotSet):
		return http.StatusConflict
	case errors.Is(err, disterrors.ErrNoClaimableAmount),
		errors.Is(err, disterrors.ErrAlreadyClaimedMax),
		errors.Is(err, disterrors.ErrMultipleClaimsNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, disterrors.ErrDelegatedCallFailed),
		errors.Is(err, disterrors.ErrExecutionFailed):
		return http.StatusBadGateway
	case errors.Is(err, disterrors.ErrEmptyKind),
		errors.Is(err, disterrors.ErrInvalidImplementation),
		errors.Is(err, disterrors.ErrZeroAddress),
		errors.Is(err, disterrors.ErrAmountZero),
		errors.Is(err, disterrors.ErrInvalidTimeBounds),
		errors.Is(err, disterrors.ErrInvalidDuration),
		errors.Is(err, disterrors.ErrLengthMismatch),
		errors.Is(err, disterrors.ErrInvalidAuxData),
		errors.Is(err, disterrors.ErrDuplicateEntry):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseCampaignID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid campaign id %q", raw)
	}
	return id, nil
}

func parseRecipient(raw string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(raw) {
		return ethcommon.Address{}, fmt.Errorf("invalid recipient address %q", raw)
	}
	return ethcommon.HexToAddress(raw), nil
}

func decodeAux(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	data, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid aux payload: %w", err)
	}
	return data, nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleListCampaigns handles GET /api/v1/campaigns?active=true
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	campaigns, err := s.engine.ListCampaigns(activeOnly)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	response := CampaignListResponse{
		Campaigns: make([]CampaignResponse, 0, len(campaigns)),
		Count:     len(campaigns),
	}
	for _, campaign := range campaigns {
		response.Campaigns = append(response.Campaigns, toCampaignResponse(campaign))
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID, err := parseCampaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	campaign, err := s.engine.GetCampaign(campaignID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCampaignResponse(*campaign))
}

// handleCampaignActive handles GET /api/v1/campaigns/{id}/active
func (s *Server) handleCampaignActive(w http.ResponseWriter, r *http.Request) {
	campaignID, err := parseCampaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	active, err := s.engine.IsCampaignActive(r.Context(), campaignID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ActiveResponse{CampaignID: campaignID, Active: active})
}

// handlePreviewPayout handles POST /api/v1/campaigns/{id}/payout. It reports
// the currently claimable amount without settling anything.
func (s *Server) handlePreviewPayout(w http.ResponseWriter, r *http.Request) {
	campaignID, req, recipient, aux, ok := s.decodeClaimRequest(w, r)
	if !ok {
		return
	}

	amount, err := s.engine.GetCampaignPayout(r.Context(), campaignID, recipient, aux)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClaimResponse(campaignID, req.Recipient, amount))
}

// handleClaim handles POST /api/v1/campaigns/{id}/claims
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	campaignID, req, recipient, aux, ok := s.decodeClaimRequest(w, r)
	if !ok {
		return
	}

	amount, err := s.engine.ClaimCampaignPayout(r.Context(), campaignID, recipient, aux)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClaimResponse(campaignID, req.Recipient, amount))
}

// decodeClaimRequest parses the campaign id path variable and the shared
// claim request body. On failure it writes the error response and returns
// ok=false.
func (s *Server) decodeClaimRequest(w http.ResponseWriter, r *http.Request) (uint64, ClaimRequest, ethcommon.Address, []byte, bool) {
	var req ClaimRequest

	campaignID, err := parseCampaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return 0, req, ethcommon.Address{}, nil, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return 0, req, ethcommon.Address{}, nil, false
	}

	recipient, err := parseRecipient(req.Recipient)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return 0, req, ethcommon.Address{}, nil, false
	}

	aux, err := decodeAux(req.Aux)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return 0, req, ethcommon.Address{}, nil, false
	}

	return campaignID, req, recipient, aux, true
}

// handleBatchClaim handles POST /api/v1/claims/batch
func (s *Server) handleBatchClaim(w http.ResponseWriter, r *http.Request) {
	var req BatchClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	campaignIDs := make([]uint64, 0, len(req.Entries))
	recipients := make([]ethcommon.Address, 0, len(req.Entries))
	auxes := make([][]byte, 0, len(req.Entries))
	for i, entry := range req.Entries {
		recipient, err := parseRecipient(entry.Recipient)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("batch entry %d: %v", i, err)})
			return
		}
		aux, err := decodeAux(entry.Aux)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("batch entry %d: %v", i, err)})
			return
		}
		campaignIDs = append(campaignIDs, entry.CampaignID)
		recipients = append(recipients, recipient)
		auxes = append(auxes, aux)
	}

	amounts, err := s.engine.BatchClaimCampaignPayout(r.Context(), campaignIDs, recipients, auxes)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	response := BatchClaimResponse{Results: make([]ClaimResponse, 0, len(amounts))}
	for i, amount := range amounts {
		response.Results = append(response.Results, toClaimResponse(campaignIDs[i], req.Entries[i].Recipient, amount))
	}

	writeJSON(w, http.StatusOK, response)
}

// handleClaimStatus handles GET /api/v1/campaigns/{id}/claims/{recipient}
func (s *Server) handleClaimStatus(w http.ResponseWriter, r *http.Request) {
	campaignID, err := parseCampaignID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	recipient, err := parseRecipient(mux.Vars(r)["recipient"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if _, err := s.engine.GetCampaign(campaignID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	response := ClaimStatusResponse{
		CampaignID:    campaignID,
		Recipient:     recipient.Hex(),
		ClaimedAmount: sdkmath.ZeroInt().String(),
	}

	record, found, err := s.ledger.GetClaim(campaignID, recipient.Hex())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if found {
		response.ClaimedAmount = record.ClaimedAmount
		response.ClaimCount = record.ClaimCount
	}

	writeJSON(w, http.StatusOK, response)
}

// handleListReceipts handles GET /api/v1/receipts?campaign_id=<id>
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("campaign_id")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "campaign_id parameter is required"})
		return
	}
	campaignID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid campaign_id %q", raw)})
		return
	}

	receipts, err := s.receipts.ListByCampaign(campaignID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	response := ReceiptListResponse{
		Receipts: make([]ReceiptResponse, 0, len(receipts)),
		Count:    len(receipts),
	}
	for _, receipt := range receipts {
		response.Receipts = append(response.Receipts, toReceiptResponse(receipt))
	}

	writeJSON(w, http.StatusOK, response)
}

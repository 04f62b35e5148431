// Package core implements the campaign ledger, the orchestrator that binds
// the kind registry, the allocator strategies, the payout encoders and the
// executor into the engine's public operations. All value accounting runs
// through this package. The ordering rule is absolute: the claim ledger and
// the pending execution receipt commit together, strictly before any action
// list is handed to the executor, so a crash or dispatch failure can delay a
// payout but never double-pay one.
package core

import (
	"context"
	"fmt"
	"time"

	sdkerrors "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/dropline-network/dropline-node/distributor/authz"
	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/encoder"
	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/executor"
	"github.com/dropline-network/dropline-node/distributor/metrics"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// InstanceBinding names a kind together with its deployment parameters and
// the campaign-specific setup payload. InitParams select the instance (the
// factory dedups on them); Aux configures the campaign inside that instance.
type InstanceBinding struct {
	Kind       types.KindID
	InitParams []byte
	Aux        []byte
}

// CampaignParams carries everything campaign creation needs.
type CampaignParams struct {
	Token          ethcommon.Address
	Metadata       []byte
	MultipleClaims bool
	StartTime      int64 // unix seconds, 0 = open start
	EndTime        int64 // unix seconds, 0 = open end
	Strategy       InstanceBinding
	Encoder        *InstanceBinding // nil = plain transfer payouts
}

// Engine is the campaign ledger orchestrator.
type Engine struct {
	identity   ethcommon.Address
	registry   *registry.Registry
	ledger     *LedgerStore
	dispatcher *executor.Dispatcher
	authorizer *authz.Checker
	locks      *claimLocks
	now        func() time.Time
	logger     zerolog.Logger
}

// NewEngine creates the orchestrator. identity is the engine's own address:
// the owner namespace under which instances hold campaign state, and one
// half of every execution id.
func NewEngine(
	identity ethcommon.Address,
	reg *registry.Registry,
	database *db.DB,
	dispatcher *executor.Dispatcher,
	authorizer *authz.Checker,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		identity:   identity,
		registry:   reg,
		ledger:     NewLedgerStore(database),
		dispatcher: dispatcher,
		authorizer: authorizer,
		locks:      newClaimLocks(),
		now:        time.Now,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
}

// Identity returns the engine's own address.
func (e *Engine) Identity() ethcommon.Address {
	return e.identity
}

// Ledger returns the claim ledger store. Allocators that check entitlements
// against the claimed amount read through it.
func (e *Engine) Ledger() *LedgerStore {
	return e.ledger
}

// CreateCampaign resolves the strategy and optional encoder instances,
// configures both for the new campaign, and opens it in the ledger. Any
// configuration failure discards the campaign row before its id escapes, so
// a campaign id always refers to a fully configured campaign.
func (e *Engine) CreateCampaign(ctx context.Context, creator ethcommon.Address, params CampaignParams) (uint64, error) {
	if err := e.authorizer.Require(authz.CapabilityCampaignCreator, creator); err != nil {
		return 0, err
	}
	if params.Token == (ethcommon.Address{}) {
		return 0, sdkerrors.Wrap(disterrors.ErrZeroAddress, "token is required")
	}
	if params.StartTime < 0 || params.EndTime < 0 {
		return 0, sdkerrors.Wrapf(disterrors.ErrInvalidTimeBounds,
			"start %d and end %d must not be negative", params.StartTime, params.EndTime)
	}
	if params.StartTime != 0 && params.EndTime != 0 && params.StartTime >= params.EndTime {
		return 0, sdkerrors.Wrapf(disterrors.ErrInvalidTimeBounds,
			"start %d must precede end %d", params.StartTime, params.EndTime)
	}

	strategy, strategyAddr, err := e.resolveStrategy(ctx, creator, params.Strategy)
	if err != nil {
		return 0, err
	}

	var (
		payout      types.PayoutEncoder
		encoderAddr ethcommon.Address
	)
	if params.Encoder != nil {
		payout, encoderAddr, err = e.resolveEncoder(ctx, creator, *params.Encoder)
		if err != nil {
			return 0, err
		}
	}

	campaign := &store.Campaign{
		Owner:           creator.Hex(),
		Token:           params.Token.Hex(),
		StrategyAddress: strategyAddr.Hex(),
		Metadata:        params.Metadata,
		MultipleClaims:  params.MultipleClaims,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		Active:          true,
	}
	if params.Encoder != nil {
		campaign.EncoderAddress = encoderAddr.Hex()
	}
	if err := e.ledger.InsertCampaign(campaign); err != nil {
		return 0, err
	}
	campaignID := uint64(campaign.ID)

	// Configure both instances for the assigned id. A failure unwinds the
	// row so the id never refers to a half-configured campaign.
	if err := strategy.SetAllocationCampaign(ctx, e.identity, campaignID, params.Strategy.Aux); err != nil {
		e.discard(campaign.ID)
		return 0, err
	}
	if payout != nil {
		if err := payout.SetupCampaign(ctx, e.identity, campaignID, params.Encoder.Aux); err != nil {
			e.discard(campaign.ID)
			return 0, err
		}
	}

	metrics.RecordCampaignCreated()
	e.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("creator", creator.Hex()).
		Str("token", params.Token.Hex()).
		Str("strategy", strategyAddr.Hex()).
		Str("encoder", campaign.EncoderAddress).
		Msg("campaign created")

	return campaignID, nil
}

// DeactivateCampaign permanently closes a campaign. Deactivation is
// terminal: there is no way back to active.
func (e *Engine) DeactivateCampaign(_ context.Context, caller ethcommon.Address, campaignID uint64) error {
	if err := e.authorizer.Require(authz.CapabilityCampaignCreator, caller); err != nil {
		return err
	}

	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return err
	}
	if !found {
		return sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}
	if !campaign.Active {
		return sdkerrors.Wrapf(disterrors.ErrCampaignInactive, "campaign %d is already deactivated", campaignID)
	}

	changed, err := e.ledger.Deactivate(campaignID)
	if err != nil {
		return err
	}
	if !changed {
		// Lost the race against another deactivation.
		return sdkerrors.Wrapf(disterrors.ErrCampaignInactive, "campaign %d is already deactivated", campaignID)
	}

	metrics.RecordCampaignDeactivated()
	e.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("caller", caller.Hex()).
		Msg("campaign deactivated")

	return nil
}

// UpdateCampaignRoot replaces the allocation root of a campaign whose
// strategy supports root rotation.
func (e *Engine) UpdateCampaignRoot(ctx context.Context, caller ethcommon.Address, campaignID uint64, root ethcommon.Hash) error {
	if err := e.authorizer.Require(authz.CapabilityCampaignCreator, caller); err != nil {
		return err
	}

	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return err
	}
	if !found {
		return sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}

	strategy, err := e.strategyFor(campaign)
	if err != nil {
		return err
	}
	updater, ok := strategy.(types.RootUpdater)
	if !ok {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData,
			"campaign %d strategy does not support root updates", campaignID)
	}

	if err := updater.UpdateRoot(ctx, e.identity, campaignID, root); err != nil {
		return err
	}

	e.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("root", root.Hex()).
		Msg("campaign root updated")

	return nil
}

// GetCampaign returns one campaign row.
func (e *Engine) GetCampaign(campaignID uint64) (*store.Campaign, error) {
	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}
	return campaign, nil
}

// ListCampaigns returns campaigns in creation order.
func (e *Engine) ListCampaigns(activeOnly bool) ([]store.Campaign, error) {
	return e.ledger.ListCampaigns(activeOnly)
}

// IsCampaignActive reports whether the campaign accepts claims right now:
// the active flag is set and the clock is inside the campaign window.
func (e *Engine) IsCampaignActive(_ context.Context, campaignID uint64) (bool, error) {
	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}
	return e.isActiveNow(campaign), nil
}

// GetCampaignPayout previews the amount recipient could claim right now.
// Pure read: no ledger state changes, no dispatch.
func (e *Engine) GetCampaignPayout(ctx context.Context, campaignID uint64, recipient ethcommon.Address, aux []byte) (sdkmath.Int, error) {
	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !found {
		return sdkmath.Int{}, sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}

	strategy, err := e.strategyFor(campaign)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return strategy.GetClaimeableAmount(ctx, e.identity, campaignID, recipient, aux)
}

// ClaimCampaignPayout settles one claim: the entitlement is checked, the
// ledger update and the pending receipt commit in one transaction, and only
// then is the action list dispatched. A dispatch failure leaves the
// settlement in place and the amount is still returned; the retry job
// re-dispatches from the receipt.
func (e *Engine) ClaimCampaignPayout(ctx context.Context, campaignID uint64, recipient ethcommon.Address, aux []byte) (sdkmath.Int, error) {
	start := time.Now()

	key := claimKey{campaignID: campaignID, account: recipient}
	e.locks.lock(key)
	defer e.locks.unlock(key)

	stl, err := e.prepareClaim(ctx, campaignID, recipient, aux)
	if err != nil {
		metrics.RecordClaim("rejected", time.Since(start))
		return sdkmath.Int{}, err
	}

	if err := e.commit([]*settlement{stl}); err != nil {
		metrics.RecordClaim("error", time.Since(start))
		return sdkmath.Int{}, err
	}

	// Ledger is committed. From here the payout either executes now or
	// waits in the pending receipt for the retry job.
	e.dispatchSettlement(ctx, stl)

	metrics.RecordClaim("settled", time.Since(start))
	e.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("recipient", recipient.Hex()).
		Str("amount", stl.amount.String()).
		Msg("claim settled")

	return stl.amount, nil
}

// BatchClaimCampaignPayout settles several claims atomically. Every tuple
// must validate and carry a positive entitlement; one bad tuple rejects the
// whole batch. The ledger updates and receipts for all tuples commit in a
// single transaction, and dispatch runs per receipt only after that commit,
// in input order.
func (e *Engine) BatchClaimCampaignPayout(ctx context.Context, campaignIDs []uint64, recipients []ethcommon.Address, auxes [][]byte) ([]sdkmath.Int, error) {
	start := time.Now()

	if len(campaignIDs) == 0 {
		return nil, sdkerrors.Wrap(disterrors.ErrLengthMismatch, "empty batch")
	}
	if len(recipients) != len(campaignIDs) || len(auxes) != len(campaignIDs) {
		return nil, sdkerrors.Wrapf(disterrors.ErrLengthMismatch,
			"%d campaigns, %d recipients, %d aux payloads", len(campaignIDs), len(recipients), len(auxes))
	}

	// Duplicate pairs would race themselves inside one batch: both tuples
	// would settle against the same pre-batch claimed amount.
	keys := make([]claimKey, len(campaignIDs))
	seen := make(map[claimKey]bool, len(campaignIDs))
	for i := range campaignIDs {
		key := claimKey{campaignID: campaignIDs[i], account: recipients[i]}
		if seen[key] {
			return nil, sdkerrors.Wrapf(disterrors.ErrDuplicateEntry,
				"campaign %d recipient %s appears twice", campaignIDs[i], recipients[i].Hex())
		}
		seen[key] = true
		keys[i] = key
	}

	locked := e.locks.lockAll(keys)
	defer e.locks.unlockAll(locked)

	settlements := make([]*settlement, 0, len(campaignIDs))
	amounts := make([]sdkmath.Int, 0, len(campaignIDs))
	for i := range campaignIDs {
		stl, err := e.prepareClaim(ctx, campaignIDs[i], recipients[i], auxes[i])
		if err != nil {
			metrics.RecordClaim("rejected", time.Since(start))
			return nil, sdkerrors.Wrapf(err, "batch entry %d", i)
		}
		settlements = append(settlements, stl)
		amounts = append(amounts, stl.amount)
	}

	if err := e.commit(settlements); err != nil {
		metrics.RecordClaim("error", time.Since(start))
		return nil, err
	}

	for _, stl := range settlements {
		e.dispatchSettlement(ctx, stl)
		metrics.RecordClaim("settled", time.Since(start))
	}

	e.logger.Info().
		Int("claims", len(settlements)).
		Msg("batch settled")

	return amounts, nil
}

// settlement is one validated claim ready to commit: the amount granted, the
// new cumulative total, and the receipt carrying the built action list.
type settlement struct {
	campaignID uint64
	recipient  ethcommon.Address
	amount     sdkmath.Int
	newTotal   sdkmath.Int
	receipt    *store.ExecutionReceipt
}

// prepareClaim validates one claim tuple and builds its settlement. The
// caller holds the claim key lock.
func (e *Engine) prepareClaim(ctx context.Context, campaignID uint64, recipient ethcommon.Address, aux []byte) (*settlement, error) {
	campaign, found, err := e.ledger.GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sdkerrors.Wrapf(disterrors.ErrCampaignNotFound, "campaign %d", campaignID)
	}
	if !e.isActiveNow(campaign) {
		return nil, sdkerrors.Wrapf(disterrors.ErrCampaignInactive, "campaign %d", campaignID)
	}

	claimed := sdkmath.ZeroInt()
	claimCount := uint64(0)
	record, found, err := e.ledger.GetClaim(campaignID, recipient.Hex())
	if err != nil {
		return nil, err
	}
	if found {
		claimCount = record.ClaimCount
		parsed, ok := sdkmath.NewIntFromString(record.ClaimedAmount)
		if !ok {
			return nil, fmt.Errorf("corrupt claimed amount %q for campaign %d", record.ClaimedAmount, campaignID)
		}
		claimed = parsed
	}
	if claimCount > 0 && !campaign.MultipleClaims {
		return nil, sdkerrors.Wrapf(disterrors.ErrMultipleClaimsNotAllowed,
			"campaign %d allows one claim per recipient", campaignID)
	}

	strategy, err := e.strategyFor(campaign)
	if err != nil {
		return nil, err
	}
	amount, err := strategy.GetClaimeableAmount(ctx, e.identity, campaignID, recipient, aux)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		if claimed.IsPositive() {
			return nil, sdkerrors.Wrapf(disterrors.ErrAlreadyClaimedMax,
				"campaign %d recipient %s", campaignID, recipient.Hex())
		}
		return nil, sdkerrors.Wrapf(disterrors.ErrNoClaimableAmount,
			"campaign %d recipient %s", campaignID, recipient.Hex())
	}

	actions, err := e.buildActions(ctx, campaign, campaignID, recipient, amount)
	if err != nil {
		return nil, err
	}

	receipt, err := executor.NewReceipt(types.NewExecutionID(e.identity, campaignID), campaignID, recipient, amount, actions)
	if err != nil {
		return nil, err
	}

	return &settlement{
		campaignID: campaignID,
		recipient:  recipient,
		amount:     amount,
		newTotal:   claimed.Add(amount),
		receipt:    receipt,
	}, nil
}

// commit applies the ledger updates and pending receipts of all settlements
// in one database transaction.
func (e *Engine) commit(settlements []*settlement) error {
	return e.ledger.Transaction(func(tx *gorm.DB) error {
		for _, stl := range settlements {
			if err := e.ledger.ApplyClaim(tx, stl.campaignID, stl.recipient.Hex(), stl.newTotal); err != nil {
				return err
			}
			if err := e.dispatcher.Receipts().InsertPending(tx, stl.receipt); err != nil {
				return err
			}
		}
		return nil
	})
}

// dispatchSettlement hands a committed settlement to the executor. Failure
// is recorded on the receipt, never propagated: the ledger already treats
// the claim as settled.
func (e *Engine) dispatchSettlement(ctx context.Context, stl *settlement) {
	if err := e.dispatcher.Dispatch(ctx, stl.receipt); err != nil {
		metrics.RecordDispatch("failed")
		e.logger.Warn().
			Err(err).
			Uint64("campaign_id", stl.campaignID).
			Str("recipient", stl.recipient.Hex()).
			Msg("payout dispatch deferred to retry")
		return
	}
	metrics.RecordDispatch("executed")
}

// buildActions asks the campaign's encoder for the payout action list, or
// falls back to a plain token transfer when no encoder is bound.
func (e *Engine) buildActions(ctx context.Context, campaign *store.Campaign, campaignID uint64, recipient ethcommon.Address, amount sdkmath.Int) ([]types.Action, error) {
	token := ethcommon.HexToAddress(campaign.Token)
	if campaign.EncoderAddress == "" {
		return encoder.TransferAction(token, recipient, amount)
	}

	instance, ok := e.registry.Get(ethcommon.HexToAddress(campaign.EncoderAddress))
	if !ok {
		return nil, sdkerrors.Wrapf(disterrors.ErrTypeNotFound,
			"encoder instance %s is not live", campaign.EncoderAddress)
	}
	payout, ok := instance.(types.PayoutEncoder)
	if !ok {
		return nil, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"encoder instance %s does not build payouts", campaign.EncoderAddress)
	}
	return payout.BuildActions(ctx, e.identity, campaignID, token, recipient, amount)
}

// resolveStrategy deploys (or reuses) the allocator instance for a binding.
func (e *Engine) resolveStrategy(ctx context.Context, creator ethcommon.Address, binding InstanceBinding) (types.AllocatorStrategy, ethcommon.Address, error) {
	kind, ok := e.registry.GetKind(binding.Kind)
	if !ok {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrTypeNotFound, "kind %s", binding.Kind.Hex())
	}
	if kind.Role != store.RoleAllocator {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"kind %s is not an allocator", kind.Name)
	}

	instance, addr, err := e.registry.GetOrDeploy(ctx, binding.Kind, creator, binding.InitParams)
	if err != nil {
		return nil, ethcommon.Address{}, err
	}
	strategy, ok := instance.(types.AllocatorStrategy)
	if !ok {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"kind %s does not answer allocation queries", kind.Name)
	}
	return strategy, addr, nil
}

// resolveEncoder deploys (or reuses) the payout encoder instance for a
// binding.
func (e *Engine) resolveEncoder(ctx context.Context, creator ethcommon.Address, binding InstanceBinding) (types.PayoutEncoder, ethcommon.Address, error) {
	kind, ok := e.registry.GetKind(binding.Kind)
	if !ok {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrTypeNotFound, "kind %s", binding.Kind.Hex())
	}
	if kind.Role != store.RolePayout {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"kind %s is not a payout encoder", kind.Name)
	}

	instance, addr, err := e.registry.GetOrDeploy(ctx, binding.Kind, creator, binding.InitParams)
	if err != nil {
		return nil, ethcommon.Address{}, err
	}
	payout, ok := instance.(types.PayoutEncoder)
	if !ok {
		return nil, ethcommon.Address{}, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"kind %s does not build payouts", kind.Name)
	}
	return payout, addr, nil
}

// strategyFor resolves the live allocator bound to a campaign.
func (e *Engine) strategyFor(campaign *store.Campaign) (types.AllocatorStrategy, error) {
	instance, ok := e.registry.Get(ethcommon.HexToAddress(campaign.StrategyAddress))
	if !ok {
		return nil, sdkerrors.Wrapf(disterrors.ErrTypeNotFound,
			"strategy instance %s is not live", campaign.StrategyAddress)
	}
	strategy, ok := instance.(types.AllocatorStrategy)
	if !ok {
		return nil, sdkerrors.Wrapf(disterrors.ErrInvalidImplementation,
			"strategy instance %s does not answer allocation queries", campaign.StrategyAddress)
	}
	return strategy, nil
}

// isActiveNow evaluates the active flag and the campaign time window.
func (e *Engine) isActiveNow(campaign *store.Campaign) bool {
	if !campaign.Active {
		return false
	}
	now := e.now().Unix()
	if campaign.StartTime != 0 && now < campaign.StartTime {
		return false
	}
	if campaign.EndTime != 0 && now >= campaign.EndTime {
		return false
	}
	return true
}

// discard unwinds a campaign row created by an aborted create.
func (e *Engine) discard(id uint) {
	if err := e.ledger.DiscardCampaign(id); err != nil {
		e.logger.Error().Err(err).Uint("campaign_id", id).Msg("failed to discard campaign row")
	}
}

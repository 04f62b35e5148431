package encoder

import (
	"context"
	"math/big"

	sdkerrors "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// StreamEncoder wraps payouts in a linear vesting stream. The action list
// approves the stream contract and creates a stream from the owning
// authority to the recipient with the configured duration, cliff, and
// broker parameters.
type StreamEncoder struct {
	self      ethcommon.Address
	authority ethcommon.Address
	store     *PayoutStore
	logger    zerolog.Logger
}

// NewStreamBuilder returns the registry builder for the stream encoder kind.
func NewStreamBuilder(deps Deps) registry.Builder {
	return func(self, authority ethcommon.Address, initParams []byte) (registry.Instance, error) {
		return &StreamEncoder{
			self:      self,
			authority: authority,
			store:     NewPayoutStore(deps.DB),
			logger: deps.Logger.With().
				Str("component", "stream_encoder").
				Str("instance", self.Hex()).
				Logger(),
		}, nil
	}
}

// Initialize implements registry.Instance.
func (s *StreamEncoder) Initialize(_ context.Context) error {
	s.logger.Info().Str("authority", s.authority.Hex()).Msg("stream encoder initialized")
	return nil
}

// SetupCampaign stores the campaign's stream shape. Aux data is ABI-encoded
// (address streamer, uint40 duration, uint40 cliff, bool cancelable,
// bool transferable, address broker, uint256 brokerFeeWad). The duration
// must be positive and the cliff strictly shorter than the duration.
func (s *StreamEncoder) SetupCampaign(_ context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error {
	config, err := decodeStreamSetup(aux)
	if err != nil {
		return sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "%s", err)
	}
	if config.Streamer == (ethcommon.Address{}) {
		return sdkerrors.Wrap(disterrors.ErrZeroAddress, "streamer address is required")
	}
	if config.Duration == 0 {
		return sdkerrors.Wrap(disterrors.ErrInvalidDuration, "stream duration must be positive")
	}
	if config.Cliff >= config.Duration {
		return sdkerrors.Wrapf(disterrors.ErrInvalidDuration, "cliff %d must be shorter than duration %d", config.Cliff, config.Duration)
	}

	inserted, err := s.store.InsertConfigIfNotExists(&store.PayoutConfig{
		Instance:   s.self.Hex(),
		Owner:      owner.Hex(),
		CampaignID: campaignID,
		KindID:     types.KindIDFromString(types.KindEncoderStream).Hex(),
		Aux:        aux,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return sdkerrors.Wrapf(disterrors.ErrCampaignAlreadyExists, "campaign %d already configured for owner %s", campaignID, owner.Hex())
	}

	s.logger.Info().
		Uint64("campaign_id", campaignID).
		Str("owner", owner.Hex()).
		Str("streamer", config.Streamer.Hex()).
		Uint64("duration", config.Duration).
		Uint64("cliff", config.Cliff).
		Msg("payout campaign configured")

	return nil
}

// BuildActions builds the two-step stream payout: approve the stream
// contract for amount, then create the stream to the recipient with sender
// set to the owning authority.
func (s *StreamEncoder) BuildActions(_ context.Context, owner ethcommon.Address, campaignID uint64, token, recipient ethcommon.Address, amount sdkmath.Int) ([]types.Action, error) {
	if !amount.IsPositive() {
		return nil, sdkerrors.Wrapf(disterrors.ErrAmountZero, "campaign %d", campaignID)
	}

	stored, found, err := s.store.GetConfig(s.self.Hex(), owner.Hex(), campaignID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sdkerrors.Wrapf(disterrors.ErrConfigNotSet, "campaign %d has no stream configured", campaignID)
	}

	config, err := decodeStreamSetup(stored.Aux)
	if err != nil {
		return nil, sdkerrors.Wrapf(disterrors.ErrInvalidAuxData, "stored stream setup corrupt: %s", err)
	}

	approveData, err := erc20ApproveData(config.Streamer, amount.BigInt())
	if err != nil {
		return nil, err
	}

	fee := config.BrokerFeeWad
	if fee == nil {
		fee = new(big.Int)
	}
	createData, err := streamCreateData(streamCreateParams{
		Sender:       s.authority,
		Recipient:    recipient,
		TotalAmount:  amount.BigInt(),
		Asset:        token,
		Cancelable:   config.Cancelable,
		Transferable: config.Transferable,
		Durations: streamDurations{
			Cliff: new(big.Int).SetUint64(config.Cliff),
			Total: new(big.Int).SetUint64(config.Duration),
		},
		Broker: streamBroker{
			Account: config.Broker,
			Fee:     fee,
		},
	})
	if err != nil {
		return nil, err
	}

	return []types.Action{
		types.NewAction(token, approveData),
		types.NewAction(config.Streamer, createData),
	}, nil
}

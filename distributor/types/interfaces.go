package types

import (
	"context"

	"cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// AllocatorStrategy answers "how much can account X claim from campaign Y".
// One strategy instance can serve several independent owners; every operation
// therefore carries the owner identity as an explicit namespace.
type AllocatorStrategy interface {
	// SetAllocationCampaign binds campaign-specific allocation state (a Merkle
	// root, call descriptors, a fixed amount) to the (owner, campaignID) pair.
	// The binding is set-once: a second call for the same pair fails.
	SetAllocationCampaign(ctx context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error

	// GetClaimeableAmount returns the amount account may claim right now.
	// Unknown campaigns, invalid proofs and exhausted entitlements all yield
	// zero rather than an error; errors are reserved for infrastructure
	// failures and failed delegated calls.
	GetClaimeableAmount(ctx context.Context, owner ethcommon.Address, campaignID uint64, account ethcommon.Address, aux []byte) (math.Int, error)
}

// RootUpdater is the optional strategy capability of replacing a campaign's
// allocation root after setup. Callers gate it the same way they gate
// campaign creation.
type RootUpdater interface {
	UpdateRoot(ctx context.Context, owner ethcommon.Address, campaignID uint64, root ethcommon.Hash) error
}

// PayoutEncoder translates a settled payout into the ordered action list the
// executor applies. Encoders hold campaign-scoped configuration (vault
// address, stream shape) bound once via SetupCampaign.
type PayoutEncoder interface {
	// SetupCampaign stores the campaign's payout configuration. Called once
	// per (owner, campaignID) when the encoder is attached at creation time.
	SetupCampaign(ctx context.Context, owner ethcommon.Address, campaignID uint64, aux []byte) error

	// BuildActions constructs the action list paying amount of token to
	// recipient. Pure construction: no claim bookkeeping happens here.
	BuildActions(ctx context.Context, owner ethcommon.Address, campaignID uint64, token, recipient ethcommon.Address, amount math.Int) ([]Action, error)
}

// Executor is the external collaborator that applies an action list against
// pooled funds. Implementations guarantee atomic all-or-nothing application
// and surface failure synchronously; the engine never moves value itself.
type Executor interface {
	Execute(ctx context.Context, id ExecutionID, actions []Action) error
}

// ClaimReader exposes the cumulative-claimed ledger to strategies that need
// it, such as the Merkle allocator's claimed-versus-entitlement check.
type ClaimReader interface {
	ClaimedAmount(ctx context.Context, campaignID uint64, account ethcommon.Address) (math.Int, error)
}

// ExternalReader performs read-only calls against external contracts. The
// call-delegation allocator uses it as a pluggable oracle for eligibility and
// amount queries.
type ExternalReader interface {
	Call(ctx context.Context, target ethcommon.Address, data []byte) ([]byte, error)
}

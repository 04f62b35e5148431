// Package errors defines the distribution engine's error space. Every
// rejection the engine can surface is a registered sentinel, so callers (and
// the API error mapper) classify failures with errors.Is instead of string
// matching.
package errors

import (
	sdkerrors "cosmossdk.io/errors"
)

// Codespace namespaces the registered error codes.
const Codespace = "distributor"

// Input validation: surfaced immediately, no side effects.
var (
	ErrEmptyKind             = sdkerrors.Register(Codespace, 2, "empty kind id")
	ErrInvalidImplementation = sdkerrors.Register(Codespace, 3, "invalid implementation")
	ErrZeroAddress           = sdkerrors.Register(Codespace, 4, "zero address not allowed")
	ErrAmountZero            = sdkerrors.Register(Codespace, 5, "amount cannot be zero")
	ErrInvalidTimeBounds     = sdkerrors.Register(Codespace, 6, "invalid campaign time bounds")
	ErrInvalidDuration       = sdkerrors.Register(Codespace, 7, "invalid stream duration")
	ErrLengthMismatch        = sdkerrors.Register(Codespace, 8, "array length mismatch")
	ErrInvalidAuxData        = sdkerrors.Register(Codespace, 9, "invalid auxiliary data")
	ErrDuplicateEntry        = sdkerrors.Register(Codespace, 23, "duplicate batch entry")
)

// Not found: indicates a caller or identifier bug.
var (
	ErrTypeNotFound     = sdkerrors.Register(Codespace, 10, "kind not registered")
	ErrCampaignNotFound = sdkerrors.Register(Codespace, 11, "campaign not found")
)

// State conflicts: idempotency guards on direct registration/setup paths.
var (
	ErrAlreadyRegistered     = sdkerrors.Register(Codespace, 12, "kind already registered")
	ErrCampaignAlreadyExists = sdkerrors.Register(Codespace, 13, "allocation campaign already exists")
	ErrConfigNotSet          = sdkerrors.Register(Codespace, 14, "payout config not set for campaign")
	ErrCampaignInactive      = sdkerrors.Register(Codespace, 15, "campaign is not active")
)

// Entitlement rejections: nothing to pay out, or already paid out.
var (
	ErrNoClaimableAmount        = sdkerrors.Register(Codespace, 16, "no claimable amount")
	ErrAlreadyClaimedMax        = sdkerrors.Register(Codespace, 17, "already claimed maximum amount")
	ErrMultipleClaimsNotAllowed = sdkerrors.Register(Codespace, 18, "multiple claims not allowed")
)

// Collaborator failures.
var (
	ErrUnauthorized        = sdkerrors.Register(Codespace, 19, "caller lacks campaign creator capability")
	ErrDeploymentFailed    = sdkerrors.Register(Codespace, 20, "instance deployment failed")
	ErrDelegatedCallFailed = sdkerrors.Register(Codespace, 21, "delegated external call failed")
	ErrExecutionFailed     = sdkerrors.Register(Codespace, 22, "action execution failed")
)

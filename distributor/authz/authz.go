// Package authz gates privileged engine operations behind capability
// grants. Grants are plain address allowlists, loaded from configuration
// at boot and adjustable at runtime; an address without a grant can only
// use the read and claim surfaces.
package authz

import (
	"sync"

	sdkerrors "cosmossdk.io/errors"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
)

// Capability names a privileged operation class.
type Capability string

// CapabilityCampaignCreator covers campaign creation and deactivation.
const CapabilityCampaignCreator Capability = "CAMPAIGN_CREATOR"

// Checker answers whether an address holds a capability.
type Checker struct {
	mu     sync.RWMutex
	grants map[Capability]map[ethcommon.Address]bool
	logger zerolog.Logger
}

// NewChecker creates a checker with no grants.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		grants: make(map[Capability]map[ethcommon.Address]bool),
		logger: logger.With().Str("component", "authz").Logger(),
	}
}

// Grant adds holder to the capability's allowlist.
func (c *Checker) Grant(capability Capability, holder ethcommon.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	holders, ok := c.grants[capability]
	if !ok {
		holders = make(map[ethcommon.Address]bool)
		c.grants[capability] = holders
	}
	holders[holder] = true

	c.logger.Info().
		Str("capability", string(capability)).
		Str("holder", holder.Hex()).
		Msg("capability granted")
}

// GrantAll adds every listed holder to the capability's allowlist.
func (c *Checker) GrantAll(capability Capability, holders []ethcommon.Address) {
	for _, holder := range holders {
		c.Grant(capability, holder)
	}
}

// Revoke removes holder from the capability's allowlist.
func (c *Checker) Revoke(capability Capability, holder ethcommon.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if holders, ok := c.grants[capability]; ok {
		delete(holders, holder)
	}

	c.logger.Info().
		Str("capability", string(capability)).
		Str("holder", holder.Hex()).
		Msg("capability revoked")
}

// Has reports whether holder carries the capability.
func (c *Checker) Has(capability Capability, holder ethcommon.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grants[capability][holder]
}

// Require errors unless holder carries the capability.
func (c *Checker) Require(capability Capability, holder ethcommon.Address) error {
	if !c.Has(capability, holder) {
		return sdkerrors.Wrapf(disterrors.ErrUnauthorized, "%s lacks capability %s", holder.Hex(), capability)
	}
	return nil
}

// Holders returns the addresses currently granted the capability.
func (c *Checker) Holders(capability Capability) []ethcommon.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()

	holders := make([]ethcommon.Address, 0, len(c.grants[capability]))
	for holder := range c.grants[capability] {
		holders = append(holders, holder)
	}
	return holders
}

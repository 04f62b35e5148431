// Package encoder implements the builtin payout encoder kinds. An encoder
// turns a settled payout (token, recipient, amount) into the ordered action
// list the executor applies: the vault encoder routes funds into an ERC-4626
// vault on the recipient's behalf, the stream encoder wraps them in a linear
// vesting stream. Campaigns without an encoder fall back to the plain
// ERC-20 transfer built by TransferAction.
package encoder

import (
	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// Deps carries the collaborators every encoder builder closes over.
type Deps struct {
	DB     *db.DB
	Logger zerolog.Logger
}

// RegisterBuiltins registers the builtin encoder kinds with the registry.
func RegisterBuiltins(reg *registry.Registry, deps Deps, registeredBy ethcommon.Address) error {
	builtins := []struct {
		name    string
		builder registry.Builder
	}{
		{types.KindEncoderVault, NewVaultBuilder(deps)},
		{types.KindEncoderStream, NewStreamBuilder(deps)},
	}

	for _, builtin := range builtins {
		kindID := types.KindIDFromString(builtin.name)
		if err := reg.RegisterKind(kindID, builtin.name, store.RolePayout, builtin.builder, registeredBy); err != nil {
			return err
		}
	}
	return nil
}

// TransferAction builds the default payout action list: a single direct
// ERC-20 transfer of amount to recipient.
func TransferAction(token, recipient ethcommon.Address, amount sdkmath.Int) ([]types.Action, error) {
	data, err := erc20TransferData(recipient, amount.BigInt())
	if err != nil {
		return nil, err
	}
	return []types.Action{types.NewAction(token, data)}, nil
}

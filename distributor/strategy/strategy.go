// Package strategy implements the builtin allocator kinds: the merkle
// allocator over a committed distribution table, the call-delegation
// allocator that defers eligibility and amount to external read calls, and
// the open allocator paying a fixed configured amount. Every allocator keeps
// its per-campaign state namespaced by the owner that configured it, so one
// instance can serve several independent owners.
package strategy

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/dropline-network/dropline-node/distributor/db"
	"github.com/dropline-network/dropline-node/distributor/registry"
	"github.com/dropline-network/dropline-node/distributor/store"
	"github.com/dropline-network/dropline-node/distributor/types"
)

// Deps carries the collaborators every allocator builder closes over.
type Deps struct {
	DB     *db.DB
	Claims types.ClaimReader
	Reader types.ExternalReader
	Logger zerolog.Logger
}

// RegisterBuiltins registers the builtin allocator kinds with the registry.
func RegisterBuiltins(reg *registry.Registry, deps Deps, registeredBy ethcommon.Address) error {
	builtins := []struct {
		name    string
		builder registry.Builder
	}{
		{types.KindAllocatorMerkle, NewMerkleBuilder(deps)},
		{types.KindAllocatorCallDelegate, NewCallDelegateBuilder(deps)},
		{types.KindAllocatorOpen, NewOpenBuilder(deps)},
	}

	for _, builtin := range builtins {
		kindID := types.KindIDFromString(builtin.name)
		if err := reg.RegisterKind(kindID, builtin.name, store.RoleAllocator, builtin.builder, registeredBy); err != nil {
			return err
		}
	}
	return nil
}

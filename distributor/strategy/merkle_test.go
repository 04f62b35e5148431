package strategy

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
	"github.com/dropline-network/dropline-node/distributor/merkle"
)

var (
	alice = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = ethcommon.HexToAddress("0x000000000000000000000000000000000caa0117")
	david = ethcommon.HexToAddress("0x00000000000000000000000000000000000da41d")
)

func buildTestTable(t *testing.T) *merkle.AllocationTree {
	t.Helper()
	tree, err := merkle.BuildAllocationTree([]merkle.Allocation{
		{Account: alice, Amount: sdkmath.NewInt(1)},
		{Account: bob, Amount: sdkmath.NewInt(2)},
		{Account: carol, Amount: sdkmath.NewInt(3)},
		{Account: david, Amount: sdkmath.NewInt(4)},
	})
	require.NoError(t, err)
	return tree
}

func newMerkleAllocator(t *testing.T, env *testEnv) *MerkleAllocator {
	t.Helper()
	instance, err := NewMerkleBuilder(env.deps)(
		ethcommon.HexToAddress("0x5e1f"),
		ethcommon.HexToAddress("0xA0A0"),
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, instance.Initialize(context.Background()))
	return instance.(*MerkleAllocator)
}

func claimAux(t *testing.T, tree *merkle.AllocationTree, account ethcommon.Address, amount int64) []byte {
	t.Helper()
	proof, _, err := tree.ProveAccount(account)
	require.NoError(t, err)
	aux, err := EncodeMerkleClaim(big.NewInt(amount), proof)
	require.NoError(t, err)
	return aux
}

func TestMerkleAllocatorSetup(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")
	tree := buildTestTable(t)

	t.Run("stores root once per owner and campaign", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)

		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(tree.Root())))

		err := allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(tree.Root()))
		require.ErrorIs(t, err, disterrors.ErrCampaignAlreadyExists)

		// a different owner namespaces independently
		require.NoError(t, allocator.SetAllocationCampaign(ctx, ethcommon.HexToAddress("0xbeef"), 1, EncodeMerkleSetup(tree.Root())))
	})

	t.Run("rejects malformed aux", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)

		err := allocator.SetAllocationCampaign(ctx, owner, 1, []byte{0x01, 0x02})
		require.ErrorIs(t, err, disterrors.ErrInvalidAuxData)
	})

	t.Run("rejects zero root", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)

		err := allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(ethcommon.Hash{}))
		require.ErrorIs(t, err, disterrors.ErrInvalidAuxData)
	})
}

func TestMerkleAllocatorClaims(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")
	tree := buildTestTable(t)

	setup := func(t *testing.T) (*testEnv, *MerkleAllocator) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)
		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(tree.Root())))
		return env, allocator
	}

	t.Run("valid proof yields committed amount", func(t *testing.T) {
		_, allocator := setup(t)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, claimAux(t, tree, alice, 1))
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(1), amount)
	})

	t.Run("wrong amount with someone else's proof yields zero", func(t *testing.T) {
		_, allocator := setup(t)

		proof, _, err := tree.ProveAccount(bob)
		require.NoError(t, err)
		aux, err := EncodeMerkleClaim(big.NewInt(1), proof)
		require.NoError(t, err)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, aux)
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("unknown campaign yields zero", func(t *testing.T) {
		_, allocator := setup(t)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 99, alice, claimAux(t, tree, alice, 1))
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("malformed claim aux yields zero", func(t *testing.T) {
		_, allocator := setup(t)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, []byte{0xba, 0xad})
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("exhausted entitlement yields zero", func(t *testing.T) {
		env, allocator := setup(t)
		env.claims.set(1, alice, 1)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, claimAux(t, tree, alice, 1))
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})
}

func TestMerkleAllocatorUpdateRoot(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")
	tree := buildTestTable(t)

	t.Run("replaces root for configured campaign", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)
		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(tree.Root())))

		// new table doubles every amount
		updated, err := merkle.BuildAllocationTree([]merkle.Allocation{
			{Account: alice, Amount: sdkmath.NewInt(2)},
			{Account: bob, Amount: sdkmath.NewInt(4)},
		})
		require.NoError(t, err)
		require.NoError(t, allocator.UpdateRoot(ctx, owner, 1, updated.Root()))

		// old proof no longer verifies
		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, claimAux(t, tree, alice, 1))
		require.NoError(t, err)
		assert.True(t, amount.IsZero())

		// proof against the new table does
		amount, err = allocator.GetClaimeableAmount(ctx, owner, 1, alice, claimAux(t, updated, alice, 2))
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(2), amount)
	})

	t.Run("unconfigured campaign fails", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)

		err := allocator.UpdateRoot(ctx, owner, 7, tree.Root())
		require.ErrorIs(t, err, disterrors.ErrCampaignNotFound)
	})

	t.Run("zero root rejected", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newMerkleAllocator(t, env)
		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, EncodeMerkleSetup(tree.Root())))

		err := allocator.UpdateRoot(ctx, owner, 1, ethcommon.Hash{})
		require.ErrorIs(t, err, disterrors.ErrInvalidAuxData)
	})
}

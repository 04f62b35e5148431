package strategy

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	disterrors "github.com/dropline-network/dropline-node/distributor/errors"
)

var (
	eligTarget   = ethcommon.HexToAddress("0xe116")
	amountTarget = ethcommon.HexToAddress("0x0a0a")
	eligSel      = [4]byte{0x01, 0x02, 0x03, 0x04}
	amountSel    = [4]byte{0x05, 0x06, 0x07, 0x08}
)

func newCallDelegateAllocator(t *testing.T, env *testEnv) *CallDelegateAllocator {
	t.Helper()
	instance, err := NewCallDelegateBuilder(env.deps)(
		ethcommon.HexToAddress("0xca11"),
		ethcommon.HexToAddress("0xA0A0"),
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, instance.Initialize(context.Background()))
	return instance.(*CallDelegateAllocator)
}

func delegateAux(t *testing.T, desc CallDescriptors) []byte {
	t.Helper()
	aux, err := EncodeCallDelegateSetup(desc)
	require.NoError(t, err)
	return aux
}

func TestCallDelegateSetup(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")

	t.Run("binds descriptors once", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newCallDelegateAllocator(t, env)

		aux := delegateAux(t, CallDescriptors{
			EligibilityTarget:   eligTarget,
			EligibilitySelector: eligSel,
			AmountTarget:        amountTarget,
			AmountSelector:      amountSel,
		})
		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, aux))

		err := allocator.SetAllocationCampaign(ctx, owner, 1, aux)
		require.ErrorIs(t, err, disterrors.ErrCampaignAlreadyExists)
	})

	t.Run("amount target is mandatory", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newCallDelegateAllocator(t, env)

		aux := delegateAux(t, CallDescriptors{
			EligibilityTarget:   eligTarget,
			EligibilitySelector: eligSel,
		})
		err := allocator.SetAllocationCampaign(ctx, owner, 1, aux)
		require.ErrorIs(t, err, disterrors.ErrZeroAddress)
	})

	t.Run("malformed aux rejected", func(t *testing.T) {
		env := setupEnv(t)
		allocator := newCallDelegateAllocator(t, env)

		err := allocator.SetAllocationCampaign(ctx, owner, 1, []byte{0x00, 0x01})
		require.ErrorIs(t, err, disterrors.ErrInvalidAuxData)
	})
}

func TestCallDelegateClaims(t *testing.T) {
	ctx := context.Background()
	owner := ethcommon.HexToAddress("0xd15c0")

	setup := func(t *testing.T, desc CallDescriptors) (*testEnv, *CallDelegateAllocator) {
		env := setupEnv(t)
		allocator := newCallDelegateAllocator(t, env)
		require.NoError(t, allocator.SetAllocationCampaign(ctx, owner, 1, delegateAux(t, desc)))
		return env, allocator
	}

	fullDesc := CallDescriptors{
		EligibilityTarget:   eligTarget,
		EligibilitySelector: eligSel,
		AmountTarget:        amountTarget,
		AmountSelector:      amountSel,
	}

	t.Run("eligible account gets oracle amount", func(t *testing.T) {
		env, allocator := setup(t, fullDesc)
		env.reader.respond(eligTarget, eligSel, 1)
		env.reader.respond(amountTarget, amountSel, 42)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(42), amount)
	})

	t.Run("ineligible account yields zero without amount call", func(t *testing.T) {
		env, allocator := setup(t, fullDesc)
		env.reader.respond(eligTarget, eligSel, 0)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
		assert.Equal(t, 1, env.reader.calls)
	})

	t.Run("zero eligibility target means always eligible", func(t *testing.T) {
		env, allocator := setup(t, CallDescriptors{
			AmountTarget:   amountTarget,
			AmountSelector: amountSel,
		})
		env.reader.respond(amountTarget, amountSel, 7)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(7), amount)
	})

	t.Run("single claim policy zeroes repeat claimers", func(t *testing.T) {
		env, allocator := setup(t, fullDesc)
		env.reader.respond(eligTarget, eligSel, 1)
		env.reader.respond(amountTarget, amountSel, 42)
		env.claims.set(1, alice, 42)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("multiple claims policy keeps repeat claimers", func(t *testing.T) {
		multi := fullDesc
		multi.MultipleClaims = true
		env, allocator := setup(t, multi)
		env.reader.respond(eligTarget, eligSel, 1)
		env.reader.respond(amountTarget, amountSel, 42)
		env.claims.set(1, alice, 42)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.NoError(t, err)
		assert.Equal(t, sdkmath.NewInt(42), amount)
	})

	t.Run("unknown campaign yields zero", func(t *testing.T) {
		_, allocator := setup(t, fullDesc)

		amount, err := allocator.GetClaimeableAmount(ctx, owner, 5, alice, nil)
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("failing eligibility call is a hard failure", func(t *testing.T) {
		env, allocator := setup(t, fullDesc)
		env.reader.fail(eligTarget, eligSel, assert.AnError)

		_, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.ErrorIs(t, err, disterrors.ErrDelegatedCallFailed)
	})

	t.Run("failing amount call is a hard failure", func(t *testing.T) {
		env, allocator := setup(t, fullDesc)
		env.reader.respond(eligTarget, eligSel, 1)
		env.reader.fail(amountTarget, amountSel, assert.AnError)

		_, err := allocator.GetClaimeableAmount(ctx, owner, 1, alice, nil)
		require.ErrorIs(t, err, disterrors.ErrDelegatedCallFailed)
	})
}

package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

var (
	alice  = common.HexToAddress("0xa1")
	bob    = common.HexToAddress("0xb0")
	engine = common.HexToAddress("0xe0")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestLedgerTransferAndAllowance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH", 18)
	require.NoError(t, l.Mint(ctx, alice, u(100)))

	ok, err := l.Transfer(ctx, alice, bob, u(30))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u(70), l.BalanceOf(alice))
	assert.Equal(t, u(30), l.BalanceOf(bob))

	_, err = l.TransferFrom(ctx, engine, alice, engine, u(10))
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	_, err = l.Approve(ctx, alice, engine, u(50))
	require.NoError(t, err)
	ok, err = l.TransferFrom(ctx, engine, alice, engine, u(40))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u(10), l.Allowance(alice, engine))
	assert.Equal(t, u(40), l.BalanceOf(engine))

	_, err = l.Transfer(ctx, bob, alice, u(31))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, u(100), l.TotalSupply())
}

func TestLedgerRevertToSnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH", 18)
	require.NoError(t, l.Mint(ctx, alice, u(100)))

	scoped, id := l.Snapshot(ctx)
	_, err := l.Approve(scoped, alice, engine, u(60))
	require.NoError(t, err)
	_, err = l.TransferFrom(scoped, engine, alice, bob, u(60))
	require.NoError(t, err)
	require.NoError(t, l.Mint(scoped, bob, u(5)))
	l.RevertToSnapshot(id)

	assert.Equal(t, u(100), l.BalanceOf(alice))
	assert.True(t, l.BalanceOf(bob).IsZero())
	assert.True(t, l.Allowance(alice, engine).IsZero())
	assert.Equal(t, u(100), l.TotalSupply())
}

func TestLedgerRevertKeepsWritesOutsideScope(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH", 18)
	require.NoError(t, l.Mint(ctx, alice, u(100)))
	_, err := l.Approve(ctx, alice, engine, u(50))
	require.NoError(t, err)

	scoped, id := l.Snapshot(ctx)
	_, err = l.TransferFrom(scoped, engine, alice, engine, u(40))
	require.NoError(t, err)

	// Other callers write to the same accounts while the scope is open.
	require.NoError(t, l.Mint(ctx, engine, u(7)))
	require.NoError(t, l.Mint(ctx, bob, u(3)))
	_, err = l.Approve(ctx, bob, engine, u(9))
	require.NoError(t, err)
	l.RevertToSnapshot(id)

	assert.Equal(t, u(100), l.BalanceOf(alice))
	assert.Equal(t, u(7), l.BalanceOf(engine))
	assert.Equal(t, u(3), l.BalanceOf(bob))
	assert.Equal(t, u(50), l.Allowance(alice, engine))
	assert.Equal(t, u(9), l.Allowance(bob, engine))
	assert.Equal(t, u(110), l.TotalSupply())
}

func TestLedgerRevertLeavesLaterApprove(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH", 18)
	require.NoError(t, l.Mint(ctx, alice, u(100)))
	_, err := l.Approve(ctx, alice, engine, u(50))
	require.NoError(t, err)

	scoped, id := l.Snapshot(ctx)
	_, err = l.TransferFrom(scoped, engine, alice, engine, u(20))
	require.NoError(t, err)
	_, err = l.Approve(ctx, alice, engine, u(5))
	require.NoError(t, err)
	l.RevertToSnapshot(id)

	assert.Equal(t, u(5), l.Allowance(alice, engine))
	assert.Equal(t, u(100), l.BalanceOf(alice))
}

func TestLedgerReleaseKeepsChanges(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH", 18)
	scoped, id := l.Snapshot(ctx)
	require.NoError(t, l.Mint(scoped, alice, u(7)))
	l.Release(id)

	assert.Equal(t, u(7), l.BalanceOf(alice))
	assert.Empty(t, l.journals)

	l.RevertToSnapshot(id)
	assert.Equal(t, u(7), l.BalanceOf(alice), "a released scope has nothing to undo")
}

func TestStablecoinOwnerOnly(t *testing.T) {
	ctx := context.Background()
	dsc := NewStablecoin("DSC", alice)

	require.NoError(t, dsc.TransferOwnership(ctx, alice, engine))
	assert.Equal(t, engine, dsc.Owner())

	_, err := dsc.Mint(ctx, alice, bob, u(1))
	require.ErrorIs(t, err, domain.ErrNotOwner)

	ok, err := dsc.Mint(ctx, engine, bob, u(10))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = dsc.Mint(ctx, engine, common.Address{}, u(1))
	require.ErrorIs(t, err, domain.ErrZeroAddress)
	_, err = dsc.Mint(ctx, engine, bob, u(0))
	require.ErrorIs(t, err, domain.ErrNeedMoreThanZero)

	require.ErrorIs(t, dsc.Burn(ctx, engine, u(1)), domain.ErrBurnAmountExceedsBalance)

	_, err = dsc.Transfer(ctx, bob, engine, u(4))
	require.NoError(t, err)
	require.NoError(t, dsc.Burn(ctx, engine, u(4)))
	assert.Equal(t, u(6), dsc.TotalSupply())
	require.ErrorIs(t, dsc.Burn(ctx, engine, u(0)), domain.ErrNeedMoreThanZero)
}

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

var (
	user  = common.HexToAddress("0x1111")
	other = common.HexToAddress("0x2222")
	weth  = common.HexToAddress("0xe1")
)

func TestLedgerStoreMissingKeysReadZero(t *testing.T) {
	s := NewLedgerStore()
	err := s.View(context.Background(), func(r domain.LedgerReader) error {
		c, err := r.Collateral(context.Background(), user, weth)
		require.NoError(t, err)
		assert.True(t, c.IsZero())
		d, err := r.Debt(context.Background(), user)
		require.NoError(t, err)
		assert.True(t, d.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestLedgerStoreUpdateCommitsOrDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()

	require.NoError(t, s.Update(ctx, func(tx domain.LedgerTx) error {
		require.NoError(t, tx.SetCollateral(ctx, user, weth, uint256.NewInt(10)))
		got, err := tx.Collateral(ctx, user, weth)
		require.NoError(t, err)
		assert.Equal(t, uint256.NewInt(10), got, "writes are visible inside the batch")
		return tx.SetDebt(ctx, user, uint256.NewInt(3))
	}))

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx domain.LedgerTx) error {
		require.NoError(t, tx.SetCollateral(ctx, user, weth, uint256.NewInt(1)))
		require.NoError(t, tx.SetDebt(ctx, other, uint256.NewInt(99)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(r domain.LedgerReader) error {
		c, _ := r.Collateral(ctx, user, weth)
		d, _ := r.Debt(ctx, other)
		assert.Equal(t, uint256.NewInt(10), c)
		assert.True(t, d.IsZero())
		return nil
	}))

	accounts, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{user}, accounts)
}

func TestLedgerStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewLedgerStore()
	amount := uint256.NewInt(5)
	require.NoError(t, s.Update(ctx, func(tx domain.LedgerTx) error {
		return tx.SetDebt(ctx, user, amount)
	}))
	amount.SetUint64(500)

	require.NoError(t, s.View(ctx, func(r domain.LedgerReader) error {
		d, _ := r.Debt(ctx, user)
		assert.Equal(t, uint64(5), d.Uint64())
		d.SetUint64(7)
		d2, _ := r.Debt(ctx, user)
		assert.Equal(t, uint64(5), d2.Uint64())
		return nil
	}))
}

func TestEventStoreListAndBefore(t *testing.T) {
	ctx := context.Background()
	s := NewEventStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, domain.Event{
			ID:     string(rune('a' + i)),
			Kind:   domain.EventCollateralDeposited,
			Amount: uint256.NewInt(uint64(i)),
			At:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := s.List(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	old, err := s.ListBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "a", old[0].ID)

	empty, err := s.List(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAuditStoreLog(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()
	detail := map[string]any{"op": "mint_dsc"}
	require.NoError(t, s.Log(ctx, "engine.mint_dsc", detail))
	require.NoError(t, s.Log(ctx, "engine.burn_dsc", nil))
	detail["op"] = "changed"

	entries, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "engine.burn_dsc", entries[0].Event)
	assert.Equal(t, int64(1), entries[1].ID)
	assert.Equal(t, "mint_dsc", entries[1].Detail["op"])
}

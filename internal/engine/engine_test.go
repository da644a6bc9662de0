package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/oracle"
	"github.com/alanyoungcy/dscengine/internal/store/memory"
	"github.com/alanyoungcy/dscengine/internal/token"
)

var (
	custody    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	userA      = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	liquidator = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
	wethAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	wbtcAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) all() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

type fixture struct {
	eng      *Engine
	store    *memory.LedgerStore
	weth     *token.Ledger
	wbtc     *token.Ledger
	dsc      *token.Stablecoin
	wethFeed *oracle.StaticFeed
	sink     *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(domain.LedgerStore) domain.LedgerStore) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    memory.NewLedgerStore(),
		weth:     token.NewLedger("WETH", 18),
		wbtc:     token.NewLedger("WBTC", 18),
		dsc:      token.NewStablecoin("DSC", deployer),
		wethFeed: oracle.NewStaticFeed(big.NewInt(2000e8)),
		sink:     &recordingSink{},
	}
	require.NoError(t, f.dsc.TransferOwnership(ctx, deployer, custody))

	var store domain.LedgerStore = f.store
	if wrap != nil {
		store = wrap(store)
	}

	eng, err := New(Config{
		Custody: custody,
		Assets:  []common.Address{wethAddr, wbtcAddr},
		Feeds:   []domain.PriceFeed{f.wethFeed, oracle.NewStaticFeed(big.NewInt(1000e8))},
		Collateral: map[common.Address]domain.Token{
			wethAddr: f.weth,
			wbtcAddr: f.wbtc,
		},
		Stablecoin: f.dsc,
		Store:      store,
		Events:     f.sink,
	})
	require.NoError(t, err)
	f.eng = eng
	return f
}

// fund mints amount of weth to who and approves custody to pull it.
func (f *fixture) fund(t *testing.T, who common.Address, amount *uint256.Int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.weth.Mint(ctx, who, amount))
	_, err := f.weth.Approve(ctx, who, custody, amount)
	require.NoError(t, err)
}

func (f *fixture) approveDSC(t *testing.T, who common.Address, amount *uint256.Int) {
	t.Helper()
	_, err := f.dsc.Approve(context.Background(), who, custody, amount)
	require.NoError(t, err)
}

// openPosition deposits collateral weth and mints debt DSC for who.
func (f *fixture) openPosition(t *testing.T, who common.Address, collateral, debt *uint256.Int) {
	t.Helper()
	f.fund(t, who, collateral)
	require.NoError(t, f.eng.DepositCollateralAndMintDSC(context.Background(), who, wethAddr, collateral, debt))
}

func TestNewRejectsAssetFeedLengthMismatch(t *testing.T) {
	_, err := New(Config{
		Custody:    custody,
		Assets:     []common.Address{wethAddr, wbtcAddr},
		Feeds:      []domain.PriceFeed{oracle.NewStaticFeed(big.NewInt(1))},
		Stablecoin: token.NewStablecoin("DSC", custody),
		Store:      memory.NewLedgerStore(),
	})
	require.ErrorIs(t, err, domain.ErrAssetFeedLengthMismatch)
}

func TestNewRequiresCollateralToken(t *testing.T) {
	_, err := New(Config{
		Custody:    custody,
		Assets:     []common.Address{wethAddr},
		Feeds:      []domain.PriceFeed{oracle.NewStaticFeed(big.NewInt(1))},
		Stablecoin: token.NewStablecoin("DSC", custody),
		Store:      memory.NewLedgerStore(),
	})
	require.Error(t, err)
}

func TestDepositAndMintHealthFactor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))

	info, err := f.eng.AccountInfo(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(1000), info.TotalDSCMinted)
	assert.Equal(t, ether(20000), info.CollateralValueUSD)

	hf, err := f.eng.HealthFactor(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(10), hf)

	assert.Equal(t, ether(1000), f.dsc.BalanceOf(userA))
	assert.Equal(t, ether(10), f.weth.BalanceOf(custody))
	assert.True(t, f.weth.BalanceOf(userA).IsZero())

	events := f.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCollateralDeposited, events[0].Kind)
	assert.Equal(t, userA, events[0].User)
	assert.Equal(t, ether(10), events[0].Amount)
	assert.NotEmpty(t, events[0].ID)
}

func TestMintBreakingHealthFactorIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, userA, ether(10))
	require.NoError(t, f.eng.DepositCollateral(ctx, userA, wethAddr, ether(10)))

	err := f.eng.MintDSC(ctx, userA, ether(20000))
	require.ErrorIs(t, err, domain.ErrBreaksHealthFactor)

	var hfErr *domain.HealthFactorError
	require.ErrorAs(t, err, &hfErr)
	assert.Equal(t, userA, hfErr.User)
	assert.Equal(t, dec(t, "500000000000000000"), hfErr.HealthFactor)

	debt, err := f.eng.DSCMinted(ctx, userA)
	require.NoError(t, err)
	assert.True(t, debt.IsZero())
	assert.True(t, f.dsc.TotalSupply().IsZero())
}

func TestHealthFactorWithoutDebtErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, userA, ether(1))
	require.NoError(t, f.eng.DepositCollateral(ctx, userA, wethAddr, ether(1)))

	_, err := f.eng.HealthFactor(ctx, userA)
	require.ErrorIs(t, err, domain.ErrNeedMoreThanZero)
}

func TestZeroAmountsRejectedBeforeMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))
	zero := new(uint256.Int)

	calls := map[string]func() error{
		"deposit":      func() error { return f.eng.DepositCollateral(ctx, userA, wethAddr, zero) },
		"mint":         func() error { return f.eng.MintDSC(ctx, userA, zero) },
		"deposit_mint": func() error { return f.eng.DepositCollateralAndMintDSC(ctx, userA, wethAddr, ether(1), zero) },
		"redeem":       func() error { return f.eng.RedeemCollateral(ctx, userA, wethAddr, nil) },
		"burn":         func() error { return f.eng.BurnDSC(ctx, userA, zero) },
		"redeem_burn":  func() error { return f.eng.RedeemCollateralForDSC(ctx, userA, wethAddr, zero, ether(1)) },
		"liquidate": func() error {
			_, err := f.eng.Liquidate(ctx, liquidator, wethAddr, userA, zero)
			return err
		},
	}
	for name, fn := range calls {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, fn(), domain.ErrNeedMoreThanZero)
		})
	}

	info, err := f.eng.AccountInfo(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(1000), info.TotalDSCMinted)
	assert.Equal(t, ether(20000), info.CollateralValueUSD)
	assert.Len(t, f.sink.all(), 1)
}

func TestDepositRejectsUnknownAsset(t *testing.T) {
	f := newFixture(t)
	err := f.eng.DepositCollateral(context.Background(), userA, common.HexToAddress("0xdead"), ether(1))
	require.ErrorIs(t, err, domain.ErrNotAllowedToken)
}

func TestDepositTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.weth.Mint(ctx, userA, ether(5)))

	err := f.eng.DepositCollateral(ctx, userA, wethAddr, ether(5))
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	q, err := f.eng.CollateralDeposited(ctx, userA, wethAddr)
	require.NoError(t, err)
	assert.True(t, q.IsZero())
	assert.Empty(t, f.sink.all())
}

func TestDepositAndMintRevertsCollateralTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, userA, ether(10))

	err := f.eng.DepositCollateralAndMintDSC(ctx, userA, wethAddr, ether(10), ether(10001))
	require.ErrorIs(t, err, domain.ErrBreaksHealthFactor)

	assert.Equal(t, ether(10), f.weth.BalanceOf(userA))
	assert.Equal(t, ether(10), f.weth.Allowance(userA, custody))
	assert.True(t, f.weth.BalanceOf(custody).IsZero())
	assert.Empty(t, f.sink.all())

	accounts, err := f.store.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRedeemCollateral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))

	err := f.eng.RedeemCollateral(ctx, userA, wethAddr, ether(10))
	require.ErrorIs(t, err, domain.ErrBreaksHealthFactor)
	assert.True(t, f.weth.BalanceOf(userA).IsZero())

	err = f.eng.RedeemCollateral(ctx, userA, wethAddr, ether(11))
	require.ErrorIs(t, err, domain.ErrInsufficientCollateral)

	require.NoError(t, f.eng.RedeemCollateral(ctx, userA, wethAddr, ether(5)))
	assert.Equal(t, ether(5), f.weth.BalanceOf(userA))

	hf, err := f.eng.HealthFactor(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(5), hf)

	events := f.sink.all()
	require.Len(t, events, 2)
	redeemed := events[1]
	assert.Equal(t, domain.EventCollateralRedeemed, redeemed.Kind)
	assert.Equal(t, userA, redeemed.From)
	assert.Equal(t, userA, redeemed.To)
	assert.Equal(t, ether(5), redeemed.Amount)
}

func TestRedeemWithoutDebtSkipsRatio(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, userA, ether(3))
	require.NoError(t, f.eng.DepositCollateral(ctx, userA, wethAddr, ether(3)))
	require.NoError(t, f.eng.RedeemCollateral(ctx, userA, wethAddr, ether(3)))
	assert.Equal(t, ether(3), f.weth.BalanceOf(userA))
}

func TestBurnDSC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))

	err := f.eng.BurnDSC(ctx, userA, ether(10))
	require.ErrorIs(t, err, domain.ErrTransferFailed, "custody needs an allowance")

	f.approveDSC(t, userA, ether(2000))
	err = f.eng.BurnDSC(ctx, userA, ether(1001))
	require.ErrorIs(t, err, domain.ErrInsufficientDebt)

	require.NoError(t, f.eng.BurnDSC(ctx, userA, ether(400)))
	debt, err := f.eng.DSCMinted(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(600), debt)
	assert.Equal(t, ether(600), f.dsc.TotalSupply())
	assert.Equal(t, ether(600), f.dsc.BalanceOf(userA))
}

func TestRedeemCollateralForDSCClosesPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))
	f.approveDSC(t, userA, ether(1000))

	require.NoError(t, f.eng.RedeemCollateralForDSC(ctx, userA, wethAddr, ether(10), ether(1000)))

	info, err := f.eng.AccountInfo(ctx, userA)
	require.NoError(t, err)
	assert.True(t, info.TotalDSCMinted.IsZero())
	assert.True(t, info.CollateralValueUSD.IsZero())
	assert.Equal(t, ether(10), f.weth.BalanceOf(userA))
	assert.True(t, f.dsc.TotalSupply().IsZero())
}

func TestMonotonicity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(2000))
	f.fund(t, userA, ether(5))
	f.approveDSC(t, userA, ether(2000))

	hf := func() *uint256.Int {
		v, err := f.eng.HealthFactor(ctx, userA)
		require.NoError(t, err)
		return v
	}

	before := hf()
	require.NoError(t, f.eng.DepositCollateral(ctx, userA, wethAddr, ether(5)))
	afterDeposit := hf()
	assert.False(t, afterDeposit.Lt(before), "deposit never lowers the ratio")

	require.NoError(t, f.eng.BurnDSC(ctx, userA, ether(500)))
	afterBurn := hf()
	assert.False(t, afterBurn.Lt(afterDeposit), "burn never lowers the ratio")

	require.NoError(t, f.eng.MintDSC(ctx, userA, ether(500)))
	afterMint := hf()
	assert.False(t, afterMint.Gt(afterBurn), "mint never raises the ratio")

	require.NoError(t, f.eng.RedeemCollateral(ctx, userA, wethAddr, ether(2)))
	afterRedeem := hf()
	assert.False(t, afterRedeem.Gt(afterMint), "redeem never raises the ratio")
	assert.False(t, afterRedeem.Lt(MinHealthFactor()))
}

func TestValuationRoundTrip(t *testing.T) {
	prices := []uint64{1, 3, 99_999_999, 2000e8, 123_456_789_012}
	quantities := []*uint256.Int{
		uint256.NewInt(1),
		uint256.NewInt(7),
		ether(1),
		dec(t, "123456789123456789123"),
	}
	for _, p := range prices {
		price := uint256.NewInt(p)
		scaled := new(uint256.Int).Mul(price, feedScale)
		bound := new(uint256.Int).Div(unit, scaled)
		bound.AddUint64(bound, 1)
		for _, q := range quantities {
			usd, err := usdValue(price, q)
			require.NoError(t, err)
			back, err := tokenAmountFromUSD(price, usd)
			require.NoError(t, err)
			assert.False(t, back.Gt(q), "price %d qty %s", p, q.Dec())
			gap := new(uint256.Int).Sub(q, back)
			assert.False(t, gap.Gt(bound), "price %d qty %s gap %s", p, q.Dec(), gap.Dec())
		}
	}
}

func TestValuationQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	usd, err := f.eng.USDValue(ctx, wethAddr, ether(15))
	require.NoError(t, err)
	assert.Equal(t, ether(30000), usd)

	q, err := f.eng.TokenAmountFromUSD(ctx, wethAddr, ether(100))
	require.NoError(t, err)
	assert.Equal(t, dec(t, "50000000000000000"), q)

	_, err = f.eng.USDValue(ctx, common.HexToAddress("0x01"), ether(1))
	require.ErrorIs(t, err, domain.ErrNotAllowedToken)

	f.wethFeed.UpdateAnswer(big.NewInt(0))
	_, err = f.eng.USDValue(ctx, wethAddr, ether(1))
	require.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestValuationOverflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	_, err := usdValue(uint256.NewInt(2000e8), huge)
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)
}

func TestCalculateHealthFactor(t *testing.T) {
	hf, err := CalculateHealthFactor(ether(100), ether(1000))
	require.NoError(t, err)
	assert.Equal(t, ether(5), hf)

	_, err = CalculateHealthFactor(new(uint256.Int), ether(1000))
	require.ErrorIs(t, err, domain.ErrNeedMoreThanZero)
}

func TestGetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(2), ether(100))

	assert.Equal(t, []common.Address{wethAddr, wbtcAddr}, f.eng.CollateralTokens())

	feed, err := f.eng.PriceFeed(wethAddr)
	require.NoError(t, err)
	assert.Same(t, f.wethFeed, feed)

	balances, err := f.eng.CollateralBalances(ctx, userA)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, ether(2), balances[0].Amount)
	assert.True(t, balances[1].Amount.IsZero())

	value, err := f.eng.AccountCollateralValue(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(4000), value)

	p := f.eng.Params()
	assert.Equal(t, uint64(50), p.LiquidationThreshold)
	assert.Equal(t, uint64(10), p.LiquidationBonus)
	assert.Equal(t, uint64(1e18), p.MinHealthFactor)
	assert.Equal(t, custody, f.eng.Custody())
}

type failingCommit struct {
	domain.LedgerStore
	err error
}

func (s failingCommit) Update(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return s.LedgerStore.Update(ctx, func(tx domain.LedgerTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return s.err
	})
}

func TestCommitFailureRevertsTokens(t *testing.T) {
	boom := errors.New("serialization failure")
	f := newFixtureWithStore(t, func(s domain.LedgerStore) domain.LedgerStore {
		return failingCommit{LedgerStore: s, err: boom}
	})
	f.fund(t, userA, ether(1))

	err := f.eng.DepositCollateral(context.Background(), userA, wethAddr, ether(1))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, ether(1), f.weth.BalanceOf(userA))
	assert.Empty(t, f.sink.all())
}

// midCallFeed runs hook on the first price read after it is armed.
type midCallFeed struct {
	domain.PriceFeed
	armed bool
	hook  func()
}

func (m *midCallFeed) LatestRoundData(ctx context.Context) (domain.RoundData, error) {
	if m.armed {
		m.armed = false
		m.hook()
	}
	return m.PriceFeed.LatestRoundData(ctx)
}

func TestFailedCallKeepsOtherCallersTokenWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bystander := common.HexToAddress("0x000000000000000000000000000000000000f00d")

	feed := &midCallFeed{PriceFeed: f.wethFeed}
	feed.hook = func() {
		require.NoError(t, f.weth.Mint(context.Background(), bystander, ether(5)))
		_, err := f.weth.Approve(context.Background(), bystander, custody, ether(5))
		require.NoError(t, err)
		_, err = f.dsc.Approve(context.Background(), bystander, custody, ether(7))
		require.NoError(t, err)
	}
	eng, err := New(Config{
		Custody:    custody,
		Assets:     []common.Address{wethAddr, wbtcAddr},
		Feeds:      []domain.PriceFeed{feed, oracle.NewStaticFeed(big.NewInt(1000e8))},
		Collateral: map[common.Address]domain.Token{wethAddr: f.weth, wbtcAddr: f.wbtc},
		Stablecoin: f.dsc,
		Store:      f.store,
	})
	require.NoError(t, err)

	f.fund(t, userA, ether(10))
	require.NoError(t, eng.DepositCollateralAndMintDSC(ctx, userA, wethAddr, ether(10), ether(10000)))

	feed.armed = true
	err = eng.RedeemCollateral(ctx, userA, wethAddr, ether(1))
	require.ErrorIs(t, err, domain.ErrBreaksHealthFactor)
	require.False(t, feed.armed, "hook ran during the call")

	assert.Equal(t, ether(5), f.weth.BalanceOf(bystander))
	assert.Equal(t, ether(5), f.weth.Allowance(bystander, custody))
	assert.Equal(t, ether(7), f.dsc.Allowance(bystander, custody))
	assert.Equal(t, ether(15), f.weth.TotalSupply())

	assert.True(t, f.weth.BalanceOf(userA).IsZero())
	assert.Equal(t, ether(10), f.weth.BalanceOf(custody))
	left, err := eng.CollateralDeposited(ctx, userA, wethAddr)
	require.NoError(t, err)
	assert.Equal(t, ether(10), left)
}

func TestConcurrentDepositsAreSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, userA, ether(50))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.eng.DepositCollateral(ctx, userA, wethAddr, ether(1)))
		}()
	}
	wg.Wait()

	q, err := f.eng.CollateralDeposited(ctx, userA, wethAddr)
	require.NoError(t, err)
	assert.Equal(t, ether(50), q)
	assert.Equal(t, ether(50), f.weth.BalanceOf(custody))
}

func TestAccountHealth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openPosition(t, userA, ether(10), ether(1000))
	f.fund(t, deployer, ether(1))
	require.NoError(t, f.eng.DepositCollateral(ctx, deployer, wethAddr, ether(1)))

	info, hf, err := f.eng.AccountHealth(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, ether(1000), info.TotalDSCMinted)
	assert.Equal(t, ether(20000), info.CollateralValueUSD)
	assert.Equal(t, ether(10), hf)

	_, hf, err = f.eng.AccountHealth(ctx, deployer)
	require.NoError(t, err)
	assert.Nil(t, hf)

	users, err := f.eng.Accounts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Address{userA, deployer}, users)
}

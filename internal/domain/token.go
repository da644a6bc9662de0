package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the fungible-token surface the engine needs from a collateral
// asset. A false result or an error means the transfer did not happen.
type Token interface {
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (bool, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (bool, error)
}

// StableToken is the pegged token. Only its owner may mint or burn.
type StableToken interface {
	Token
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) (bool, error)
	Burn(ctx context.Context, caller common.Address, amount *uint256.Int) error
}

// Journaled collaborators can undo their own effects. The engine snapshots
// every journaled token before a call, runs the call with the returned
// context, and reverts on failure. Only writes made with that context are
// reverted.
type Journaled interface {
	Snapshot(ctx context.Context) (context.Context, int)
	RevertToSnapshot(id int)
	Release(id int)
}

// RoundData is a price round as reported by an aggregator feed.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// PriceFeed reports the latest price round for one asset. Answers carry
// 8 decimals.
type PriceFeed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
}

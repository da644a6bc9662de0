package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountInfo summarises a user's position.
type AccountInfo struct {
	TotalDSCMinted     *uint256.Int
	CollateralValueUSD *uint256.Int
}

// CollateralBalance is one (asset, quantity) entry of a user's collateral.
type CollateralBalance struct {
	Asset  common.Address
	Amount *uint256.Int
}

// Liquidation is the receipt of a successful liquidation.
type Liquidation struct {
	User                 common.Address
	Liquidator           common.Address
	Asset                common.Address
	DebtCovered          *uint256.Int
	CollateralSeized     *uint256.Int
	Bonus                *uint256.Int
	StartingHealthFactor *uint256.Int
	EndingHealthFactor   *uint256.Int
}

// EventKind names an engine event.
type EventKind string

const (
	EventCollateralDeposited EventKind = "CollateralDeposited"
	EventCollateralRedeemed  EventKind = "CollateralRedeemed"
)

// Event is emitted after a state-changing engine call commits. Deposits set
// User; redemptions set From and To.
type Event struct {
	ID     string
	Kind   EventKind
	User   common.Address
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *uint256.Int
	At     time.Time
}

// EventRecord is the JSON shape of an Event used on the bus, in the archive
// and over HTTP.
type EventRecord struct {
	ID     string    `json:"id"`
	Kind   EventKind `json:"kind"`
	User   string    `json:"user,omitempty"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
	At     time.Time `json:"at"`
}

// Record converts e to its JSON shape.
func (e Event) Record() EventRecord {
	r := EventRecord{
		ID:     e.ID,
		Kind:   e.Kind,
		Asset:  e.Asset.Hex(),
		Amount: "0",
		At:     e.At,
	}
	if e.Amount != nil {
		r.Amount = e.Amount.Dec()
	}
	switch e.Kind {
	case EventCollateralDeposited:
		r.User = e.User.Hex()
	case EventCollateralRedeemed:
		r.From = e.From.Hex()
		r.To = e.To.Hex()
	}
	return r
}

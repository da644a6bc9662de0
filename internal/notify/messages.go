package notify

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// amountDecimals is the precision of DSC, USD values and health factors.
const amountDecimals = 18

// FormatUnits renders a base-unit amount with the given number of decimals,
// trimming trailing zeros ("1500.25").
func FormatUnits(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

// FormatHealthFactor renders an 18-decimal ratio with four fractional digits.
func FormatHealthFactor(hf *uint256.Int) string {
	if hf == nil {
		return "n/a"
	}
	return decimal.NewFromBigInt(hf.ToBig(), -amountDecimals).StringFixed(4)
}

// LiquidationMessage builds the alert for a completed liquidation. symbol and
// decimals describe the seized collateral.
func LiquidationMessage(l domain.Liquidation, symbol string, decimals uint8) (title, message string) {
	title = "Liquidation executed"
	var b strings.Builder
	fmt.Fprintf(&b, "user `%s`\n", l.User.Hex())
	fmt.Fprintf(&b, "liquidator `%s`\n", l.Liquidator.Hex())
	fmt.Fprintf(&b, "debt covered `%s DSC`\n", FormatUnits(l.DebtCovered, amountDecimals))
	fmt.Fprintf(&b, "seized `%s %s` (bonus `%s`)\n",
		FormatUnits(l.CollateralSeized, int32(decimals)), symbol,
		FormatUnits(l.Bonus, int32(decimals)))
	fmt.Fprintf(&b, "health factor `%s` -> `%s`",
		FormatHealthFactor(l.StartingHealthFactor), FormatHealthFactor(l.EndingHealthFactor))
	return title, b.String()
}

// LiquidatableMessage builds the alert for an account found below the
// minimum health factor.
func LiquidatableMessage(user common.Address, info domain.AccountInfo, hf *uint256.Int) (title, message string) {
	title = "Account liquidatable"
	message = fmt.Sprintf("user `%s`\nhealth factor `%s`\ndebt `%s DSC`\ncollateral `$%s`",
		user.Hex(),
		FormatHealthFactor(hf),
		FormatUnits(info.TotalDSCMinted, amountDecimals),
		FormatUnits(info.CollateralValueUSD, amountDecimals),
	)
	return title, message
}

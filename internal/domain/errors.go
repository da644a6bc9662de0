package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Engine failure kinds. Every failed engine call returns one of these (possibly
// wrapped) and leaves no partial state behind.
var (
	ErrNeedMoreThanZero        = errors.New("need more than zero")
	ErrNotAllowedToken         = errors.New("token not allowed")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrBreaksHealthFactor      = errors.New("breaks health factor")
	ErrMintFailed              = errors.New("mint failed")
	ErrHealthFactorOk          = errors.New("health factor ok")
	ErrHealthFactorNotImproved = errors.New("health factor not improved")
	ErrAssetFeedLengthMismatch = errors.New("token addresses and price feed addresses must be same length")

	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientDebt       = errors.New("insufficient debt")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
	ErrInvalidPrice           = errors.New("invalid oracle price")
	ErrStalePrice             = errors.New("stale oracle price")
	ErrOracleUnavailable      = errors.New("oracle unavailable")
)

// Token collaborator failures.
var (
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientAllowance    = errors.New("insufficient allowance")
	ErrNotOwner                 = errors.New("caller is not the owner")
	ErrZeroAddress              = errors.New("zero address")
	ErrBurnAmountExceedsBalance = errors.New("burn amount exceeds balance")
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrLockHeld     = errors.New("lock already held")
)

// HealthFactorError reports the ratio that broke the minimum health factor.
// It matches ErrBreaksHealthFactor under errors.Is.
type HealthFactorError struct {
	User         common.Address
	HealthFactor *uint256.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("breaks health factor: %s for %s", e.HealthFactor.Dec(), e.User.Hex())
}

func (e *HealthFactorError) Unwrap() error { return ErrBreaksHealthFactor }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNeedMoreThanZero, "need_more_than_zero"},
	{ErrNotAllowedToken, "not_allowed_token"},
	{ErrBreaksHealthFactor, "breaks_health_factor"},
	{ErrHealthFactorOk, "health_factor_ok"},
	{ErrHealthFactorNotImproved, "health_factor_not_improved"},
	{ErrMintFailed, "mint_failed"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrAssetFeedLengthMismatch, "asset_feed_length_mismatch"},
	{ErrInsufficientCollateral, "insufficient_collateral"},
	{ErrInsufficientDebt, "insufficient_debt"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrStalePrice, "stale_price"},
	{ErrOracleUnavailable, "oracle_unavailable"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientAllowance, "insufficient_allowance"},
	{ErrNotOwner, "not_owner"},
	{ErrZeroAddress, "zero_address"},
	{ErrBurnAmountExceedsBalance, "burn_amount_exceeds_balance"},
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrRateLimited, "rate_limited"},
	{ErrLockHeld, "lock_held"},
}

// ErrorCode returns a stable machine-readable code for err: "ok" for nil,
// the first matching kind otherwise, "internal" when nothing matches.
// Collaborator failures wrap the token's own error, so the engine kinds are
// checked first.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

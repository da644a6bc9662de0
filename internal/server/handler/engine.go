package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// EngineService is the state-changing surface of the account service.
type EngineService interface {
	DepositCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	RedeemCollateral(ctx context.Context, user, asset common.Address, amount *uint256.Int) error
	DepositCollateralAndMintDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error
	RedeemCollateralForDSC(ctx context.Context, user, asset common.Address, amountCollateral, amountDSC *uint256.Int) error
	MintDSC(ctx context.Context, user common.Address, amount *uint256.Int) error
	BurnDSC(ctx context.Context, user common.Address, amount *uint256.Int) error
	Liquidate(ctx context.Context, liquidator, asset, user common.Address, debtToCover *uint256.Int) (domain.Liquidation, error)
}

// EngineHandler serves the signed engine operations. The caller is always
// the signer of the request.
type EngineHandler struct {
	svc    EngineService
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(svc EngineService, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{svc: svc, logger: logger.With(slog.String("handler", "engine"))}
}

type collateralRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type positionRequest struct {
	Asset            string `json:"asset"`
	AmountCollateral string `json:"amount_collateral"`
	AmountDSC        string `json:"amount_dsc"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type liquidationRequest struct {
	Asset       string `json:"asset"`
	User        string `json:"user"`
	DebtToCover string `json:"debt_to_cover"`
}

type okResponse struct {
	Status string `json:"status"`
	User   string `json:"user"`
}

// LiquidationResponse is the receipt returned by POST /api/liquidations.
type LiquidationResponse struct {
	User                 string `json:"user"`
	Liquidator           string `json:"liquidator"`
	Asset                string `json:"asset"`
	DebtCovered          string `json:"debt_covered"`
	CollateralSeized     string `json:"collateral_seized"`
	Bonus                string `json:"bonus"`
	StartingHealthFactor string `json:"starting_health_factor"`
	EndingHealthFactor   string `json:"ending_health_factor"`
}

// Deposit moves collateral from the caller into custody.
// POST /api/collateral/deposit
func (h *EngineHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.collateralOp(w, r, h.svc.DepositCollateral)
}

// Redeem returns collateral to the caller.
// POST /api/collateral/redeem
func (h *EngineHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	h.collateralOp(w, r, h.svc.RedeemCollateral)
}

// DepositAndMint deposits collateral and mints DSC in one call.
// POST /api/collateral/deposit-and-mint
func (h *EngineHandler) DepositAndMint(w http.ResponseWriter, r *http.Request) {
	h.positionOp(w, r, h.svc.DepositCollateralAndMintDSC)
}

// RedeemForDSC burns DSC and redeems collateral in one call.
// POST /api/collateral/redeem-for-dsc
func (h *EngineHandler) RedeemForDSC(w http.ResponseWriter, r *http.Request) {
	h.positionOp(w, r, h.svc.RedeemCollateralForDSC)
}

// Mint mints DSC against the caller's collateral.
// POST /api/dsc/mint
func (h *EngineHandler) Mint(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.svc.MintDSC)
}

// Burn repays the caller's debt.
// POST /api/dsc/burn
func (h *EngineHandler) Burn(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.svc.BurnDSC)
}

// Liquidate covers part of an undercollateralised user's debt with the
// caller's DSC.
// POST /api/liquidations
func (h *EngineHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	liquidator, ok := caller(w, r)
	if !ok {
		return
	}
	var req liquidationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	debt, err := parseAmount("debt_to_cover", req.DebtToCover)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	receipt, err := h.svc.Liquidate(r.Context(), liquidator, asset, user, debt)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	resp := LiquidationResponse{
		User:                 receipt.User.Hex(),
		Liquidator:           receipt.Liquidator.Hex(),
		Asset:                receipt.Asset.Hex(),
		DebtCovered:          decString(receipt.DebtCovered),
		CollateralSeized:     decString(receipt.CollateralSeized),
		Bonus:                decString(receipt.Bonus),
		StartingHealthFactor: decString(receipt.StartingHealthFactor),
		EndingHealthFactor:   decString(receipt.EndingHealthFactor),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *EngineHandler) collateralOp(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address, common.Address, *uint256.Int) error) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req collateralRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := op(r.Context(), user, asset, amount); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok", User: user.Hex()})
}

func (h *EngineHandler) positionOp(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address, common.Address, *uint256.Int, *uint256.Int) error) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amountCollateral, err := parseAmount("amount_collateral", req.AmountCollateral)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amountDSC, err := parseAmount("amount_dsc", req.AmountDSC)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := op(r.Context(), user, asset, amountCollateral, amountDSC); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok", User: user.Hex()})
}

func (h *EngineHandler) amountOp(w http.ResponseWriter, r *http.Request, op func(context.Context, common.Address, *uint256.Int) error) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := op(r.Context(), user, amount); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Status: "ok", User: user.Hex()})
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/engine"
	"github.com/alanyoungcy/dscengine/internal/service"
)

// AccountQueries is the read side of the account service.
type AccountQueries interface {
	AccountHealth(ctx context.Context, user common.Address) (domain.AccountInfo, *uint256.Int, error)
	HealthFactor(ctx context.Context, user common.Address) (*uint256.Int, error)
	CollateralDeposited(ctx context.Context, user, asset common.Address) (*uint256.Int, error)
	CollateralBalances(ctx context.Context, user common.Address) ([]domain.CollateralBalance, error)
	USDValue(ctx context.Context, asset common.Address, amount *uint256.Int) (*uint256.Int, error)
	TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *uint256.Int) (*uint256.Int, error)
	Collateral() []service.CollateralAsset
	PriceFeed(asset common.Address) (domain.PriceFeed, error)
	Params() engine.Params
	Custody() common.Address
}

// AccountHandler serves account, collateral and valuation queries.
type AccountHandler struct {
	svc    AccountQueries
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(svc AccountQueries, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger.With(slog.String("handler", "account"))}
}

type balanceJSON struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// AccountResponse is the body of GET /api/accounts/{address}.
type AccountResponse struct {
	Address            string        `json:"address"`
	TotalDSCMinted     string        `json:"total_dsc_minted"`
	CollateralValueUSD string        `json:"collateral_value_usd"`
	CollateralDisplay  string        `json:"collateral_value_display"`
	HealthFactor       *string       `json:"health_factor"`
	HealthFactorCode   string        `json:"health_factor_code,omitempty"`
	Liquidatable       bool          `json:"liquidatable"`
	Collateral         []balanceJSON `json:"collateral"`
}

// GetAccount returns the user's position. A user without debt has no
// health factor; health_factor is null and health_factor_code says why.
// GET /api/accounts/{address}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	info, hf, err := h.svc.AccountHealth(r.Context(), user)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	balances, err := h.svc.CollateralBalances(r.Context(), user)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	resp := AccountResponse{
		Address:            user.Hex(),
		TotalDSCMinted:     decString(info.TotalDSCMinted),
		CollateralValueUSD: decString(info.CollateralValueUSD),
		CollateralDisplay:  display(info.CollateralValueUSD, 18),
		Collateral:         make([]balanceJSON, 0, len(balances)),
	}
	if hf == nil {
		resp.HealthFactorCode = domain.ErrorCode(domain.ErrNeedMoreThanZero)
	} else {
		s := hf.Dec()
		resp.HealthFactor = &s
		resp.Liquidatable = hf.Lt(engine.MinHealthFactor())
	}
	for _, b := range balances {
		resp.Collateral = append(resp.Collateral, balanceJSON{Asset: b.Asset.Hex(), Amount: decString(b.Amount)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealthFactor returns the user's health factor, or the zero-debt error.
// GET /api/accounts/{address}/health-factor
func (h *AccountHandler) GetHealthFactor(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	hf, err := h.svc.HealthFactor(r.Context(), user)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":       user.Hex(),
		"health_factor": hf.Dec(),
		"display":       display(hf, 18),
		"liquidatable":  hf.Lt(engine.MinHealthFactor()),
	})
}

// GetCollateral returns how much of one asset the user has deposited.
// GET /api/accounts/{address}/collateral/{asset}
func (h *AccountHandler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	asset, err := parseAddress("asset", r.PathValue("asset"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := h.svc.CollateralDeposited(r.Context(), user, asset)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": user.Hex(),
		"asset":   asset.Hex(),
		"amount":  decString(amount),
	})
}

type collateralAssetJSON struct {
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Feed     string `json:"feed"`
}

// ListCollateral returns the accepted assets and the engine constants.
// GET /api/collateral
func (h *AccountHandler) ListCollateral(w http.ResponseWriter, _ *http.Request) {
	assets := h.svc.Collateral()
	out := make([]collateralAssetJSON, 0, len(assets))
	for _, a := range assets {
		item := collateralAssetJSON{Asset: a.Asset.Hex(), Symbol: a.Symbol, Decimals: a.Decimals, Feed: "static"}
		if feed, err := h.svc.PriceFeed(a.Asset); err == nil {
			if addr, ok := feed.(interface{ Address() common.Address }); ok {
				item.Feed = addr.Address().Hex()
			}
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"custody": h.svc.Custody().Hex(),
		"assets":  out,
		"params":  h.svc.Params(),
	})
}

// USDValue prices an amount of an asset.
// GET /api/valuation/usd?asset=&amount=
func (h *AccountHandler) USDValue(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := h.valuationArgs(w, r, "amount")
	if !ok {
		return
	}
	usd, err := h.svc.USDValue(r.Context(), asset, amount)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":       asset.Hex(),
		"amount":      amount.Dec(),
		"usd":         usd.Dec(),
		"usd_display": display(usd, 18),
	})
}

// TokenAmount converts a USD value into an amount of an asset.
// GET /api/valuation/amount?asset=&usd=
func (h *AccountHandler) TokenAmount(w http.ResponseWriter, r *http.Request) {
	asset, usd, ok := h.valuationArgs(w, r, "usd")
	if !ok {
		return
	}
	amount, err := h.svc.TokenAmountFromUSD(r.Context(), asset, usd)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":  asset.Hex(),
		"usd":    usd.Dec(),
		"amount": amount.Dec(),
	})
}

func (h *AccountHandler) valuationArgs(w http.ResponseWriter, r *http.Request, amountParam string) (common.Address, *uint256.Int, bool) {
	q := r.URL.Query()
	asset, err := parseAddress("asset", q.Get("asset"))
	if err != nil {
		badRequest(w, err.Error())
		return common.Address{}, nil, false
	}
	amount, err := parseAmount(amountParam, q.Get(amountParam))
	if err != nil {
		badRequest(w, err.Error())
		return common.Address{}, nil, false
	}
	return asset, amount, true
}

// display renders a base-unit amount as a decimal string.
func display(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

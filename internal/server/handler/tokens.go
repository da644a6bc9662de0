package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger is the token surface exposed over HTTP.
type Ledger interface {
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) (bool, error)
}

// faucet is implemented by tokens anyone may mint. The stablecoin is not
// one of them.
type faucet interface {
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// TokenEntry binds a ledger to its address.
type TokenEntry struct {
	Address common.Address
	Ledger  Ledger
}

// TokenHandler serves balances, approvals and the dev faucet.
type TokenHandler struct {
	tokens     []TokenEntry
	custody    common.Address
	faucetOpen bool
	logger     *slog.Logger
}

// NewTokenHandler creates a TokenHandler. Approvals default to custody as
// the spender; the faucet answers 404 unless faucetOpen is set.
func NewTokenHandler(tokens []TokenEntry, custody common.Address, faucetOpen bool, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens:     tokens,
		custody:    custody,
		faucetOpen: faucetOpen,
		logger:     logger.With(slog.String("handler", "tokens")),
	}
}

// lookup resolves a token by symbol (case-insensitive) or address.
func (h *TokenHandler) lookup(ref string) (TokenEntry, bool) {
	isAddr := common.IsHexAddress(ref)
	for _, t := range h.tokens {
		if isAddr && t.Address == common.HexToAddress(ref) {
			return t, true
		}
		if strings.EqualFold(t.Ledger.Symbol(), ref) {
			return t, true
		}
	}
	return TokenEntry{}, false
}

type tokenJSON struct {
	Symbol      string `json:"symbol"`
	Address     string `json:"address"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// ListTokens returns every known token.
// GET /api/tokens
func (h *TokenHandler) ListTokens(w http.ResponseWriter, _ *http.Request) {
	out := make([]tokenJSON, 0, len(h.tokens))
	for _, t := range h.tokens {
		out = append(out, tokenJSON{
			Symbol:      t.Ledger.Symbol(),
			Address:     t.Address.Hex(),
			Decimals:    t.Ledger.Decimals(),
			TotalSupply: decString(t.Ledger.TotalSupply()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBalance returns a holder's balance and its allowance to custody.
// GET /api/tokens/{token}/balances/{address}
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown token")
		return
	}
	owner, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	balance := t.Ledger.BalanceOf(owner)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":             t.Ledger.Symbol(),
		"address":           owner.Hex(),
		"balance":           decString(balance),
		"balance_display":   display(balance, int32(t.Ledger.Decimals())),
		"allowance_custody": decString(t.Ledger.Allowance(owner, h.custody)),
	})
}

type approveRequest struct {
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// Approve sets the caller's allowance for spender, custody when omitted.
// POST /api/tokens/{token}/approve
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	t, ok := h.lookup(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown token")
		return
	}
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	spender := h.custody
	if req.Spender != "" {
		s, err := parseAddress("spender", req.Spender)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		spender = s
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if _, err := t.Ledger.Approve(r.Context(), owner, spender, amount); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     t.Ledger.Symbol(),
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": decString(t.Ledger.Allowance(owner, spender)),
	})
}

// Faucet mints collateral tokens to the caller. Development only.
// POST /api/tokens/{token}/faucet
func (h *TokenHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	if !h.faucetOpen {
		writeError(w, http.StatusNotFound, "not_found", "faucet disabled")
		return
	}
	to, ok := caller(w, r)
	if !ok {
		return
	}
	t, ok := h.lookup(r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown token")
		return
	}
	mint, ok := t.Ledger.(faucet)
	if !ok {
		badRequest(w, t.Ledger.Symbol()+" has no faucet")
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
	if err := mint.Mint(r.Context(), to, amount); err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "faucet mint",
		slog.String("token", t.Ledger.Symbol()),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.Dec()),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   t.Ledger.Symbol(),
		"address": to.Hex(),
		"balance": decString(t.Ledger.BalanceOf(to)),
	})
}

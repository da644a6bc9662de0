package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/server/middleware"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	User         string `json:"user,omitempty"`
	HealthFactor string `json:"health_factor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error","code":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "invalid_request", msg)
}

// statusFor maps an error code to its HTTP status: validation failures are
// 400, broken engine invariants 422, token collaborator failures 502 and
// oracle failures 503.
func statusFor(code string) int {
	switch code {
	case "need_more_than_zero", "not_allowed_token", "insufficient_collateral", "insufficient_debt", "zero_address":
		return http.StatusBadRequest
	case "breaks_health_factor", "health_factor_ok", "health_factor_not_improved", "arithmetic_overflow":
		return http.StatusUnprocessableEntity
	case "mint_failed", "transfer_failed", "insufficient_balance", "insufficient_allowance", "not_owner", "burn_amount_exceeds_balance":
		return http.StatusBadGateway
	case "invalid_price", "stale_price", "oracle_unavailable":
		return http.StatusServiceUnavailable
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "lock_held":
		return http.StatusConflict
	case "rate_limited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError answers with the status and code for err. Internal
// errors are logged and their text withheld.
func writeEngineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	if code == "internal" && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "engine busy, retry later")
		return
	}
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, code, "internal server error")
		return
	}

	resp := errorResponse{Error: err.Error(), Code: code}
	var hfErr *domain.HealthFactorError
	if errors.As(err, &hfErr) {
		resp.User = hfErr.User.Hex()
		if hfErr.HealthFactor != nil {
			resp.HealthFactor = hfErr.HealthFactor.Dec()
		}
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		badRequest(w, "invalid JSON body: trailing data")
		return false
	}
	return true
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not an address", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a base-unit amount written as a decimal integer string.
func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a base-unit amount", field, s)
	}
	return v, nil
}

// caller returns the signed caller, which the signature middleware
// guarantees on every state-changing route.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, ok := middleware.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "request is not signed")
	}
	return addr, ok
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	limit := 50
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, 500)
	}
	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		offset = n
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dscengine/internal/crypto"
)

// MaxBodyBytes caps signed request bodies.
const MaxBodyBytes = 1 << 20

type callerKey struct{}

// Caller returns the account that signed the request.
func Caller(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// WithCaller attaches addr as the request signer.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Signature authenticates the caller of a state-changing route. The request
// must carry crypto.HeaderAddress, crypto.HeaderTimestamp (Unix seconds
// within maxSkew of now) and crypto.HeaderSignature over method, path,
// timestamp and body. The body is buffered and handed on unchanged.
func Signature(maxSkew time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claimed := r.Header.Get(crypto.HeaderAddress)
			if !common.IsHexAddress(claimed) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid "+crypto.HeaderAddress)
				return
			}
			ts, err := strconv.ParseInt(r.Header.Get(crypto.HeaderTimestamp), 10, 64)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid "+crypto.HeaderTimestamp)
				return
			}
			if skew := now().Sub(time.Unix(ts, 0)); skew > maxSkew || skew < -maxSkew {
				writeError(w, http.StatusUnauthorized, "unauthorized", "request timestamp outside allowed skew")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "invalid_request", "read request body")
				return
			}

			addr := common.HexToAddress(claimed)
			sig := r.Header.Get(crypto.HeaderSignature)
			if err := crypto.VerifyRequest(r.Method, r.URL.Path, ts, body, sig, addr); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid request signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

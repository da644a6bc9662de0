package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/alanyoungcy/dscengine/internal/cache/memory"
	"github.com/alanyoungcy/dscengine/internal/crypto"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret")(ok)

	tests := []struct {
		name   string
		path   string
		header string
		value  string
		status int
	}{
		{"health is open", "/api/health", "", "", http.StatusOK},
		{"metrics is outside /api", "/metrics", "", "", http.StatusOK},
		{"missing key", "/api/events", "", "", http.StatusUnauthorized},
		{"wrong key", "/api/events", "X-API-Key", "nope", http.StatusUnauthorized},
		{"header key", "/api/events", "X-API-Key", "secret", http.StatusOK},
		{"bearer key", "/api/events", "Authorization", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.status, serve(h, req).Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusOK, serve(Auth("")(ok), req).Code, "empty key disables auth")
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/dsc/mint", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (failingLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	h := RateLimit(cachemem.NewRateLimiter(1, time.Second), 2, time.Minute, discard())(ok)
	req := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, req("1.1.1.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, req("1.1.1.1")).Code)
	rec := serve(h, req("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, serve(h, req("2.2.2.2")).Code, "limits are per client")

	open := RateLimit(failingLimiter{}, 1, time.Minute, discard())(ok)
	assert.Equal(t, http.StatusOK, serve(open, req("1.1.1.1")).Code, "limiter errors fail open")

	off := RateLimit(nil, 1, time.Minute, discard())(ok)
	assert.Equal(t, http.StatusOK, serve(off, req("1.1.1.1")).Code)
}

func TestSignature(t *testing.T) {
	key, err := ethcrypto.HexToECDSA(devKey)
	require.NoError(t, err)
	signer := crypto.NewRequestSigner(key)
	now := time.Unix(1_700_000_000, 0)

	var gotCaller common.Address
	var gotBody []byte
	h := Signature(time.Minute, func() time.Time { return now })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller, _ = Caller(r.Context())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"amount":"1"}`)
	newReq := func(at time.Time) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/dsc/mint", bytes.NewReader(body))
		require.NoError(t, signer.SignHTTP(r, body, at))
		return r
	}

	rec := serve(h, newReq(now))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, signer.Address(), gotCaller)
	assert.Equal(t, body, gotBody, "the body is passed on intact")

	rec = serve(h, newReq(now.Add(-2*time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "skew")

	tampered := newReq(now)
	tampered.Body = io.NopCloser(strings.NewReader(`{"amount":"999"}`))
	assert.Equal(t, http.StatusUnauthorized, serve(h, tampered).Code)

	impostor := newReq(now)
	impostor.Header.Set(crypto.HeaderAddress, common.HexToAddress("0xbeef").Hex())
	assert.Equal(t, http.StatusUnauthorized, serve(h, impostor).Code)

	unsigned := httptest.NewRequest(http.MethodPost, "/api/dsc/mint", bytes.NewReader(body))
	assert.Equal(t, http.StatusUnauthorized, serve(h, unsigned).Code)
}

func TestLoggingKeepsStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	var buf bytes.Buffer
	h := Logging(slog.New(slog.NewJSONHandler(&buf, nil)))(mux)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/things/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"route":"GET /api/things/{id}"`)
	assert.Contains(t, buf.String(), `"status":418`)
}

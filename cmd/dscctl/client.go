package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dscengine/internal/crypto"
)

// client talks to a dscd API, signing state-changing requests.
type client struct {
	base   string
	apiKey string
	signer *crypto.RequestSigner // nil for read-only use
	http   *http.Client
	now    func() time.Time
}

func newClient(base, apiKey string, signer *crypto.RequestSigner) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		signer: signer,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

// apiError is a non-2xx reply.
type apiError struct {
	Status int
	Code   string `json:"code"`
	Msg    string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Msg)
}

func (c *client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post sends a signed JSON body.
func (c *client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("%s needs a signing key (-key or -keyfile)", path)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data)
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := c.signer.SignHTTP(req, body, c.now()); err != nil {
			return nil, err
		}
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}
	return raw, nil
}

// toBaseUnits converts a human amount such as "1.5" to base units with the
// given decimals. Amounts finer than one base unit are rejected.
func toBaseUnits(amount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", fmt.Errorf("amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("amount %q must be positive", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return "", fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt().String(), nil
}

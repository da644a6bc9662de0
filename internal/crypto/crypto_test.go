package crypto

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first development account.
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestParseKey(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())

	_, err = ParseKey("zz")
	require.Error(t, err)
}

func TestSealAndOpenKey(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)

	data, err := SealKey(key, "hunter2", 1000)
	require.NoError(t, err)
	assert.NotContains(t, string(data), strings.TrimPrefix(devKey, "0x"))

	opened, err := OpenKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, key.D, opened.D)

	_, err = OpenKey(data, "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)

	_, err = SealKey(key, "", 1000)
	require.Error(t, err)
}

func TestOpenKeyDetectsSwappedAddress(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)
	data, err := SealKey(key, "pw", 1000)
	require.NoError(t, err)

	tampered := strings.Replace(string(data), "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", 1)
	_, err = OpenKey([]byte(tampered), "pw")
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestResolveKey(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)
	data, err := SealKey(key, "pw", 1000)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, err := ResolveKey(KeySource{File: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, key.D, fromFile.D)

	fromHex, err := ResolveKey(KeySource{Hex: devKey, File: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, key.D, fromHex.D)

	_, err = ResolveKey(KeySource{})
	require.Error(t, err)
}

func TestRequestSignatureRoundTrip(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)
	s := NewRequestSigner(key)
	body := []byte(`{"asset":"0x01","amount":"1"}`)

	sig, err := s.Sign("POST", "/api/collateral/deposit", 1700000000, body)
	require.NoError(t, err)

	got, err := RecoverRequest("POST", "/api/collateral/deposit", 1700000000, body, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
	require.NoError(t, VerifyRequest("POST", "/api/collateral/deposit", 1700000000, body, sig, s.Address()))

	err = VerifyRequest("POST", "/api/collateral/deposit", 1700000000, []byte(`{"amount":"2"}`), sig, s.Address())
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = RecoverRequest("POST", "/", 1, nil, "0x1234")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestSignHTTPSetsHeaders(t *testing.T) {
	key, err := ParseKey(devKey)
	require.NoError(t, err)
	s := NewRequestSigner(key)
	body := []byte(`{"amount":"5"}`)
	req := httptest.NewRequest("POST", "/api/dsc/mint", nil)
	now := time.Unix(1700000123, 0)

	require.NoError(t, s.SignHTTP(req, body, now))
	assert.Equal(t, s.Address().Hex(), req.Header.Get(HeaderAddress))
	assert.Equal(t, strconv.FormatInt(now.Unix(), 10), req.Header.Get(HeaderTimestamp))

	got, err := RecoverRequest("POST", "/api/dsc/mint", now.Unix(), body, req.Header.Get(HeaderSignature))
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Request signature headers.
const (
	HeaderAddress   = "X-DSC-Address"
	HeaderTimestamp = "X-DSC-Timestamp"
	HeaderSignature = "X-DSC-Signature"
)

// ErrBadSignature is returned when a signature is malformed or does not
// recover to the claimed address.
var ErrBadSignature = errors.New("crypto: bad request signature")

// RequestDigest is keccak256(method || path || timestamp || body) with the
// timestamp in decimal Unix seconds.
func RequestDigest(method, path string, timestamp int64, body []byte) []byte {
	return ethcrypto.Keccak256(
		[]byte(method),
		[]byte(path),
		[]byte(strconv.FormatInt(timestamp, 10)),
		body,
	)
}

// RequestSigner signs API requests with an EIP-191 personal-message
// signature over RequestDigest.
type RequestSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewRequestSigner wraps key.
func NewRequestSigner(key *ecdsa.PrivateKey) *RequestSigner {
	return &RequestSigner{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// Address is the signer's account.
func (s *RequestSigner) Address() common.Address { return s.address }

// Sign returns the 65-byte signature (V in {27, 28}) as 0x-hex.
func (s *RequestSigner) Sign(method, path string, timestamp int64, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(RequestDigest(method, path, timestamp, body)), s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign request: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignHTTP sets the three signature headers on req. body must be the exact
// bytes sent as the request body.
func (s *RequestSigner) SignHTTP(req *http.Request, body []byte, now time.Time) error {
	ts := now.Unix()
	sig, err := s.Sign(req.Method, req.URL.Path, ts, body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, s.address.Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// RecoverRequest returns the account that produced sig over the request.
// Both {0, 1} and {27, 28} recovery ids are accepted.
func RecoverRequest(method, path string, timestamp int64, body []byte, sig string) (common.Address, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != ethcrypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if raw[ethcrypto.RecoveryIDOffset] >= 27 {
		raw[ethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(RequestDigest(method, path, timestamp, body)), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyRequest checks that sig over the request recovers to want.
func VerifyRequest(method, path string, timestamp int64, body []byte, sig string, want common.Address) error {
	got, err := RecoverRequest(method, path, timestamp, body, sig)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: signed by %s, claimed %s", ErrBadSignature, got.Hex(), want.Hex())
	}
	return nil
}

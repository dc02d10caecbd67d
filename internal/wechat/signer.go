package wechat

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/google/uuid"
)

const authSchema = "WECHATPAY2-SHA256-RSA2048"

// RequestSigner builds the Authorization header for outbound gateway
// requests. Every call uses a fresh nonce and timestamp.
type RequestSigner struct {
	keys  *KeyMaterial
	mchID string

	now   func() time.Time
	nonce func() string
}

// SignerOption customizes a RequestSigner. The clock and nonce source are
// injectable so signatures are reproducible in tests.
type SignerOption func(*RequestSigner)

func WithClock(now func() time.Time) SignerOption {
	return func(s *RequestSigner) { s.now = now }
}

func WithNonceSource(nonce func() string) SignerOption {
	return func(s *RequestSigner) { s.nonce = nonce }
}

// NewRequestSigner creates a signer for the given merchant.
func NewRequestSigner(keys *KeyMaterial, mchID string, opts ...SignerOption) *RequestSigner {
	s := &RequestSigner{
		keys:  keys,
		mchID: mchID,
		now:   time.Now,
		nonce: func() string { return strings.ReplaceAll(uuid.New().String(), "-", "") },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RequestMessage is the canonical signing string for an outbound request:
// METHOD\nPATH\nTIMESTAMP\nNONCE\nBODY\n (trailing newline included; the
// path carries the query string; body is empty for GET).
func RequestMessage(method, path string, timestamp int64, nonce, body string) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s\n", method, path, timestamp, nonce, body)
}

// PaySessionMessage is the canonical string for the payer-side
// authorization signature: APPID\nTIMESTAMP\nNONCE\nPACKAGE\n.
func PaySessionMessage(appID string, timestamp int64, nonce, pkg string) string {
	return fmt.Sprintf("%s\n%d\n%s\n%s\n", appID, timestamp, nonce, pkg)
}

// Sign signs a canonical string with the merchant private key using
// RSASSA-PKCS1-v1_5 over SHA-256 and returns the base64 signature.
func (s *RequestSigner) Sign(message string) (string, error) {
	key, err := s.keys.PrivateKey()
	if err != nil {
		return "", &domainErrors.SigningError{Reason: "merchant private key unavailable", Err: err}
	}

	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", &domainErrors.SigningError{Reason: "rsa sign", Err: err}
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Authorization builds the full Authorization header value for a request.
func (s *RequestSigner) Authorization(method, path, body string) (string, error) {
	timestamp := s.now().Unix()
	nonce := s.nonce()

	signature, err := s.Sign(RequestMessage(method, path, timestamp, nonce, body))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		`%s mchid="%s",nonce_str="%s",signature="%s",timestamp="%d",serial_no="%s"`,
		authSchema, s.mchID, nonce, signature, timestamp, s.keys.MerchantSerial(),
	), nil
}

// PaySessionParams derives the payer-side authorization package from a
// prepay id. The timestamp and nonce it returns are exactly the ones the
// signature covers.
func (s *RequestSigner) PaySessionParams(appID, prepayID string) (*PaySessionParams, error) {
	timestamp := s.now().Unix()
	nonce := s.nonce()
	pkg := "prepay_id=" + prepayID

	paySign, err := s.Sign(PaySessionMessage(appID, timestamp, nonce, pkg))
	if err != nil {
		return nil, err
	}

	return &PaySessionParams{
		TimeStamp: fmt.Sprintf("%d", timestamp),
		NonceStr:  nonce,
		Package:   pkg,
		SignType:  "RSA",
		PaySign:   paySign,
	}, nil
}

package wechat

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) (*RequestSigner, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := NewKeyMaterial(key, "MCHSERIAL001", nil, "", []byte("0123456789abcdef0123456789abcdef"))
	signer := NewRequestSigner(keys, "1900000001",
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithNonceSource(func() string { return "fixednonce123456" }),
	)
	return signer, key
}

func TestRequestMessage_Format(t *testing.T) {
	msg := RequestMessage("POST", "/v3/pay/transactions/jsapi", 1700000000, "n0nce", `{"a":1}`)
	assert.Equal(t, "POST\n/v3/pay/transactions/jsapi\n1700000000\nn0nce\n{\"a\":1}\n", msg)

	// GET requests sign an empty body but keep the trailing newline.
	msg = RequestMessage("GET", "/v3/pay/transactions/out-trade-no/CZ1?mchid=1900000001", 1700000000, "n0nce", "")
	assert.True(t, strings.HasSuffix(msg, "\n\n"))
}

func TestSign_VerifiesAgainstPublicKey(t *testing.T) {
	signer, key := newTestSigner(t)

	msg := RequestMessage("POST", "/v3/pay/transactions/jsapi", 1700000000, "fixednonce123456", `{"out_trade_no":"CZ1"}`)
	sigB64, err := signer.Sign(msg)
	require.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(msg))
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func TestSign_MissingKeyIsSigningError(t *testing.T) {
	keys := NewKeyMaterial(nil, "MCHSERIAL001", nil, "", []byte("0123456789abcdef0123456789abcdef"))
	signer := NewRequestSigner(keys, "1900000001")

	_, err := signer.Sign("anything")
	require.Error(t, err)
	var sigErr *domainErrors.SigningError
	assert.ErrorAs(t, err, &sigErr)
}

func TestAuthorization_HeaderShape(t *testing.T) {
	signer, key := newTestSigner(t)

	header, err := signer.Authorization("POST", "/v3/pay/transactions/jsapi", `{"out_trade_no":"CZ1"}`)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(header, "WECHATPAY2-SHA256-RSA2048 "))
	assert.Contains(t, header, `mchid="1900000001"`)
	assert.Contains(t, header, `nonce_str="fixednonce123456"`)
	assert.Contains(t, header, `timestamp="1700000000"`)
	assert.Contains(t, header, `serial_no="MCHSERIAL001"`)

	// The embedded signature covers the canonical request string.
	var sigB64 string
	for _, part := range strings.Split(strings.TrimPrefix(header, "WECHATPAY2-SHA256-RSA2048 "), ",") {
		if strings.HasPrefix(part, "signature=") {
			sigB64 = strings.Trim(strings.TrimPrefix(part, "signature="), `"`)
		}
	}
	require.NotEmpty(t, sigB64)
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	require.NoError(t, err)
	msg := RequestMessage("POST", "/v3/pay/transactions/jsapi", 1700000000, "fixednonce123456", `{"out_trade_no":"CZ1"}`)
	digest := sha256.Sum256([]byte(msg))
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func TestPaySessionParams_SignatureCoversReturnedFields(t *testing.T) {
	signer, key := newTestSigner(t)

	params, err := signer.PaySessionParams("wxappid001", "prepay-xyz")
	require.NoError(t, err)

	assert.Equal(t, "1700000000", params.TimeStamp)
	assert.Equal(t, "fixednonce123456", params.NonceStr)
	assert.Equal(t, "prepay_id=prepay-xyz", params.Package)
	assert.Equal(t, "RSA", params.SignType)

	msg := fmt.Sprintf("%s\n%s\n%s\n%s\n", "wxappid001", params.TimeStamp, params.NonceStr, params.Package)
	sig, err := base64.StdEncoding.DecodeString(params.PaySign)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(msg))
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

package wechat

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) (*CallbackVerifier, *rsa.PrivateKey) {
	t.Helper()
	platform, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := NewKeyMaterial(nil, "", &platform.PublicKey, "PLATSERIAL001", []byte("0123456789abcdef0123456789abcdef"))
	return NewCallbackVerifier(keys), platform
}

func signBody(t *testing.T, key *rsa.PrivateKey, timestamp, nonce string, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(VerificationMessage(timestamp, nonce, body))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerify_ValidSignature(t *testing.T) {
	v, platform := newTestVerifier(t)
	body := []byte(`{"id":"notify-1","resource":{}}`)
	sig := signBody(t, platform, "1700000000", "nonce01", body)

	assert.NoError(t, v.Verify("1700000000", "nonce01", body, sig, "PLATSERIAL001"))
}

func TestVerify_UnknownSerialRejectedFirst(t *testing.T) {
	v, platform := newTestVerifier(t)
	body := []byte(`{"id":"notify-1"}`)
	sig := signBody(t, platform, "1700000000", "nonce01", body)

	// Even a perfectly valid signature is rejected under a serial we did
	// not configure.
	err := v.Verify("1700000000", "nonce01", body, sig, "OTHER-SERIAL")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrUnknownKeySerial)
}

func TestVerify_TamperedBody(t *testing.T) {
	v, platform := newTestVerifier(t)
	body := []byte(`{"id":"notify-1","amount":100}`)
	sig := signBody(t, platform, "1700000000", "nonce01", body)

	tampered := []byte(`{"id":"notify-1","amount":999}`)
	err := v.Verify("1700000000", "nonce01", tampered, sig, "PLATSERIAL001")
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
}

func TestVerify_TamperedTimestamp(t *testing.T) {
	v, platform := newTestVerifier(t)
	body := []byte(`{"id":"notify-1"}`)
	sig := signBody(t, platform, "1700000000", "nonce01", body)

	err := v.Verify("1700009999", "nonce01", body, sig, "PLATSERIAL001")
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
}

func TestVerify_MalformedBase64(t *testing.T) {
	v, _ := newTestVerifier(t)

	err := v.Verify("1700000000", "nonce01", []byte(`{}`), "!!!not-base64!!!", "PLATSERIAL001")
	assert.ErrorIs(t, err, domainErrors.ErrVerificationFailed)
}

func TestVerify_WrongKey(t *testing.T) {
	v, _ := newTestVerifier(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	body := []byte(`{"id":"notify-1"}`)
	sig := signBody(t, other, "1700000000", "nonce01", body)
	assert.ErrorIs(t, v.Verify("1700000000", "nonce01", body, sig, "PLATSERIAL001"), domainErrors.ErrVerificationFailed)
}

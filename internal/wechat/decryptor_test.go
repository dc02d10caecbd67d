package wechat

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"testing"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIv3Key = "0123456789abcdef0123456789abcdef"

func newTestDecryptor() *ResourceDecryptor {
	keys := NewKeyMaterial(nil, "", nil, "", []byte(testAPIv3Key))
	return NewResourceDecryptor(keys)
}

func sealResource(t *testing.T, key, nonce, aad string, tx *TransactionResource) EncryptedResource {
	t.Helper()
	plaintext, err := json.Marshal(tx)
	require.NoError(t, err)

	block, err := aes.NewCipher([]byte(key))
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)

	sealed := aead.Seal(nil, []byte(nonce), plaintext, []byte(aad))
	return EncryptedResource{
		Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
		Nonce:          nonce,
		AssociatedData: aad,
	}
}

func TestDecrypt_RoundTrip(t *testing.T) {
	d := newTestDecryptor()
	in := &TransactionResource{
		OutTradeNo:    "CZ20240101120000ABC123",
		TransactionID: "wx-tx-777",
		TradeState:    TradeStateSuccess,
		Amount:        Amount{Total: 10000, Currency: "CNY"},
	}

	out, err := d.Decrypt(sealResource(t, testAPIv3Key, "abcdef123456", "transaction", in))
	require.NoError(t, err)
	assert.Equal(t, in.OutTradeNo, out.OutTradeNo)
	assert.Equal(t, in.TransactionID, out.TransactionID)
	assert.Equal(t, in.TradeState, out.TradeState)
	assert.Equal(t, int64(10000), out.Amount.Total)
}

func TestDecrypt_FlippedCiphertextByteFailsClosed(t *testing.T) {
	d := newTestDecryptor()
	res := sealResource(t, testAPIv3Key, "abcdef123456", "transaction", &TransactionResource{OutTradeNo: "CZ1"})

	raw, err := base64.StdEncoding.DecodeString(res.Ciphertext)
	require.NoError(t, err)
	for _, pos := range []int{0, len(raw) / 2, len(raw) - 1} { // body, middle, tag
		flipped := append([]byte(nil), raw...)
		flipped[pos] ^= 0x01
		res.Ciphertext = base64.StdEncoding.EncodeToString(flipped)

		out, err := d.Decrypt(res)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
	}
}

func TestDecrypt_WrongAssociatedData(t *testing.T) {
	d := newTestDecryptor()
	res := sealResource(t, testAPIv3Key, "abcdef123456", "transaction", &TransactionResource{OutTradeNo: "CZ1"})
	res.AssociatedData = "something-else"

	_, err := d.Decrypt(res)
	assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
}

func TestDecrypt_MalformedBase64(t *testing.T) {
	d := newTestDecryptor()
	_, err := d.Decrypt(EncryptedResource{Ciphertext: "%%%", Nonce: "abcdef123456"})
	assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
}

func TestDecrypt_WrongNonceLength(t *testing.T) {
	d := newTestDecryptor()
	res := sealResource(t, testAPIv3Key, "abcdef123456", "transaction", &TransactionResource{OutTradeNo: "CZ1"})

	for _, nonce := range []string{"", "short", "abcdef1234567"} {
		res.Nonce = nonce

		out, err := d.Decrypt(res)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
	}
}

func TestDecrypt_ShortCiphertext(t *testing.T) {
	d := newTestDecryptor()
	_, err := d.Decrypt(EncryptedResource{
		Ciphertext: base64.StdEncoding.EncodeToString([]byte("short")),
		Nonce:      "abcdef123456",
	})
	assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
}

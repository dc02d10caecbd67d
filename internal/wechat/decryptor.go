package wechat

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
)

// ResourceDecryptor decrypts the AEAD-protected resource embedded in a
// verified notification using the shared APIv3 key (AES-256-GCM). The
// base64 ciphertext carries the 16-byte authentication tag as its suffix;
// a tag mismatch fails closed, never yielding unauthenticated plaintext.
type ResourceDecryptor struct {
	keys *KeyMaterial
}

func NewResourceDecryptor(keys *KeyMaterial) *ResourceDecryptor {
	return &ResourceDecryptor{keys: keys}
}

// Decrypt opens the encrypted resource and parses the transaction it
// contains.
func (d *ResourceDecryptor) Decrypt(res EncryptedResource) (*TransactionResource, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(res.Ciphertext)
	if err != nil {
		return nil, domainErrors.NewDomainError("malformed_ciphertext", "ciphertext is not valid base64", domainErrors.ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(d.keys.APIv3Key())
	if err != nil {
		return nil, domainErrors.NewDomainError("bad_key", "apiv3 key is not a valid AES key", domainErrors.ErrDecryptionFailed)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domainErrors.NewDomainError("bad_key", "cannot construct GCM", domainErrors.ErrDecryptionFailed)
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, domainErrors.NewDomainError("short_ciphertext", "ciphertext shorter than authentication tag", domainErrors.ErrDecryptionFailed)
	}
	if len(res.Nonce) != aead.NonceSize() {
		return nil, domainErrors.NewDomainError("bad_nonce", "nonce has wrong length", domainErrors.ErrDecryptionFailed)
	}

	plaintext, err := aead.Open(nil, []byte(res.Nonce), ciphertext, []byte(res.AssociatedData))
	if err != nil {
		return nil, domainErrors.NewDomainError("auth_failed", "AEAD authentication failed", domainErrors.ErrDecryptionFailed)
	}

	var tx TransactionResource
	if err := json.Unmarshal(plaintext, &tx); err != nil {
		return nil, domainErrors.NewDomainError("bad_plaintext", "decrypted resource is not valid JSON", domainErrors.ErrDecryptionFailed)
	}
	return &tx, nil
}

package wechat

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
)

// CallbackVerifier validates the authenticity of inbound notifications
// against the platform public key. A notification must pass verification
// before anything else happens to it: no decryption, no state change.
type CallbackVerifier struct {
	keys *KeyMaterial
}

func NewCallbackVerifier(keys *KeyMaterial) *CallbackVerifier {
	return &CallbackVerifier{keys: keys}
}

// VerificationMessage is the canonical string a notification signature
// covers: TIMESTAMP\nNONCE\nBODY\n, computed over the exact bytes
// received, before any JSON parsing.
func VerificationMessage(timestamp, nonce string, body []byte) []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%s\n", timestamp, nonce, body))
}

// Verify checks the signature of a notification. A nil return means the
// notification is authentic; any failure, including malformed base64 or a
// serial that does not match the configured platform key id, is an error.
func (v *CallbackVerifier) Verify(timestamp, nonce string, body []byte, signatureB64, serial string) error {
	if serial != v.keys.PlatformKeySerial() {
		return domainErrors.NewDomainError(
			"unknown_key_serial",
			fmt.Sprintf("notification signed with serial %q, configured %q", serial, v.keys.PlatformKeySerial()),
			domainErrors.ErrUnknownKeySerial,
		)
	}

	key, err := v.keys.PlatformKey()
	if err != nil {
		return domainErrors.NewDomainError("platform_key_missing", "platform public key unavailable", domainErrors.ErrVerificationFailed)
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return domainErrors.NewDomainError("malformed_signature", "signature is not valid base64", domainErrors.ErrVerificationFailed)
	}

	digest := sha256.Sum256(VerificationMessage(timestamp, nonce, body))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return domainErrors.NewDomainError("signature_mismatch", "signature does not verify against platform key", domainErrors.ErrVerificationFailed)
	}
	return nil
}

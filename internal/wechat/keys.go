package wechat

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sync"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
)

// KeyMaterial holds the merchant private signing key, the platform public
// verification key, and the APIv3 AEAD secret. It is constructed once at
// startup and injected into the signer, verifier, and decryptor; rotation
// is an explicit Reload, not implicit first-use caching.
type KeyMaterial struct {
	mu sync.RWMutex

	privateKeyPath    string
	platformKeyPath   string
	merchantSerial    string
	platformKeySerial string
	apiV3Key          []byte

	privateKey  *rsa.PrivateKey
	platformKey *rsa.PublicKey
}

// KeyConfig carries the file paths and identifiers for loading key material.
type KeyConfig struct {
	PrivateKeyPath    string
	MerchantSerial    string
	PlatformKeyPath   string
	PlatformKeySerial string
	APIv3Key          string
}

// LoadKeyMaterial reads and parses all keys. The APIv3 key must be exactly
// 32 bytes (AES-256).
func LoadKeyMaterial(cfg KeyConfig) (*KeyMaterial, error) {
	if len(cfg.APIv3Key) != 32 {
		return nil, fmt.Errorf("apiv3 key must be 32 bytes, got %d", len(cfg.APIv3Key))
	}

	km := &KeyMaterial{
		privateKeyPath:    cfg.PrivateKeyPath,
		platformKeyPath:   cfg.PlatformKeyPath,
		merchantSerial:    cfg.MerchantSerial,
		platformKeySerial: cfg.PlatformKeySerial,
		apiV3Key:          []byte(cfg.APIv3Key),
	}
	if err := km.Reload(); err != nil {
		return nil, err
	}
	return km, nil
}

// NewKeyMaterial builds key material from already-parsed keys. Used by
// tests and by deployments that source keys from a secret manager rather
// than the filesystem.
func NewKeyMaterial(privateKey *rsa.PrivateKey, merchantSerial string, platformKey *rsa.PublicKey, platformKeySerial string, apiV3Key []byte) *KeyMaterial {
	return &KeyMaterial{
		merchantSerial:    merchantSerial,
		platformKeySerial: platformKeySerial,
		apiV3Key:          apiV3Key,
		privateKey:        privateKey,
		platformKey:       platformKey,
	}
}

// Reload re-reads both key files from disk. Callers invoke it after
// rotating the merchant certificate or when the platform publishes a new
// public key; in-flight operations keep the keys they already resolved.
func (k *KeyMaterial) Reload() error {
	priv, err := parsePrivateKeyFile(k.privateKeyPath)
	if err != nil {
		return fmt.Errorf("load merchant private key: %w", err)
	}
	pub, err := parsePublicKeyFile(k.platformKeyPath)
	if err != nil {
		return fmt.Errorf("load platform public key: %w", err)
	}

	k.mu.Lock()
	k.privateKey = priv
	k.platformKey = pub
	k.mu.Unlock()
	return nil
}

// PrivateKey returns the merchant signing key.
func (k *KeyMaterial) PrivateKey() (*rsa.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.privateKey == nil {
		return nil, domainErrors.ErrKeyNotConfigured
	}
	return k.privateKey, nil
}

// PlatformKey returns the platform verification key.
func (k *KeyMaterial) PlatformKey() (*rsa.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.platformKey == nil {
		return nil, domainErrors.ErrKeyNotConfigured
	}
	return k.platformKey, nil
}

// MerchantSerial returns the merchant certificate serial number.
func (k *KeyMaterial) MerchantSerial() string { return k.merchantSerial }

// PlatformKeySerial returns the configured platform key id. Notifications
// signed with any other serial are rejected; rotation is handled by
// updating configuration, not by trusting an unknown serial.
func (k *KeyMaterial) PlatformKeySerial() string { return k.platformKeySerial }

// APIv3Key returns the shared AEAD secret.
func (k *KeyMaterial) APIv3Key() []byte { return k.apiV3Key }

func parsePrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key in %s is not RSA", path)
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func parsePublicKeyFile(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key in %s is not RSA", path)
	}
	return rsaKey, nil
}

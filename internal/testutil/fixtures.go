package testutil

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/wechat"
)

// TestAPIv3Key is a 32-byte symmetric key for AEAD fixtures.
const TestAPIv3Key = "0123456789abcdef0123456789abcdef"

const (
	TestMerchantSerial = "MCHSERIAL001"
	TestPlatformSerial = "PLATSERIAL001"
)

// KeyFixture bundles generated key material with the platform private
// key, which tests need to forge valid notification signatures.
type KeyFixture struct {
	Keys            *wechat.KeyMaterial
	MerchantPrivate *rsa.PrivateKey
	PlatformPrivate *rsa.PrivateKey
}

// NewKeyFixture generates fresh RSA keypairs for the merchant and the
// platform side.
func NewKeyFixture(t *testing.T) *KeyFixture {
	t.Helper()
	merchant, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate merchant key: %v", err)
	}
	platform, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate platform key: %v", err)
	}
	return &KeyFixture{
		Keys: wechat.NewKeyMaterial(
			merchant, TestMerchantSerial,
			&platform.PublicKey, TestPlatformSerial,
			[]byte(TestAPIv3Key),
		),
		MerchantPrivate: merchant,
		PlatformPrivate: platform,
	}
}

// SignAsPlatform signs a verification message the way the gateway signs
// notifications.
func (f *KeyFixture) SignAsPlatform(t *testing.T, timestamp, nonce string, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(wechat.VerificationMessage(timestamp, nonce, body))
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.PlatformPrivate, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("sign as platform: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// EncryptResource seals a transaction payload into the AEAD envelope the
// gateway delivers inside notifications.
func EncryptResource(t *testing.T, key []byte, nonce, associatedData string, res *wechat.TransactionResource) wechat.EncryptedResource {
	t.Helper()
	plaintext, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal resource: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("new gcm: %v", err)
	}
	sealed := aead.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return wechat.EncryptedResource{
		Ciphertext:     base64.StdEncoding.EncodeToString(sealed),
		Nonce:          nonce,
		AssociatedData: associatedData,
	}
}

// SignedNotification is a complete, verifiable notification delivery.
type SignedNotification struct {
	Body      []byte
	Timestamp string
	Nonce     string
	Signature string
	Serial    string
}

// NewSignedNotification builds a notification body around the given
// transaction resource, encrypted and signed so it passes verification
// against the fixture's key material.
func (f *KeyFixture) NewSignedNotification(t *testing.T, res *wechat.TransactionResource) *SignedNotification {
	t.Helper()
	envelope := EncryptResource(t, []byte(TestAPIv3Key), "abcdef123456", "transaction", res)
	body, err := json.Marshal(wechat.NotificationBody{
		ID:           "notify-0001",
		CreateTime:   time.Now().Format(time.RFC3339),
		EventType:    "TRANSACTION.SUCCESS",
		ResourceType: "encrypt-resource",
		Resource:     envelope,
	})
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	nonce := "notifynonce01"
	return &SignedNotification{
		Body:      body,
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: f.SignAsPlatform(t, timestamp, nonce, body),
		Serial:    TestPlatformSerial,
	}
}

// ReplaceResource swaps the encrypted resource inside a marshaled
// notification body, for tests that need a verified body whose envelope
// does not decrypt.
func ReplaceResource(t *testing.T, body []byte, envelope wechat.EncryptedResource) []byte {
	t.Helper()
	var note wechat.NotificationBody
	if err := json.Unmarshal(body, &note); err != nil {
		t.Fatalf("unmarshal notification: %v", err)
	}
	note.Resource = envelope
	out, err := json.Marshal(note)
	if err != nil {
		t.Fatalf("marshal notification: %v", err)
	}
	return out
}

// --- Domain fixtures ---

func NewTestMember(id int64) *member.Member {
	now := time.Now()
	return &member.Member{
		ID:           id,
		OpenID:       fmt.Sprintf("openid-%d", id),
		Nickname:     "tester",
		CoinBalance:  0,
		PointBalance: 0,
		Status:       member.StatusActive,
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewTestRechargeOrder(memberID int64, amountMinor, coins, bonus int64) *order.PaymentOrder {
	o, err := order.NewOrder(order.NewOrderNo(order.RechargePrefix), order.KindWalletRecharge,
		memberID, amountMinor, "test recharge", 30*time.Minute)
	if err != nil {
		panic(err)
	}
	o.Coins = coins
	o.BonusCoins = bonus
	return o
}

func NewTestMembershipOrder(memberID int64, amountMinor int64) *order.PaymentOrder {
	o, err := order.NewOrder(order.NewOrderNo(order.MembershipPrefix), order.KindMembershipPurchase,
		memberID, amountMinor, "test membership", 30*time.Minute)
	if err != nil {
		panic(err)
	}
	return o
}

func NewTestCard(id int64) *member.Card {
	return &member.Card{
		ID:           id,
		Name:         "gold",
		LevelID:      2,
		PriceMinor:   9900,
		DurationDays: 30,
		BonusCoins:   100,
		BonusPoints:  50,
	}
}

package member

import (
	"time"

	"github.com/cassiomorais/settlement/internal/domain/errors"
)

type MemberStatus string

const (
	StatusActive   MemberStatus = "active"
	StatusInactive MemberStatus = "inactive"
)

// Member is the subject that settlement side effects apply to: a coin
// wallet plus an optional membership level with an expiry.
type Member struct {
	ID               int64
	OpenID           string
	Nickname         string
	CoinBalance      int64
	PointBalance     int64
	LevelID          *int64
	MemberExpireAt   *time.Time
	Status           MemberStatus
	Version          int // optimistic locking
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreditCoins adds coins to the wallet.
func (m *Member) CreditCoins(amount int64) error {
	if m.Status != StatusActive {
		return errors.ErrMemberInactive
	}
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	m.CoinBalance += amount
	m.UpdatedAt = time.Now()
	return nil
}

// CreditPoints adds bonus points.
func (m *Member) CreditPoints(amount int64) error {
	if m.Status != StatusActive {
		return errors.ErrMemberInactive
	}
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	m.PointBalance += amount
	m.UpdatedAt = time.Now()
	return nil
}

// ActivateMembership sets the level and extends the expiry. When the
// current membership is still in effect the new period stacks on top of
// it rather than starting from now.
func (m *Member) ActivateMembership(levelID int64, durationDays int, now time.Time) (start, expire time.Time) {
	start = now
	if m.MemberExpireAt != nil && m.MemberExpireAt.After(now) {
		start = *m.MemberExpireAt
	}
	expire = start.AddDate(0, 0, durationDays)

	m.LevelID = &levelID
	m.MemberExpireAt = &expire
	m.UpdatedAt = now
	return start, expire
}

// LedgerEntryType classifies wallet ledger records.
type LedgerEntryType string

const (
	LedgerRecharge LedgerEntryType = "recharge"
	LedgerIncome   LedgerEntryType = "income"
)

// CoinRecord is an append-only wallet ledger entry.
type CoinRecord struct {
	ID        int64
	MemberID  int64
	Type      LedgerEntryType
	Amount    int64
	Balance   int64 // balance after the entry
	Source    string
	Remark    string
	CreatedAt time.Time
}

// PointRecord is an append-only points ledger entry.
type PointRecord struct {
	ID        int64
	MemberID  int64
	Type      LedgerEntryType
	Amount    int64
	Balance   int64
	Source    string
	Remark    string
	CreatedAt time.Time
}

// Card is a purchasable membership card.
type Card struct {
	ID           int64
	Name         string
	LevelID      int64
	PriceMinor   int64
	DurationDays int
	BonusCoins   int64
	BonusPoints  int64
	SalesCount   int64
}

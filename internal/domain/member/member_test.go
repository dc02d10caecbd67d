package member

import (
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeMember() *Member {
	return &Member{ID: 1, OpenID: "openid-1", Status: StatusActive}
}

func TestCreditCoins(t *testing.T) {
	m := activeMember()
	require.NoError(t, m.CreditCoins(150))
	assert.Equal(t, int64(150), m.CoinBalance)

	assert.Error(t, m.CreditCoins(0))
	assert.Error(t, m.CreditCoins(-10))

	m.Status = StatusInactive
	assert.ErrorIs(t, m.CreditCoins(10), domainErrors.ErrMemberInactive)
}

func TestCreditPoints(t *testing.T) {
	m := activeMember()
	require.NoError(t, m.CreditPoints(50))
	assert.Equal(t, int64(50), m.PointBalance)
}

func TestActivateMembership_FreshStart(t *testing.T) {
	m := activeMember()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	start, expire := m.ActivateMembership(2, 30, now)
	assert.Equal(t, now, start)
	assert.Equal(t, now.AddDate(0, 0, 30), expire)
	require.NotNil(t, m.LevelID)
	assert.Equal(t, int64(2), *m.LevelID)
	assert.Equal(t, expire, *m.MemberExpireAt)
}

func TestActivateMembership_StacksOnActivePeriod(t *testing.T) {
	m := activeMember()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := now.AddDate(0, 0, 10)
	m.MemberExpireAt = &current

	// Buying while 10 days remain extends from the current expiry, not
	// from now.
	start, expire := m.ActivateMembership(2, 30, now)
	assert.Equal(t, current, start)
	assert.Equal(t, current.AddDate(0, 0, 30), expire)
}

func TestActivateMembership_LapsedPeriodStartsFresh(t *testing.T) {
	m := activeMember()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -5)
	m.MemberExpireAt = &past

	start, expire := m.ActivateMembership(3, 90, now)
	assert.Equal(t, now, start)
	assert.Equal(t, now.AddDate(0, 0, 90), expire)
}

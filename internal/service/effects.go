package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/cassiomorais/settlement/internal/domain/order"
)

// applyWalletRecharge credits the purchased coins plus the package bonus
// to the member's wallet and appends the ledger entry. Runs inside the
// settlement transaction with the member row locked.
func (s *SettlementService) applyWalletRecharge(ctx context.Context, ord *order.PaymentOrder) error {
	m, err := s.memberRepo.Lock(ctx, ord.SubjectID)
	if err != nil {
		return err
	}

	total := ord.Coins + ord.BonusCoins
	if err := m.CreditCoins(total); err != nil {
		return err
	}
	if err := s.memberRepo.Update(ctx, m); err != nil {
		return err
	}

	return s.memberRepo.AddCoinRecord(ctx, &member.CoinRecord{
		MemberID: m.ID,
		Type:     member.LedgerRecharge,
		Amount:   total,
		Balance:  m.CoinBalance,
		Source:   ord.OrderNo,
		Remark:   fmt.Sprintf("recharge %d coins, %d bonus", ord.Coins, ord.BonusCoins),
	})
}

// applyMembershipPurchase activates the purchased card: level, expiry
// extension stacking on any period still in effect, bonus coins and
// points with ledger entries, and the card sales counter.
func (s *SettlementService) applyMembershipPurchase(ctx context.Context, ord *order.PaymentOrder) error {
	mo, err := s.orderRepo.GetMembershipOrder(ctx, ord.OrderNo)
	if err != nil {
		return err
	}
	m, err := s.memberRepo.Lock(ctx, ord.SubjectID)
	if err != nil {
		return err
	}

	effectiveAt := time.Now()
	if ord.PaidAt != nil {
		effectiveAt = *ord.PaidAt
	}
	start, expire := m.ActivateMembership(mo.LevelID, mo.DurationDays, effectiveAt)

	if mo.BonusCoins > 0 {
		if err := m.CreditCoins(mo.BonusCoins); err != nil {
			return err
		}
	}
	if mo.BonusPoints > 0 {
		if err := m.CreditPoints(mo.BonusPoints); err != nil {
			return err
		}
	}
	if err := s.memberRepo.Update(ctx, m); err != nil {
		return err
	}

	if mo.BonusCoins > 0 {
		if err := s.memberRepo.AddCoinRecord(ctx, &member.CoinRecord{
			MemberID: m.ID,
			Type:     member.LedgerIncome,
			Amount:   mo.BonusCoins,
			Balance:  m.CoinBalance,
			Source:   ord.OrderNo,
			Remark:   "membership card bonus coins",
		}); err != nil {
			return err
		}
	}
	if mo.BonusPoints > 0 {
		if err := s.memberRepo.AddPointRecord(ctx, &member.PointRecord{
			MemberID: m.ID,
			Type:     member.LedgerIncome,
			Amount:   mo.BonusPoints,
			Balance:  m.PointBalance,
			Source:   ord.OrderNo,
			Remark:   "membership card bonus points",
		}); err != nil {
			return err
		}
	}

	if err := s.orderRepo.UpdateMembershipPeriod(ctx, ord.OrderNo, start, expire); err != nil {
		return err
	}
	return s.memberRepo.IncrementCardSales(ctx, mo.CardID)
}

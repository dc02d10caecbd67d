package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemberRepository implements member.Repository using PostgreSQL.
type MemberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const memberColumns = `id, open_id, nickname, coin_balance, point_balance,
	        level_id, member_expire_at, status, version, created_at, updated_at`

// GetByID retrieves a member by id.
func (r *MemberRepository) GetByID(ctx context.Context, id int64) (*member.Member, error) {
	return r.scanMember(r.db(ctx).QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
}

// Lock loads the member with FOR UPDATE. Callers run inside a
// transaction; the row lock keeps the balance update and ledger entry
// atomic with the order transition.
func (r *MemberRepository) Lock(ctx context.Context, id int64) (*member.Member, error) {
	return r.scanMember(r.db(ctx).QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id))
}

// Update persists member balances and membership fields with optimistic
// locking on version. The version check guards the rare path where a
// caller updates without holding the row lock.
func (r *MemberRepository) Update(ctx context.Context, m *member.Member) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE members SET
		  coin_balance=$1, point_balance=$2, level_id=$3, member_expire_at=$4,
		  status=$5, version=version+1, updated_at=$6
		 WHERE id=$7 AND version=$8`,
		m.CoinBalance, m.PointBalance, m.LevelID, m.MemberExpireAt,
		string(m.Status), m.UpdatedAt, m.ID, m.Version,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrConcurrentModification
	}
	m.Version++
	return nil
}

// AddCoinRecord appends a wallet ledger entry.
func (r *MemberRepository) AddCoinRecord(ctx context.Context, rec *member.CoinRecord) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO coin_records (member_id, type, amount, balance, source, remark, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rec.MemberID, string(rec.Type), rec.Amount, rec.Balance, rec.Source, rec.Remark,
	)
	if err != nil {
		return fmt.Errorf("insert coin record: %w", err)
	}
	return nil
}

// AddPointRecord appends a points ledger entry.
func (r *MemberRepository) AddPointRecord(ctx context.Context, rec *member.PointRecord) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO point_records (member_id, type, amount, balance, source, remark, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rec.MemberID, string(rec.Type), rec.Amount, rec.Balance, rec.Source, rec.Remark,
	)
	if err != nil {
		return fmt.Errorf("insert point record: %w", err)
	}
	return nil
}

// GetCard retrieves a membership card.
func (r *MemberRepository) GetCard(ctx context.Context, id int64) (*member.Card, error) {
	c := &member.Card{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, name, level_id, price_minor, duration_days, bonus_coins, bonus_points, sales_count
		 FROM membership_cards WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.LevelID, &c.PriceMinor, &c.DurationDays, &c.BonusCoins, &c.BonusPoints, &c.SalesCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrCardNotFound
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

// IncrementCardSales bumps the sales counter on settlement.
func (r *MemberRepository) IncrementCardSales(ctx context.Context, cardID int64) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE membership_cards SET sales_count = sales_count + 1 WHERE id = $1`, cardID)
	if err != nil {
		return fmt.Errorf("increment card sales: %w", err)
	}
	return nil
}

func (r *MemberRepository) scanMember(s scanner) (*member.Member, error) {
	m := &member.Member{}
	var status string
	err := s.Scan(
		&m.ID, &m.OpenID, &m.Nickname, &m.CoinBalance, &m.PointBalance,
		&m.LevelID, &m.MemberExpireAt, &status, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrMemberNotFound
		}
		return nil, fmt.Errorf("scan member: %w", err)
	}
	m.Status = member.MemberStatus(status)
	return m, nil
}

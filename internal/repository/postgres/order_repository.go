package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository implements order.Repository using PostgreSQL. The
// pending -> paid transition is a conditional UPDATE against the single
// order row; that compare-and-set is the only synchronization the
// settlement race needs.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const orderColumns = `order_no, kind, subject_id, amount_minor, description, attach,
	        status, gateway_transaction_id, paid_at, expires_at, side_effect_applied,
	        coins, bonus_coins, created_at, updated_at`

// Create inserts a new pending order.
func (r *OrderRepository) Create(ctx context.Context, o *order.PaymentOrder) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_orders
		 (order_no, kind, subject_id, amount_minor, description, attach,
		  status, gateway_transaction_id, paid_at, expires_at, side_effect_applied,
		  coins, bonus_coins, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.OrderNo, string(o.Kind), o.SubjectID, o.AmountMinor, o.Description, o.Attach,
		string(o.Status), o.GatewayTransactionID, o.PaidAt, o.ExpiresAt, o.SideEffectApplied,
		o.Coins, o.BonusCoins, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.NewDomainError("duplicate_order_no", "order number already exists", domainErrors.ErrInvalidInput)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByOrderNo retrieves an order by its merchant order number.
func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*order.PaymentOrder, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE order_no = $1`, orderNo))
}

// MarkPaid performs the conditional pending -> paid transition. The WHERE
// clause on status makes concurrent settlement attempts collapse into a
// single winner; losers see false. side_effect_applied flips true in the
// same statement so no observer ever sees paid without it (the enclosing
// transaction also holds the side-effect writes).
func (r *OrderRepository) MarkPaid(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_orders
		 SET status = $1, gateway_transaction_id = $2, paid_at = $3,
		     side_effect_applied = TRUE, updated_at = NOW()
		 WHERE order_no = $4 AND status = $5`,
		string(order.StatusPaid), transactionID, paidAt, orderNo, string(order.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus performs a conditional transition between two statuses.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderNo string, from, to order.Status) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payment_orders SET status = $1, updated_at = NOW()
		 WHERE order_no = $2 AND status = $3`,
		string(to), orderNo, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPendingExpired returns pending orders whose expiry has passed.
func (r *OrderRepository) ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*order.PaymentOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM payment_orders
		 WHERE status = $1 AND expires_at < $2
		 ORDER BY expires_at ASC LIMIT $3`,
		string(order.StatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	return r.collect(rows)
}

// ListPendingStale returns pending orders created before cutoff, for
// active reconciliation when no notification has arrived.
func (r *OrderRepository) ListPendingStale(ctx context.Context, cutoff time.Time, limit int) ([]*order.PaymentOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM payment_orders
		 WHERE status = $1 AND created_at < $2 AND expires_at >= NOW()
		 ORDER BY created_at ASC LIMIT $3`,
		string(order.StatusPending), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	return r.collect(rows)
}

// CreateMembershipOrder inserts the sibling record for a membership
// purchase.
func (r *OrderRepository) CreateMembershipOrder(ctx context.Context, m *order.MembershipOrder) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO membership_orders
		 (order_no, card_id, level_id, duration_days, bonus_coins, bonus_points, start_at, expire_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.OrderNo, m.CardID, m.LevelID, m.DurationDays, m.BonusCoins, m.BonusPoints, m.StartAt, m.ExpireAt,
	)
	if err != nil {
		return fmt.Errorf("insert membership order: %w", err)
	}
	return nil
}

// GetMembershipOrder retrieves the membership sibling record.
func (r *OrderRepository) GetMembershipOrder(ctx context.Context, orderNo string) (*order.MembershipOrder, error) {
	m := &order.MembershipOrder{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT order_no, card_id, level_id, duration_days, bonus_coins, bonus_points, start_at, expire_at
		 FROM membership_orders WHERE order_no = $1`, orderNo,
	).Scan(&m.OrderNo, &m.CardID, &m.LevelID, &m.DurationDays, &m.BonusCoins, &m.BonusPoints, &m.StartAt, &m.ExpireAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get membership order: %w", err)
	}
	return m, nil
}

// UpdateMembershipPeriod records the activation window computed at
// settlement time.
func (r *OrderRepository) UpdateMembershipPeriod(ctx context.Context, orderNo string, startAt, expireAt time.Time) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE membership_orders SET start_at = $1, expire_at = $2 WHERE order_no = $3`,
		startAt, expireAt, orderNo,
	)
	if err != nil {
		return fmt.Errorf("update membership period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// --- scanning helpers ---

func (r *OrderRepository) collect(rows pgx.Rows) ([]*order.PaymentOrder, error) {
	defer rows.Close()
	var orders []*order.PaymentOrder
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) scanOrder(s scanner) (*order.PaymentOrder, error) {
	o := &order.PaymentOrder{}
	var kind, status string
	err := s.Scan(
		&o.OrderNo, &kind, &o.SubjectID, &o.AmountMinor, &o.Description, &o.Attach,
		&status, &o.GatewayTransactionID, &o.PaidAt, &o.ExpiresAt, &o.SideEffectApplied,
		&o.Coins, &o.BonusCoins, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Kind = order.Kind(kind)
	o.Status = order.Status(status)
	return o, nil
}

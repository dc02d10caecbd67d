package member

import "context"

// Repository is the persistence contract for members, the wallet ledger,
// and membership cards.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Member, error)

	// Lock loads the member with a row lock. Used inside the settlement
	// transaction so the balance update and ledger entry are atomic with
	// the order transition.
	Lock(ctx context.Context, id int64) (*Member, error)

	Update(ctx context.Context, m *Member) error

	AddCoinRecord(ctx context.Context, rec *CoinRecord) error
	AddPointRecord(ctx context.Context, rec *PointRecord) error

	GetCard(ctx context.Context, id int64) (*Card, error)
	IncrementCardSales(ctx context.Context, cardID int64) error
}

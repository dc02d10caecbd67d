package testutil

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/settlement/internal/domain/errors"
	"github.com/cassiomorais/settlement/internal/domain/member"
	"github.com/cassiomorais/settlement/internal/domain/order"
	"github.com/cassiomorais/settlement/internal/domain/outbox"
	"github.com/cassiomorais/settlement/internal/wechat"
	"github.com/google/uuid"
)

// --- Order Repository Mock ---

// MockOrderRepository is a mock implementation of order.Repository. The
// conditional writes are guarded by the same mutex as the reads, so
// concurrent settle attempts observe the same winner-takes-all behavior
// as the conditional UPDATE in Postgres.
type MockOrderRepository struct {
	mu               sync.Mutex
	orders           map[string]*order.PaymentOrder
	membershipOrders map[string]*order.MembershipOrder

	CreateFunc     func(ctx context.Context, o *order.PaymentOrder) error
	GetFunc        func(ctx context.Context, orderNo string) (*order.PaymentOrder, error)
	MarkPaidFunc   func(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error)
	UpdateStatFunc func(ctx context.Context, orderNo string, from, to order.Status) (bool, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders:           make(map[string]*order.PaymentOrder),
		membershipOrders: make(map[string]*order.MembershipOrder),
	}
}

// AddOrder pre-populates the mock with an order.
func (m *MockOrderRepository) AddOrder(o *order.PaymentOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderNo] = o
}

// OrderByNo returns the stored order (test helper, no context needed).
func (m *MockOrderRepository) OrderByNo(orderNo string) *order.PaymentOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderNo]
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.PaymentOrder) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.OrderNo] = o
	return nil
}

func (m *MockOrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*order.PaymentOrder, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orderNo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderNo]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *MockOrderRepository) MarkPaid(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error) {
	if m.MarkPaidFunc != nil {
		return m.MarkPaidFunc(ctx, orderNo, transactionID, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderNo]
	if !ok {
		return false, domainErrors.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return false, nil
	}
	o.Status = order.StatusPaid
	o.GatewayTransactionID = &transactionID
	o.PaidAt = &paidAt
	o.SideEffectApplied = true
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, orderNo string, from, to order.Status) (bool, error) {
	if m.UpdateStatFunc != nil {
		return m.UpdateStatFunc(ctx, orderNo, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderNo]
	if !ok {
		return false, domainErrors.ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockOrderRepository) ListPendingExpired(ctx context.Context, now time.Time, limit int) ([]*order.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.PaymentOrder
	for _, o := range m.orders {
		if o.Status == order.StatusPending && now.After(o.ExpiresAt) {
			copied := *o
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOrderRepository) ListPendingStale(ctx context.Context, cutoff time.Time, limit int) ([]*order.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.PaymentOrder
	for _, o := range m.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(cutoff) {
			copied := *o
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOrderRepository) CreateMembershipOrder(ctx context.Context, mo *order.MembershipOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.membershipOrders[mo.OrderNo] = mo
	return nil
}

func (m *MockOrderRepository) GetMembershipOrder(ctx context.Context, orderNo string) (*order.MembershipOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.membershipOrders[orderNo]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	copied := *mo
	return &copied, nil
}

func (m *MockOrderRepository) UpdateMembershipPeriod(ctx context.Context, orderNo string, startAt, expireAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mo, ok := m.membershipOrders[orderNo]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	mo.StartAt = &startAt
	mo.ExpireAt = &expireAt
	return nil
}

// --- Member Repository Mock ---

// MockMemberRepository is a mock implementation of member.Repository.
type MockMemberRepository struct {
	mu           sync.Mutex
	members      map[int64]*member.Member
	cards        map[int64]*member.Card
	coinRecords  []*member.CoinRecord
	pointRecords []*member.PointRecord

	LockFunc   func(ctx context.Context, id int64) (*member.Member, error)
	UpdateFunc func(ctx context.Context, m *member.Member) error
}

func NewMockMemberRepository() *MockMemberRepository {
	return &MockMemberRepository{
		members: make(map[int64]*member.Member),
		cards:   make(map[int64]*member.Card),
	}
}

// AddMember pre-populates the mock with a member.
func (m *MockMemberRepository) AddMember(mem *member.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = mem
}

// AddCard pre-populates the mock with a membership card.
func (m *MockMemberRepository) AddCard(c *member.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
}

// MemberByID returns the stored member (test helper, no context needed).
func (m *MockMemberRepository) MemberByID(id int64) *member.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[id]
}

// CoinRecords returns the appended wallet ledger entries.
func (m *MockMemberRepository) CoinRecords() []*member.CoinRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*member.CoinRecord(nil), m.coinRecords...)
}

// PointRecords returns the appended points ledger entries.
func (m *MockMemberRepository) PointRecords() []*member.PointRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*member.PointRecord(nil), m.pointRecords...)
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id int64) (*member.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return nil, domainErrors.ErrMemberNotFound
	}
	return mem, nil
}

func (m *MockMemberRepository) Lock(ctx context.Context, id int64) (*member.Member, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockMemberRepository) Update(ctx context.Context, mem *member.Member) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, mem)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = mem
	mem.Version++
	return nil
}

func (m *MockMemberRepository) AddCoinRecord(ctx context.Context, rec *member.CoinRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coinRecords = append(m.coinRecords, rec)
	return nil
}

func (m *MockMemberRepository) AddPointRecord(ctx context.Context, rec *member.PointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointRecords = append(m.pointRecords, rec)
	return nil
}

func (m *MockMemberRepository) GetCard(ctx context.Context, id int64) (*member.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[id]
	if !ok {
		return nil, domainErrors.ErrCardNotFound
	}
	return c, nil
}

func (m *MockMemberRepository) IncrementCardSales(ctx context.Context, cardID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cards[cardID]; ok {
		c.SalesCount++
	}
	return nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Entries returns the inserted entries.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.entries...)
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
// The default passes the context through; rollback-sensitive tests
// override WithTransactionFunc to snapshot and restore mock state.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Payment Gateway Mock ---

// MockGateway is a mock implementation of service.PaymentGateway.
type MockGateway struct {
	mu         sync.Mutex
	closeCalls []string

	CreateIntentFunc func(ctx context.Context, p wechat.CreateIntentParams) (*wechat.PaySessionParams, error)
	QueryFunc        func(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error)
	CloseFunc        func(ctx context.Context, orderNo string) error
	RefundFunc       func(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error)
}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) CreateIntent(ctx context.Context, p wechat.CreateIntentParams) (*wechat.PaySessionParams, error) {
	if m.CreateIntentFunc != nil {
		return m.CreateIntentFunc(ctx, p)
	}
	return &wechat.PaySessionParams{
		TimeStamp: "1700000000",
		NonceStr:  "testnonce",
		Package:   "prepay_id=test_prepay",
		SignType:  "RSA",
		PaySign:   "testsign",
	}, nil
}

func (m *MockGateway) Query(ctx context.Context, orderNo string) (*wechat.OrderStatusSnapshot, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, orderNo)
	}
	return &wechat.OrderStatusSnapshot{OutTradeNo: orderNo, TradeState: wechat.TradeStateNotPay}, nil
}

func (m *MockGateway) Close(ctx context.Context, orderNo string) error {
	m.mu.Lock()
	m.closeCalls = append(m.closeCalls, orderNo)
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc(ctx, orderNo)
	}
	return nil
}

// CloseCalls returns the order numbers Close was called with.
func (m *MockGateway) CloseCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closeCalls...)
}

func (m *MockGateway) Refund(ctx context.Context, p wechat.RefundParams) (*wechat.RefundResult, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, p)
	}
	return &wechat.RefundResult{
		RefundID:    "RF-" + p.OrderNo,
		OutRefundNo: p.RefundNo,
		Status:      "SUCCESS",
		Amount:      wechat.RefundAmount{Refund: p.RefundMinor, Total: p.TotalMinor, Currency: "CNY"},
	}, nil
}

package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a settlement event staged inside the settlement transaction
// and published to collaborators by the worker. Writing it in the same
// unit of work as the order transition means collaborators never see an
// event for a settlement that rolled back.
type Entry struct {
	ID          uuid.UUID
	OrderNo     string
	EventType   string
	Payload     map[string]any
	Status      Status
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Event types emitted by the settlement subsystem.
const (
	EventOrderPaid     = "order.paid"
	EventOrderClosed   = "order.closed"
	EventOrderFailed   = "order.failed"
	EventOrderRefunded = "order.refunded"
)

func NewEntry(orderNo, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:         uuid.New(),
		OrderNo:    orderNo,
		EventType:  eventType,
		Payload:    payload,
		Status:     StatusPending,
		RetryCount: 0,
		MaxRetries: 5,
		CreatedAt:  time.Now(),
	}
}

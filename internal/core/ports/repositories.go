package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"payment-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentRepository defines persistence operations for payments.
// Methods accepting pgx.Tx are used inside transaction blocks; the ForUpdate
// lookups take a row lock that serializes reconciliation per order.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error)
	GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID string) (*domain.Payment, error)
	GetByTrackingIDForUpdate(ctx context.Context, tx pgx.Tx, trackingID string) (*domain.Payment, error)
	// SetSubmission stores the gateway identifiers. It never overwrites an
	// existing tracking id and reports whether the row was updated.
	SetSubmission(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, trackingID, redirectURL string) (bool, error)
	UpdateReconciled(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Payment, error)
	GetStats(ctx context.Context, since *time.Time) (*PaymentStats, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	State    *domain.PaymentState
	Page     int
	PageSize int
}

// PaymentStats holds aggregated payment counts for the operator dashboard.
type PaymentStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	// CompletedVolume sums completed amounts per currency.
	CompletedVolume map[string]decimal.Decimal `json:"completed_volume"`
}

// PaymentEventRepository appends to and reads the payment event log.
type PaymentEventRepository interface {
	Append(ctx context.Context, tx pgx.Tx, event *domain.PaymentEvent) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
}

// StatusHistoryRepository appends to and reads the status history.
type StatusHistoryRepository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.StatusHistoryEntry) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.StatusHistoryEntry, error)
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"payment-reconciler/internal/core/domain"

	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	CanonicalString(fields map[string]string) string
}

// NotificationVerifier authenticates inbound push notifications.
type NotificationVerifier interface {
	Verify(fields map[string]string, signature string) bool
}

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// SubmissionLock prevents two concurrent submissions of the same order.
type SubmissionLock interface {
	// Acquire returns false if another submission holds the lock.
	Acquire(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, orderID string) error
}

// StatusCheckTask is an out-of-band status check scheduled after a failed
// gateway fetch.
type StatusCheckTask struct {
	OrderID string `json:"order_id"`
	Trigger string `json:"trigger"`
	Attempt int    `json:"attempt"`
}

// RetryScheduler queues status checks for the background worker.
type RetryScheduler interface {
	ScheduleStatusCheck(ctx context.Context, task StatusCheckTask) error
}

// StatusNotifier tells downstream systems that a payment changed state.
type StatusNotifier interface {
	NotifyStateChange(ctx context.Context, payment *domain.Payment, previous domain.PaymentState) error
}

// StateChangeDelivery is a signed downstream notification waiting to be posted.
type StateChangeDelivery struct {
	OrderID   string          `json:"order_id"`
	Body      json.RawMessage `json:"body"`
	Signature string          `json:"signature"`
}

// DeliveryScheduler queues downstream notifications for the background worker.
type DeliveryScheduler interface {
	ScheduleDelivery(ctx context.Context, delivery StateChangeDelivery) error
}

// StateChangeDeliverer makes one delivery attempt for a queued notification.
type StateChangeDeliverer interface {
	Deliver(ctx context.Context, delivery StateChangeDelivery) error
}

// AuditService records operator-visible actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// ReconciliationService is the single writer of payment status.
type ReconciliationService interface {
	ApplySignal(ctx context.Context, sig domain.Signal) (*domain.Payment, error)
	RecordSubmission(ctx context.Context, orderID string, result SubmitOrderResult) (*domain.Payment, error)
}

// PaymentService defines the payment use cases exposed over HTTP and CLI.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)
	GetPayment(ctx context.Context, orderID string) (*domain.Payment, error)
	CheckStatus(ctx context.Context, orderID string) (*domain.Payment, error)
	CheckStatusByTrackingID(ctx context.Context, trackingID string) (*domain.Payment, error)
	HandleCallback(ctx context.Context, n domain.Notification) (*domain.Payment, error)
	HandleNotification(ctx context.Context, req NotificationRequest) (domain.NotificationAck, error)
	RetryStatusCheck(ctx context.Context, task StatusCheckTask) error
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileSummary, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	ListTransactions(ctx context.Context, orderID string) ([]domain.Transaction, error)
}

// CreatePaymentRequest holds validated input for payment creation.
type CreatePaymentRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	CallbackURL    string
	BillingAddress BillingAddress
	ClientIP       string
}

// NotificationRequest is an inbound push notification as received.
type NotificationRequest struct {
	Payload          map[string]string
	Signature        string
	SignaturePresent bool
}

// ReconcileSummary reports the outcome of a stale-payment sweep.
type ReconcileSummary struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// IPNService manages push-notification endpoints at the gateway.
type IPNService interface {
	Register(ctx context.Context, url, notificationType string) (*domain.IPNRegistration, error)
	List(ctx context.Context) ([]domain.IPNRegistration, error)
}

// ReportingService aggregates payments for operators.
type ReportingService interface {
	GetStats(ctx context.Context, period string) (*PaymentStats, error)
}

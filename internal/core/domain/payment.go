package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentState is the business-facing state derived from the gateway status.
type PaymentState string

const (
	PaymentStatePending    PaymentState = "PENDING"
	PaymentStateProcessing PaymentState = "PROCESSING"
	PaymentStateCompleted  PaymentState = "COMPLETED"
	PaymentStateFailed     PaymentState = "FAILED"
	PaymentStateCancelled  PaymentState = "CANCELLED"
)

// IsValid reports whether s is one of the known payment states.
func (s PaymentState) IsValid() bool {
	switch s {
	case PaymentStatePending, PaymentStateProcessing, PaymentStateCompleted,
		PaymentStateFailed, PaymentStateCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for states the gateway will not move out of on its own.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentStateCompleted || s == PaymentStateFailed || s == PaymentStateCancelled
}

// Canonical gateway statuses produced by MapStatus.
const (
	StatusSubmitted  = "200"
	StatusFailed     = "FAILED"
	StatusReversed   = "REVERSED"
	StatusInvalid    = "INVALID"
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCancelled  = "CANCELLED"
)

// SignalSource identifies which entry point produced a status signal.
type SignalSource string

const (
	SourceCreation    SignalSource = "CREATION"
	SourceCallback    SignalSource = "CALLBACK"
	SourceWebhook     SignalSource = "WEBHOOK"
	SourceManualCheck SignalSource = "MANUAL_CHECK"
)

// EventType classifies an entry of the payment event log.
type EventType string

const (
	EventCreated                 EventType = "CREATED"
	EventSubmittedToGateway      EventType = "SUBMITTED_TO_GATEWAY"
	EventStatusChecked           EventType = "STATUS_CHECKED"
	EventCallbackReceived        EventType = "CALLBACK_RECEIVED"
	EventWebhookReceived         EventType = "WEBHOOK_RECEIVED"
	EventStatusUpdatedViaWebhook EventType = "STATUS_UPDATED_VIA_WEBHOOK"
)

// Payment is the reconciled view of one merchant order at the gateway.
type Payment struct {
	ID                 uuid.UUID            `json:"id"`
	OrderID            string               `json:"order_id"`
	Amount             decimal.Decimal      `json:"amount"`
	Currency           string               `json:"currency"`
	Description        string               `json:"description"`
	Status             string               `json:"status"`
	State              PaymentState         `json:"payment_state"`
	OrderTrackingID    *string              `json:"order_tracking_id,omitempty"`
	RedirectURL        *string              `json:"redirect_url,omitempty"`
	PaymentMethod      *string              `json:"payment_method,omitempty"`
	ConfirmationCode   *string              `json:"confirmation_code,omitempty"`
	CallbackReceived   bool                 `json:"callback_received"`
	CallbackReceivedAt *time.Time           `json:"callback_received_at,omitempty"`
	WebhookReceived    bool                 `json:"webhook_received"`
	WebhookReceivedAt  *time.Time           `json:"webhook_received_at,omitempty"`
	LastStatusCheck    *time.Time           `json:"last_status_check,omitempty"`
	StatusHistory      []StatusHistoryEntry `json:"status_history,omitempty"`
	Events             []PaymentEvent       `json:"events,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// HasCompletionEvidence reports whether the gateway has reported a payment
// method or confirmation code for this payment.
func (p *Payment) HasCompletionEvidence() bool {
	return nonEmpty(p.PaymentMethod) || nonEmpty(p.ConfirmationCode)
}

// IsSubmitted reports whether the gateway has assigned a tracking id.
func (p *Payment) IsSubmitted() bool {
	return nonEmpty(p.OrderTrackingID)
}

// TrackingID returns the gateway tracking id or "".
func (p *Payment) TrackingID() string {
	if p.OrderTrackingID == nil {
		return ""
	}
	return *p.OrderTrackingID
}

// NewPayment builds a freshly created, not yet submitted payment. The status
// stays empty until the gateway reports one.
func NewPayment(orderID string, amount decimal.Decimal, currency, description string, now time.Time) *Payment {
	return &Payment{
		ID:          uuid.New(),
		OrderID:     orderID,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		State:       DeriveState("", "", ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PaymentEvent is an immutable entry of the payment event log.
type PaymentEvent struct {
	ID        uuid.UUID    `json:"id"`
	PaymentID uuid.UUID    `json:"payment_id"`
	EventType EventType    `json:"event_type"`
	Status    string       `json:"status"`
	Source    SignalSource `json:"source"`
	Metadata  Metadata     `json:"metadata,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// StatusHistoryEntry records one change of the canonical status.
type StatusHistoryEntry struct {
	ID        uuid.UUID    `json:"id"`
	PaymentID uuid.UUID    `json:"payment_id"`
	OldStatus string       `json:"old_status"`
	NewStatus string       `json:"new_status"`
	Source    SignalSource `json:"source"`
	Reason    string       `json:"reason,omitempty"`
	Metadata  Metadata     `json:"metadata,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

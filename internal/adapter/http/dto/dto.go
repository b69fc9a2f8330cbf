package dto

import (
	"time"

	"payment-reconciler/internal/core/domain"

	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the request body for POST /api/v1/payments.
type CreatePaymentRequest struct {
	OrderID        string                 `json:"order_id" binding:"required,max=50,safe_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency" binding:"required,currency"`
	Description    string                 `json:"description" binding:"required,max=100"`
	CallbackURL    string                 `json:"callback_url,omitempty" binding:"omitempty,safe_url"`
	BillingAddress *BillingAddressRequest `json:"billing_address,omitempty"`
}

// BillingAddressRequest is the optional customer contact for an order.
type BillingAddressRequest struct {
	Email       string `json:"email_address,omitempty" binding:"omitempty,email"`
	Phone       string `json:"phone_number,omitempty" binding:"omitempty,max=20"`
	CountryCode string `json:"country_code,omitempty" binding:"omitempty,len=2"`
	FirstName   string `json:"first_name,omitempty" binding:"omitempty,max=50"`
	LastName    string `json:"last_name,omitempty" binding:"omitempty,max=50"`
}

// PaymentResponse is the public view of a payment.
type PaymentResponse struct {
	ID                 string                      `json:"id"`
	OrderID            string                      `json:"order_id"`
	Amount             string                      `json:"amount"`
	Currency           string                      `json:"currency"`
	Description        string                      `json:"description"`
	Status             string                      `json:"status"`
	PaymentState       string                      `json:"payment_state"`
	OrderTrackingID    *string                     `json:"order_tracking_id,omitempty"`
	RedirectURL        *string                     `json:"redirect_url,omitempty"`
	PaymentMethod      *string                     `json:"payment_method,omitempty"`
	ConfirmationCode   *string                     `json:"confirmation_code,omitempty"`
	CallbackReceived   bool                        `json:"callback_received"`
	CallbackReceivedAt *time.Time                  `json:"callback_received_at,omitempty"`
	WebhookReceived    bool                        `json:"webhook_received"`
	WebhookReceivedAt  *time.Time                  `json:"webhook_received_at,omitempty"`
	LastStatusCheck    *time.Time                  `json:"last_status_check,omitempty"`
	StatusHistory      []domain.StatusHistoryEntry `json:"status_history,omitempty"`
	Events             []domain.PaymentEvent       `json:"events,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// NewPaymentResponse converts a domain payment.
func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                 p.ID.String(),
		OrderID:            p.OrderID,
		Amount:             p.Amount.StringFixed(2),
		Currency:           p.Currency,
		Description:        p.Description,
		Status:             p.Status,
		PaymentState:       string(p.State),
		OrderTrackingID:    p.OrderTrackingID,
		RedirectURL:        p.RedirectURL,
		PaymentMethod:      p.PaymentMethod,
		ConfirmationCode:   p.ConfirmationCode,
		CallbackReceived:   p.CallbackReceived,
		CallbackReceivedAt: p.CallbackReceivedAt,
		WebhookReceived:    p.WebhookReceived,
		WebhookReceivedAt:  p.WebhookReceivedAt,
		LastStatusCheck:    p.LastStatusCheck,
		StatusHistory:      p.StatusHistory,
		Events:             p.Events,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// PaymentStatusResponse is returned by the status-check endpoints.
type PaymentStatusResponse struct {
	OrderID          string     `json:"order_id"`
	Status           string     `json:"status"`
	PaymentState     string     `json:"payment_state"`
	OrderTrackingID  *string    `json:"order_tracking_id,omitempty"`
	PaymentMethod    *string    `json:"payment_method,omitempty"`
	ConfirmationCode *string    `json:"confirmation_code,omitempty"`
	LastStatusCheck  *time.Time `json:"last_status_check,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewPaymentStatusResponse converts a domain payment.
func NewPaymentStatusResponse(p *domain.Payment) PaymentStatusResponse {
	return PaymentStatusResponse{
		OrderID:          p.OrderID,
		Status:           p.Status,
		PaymentState:     string(p.State),
		OrderTrackingID:  p.OrderTrackingID,
		PaymentMethod:    p.PaymentMethod,
		ConfirmationCode: p.ConfirmationCode,
		LastStatusCheck:  p.LastStatusCheck,
		UpdatedAt:        p.UpdatedAt,
	}
}

// TransactionResponse is the operator view of a ledger entry.
type TransactionResponse struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	TransactionType   string     `json:"transaction_type"`
	Status            string     `json:"status"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	Provider          string     `json:"provider"`
	ProviderReference *string    `json:"provider_reference,omitempty"`
	PaymentMethod     *string    `json:"payment_method,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

// NewTransactionResponse converts a domain transaction.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID.String(),
		Reference:         t.Reference,
		TransactionType:   string(t.TransactionType),
		Status:            string(t.Status),
		Amount:            t.Amount.StringFixed(2),
		Currency:          t.Currency,
		Provider:          t.Provider,
		ProviderReference: t.ProviderReference,
		PaymentMethod:     t.PaymentMethod,
		CreatedAt:         t.CreatedAt,
		ProcessedAt:       t.ProcessedAt,
	}
}

// RegisterIPNRequest is the request body for POST /api/v1/admin/ipn.
type RegisterIPNRequest struct {
	URL              string `json:"url" binding:"required,safe_url"`
	NotificationType string `json:"ipn_notification_type" binding:"omitempty,oneof=GET POST get post"`
}

// ReconcileRequest is the optional body of POST /api/v1/admin/reconcile.
type ReconcileRequest struct {
	OlderThan string `json:"older_than,omitempty"`
	Limit     int    `json:"limit,omitempty" binding:"omitempty,min=1,max=1000"`
}

// ListPaymentsQuery binds the admin payment listing filters.
type ListPaymentsQuery struct {
	PaymentState string `form:"payment_state"`
	Page         int    `form:"page" binding:"omitempty,min=1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

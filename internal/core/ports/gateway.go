package ports

//go:generate mockgen -source=gateway.go -destination=mocks/mock_gateway.go -package=mocks

import (
	"context"

	"payment-reconciler/internal/core/domain"

	"github.com/shopspring/decimal"
)

// GatewayClient is the payment gateway as seen by the services. Errors are
// *apperror.AppError values distinguishing authentication, network and
// business failures.
type GatewayClient interface {
	SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error)
	GetTransactionStatus(ctx context.Context, trackingID, merchantReference string) (*domain.GatewayStatus, error)
	RegisterIPN(ctx context.Context, url, notificationType string) (*domain.IPNRegistration, error)
	ListIPNs(ctx context.Context) ([]domain.IPNRegistration, error)
}

// SubmitOrderRequest is an order submission to the gateway.
type SubmitOrderRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	CallbackURL    string
	NotificationID string
	BillingAddress BillingAddress
}

// BillingAddress is the customer contact passed to the gateway.
type BillingAddress struct {
	Email       string `json:"email_address,omitempty"`
	Phone       string `json:"phone_number,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

// SubmitOrderResult is the gateway's answer to an order submission.
type SubmitOrderResult struct {
	OrderTrackingID string
	RedirectURL     string
	Status          string
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of money movement tied to a payment.
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeChargeback TransactionType = "CHARGEBACK"
	TransactionTypeReversal   TransactionType = "REVERSAL"
	TransactionTypeFee        TransactionType = "FEE"
	TransactionTypeSettlement TransactionType = "SETTLEMENT"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "PENDING"
	TransactionStatusProcessing        TransactionStatus = "PROCESSING"
	TransactionStatusCompleted         TransactionStatus = "COMPLETED"
	TransactionStatusFailed            TransactionStatus = "FAILED"
	TransactionStatusCancelled         TransactionStatus = "CANCELLED"
	TransactionStatusRefunded          TransactionStatus = "REFUNDED"
	TransactionStatusPartiallyRefunded TransactionStatus = "PARTIALLY_REFUNDED"
	TransactionStatusChargeback        TransactionStatus = "CHARGEBACK"
	TransactionStatusReversed          TransactionStatus = "REVERSED"
)

// ProviderPesapal is the only gateway currently integrated.
const ProviderPesapal = "PESAPAL"

// Transaction is a financial movement recorded against a payment.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	PaymentID         uuid.UUID         `json:"payment_id"`
	Reference         string            `json:"reference"`
	TransactionType   TransactionType   `json:"transaction_type"`
	Status            TransactionStatus `json:"status"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Provider          string            `json:"provider"`
	ProviderReference *string           `json:"provider_reference,omitempty"`
	PaymentMethod     *string           `json:"payment_method,omitempty"`
	Description       *string           `json:"description,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
}

// TransactionFor returns the ledger entry implied by a state change of p, or
// nil. A first completion records the PAYMENT; a reversal of a completed
// payment records a REVERSAL.
func TransactionFor(p *Payment, o Outcome, now time.Time) *Transaction {
	var (
		typ    TransactionType
		status TransactionStatus
		ref    string
	)
	switch {
	case o.StateChanged && p.State == PaymentStateCompleted:
		typ, status, ref = TransactionTypePayment, TransactionStatusCompleted, p.OrderID
	case o.StatusChanged && p.Status == StatusReversed && o.PreviousState == PaymentStateCompleted:
		typ, status, ref = TransactionTypeReversal, TransactionStatusReversed, "REVERSAL-"+p.OrderID
	default:
		return nil
	}

	return &Transaction{
		ID:                uuid.New(),
		PaymentID:         p.ID,
		Reference:         ref,
		TransactionType:   typ,
		Status:            status,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Provider:          ProviderPesapal,
		ProviderReference: p.ConfirmationCode,
		PaymentMethod:     p.PaymentMethod,
		CreatedAt:         now,
		ProcessedAt:       &now,
	}
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPaymentState_IsTerminal(t *testing.T) {
	tests := []struct {
		state PaymentState
		want  bool
	}{
		{PaymentStatePending, false},
		{PaymentStateProcessing, false},
		{PaymentStateCompleted, true},
		{PaymentStateFailed, true},
		{PaymentStateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.IsTerminal())
			assert.True(t, tt.state.IsValid())
		})
	}
	assert.False(t, PaymentState("DONE").IsValid())
}

func TestNewPayment(t *testing.T) {
	p := NewPayment("ORDER-9", decimal.RequireFromString("10.50"), "USD", "desc", testNow)

	assert.Equal(t, "", p.Status)
	assert.Equal(t, PaymentStatePending, p.State)
	assert.False(t, p.IsSubmitted())
	assert.False(t, p.HasCompletionEvidence())
	assert.Equal(t, "", p.TrackingID())

	e := p.CreatedEvent(NewMetadata("client_ip", "1.2.3.4"))
	assert.Equal(t, EventCreated, e.EventType)
	assert.Equal(t, SourceCreation, e.Source)
	assert.Equal(t, testNow, e.Timestamp)
}

func TestValidateNewPayment(t *testing.T) {
	ok := decimal.RequireFromString("100.00")
	long := "0123456789012345678901234567890123456789012345678901"

	tests := []struct {
		name        string
		orderID     string
		amount      decimal.Decimal
		currency    string
		description string
		wantErr     bool
	}{
		{"valid", "ORDER-1", ok, "KES", "Shoes", false},
		{"lowercase currency", "ORDER-1", ok, "kes", "Shoes", false},
		{"trailing zeros", "ORDER-1", decimal.RequireFromString("10.500"), "USD", "Shoes", false},
		{"empty order id", "", ok, "KES", "Shoes", true},
		{"order id too long", long, ok, "KES", "Shoes", true},
		{"order id unsafe", "ORDER 1;", ok, "KES", "Shoes", true},
		{"zero amount", "ORDER-1", decimal.Zero, "KES", "Shoes", true},
		{"three decimals", "ORDER-1", decimal.RequireFromString("1.005"), "KES", "Shoes", true},
		{"unsupported currency", "ORDER-1", ok, "EUR", "Shoes", true},
		{"blank description", "ORDER-1", ok, "KES", "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewPayment(tt.orderID, tt.amount, tt.currency, tt.description)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

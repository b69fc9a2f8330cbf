package domain

import "strings"

// Numeric status codes reported by the gateway.
const (
	StatusCodeInvalid   = 0
	StatusCodeCompleted = 1
	StatusCodeFailed    = 2
	StatusCodeReversed  = 3
)

var statusCodes = map[int]string{
	StatusCodeInvalid:   StatusInvalid,
	StatusCodeCompleted: StatusSubmitted,
	StatusCodeFailed:    StatusFailed,
	StatusCodeReversed:  StatusReversed,
}

// Keys are upper-cased descriptions.
var statusDescriptions = map[string]string{
	"COMPLETED":  StatusSubmitted,
	"200":        StatusSubmitted,
	"FAILED":     StatusFailed,
	"INVALID":    StatusInvalid,
	"REVERSED":   StatusReversed,
	"PENDING":    StatusPending,
	"PROCESSING": StatusProcessing,
	"CANCELLED":  StatusCancelled,
}

// MapStatus normalizes the gateway's raw status into the canonical vocabulary.
// A known numeric code wins over the description; when neither is recognised
// the previous status is returned unchanged.
func MapStatus(code *int, description string, previous string) string {
	if code != nil {
		if s, ok := statusCodes[*code]; ok {
			return s
		}
	}
	if s, ok := statusDescriptions[strings.ToUpper(strings.TrimSpace(description))]; ok {
		return s
	}
	return previous
}

// DeriveState computes the business state from the canonical status and the
// completion evidence. The gateway's "200" only means the order was accepted;
// it becomes COMPLETED once a payment method or confirmation code is known.
func DeriveState(status, paymentMethod, confirmationCode string) PaymentState {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusSubmitted:
		if paymentMethod != "" || confirmationCode != "" {
			return PaymentStateCompleted
		}
		return PaymentStatePending
	case StatusReversed, StatusFailed, "ERROR", StatusInvalid, "0":
		return PaymentStateFailed
	case StatusPending, StatusProcessing:
		return PaymentStateProcessing
	case StatusCancelled:
		return PaymentStateCancelled
	default:
		return PaymentStatePending
	}
}

// stage orders states so a late signal cannot move a payment backwards.
// All terminal states share the highest stage.
func stage(s PaymentState) int {
	switch s {
	case PaymentStateProcessing:
		return 1
	case PaymentStateCompleted, PaymentStateFailed, PaymentStateCancelled:
		return 2
	default:
		return 0
	}
}

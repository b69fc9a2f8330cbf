package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GatewayStatus holds the raw status fields reported by the gateway for one
// order. Every field is optional.
type GatewayStatus struct {
	StatusCode        *int   `json:"status_code,omitempty"`
	StatusDescription string `json:"payment_status_description,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	ConfirmationCode  string `json:"confirmation_code,omitempty"`
	PaymentAccount    string `json:"payment_account,omitempty"`
	MerchantReference string `json:"merchant_reference,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Signal is one observation about a payment, from any entry point.
// Exactly one of OrderID or TrackingID identifies the payment.
type Signal struct {
	OrderID    string
	TrackingID string
	Source     SignalSource
	Status     GatewayStatus
	Reason     string
	Metadata   Metadata
}

// Outcome describes what Apply changed.
type Outcome struct {
	PreviousStatus string
	PreviousState  PaymentState
	StatusChanged  bool
	StateChanged   bool
	Stale          bool
	History        *StatusHistoryEntry
	Events         []PaymentEvent
}

// EventTypeFor returns the event recorded when a signal from source is applied.
func EventTypeFor(source SignalSource) EventType {
	switch source {
	case SourceCreation:
		return EventSubmittedToGateway
	case SourceCallback:
		return EventCallbackReceived
	case SourceWebhook:
		return EventWebhookReceived
	default:
		return EventStatusChecked
	}
}

// Apply folds sig into p and returns the history entry and events to append.
// Completion evidence is merged monotonically, and a signal whose derived
// state is an earlier stage than the current one leaves status and state
// untouched. Applying the same signal twice yields no second history entry.
func (p *Payment) Apply(sig Signal, now time.Time) Outcome {
	out := Outcome{PreviousStatus: p.Status, PreviousState: p.State}

	reported := MapStatus(sig.Status.StatusCode, sig.Status.StatusDescription, p.Status)

	if v := strings.TrimSpace(sig.Status.PaymentMethod); v != "" {
		p.PaymentMethod = &v
	}
	if v := strings.TrimSpace(sig.Status.ConfirmationCode); v != "" {
		p.ConfirmationCode = &v
	}
	method, code := deref(p.PaymentMethod), deref(p.ConfirmationCode)

	meta := sig.Metadata.Merge(nil)
	if stage(DeriveState(reported, method, code)) < stage(p.State) {
		out.Stale = true
		meta = meta.Set("stale_signal", "true").Set("reported_status", reported)
	} else {
		p.Status = reported
	}
	p.State = DeriveState(p.Status, method, code)
	meta = meta.Bounded()

	switch sig.Source {
	case SourceCallback:
		if !p.CallbackReceived {
			p.CallbackReceived = true
			p.CallbackReceivedAt = timePtr(now)
		}
	case SourceWebhook:
		if !p.WebhookReceived {
			p.WebhookReceived = true
			p.WebhookReceivedAt = timePtr(now)
		}
	}
	if sig.Source != SourceCreation {
		p.LastStatusCheck = timePtr(now)
	}
	p.UpdatedAt = now

	out.StatusChanged = p.Status != out.PreviousStatus
	out.StateChanged = p.State != out.PreviousState

	if out.StatusChanged {
		reason := sig.Reason
		if reason == "" {
			reason = "status reported via " + strings.ToLower(string(sig.Source))
		}
		out.History = &StatusHistoryEntry{
			ID:        uuid.New(),
			PaymentID: p.ID,
			OldStatus: out.PreviousStatus,
			NewStatus: p.Status,
			Source:    sig.Source,
			Reason:    reason,
			Metadata:  meta,
			Timestamp: now,
		}
	}

	out.Events = append(out.Events, p.newEvent(EventTypeFor(sig.Source), sig.Source, meta, now))
	if sig.Source == SourceWebhook && out.StatusChanged {
		out.Events = append(out.Events, p.newEvent(EventStatusUpdatedViaWebhook, sig.Source,
			NewMetadata("old_status", out.PreviousStatus, "new_status", p.Status), now))
	}
	return out
}

// CreatedEvent returns the event recorded when p is first stored.
func (p *Payment) CreatedEvent(meta Metadata) PaymentEvent {
	return p.newEvent(EventCreated, SourceCreation, meta.Bounded(), p.CreatedAt)
}

func (p *Payment) newEvent(t EventType, source SignalSource, meta Metadata, now time.Time) PaymentEvent {
	return PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		EventType: t,
		Status:    p.Status,
		Source:    source,
		Metadata:  meta,
		Timestamp: now,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"payment-reconciler/internal/core/domain"
	"payment-reconciler/internal/core/ports"

	"github.com/rs/zerolog"
)

// EventPaymentStateChanged is the only event type delivered downstream.
const EventPaymentStateChanged = "PAYMENT_STATE_CHANGED"

// SignatureHeader carries the delivery signature in addition to the body field.
const SignatureHeader = "X-Reconciler-Signature"

// StateChangePayload is the JSON structure posted to the downstream URL.
type StateChangePayload struct {
	EventType string          `json:"event_type"`
	Data      StateChangeData `json:"data"`
	Signature string          `json:"signature"`
}

// StateChangeData holds the payment details of a state change.
type StateChangeData struct {
	OrderID          string `json:"order_id"`
	OrderTrackingID  string `json:"order_tracking_id,omitempty"`
	Status           string `json:"status"`
	PaymentState     string `json:"payment_state"`
	PreviousState    string `json:"previous_state"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	PaymentMethod    string `json:"payment_method,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NotifyService signs state changes and posts them to the downstream URL.
// Deliveries go through the task queue when a scheduler is set, otherwise
// a single attempt is made inline.
type NotifyService struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	scheduler  ports.DeliveryScheduler
	log        zerolog.Logger
}

var (
	_ ports.StatusNotifier       = (*NotifyService)(nil)
	_ ports.StateChangeDeliverer = (*NotifyService)(nil)
)

// NewNotifyService creates a downstream notifier. An empty url disables delivery.
func NewNotifyService(
	url, secret string,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	scheduler ports.DeliveryScheduler,
	log zerolog.Logger,
) *NotifyService {
	return &NotifyService{
		url:        url,
		secret:     secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		scheduler:  scheduler,
		log:        log,
	}
}

// NotifyStateChange signs the state change and hands it to the delivery queue.
func (s *NotifyService) NotifyStateChange(ctx context.Context, p *domain.Payment, previous domain.PaymentState) error {
	if s.url == "" {
		s.log.Debug().Str("order_id", p.OrderID).Msg("notify: no downstream URL configured, skipping")
		return nil
	}

	data := StateChangeData{
		OrderID:          p.OrderID,
		OrderTrackingID:  p.TrackingID(),
		Status:           p.Status,
		PaymentState:     string(p.State),
		PreviousState:    string(previous),
		Amount:           p.Amount.StringFixed(2),
		Currency:         p.Currency,
		PaymentMethod:    deref(p.PaymentMethod),
		ConfirmationCode: deref(p.ConfirmationCode),
		Timestamp:        time.Now().Unix(),
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state change: %w", err)
	}
	payload := StateChangePayload{
		EventType: EventPaymentStateChanged,
		Data:      data,
		Signature: s.sigSvc.Sign(s.secret, string(dataBytes)),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal state change: %w", err)
	}

	delivery := ports.StateChangeDelivery{
		OrderID:   p.OrderID,
		Body:      body,
		Signature: payload.Signature,
	}
	if s.scheduler == nil {
		return s.Deliver(ctx, delivery)
	}
	return s.scheduler.ScheduleDelivery(ctx, delivery)
}

// Deliver posts one notification. Any transport error or non-2xx response
// is returned so the queue can retry it.
func (s *NotifyService) Deliver(ctx context.Context, d ports.StateChangeDelivery) error {
	if s.url == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(d.Body))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, d.Signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", d.OrderID).Msg("notify: delivery failed")
		return fmt.Errorf("notify %s: %w", d.OrderID, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warn().Str("order_id", d.OrderID).Int("status", resp.StatusCode).Msg("notify: non-2xx response")
		return fmt.Errorf("notify %s: downstream returned %d", d.OrderID, resp.StatusCode)
	}

	s.log.Info().Str("order_id", d.OrderID).Int("status", resp.StatusCode).Msg("notify: delivered")
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package domain

import (
	"net/http"
	"strings"
)

// NotificationAliasesVersion is bumped whenever notificationAliases changes.
const NotificationAliasesVersion = 1

// Notification types sent by the gateway.
const (
	NotificationTypeIPNChange = "IPNCHANGE"
	NotificationTypeCallback  = "CALLBACKURL"
)

// notificationAliases lists, per logical field, the payload keys accepted for
// it in lookup order: exact-cased key, snake_case, camelCase.
var notificationAliases = struct {
	TrackingID        []string
	MerchantReference []string
	NotificationType  []string
	OrderStatus       []string
	PaymentMethod     []string
	ConfirmationCode  []string
}{
	TrackingID:        []string{"OrderTrackingId", "order_tracking_id", "orderTrackingId"},
	MerchantReference: []string{"OrderMerchantReference", "order_merchant_reference", "orderMerchantReference"},
	NotificationType:  []string{"OrderNotificationType", "order_notification_type", "orderNotificationType"},
	OrderStatus:       []string{"OrderStatus", "order_status", "orderStatus"},
	PaymentMethod:     []string{"PaymentMethod", "payment_method", "paymentMethod"},
	ConfirmationCode:  []string{"ConfirmationCode", "confirmation_code", "confirmationCode"},
}

// Notification is the typed form of an inbound callback or push notification.
type Notification struct {
	TrackingID        string
	MerchantReference string
	NotificationType  string
	OrderStatus       string
	PaymentMethod     string
	ConfirmationCode  string
}

// ParseNotification resolves every logical field from a flat payload using
// the first non-empty alias.
func ParseNotification(payload map[string]string) Notification {
	a := notificationAliases
	return Notification{
		TrackingID:        firstOf(payload, a.TrackingID),
		MerchantReference: firstOf(payload, a.MerchantReference),
		NotificationType:  firstOf(payload, a.NotificationType),
		OrderStatus:       firstOf(payload, a.OrderStatus),
		PaymentMethod:     firstOf(payload, a.PaymentMethod),
		ConfirmationCode:  firstOf(payload, a.ConfirmationCode),
	}
}

// HasIdentifiers reports whether the notification names a payment.
func (n Notification) HasIdentifiers() bool {
	return n.TrackingID != "" || n.MerchantReference != ""
}

// ReportedStatus returns the status fields carried by the notification itself.
func (n Notification) ReportedStatus() GatewayStatus {
	return GatewayStatus{
		StatusDescription: n.OrderStatus,
		PaymentMethod:     n.PaymentMethod,
		ConfirmationCode:  n.ConfirmationCode,
		MerchantReference: n.MerchantReference,
	}
}

// NotificationAck is the body returned to the gateway for a push notification.
type NotificationAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// Ack builds the acknowledgement for n; ok selects status 200 or 500.
func (n Notification) Ack(ok bool) NotificationAck {
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	return NotificationAck{
		OrderNotificationType:  n.NotificationType,
		OrderTrackingID:        n.TrackingID,
		OrderMerchantReference: n.MerchantReference,
		Status:                 status,
	}
}

func firstOf(payload map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(payload[k]); v != "" {
			return v
		}
	}
	return ""
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNotification_AliasVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
	}{
		{"pascal", map[string]string{
			"OrderTrackingId": "TRK", "OrderMerchantReference": "ORD", "OrderNotificationType": "IPNCHANGE",
			"OrderStatus": "COMPLETED", "PaymentMethod": "MPESA", "ConfirmationCode": "C1",
		}},
		{"snake", map[string]string{
			"order_tracking_id": "TRK", "order_merchant_reference": "ORD", "order_notification_type": "IPNCHANGE",
			"order_status": "COMPLETED", "payment_method": "MPESA", "confirmation_code": "C1",
		}},
		{"camel", map[string]string{
			"orderTrackingId": "TRK", "orderMerchantReference": "ORD", "orderNotificationType": "IPNCHANGE",
			"orderStatus": "COMPLETED", "paymentMethod": "MPESA", "confirmationCode": "C1",
		}},
	}

	want := Notification{
		TrackingID:        "TRK",
		MerchantReference: "ORD",
		NotificationType:  "IPNCHANGE",
		OrderStatus:       "COMPLETED",
		PaymentMethod:     "MPESA",
		ConfirmationCode:  "C1",
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, ParseNotification(tt.payload))
		})
	}
}

func TestParseNotification_Precedence(t *testing.T) {
	n := ParseNotification(map[string]string{
		"orderTrackingId":   "camel",
		"order_tracking_id": "snake",
		"OrderTrackingId":   "pascal",
	})
	assert.Equal(t, "pascal", n.TrackingID)

	n = ParseNotification(map[string]string{
		"orderTrackingId":   "camel",
		"order_tracking_id": "snake",
		"OrderTrackingId":   "  ",
	})
	assert.Equal(t, "snake", n.TrackingID, "blank exact-cased key falls through")
}

func TestParseNotification_AliasTable(t *testing.T) {
	// Changing the alias table requires bumping NotificationAliasesVersion.
	assert.Equal(t, 1, NotificationAliasesVersion)
	assert.Equal(t, []string{"OrderTrackingId", "order_tracking_id", "orderTrackingId"}, notificationAliases.TrackingID)
	assert.Equal(t, []string{"OrderMerchantReference", "order_merchant_reference", "orderMerchantReference"}, notificationAliases.MerchantReference)
}

func TestNotification_Ack(t *testing.T) {
	n := Notification{TrackingID: "TRK", MerchantReference: "ORD", NotificationType: "IPNCHANGE"}

	assert.Equal(t, NotificationAck{
		OrderNotificationType: "IPNCHANGE", OrderTrackingID: "TRK", OrderMerchantReference: "ORD", Status: 200,
	}, n.Ack(true))
	assert.Equal(t, 500, n.Ack(false).Status)
	assert.True(t, n.HasIdentifiers())
	assert.False(t, Notification{NotificationType: "IPNCHANGE"}.HasIdentifiers())
}

package domain

import "time"

// IPN notification delivery methods supported by the gateway.
const (
	IPNMethodGET  = "GET"
	IPNMethodPOST = "POST"
)

// IPNRegistration is a push-notification endpoint registered at the gateway.
type IPNRegistration struct {
	IPNID            string     `json:"ipn_id"`
	URL              string     `json:"url"`
	NotificationType string     `json:"ipn_notification_type"`
	Status           string     `json:"ipn_status,omitempty"`
	CreatedAt        *time.Time `json:"created_date,omitempty"`
}

package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationMessage              NotificationType = "message"
	NotificationBooking              NotificationType = "booking"
	NotificationPayment              NotificationType = "payment"
	NotificationRecharge             NotificationType = "recharge"
	NotificationDocumentVerification NotificationType = "document_verification"
	NotificationTripUpdate           NotificationType = "trip_update"
	NotificationCancellation         NotificationType = "cancellation"
	NotificationTripStarted          NotificationType = "trip_started"
	NotificationTripAutoStarted      NotificationType = "trip_auto_started"
	NotificationTripCompleted        NotificationType = "trip_completed"
	NotificationWelcome              NotificationType = "welcome"
	NotificationSystem               NotificationType = "system"
	NotificationOther                NotificationType = "other"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationMessage:              {},
	NotificationBooking:              {},
	NotificationPayment:              {},
	NotificationRecharge:             {},
	NotificationDocumentVerification: {},
	NotificationTripUpdate:           {},
	NotificationCancellation:         {},
	NotificationTripStarted:          {},
	NotificationTripAutoStarted:      {},
	NotificationTripCompleted:        {},
	NotificationWelcome:              {},
	NotificationSystem:               {},
	NotificationOther:                {},
}

// UnmarshalJSON folds unknown wire values into NotificationOther so the
// type stays a closed set on the client.
func (t *NotificationType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	nt := NotificationType(s)
	if _, ok := notificationTypes[nt]; !ok {
		nt = NotificationOther
	}
	*t = nt
	return nil
}

type NotificationData struct {
	DocumentType       string `json:"document_type,omitempty"`
	VerificationStatus string `json:"verification_status,omitempty"`
}

type Notification struct {
	ID        int               `json:"id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"createdAt"`
	Data      *NotificationData `json:"data,omitempty"`
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

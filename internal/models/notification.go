package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationKind classifies in-app notifications.
type NotificationKind string

const (
	NotificationKindBooking       NotificationKind = "BOOKING"
	NotificationKindBookingStatus NotificationKind = "BOOKING_STATUS"
)

// Notification is an in-app message addressed to a user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Payload   types.JSONText   `db:"payload" json:"payload"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// BookingNotificationPayload is sent to the teacher when a booking is requested.
type BookingNotificationPayload struct {
	BookingID string `json:"booking_id"`
	StudentID string `json:"student_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// BookingStatusNotificationPayload is sent to the other party when a booking changes status.
type BookingStatusNotificationPayload struct {
	BookingID string        `json:"booking_id"`
	Status    BookingStatus `json:"status"`
	ChangedBy string        `json:"changed_by"`
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
}

// NotificationFilter narrows notification listings.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

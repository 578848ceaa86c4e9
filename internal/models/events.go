package models

import "time"

// Booking lifecycle event actions published to Kafka.
const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingCompleted = "booking_completed"
	EventPaymentUpdated   = "payment_updated"
	EventQrIssued         = "qr_issued"
	EventQrRedeemed       = "qr_redeemed"
)

type BookingEvent struct {
	Action        string        `json:"action"`
	BookingID     string        `json:"booking_id"`
	ConsumerID    string        `json:"consumer_id"`
	PartnerID     string        `json:"partner_id"`
	ProductID     string        `json:"product_id"`
	ProductType   ProductType   `json:"product_type"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

type QrEvent struct {
	Action     string    `json:"action"`
	QrID       string    `json:"qr_id"`
	BookingID  string    `json:"booking_id"`
	RedeemedBy string    `json:"redeemed_by,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// ProductType tags which product collection a booking points at.
type ProductType string

const (
	ProductYacht     ProductType = "yacht"
	ProductJetski    ProductType = "jetski"
	ProductKayak     ProductType = "kayak"
	ProductSpeedboat ProductType = "speedboat"
	ProductResort    ProductType = "resort"
)

func (p ProductType) Valid() bool {
	switch p {
	case ProductYacht, ProductJetski, ProductKayak, ProductSpeedboat, ProductResort:
		return true
	}
	return false
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID   string      `bun:"booking_id,pk" json:"booking_id"`
	ConsumerID  string      `bun:"consumer_id,notnull" json:"consumer_id"`
	PartnerID   string      `bun:"partner_id,notnull" json:"partner_id"`
	ProductID   string      `bun:"product_id,notnull" json:"product_id"`
	ProductType ProductType `bun:"product_type,notnull" json:"product_type"`

	StartTime time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime   time.Time `bun:"end_time,notnull" json:"end_time"`

	TotalPrice    float64       `bun:"total_price,notnull" json:"total_price"`
	Currency      string        `bun:"currency,notnull" json:"currency"`
	PaymentMethod string        `bun:"payment_method" json:"payment_method"`
	PaymentStatus PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	TransactionID string        `bun:"transaction_id,nullzero" json:"transaction_id,omitempty"`

	Status             BookingStatus `bun:"status,notnull" json:"status"`
	SpecialRequests    string        `bun:"special_requests,nullzero" json:"special_requests,omitempty"`
	CancellationReason string        `bun:"cancellation_reason,nullzero" json:"cancellation_reason,omitempty"`
	AdultsCount        int           `bun:"adults_count,nullzero" json:"adults_count,omitempty"`
	ChildrenCount      int           `bun:"children_count,nullzero" json:"children_count,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Terminal reports whether no further booking-status transition is legal.
func (b *Booking) Terminal() bool {
	return b.Status == BookingCancelled || b.Status == BookingCompleted
}

type BookingRequest struct {
	ProductID       string      `json:"product_id"`
	ProductType     ProductType `json:"product_type"`
	PartnerID       string      `json:"partner_id"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	TotalPrice      float64     `json:"total_price"`
	Currency        string      `json:"currency"`
	PaymentMethod   string      `json:"payment_method"`
	SpecialRequests string      `json:"special_requests,omitempty"`
	AdultsCount     int         `json:"adults_count,omitempty"`
	ChildrenCount   int         `json:"children_count,omitempty"`
}

type PaymentStatusRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

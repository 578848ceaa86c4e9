package models

import (
	"time"

	"github.com/uptrace/bun"
)

type UnavailabilityType string

const (
	UnavailabilityPartnerBlocked UnavailabilityType = "partner_blocked"
	UnavailabilityBooked         UnavailabilityType = "booked"
)

// Unavailability is one committed time-range hold against a product.
// Rows of kind "booked" are owned by a booking and released with it.
type Unavailability struct {
	bun.BaseModel `bun:"table:unavailabilities"`

	ID          string             `bun:"id,pk" json:"id"`
	ProductID   string             `bun:"product_id,notnull" json:"product_id"`
	ProductType ProductType        `bun:"product_type,notnull" json:"product_type"`
	Type        UnavailabilityType `bun:"type,notnull" json:"type"`
	BookingID   string             `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	ConsumerID  string             `bun:"consumer_id,nullzero" json:"consumer_id,omitempty"`
	StartTime   time.Time          `bun:"start_time,notnull" json:"start_time"`
	EndTime     time.Time          `bun:"end_time,notnull" json:"end_time"`
	CreatedAt   time.Time          `bun:"created_at,notnull" json:"created_at"`
}

type BlockRequest struct {
	ProductID   string      `json:"product_id"`
	ProductType ProductType `json:"product_type"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
}

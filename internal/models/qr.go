package models

import (
	"time"

	"github.com/uptrace/bun"
)

type QrStatus string

const (
	QrActive   QrStatus = "active"
	QrRedeemed QrStatus = "redeemed"
	QrExpired  QrStatus = "expired"
)

// BookingQr is a single-use redemption token bound to a confirmed booking.
// At most one active row per booking (partial unique index on booking_id
// where status = 'active').
type BookingQr struct {
	bun.BaseModel `bun:"table:booking_qrs"`

	ID          string      `bun:"id,pk" json:"id"`
	BookingID   string      `bun:"booking_id,notnull" json:"booking_id"`
	UserID      string      `bun:"user_id,notnull" json:"user_id"`
	ProductID   string      `bun:"product_id,notnull" json:"product_id"`
	ProductType ProductType `bun:"product_type,notnull" json:"product_type"`

	Token      string `bun:"token,notnull,unique" json:"-"`
	QrImageURL string `bun:"qr_image_url,nullzero" json:"qr_image_url,omitempty"`

	StartTime time.Time `bun:"start_time,notnull" json:"start_time"`
	EndTime   time.Time `bun:"end_time,notnull" json:"end_time"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expires_at"`

	Status     QrStatus  `bun:"status,notnull" json:"status"`
	RedeemedAt time.Time `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	RedeemedBy string    `bun:"redeemed_by,nullzero" json:"redeemed_by,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type QrGenerateRequest struct {
	BookingID string `json:"booking_id"`
}

type QrVerifyRequest struct {
	Token string `json:"token"`
}

// QrVerifyResult is what a scanning device sees after a successful redeem.
type QrVerifyResult struct {
	Booking    *Booking   `json:"booking"`
	Product    *Product   `json:"product"`
	Qr         *BookingQr `json:"redemption"`
	RedeemedAt time.Time  `json:"redeemed_at"`
}

type QrStatistics struct {
	Active   int `json:"active"`
	Redeemed int `json:"redeemed"`
	Expired  int `json:"expired"`
	Total    int `json:"total"`
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// ErrNotFound is returned when a booking id resolves to no row.
var ErrNotFound = errors.New("booking not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(booking).Exec(ctx)
	return err
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// TransitionStatus flips status only when the row is still in `from`,
// reporting whether the update won. Concurrent writers race on the same
// row; exactly one sees true.
func (d *DB) TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, reason string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", id).
		Where("status = ?", from)
	if reason != "" {
		q = q.Set("cancellation_reason = ?", reason)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdatePaymentStatus transitions the payment axis conditionally on the
// current value, same win/lose contract as TransitionStatus.
func (d *DB) UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus, transactionID string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", id).
		Where("payment_status = ?", from)
	if transactionID != "" {
		q = q.Set("transaction_id = ?", transactionID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (d *DB) ListByConsumer(ctx context.Context, consumerID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("consumer_id = ?", consumerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (d *DB) ListByPartner(ctx context.Context, partnerID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

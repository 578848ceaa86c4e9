package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("qr record not found")
	// ErrDuplicate is returned when the partial unique index rejects a
	// second active QR for the same booking.
	ErrDuplicate = errors.New("an active qr already exists for this booking")
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateQr(ctx context.Context, qr *models.BookingQr) error {
	_, err := d.Bun.NewInsert().Model(qr).Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		// sqlite (tests) reports constraint violations as plain errors
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (d *DB) GetByToken(ctx context.Context, token string) (*models.BookingQr, error) {
	var qr models.BookingQr
	err := d.Bun.NewSelect().
		Model(&qr).
		Where("token = ?", token).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (d *DB) GetActiveByBooking(ctx context.Context, bookingID string) (*models.BookingQr, error) {
	var qr models.BookingQr
	err := d.Bun.NewSelect().
		Model(&qr).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.QrActive).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

// Redeem atomically flips an active, unexpired token to redeemed. The
// conditional WHERE plus the affected-row count is what makes two
// concurrent scans yield exactly one winner.
func (d *DB) Redeem(ctx context.Context, token, redeemedBy string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.BookingQr)(nil)).
		Set("status = ?", models.QrRedeemed).
		Set("redeemed_at = ?", now).
		Set("redeemed_by = ?", redeemedBy).
		Where("token = ?", token).
		Where("status = ?", models.QrActive).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkExpired lazily flips a stale active row.
func (d *DB) MarkExpired(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.BookingQr)(nil)).
		Set("status = ?", models.QrExpired).
		Where("id = ?", id).
		Where("status = ?", models.QrActive).
		Exec(ctx)
	return err
}

// ExpireActiveForBooking invalidates whatever active token a booking has.
func (d *DB) ExpireActiveForBooking(ctx context.Context, bookingID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.BookingQr)(nil)).
		Set("status = ?", models.QrExpired).
		Where("booking_id = ?", bookingID).
		Where("status = ?", models.QrActive).
		Exec(ctx)
	return err
}

// SweepExpired flips every active row past its expiry. Idempotent; a
// second run affects zero rows.
func (d *DB) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.BookingQr)(nil)).
		Set("status = ?", models.QrExpired).
		Where("status = ?", models.QrActive).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (d *DB) Statistics(ctx context.Context) (*models.QrStatistics, error) {
	stats := &models.QrStatistics{}
	for _, st := range []struct {
		status models.QrStatus
		dest   *int
	}{
		{models.QrActive, &stats.Active},
		{models.QrRedeemed, &stats.Redeemed},
		{models.QrExpired, &stats.Expired},
	} {
		count, err := d.Bun.NewSelect().
			Model((*models.BookingQr)(nil)).
			Where("status = ?", st.status).
			Count(ctx)
		if err != nil {
			return nil, err
		}
		*st.dest = count
	}
	stats.Total = stats.Active + stats.Redeemed + stats.Expired
	return stats, nil
}

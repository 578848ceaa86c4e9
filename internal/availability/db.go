package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// ErrOverlap is returned when the datastore rejects a hold that intersects
// an existing one (exclusion constraint, code 23P01). Callers surface it as
// a Conflict.
var ErrOverlap = errors.New("time range overlaps an existing hold")

// Store is the availability ledger: committed time-range holds per product.
type Store struct {
	Bun bun.IDB
}

func NewStore(db bun.IDB) *Store {
	return &Store{Bun: db}
}

// RecordHold inserts a hold. Must run in the same logical step as the
// booking transition that justifies it so a failed transition never leaves
// an orphaned hold behind.
func (s *Store) RecordHold(ctx context.Context, entry *models.Unavailability) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.Bun.NewInsert().Model(entry).Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && (pqErr.Code == "23P01" || pqErr.Code == "23505") {
			return ErrOverlap
		}
		return err
	}
	return nil
}

// HasOverlap reports whether any hold for the product intersects
// [start, end). Half-open intervals: touching endpoints do not overlap.
func (s *Store) HasOverlap(ctx context.Context, productID string, productType models.ProductType, start, end time.Time) (bool, error) {
	count, err := s.Bun.NewSelect().
		Model((*models.Unavailability)(nil)).
		Where("product_id = ?", productID).
		Where("product_type = ?", productType).
		Where("start_time < ?", end).
		Where("end_time > ?", start).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Release removes all holds owned by a booking (cancellation, rejection).
func (s *Store) Release(ctx context.Context, bookingID string) error {
	_, err := s.Bun.NewDelete().
		Model((*models.Unavailability)(nil)).
		Where("booking_id = ?", bookingID).
		Exec(ctx)
	return err
}

// ListForProduct returns all holds for a product, soonest first.
func (s *Store) ListForProduct(ctx context.Context, productID string, productType models.ProductType) ([]models.Unavailability, error) {
	var entries []models.Unavailability
	err := s.Bun.NewSelect().
		Model(&entries).
		Where("product_id = ?", productID).
		Where("product_type = ?", productType).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

package qr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	bookingdb "github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	qrdb "github.com/codescrafter/luxury-backend-sub000/internal/qr/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/utils"
)

type DBLayer interface {
	CreateQr(ctx context.Context, qr *models.BookingQr) error
	GetByToken(ctx context.Context, token string) (*models.BookingQr, error)
	GetActiveByBooking(ctx context.Context, bookingID string) (*models.BookingQr, error)
	Redeem(ctx context.Context, token, redeemedBy string, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id string) error
	ExpireActiveForBooking(ctx context.Context, bookingID string) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Statistics(ctx context.Context) (*models.QrStatistics, error)
}

type BookingReader interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
}

type Renderer interface {
	RenderToken(token string) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

type CatalogClient interface {
	Lookup(ctx context.Context, productType models.ProductType, productID string) (*models.Product, error)
}

type KafkaPublisher interface {
	PublishQrEvent(action string, qr *models.BookingQr) error
}

// Clock is swapped out in tests to exercise expiry.
type Clock func() time.Time

type Service struct {
	DB       DBLayer
	Bookings BookingReader
	Renderer Renderer
	Media    Uploader
	Catalog  CatalogClient
	Kafka    KafkaPublisher
	Logger   *logger.Logger
	Now      Clock
}

func NewService(dbLayer DBLayer, bookings BookingReader, renderer Renderer, media Uploader, catalog CatalogClient, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{
		DB:       dbLayer,
		Bookings: bookings,
		Renderer: renderer,
		Media:    media,
		Catalog:  catalog,
		Kafka:    kafka,
		Logger:   log,
		Now:      time.Now,
	}
}

// Issue mints the single-use redemption token for a confirmed booking.
// ownerID becomes the record's owner (the booking's consumer when issuance
// is payment-triggered). The partial unique index on active rows is the
// authoritative duplicate guard; the pre-check just gives a cleaner error.
func (s *Service) Issue(ctx context.Context, ownerID, bookingID string) (*models.BookingQr, error) {
	if bookingID == "" {
		return nil, apperr.Validation("booking_id is required")
	}

	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if ownerID != booking.ConsumerID && ownerID != booking.PartnerID {
		return nil, apperr.Forbidden("only the booking's owners may issue its QR")
	}
	if booking.Status != models.BookingConfirmed {
		return nil, apperr.InvalidState("cannot issue a QR for a booking in state %s", booking.Status)
	}

	now := s.Now()
	if existing, err := s.DB.GetActiveByBooking(ctx, bookingID); err == nil {
		if now.After(existing.ExpiresAt) {
			// stale active row, flip it and continue
			if err := s.DB.MarkExpired(ctx, existing.ID); err != nil {
				return nil, apperr.Unavailable(err, "failed to expire stale QR")
			}
		} else {
			return nil, apperr.Conflict("an active QR already exists for booking %s", bookingID)
		}
	} else if !errors.Is(err, qrdb.ErrNotFound) {
		return nil, apperr.Unavailable(err, "failed to check for existing QR")
	}

	token, err := utils.GenerateToken()
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to generate token")
	}

	image, err := s.Renderer.RenderToken(token)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to render QR image")
	}

	imageURL := ""
	if s.Media != nil {
		imageURL, err = s.Media.Upload(ctx, fmt.Sprintf("qr-%s.png", bookingID), image)
		if err != nil {
			return nil, err
		}
	}

	qr := &models.BookingQr{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		UserID:      ownerID,
		ProductID:   booking.ProductID,
		ProductType: booking.ProductType,
		Token:       token,
		QrImageURL:  imageURL,
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
		ExpiresAt:   booking.EndTime,
		Status:      models.QrActive,
		CreatedAt:   now,
	}

	if err := s.DB.CreateQr(ctx, qr); err != nil {
		if errors.Is(err, qrdb.ErrDuplicate) {
			return nil, apperr.Conflict("an active QR already exists for booking %s", bookingID)
		}
		return nil, apperr.Unavailable(err, "failed to persist QR")
	}

	s.Logger.LogQr("ISSUE", bookingID, fmt.Sprintf("expires_at=%s", qr.ExpiresAt.Format(time.RFC3339)))
	s.publish(models.EventQrIssued, qr)
	return qr, nil
}

// Verify redeems a token exactly once. The token is the whole credential:
// no caller identity is required, and redeemedBy is recorded only when the
// scanner happens to be authenticated. Expiry is re-checked against the
// clock here regardless of the stored status, which may be stale between
// sweeps.
func (s *Service) Verify(ctx context.Context, token, redeemedBy string) (*models.QrVerifyResult, error) {
	if token == "" {
		return nil, apperr.Validation("token is required")
	}

	qr, err := s.DB.GetByToken(ctx, token)
	if errors.Is(err, qrdb.ErrNotFound) {
		return nil, apperr.NotFound("unknown token")
	}
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to look up token")
	}

	if qr.Status == models.QrRedeemed {
		return nil, apperr.Conflict("token already redeemed at %s", qr.RedeemedAt.Format(time.RFC3339))
	}

	now := s.Now()
	if qr.Status == models.QrExpired || now.After(qr.ExpiresAt) {
		if qr.Status == models.QrActive {
			if err := s.DB.MarkExpired(ctx, qr.ID); err != nil {
				s.Logger.Error("QR", fmt.Sprintf("failed to lazily expire %s: %v", qr.ID, err))
			}
		}
		return nil, apperr.Expired("token expired at %s", qr.ExpiresAt.Format(time.RFC3339))
	}

	won, err := s.DB.Redeem(ctx, token, redeemedBy, now)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to redeem token")
	}
	if !won {
		// lost the race: someone redeemed it, or expiry crossed between
		// the read and the conditional update
		if refreshed, rerr := s.DB.GetByToken(ctx, token); rerr == nil && refreshed.Status == models.QrRedeemed {
			return nil, apperr.Conflict("token already redeemed at %s", refreshed.RedeemedAt.Format(time.RFC3339))
		}
		return nil, apperr.Expired("token expired at %s", qr.ExpiresAt.Format(time.RFC3339))
	}

	qr.Status = models.QrRedeemed
	qr.RedeemedAt = now
	qr.RedeemedBy = redeemedBy

	booking, err := s.loadBooking(ctx, qr.BookingID)
	if err != nil {
		s.Logger.Error("QR", fmt.Sprintf("redeemed token for missing booking %s: %v", qr.BookingID, err))
	}

	var product *models.Product
	if s.Catalog != nil {
		if product, err = s.Catalog.Lookup(ctx, qr.ProductType, qr.ProductID); err != nil {
			// the redemption already happened; a catalog hiccup must not
			// unwind it
			s.Logger.Error("QR", fmt.Sprintf("catalog lookup after redeem failed for %s/%s: %v", qr.ProductType, qr.ProductID, err))
			product = nil
		}
	}

	s.Logger.LogQr("REDEEM", qr.BookingID, fmt.Sprintf("by=%s", redeemedBy))
	s.publish(models.EventQrRedeemed, qr)

	return &models.QrVerifyResult{
		Booking:    booking,
		Product:    product,
		Qr:         qr,
		RedeemedAt: now,
	}, nil
}

// GetForBooking returns the booking's active QR to its owners or an admin.
func (s *Service) GetForBooking(ctx context.Context, actor models.Actor, bookingID string) (*models.BookingQr, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.ConsumerID && actor.UserID != booking.PartnerID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the booking's owners may view its QR")
	}

	qr, err := s.DB.GetActiveByBooking(ctx, bookingID)
	if errors.Is(err, qrdb.ErrNotFound) {
		return nil, apperr.NotFound("no active QR for booking %s", bookingID)
	}
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load QR")
	}

	if s.Now().After(qr.ExpiresAt) {
		if err := s.DB.MarkExpired(ctx, qr.ID); err != nil {
			s.Logger.Error("QR", fmt.Sprintf("failed to lazily expire %s: %v", qr.ID, err))
		}
		return nil, apperr.NotFound("no active QR for booking %s", bookingID)
	}
	return qr, nil
}

// ExpireActiveForBooking invalidates a booking's active token, if any.
// Used when payment fails or is refunded, and on cancellation.
func (s *Service) ExpireActiveForBooking(ctx context.Context, bookingID string) error {
	if err := s.DB.ExpireActiveForBooking(ctx, bookingID); err != nil {
		return apperr.Unavailable(err, "failed to expire QR for booking %s", bookingID)
	}
	return nil
}

// CleanupExpired sweeps stale active rows. Safe to run repeatedly and
// concurrently; each row is flipped by exactly one run.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	count, err := s.DB.SweepExpired(ctx, s.Now())
	if err != nil {
		return 0, apperr.Unavailable(err, "cleanup sweep failed")
	}
	if count > 0 {
		s.Logger.Info("QR", fmt.Sprintf("cleanup expired %d stale QR records", count))
	}
	return count, nil
}

func (s *Service) Statistics(ctx context.Context) (*models.QrStatistics, error) {
	stats, err := s.DB.Statistics(ctx)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to compute statistics")
	}
	return stats, nil
}

func (s *Service) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.Bookings.GetBookingByID(ctx, id)
	if errors.Is(err, bookingdb.ErrNotFound) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load booking %s", id)
	}
	return booking, nil
}

func (s *Service) publish(action string, qr *models.BookingQr) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishQrEvent(action, qr); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for booking %s failed: %v", action, qr.BookingID, err))
	}
}

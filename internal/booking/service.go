package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/availability"
	"github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/utils"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id string, from, to models.BookingStatus, reason string) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id string, from, to models.PaymentStatus, transactionID string) (bool, error)
	ListByConsumer(ctx context.Context, consumerID string) ([]models.Booking, error)
	ListByPartner(ctx context.Context, partnerID string) ([]models.Booking, error)
}

type LedgerLayer interface {
	RecordHold(ctx context.Context, entry *models.Unavailability) error
	HasOverlap(ctx context.Context, productID string, productType models.ProductType, start, end time.Time) (bool, error)
	Release(ctx context.Context, bookingID string) error
	ListForProduct(ctx context.Context, productID string, productType models.ProductType) ([]models.Unavailability, error)
}

type ProductLock interface {
	LockProduct(ctx context.Context, productType, productID, bookingID string) (bool, error)
	UnlockProduct(ctx context.Context, productType, productID, bookingID string) error
}

type KafkaPublisher interface {
	PublishBookingEvent(action string, booking *models.Booking) error
}

type CatalogClient interface {
	Lookup(ctx context.Context, productType models.ProductType, productID string) (*models.Product, error)
}

// QrInvalidator is the slice of the QR service the payment axis drives.
type QrInvalidator interface {
	Issue(ctx context.Context, actorID, bookingID string) (*models.BookingQr, error)
	ExpireActiveForBooking(ctx context.Context, bookingID string) error
}

type Service struct {
	DB      DBLayer
	Ledger  LedgerLayer
	Lock    ProductLock
	Kafka   KafkaPublisher
	Catalog CatalogClient
	Qr      QrInvalidator
	Logger  *logger.Logger
}

func NewService(dbLayer DBLayer, ledger LedgerLayer, lock ProductLock, kafka KafkaPublisher, catalog CatalogClient, log *logger.Logger) *Service {
	return &Service{
		DB:      dbLayer,
		Ledger:  ledger,
		Lock:    lock,
		Kafka:   kafka,
		Catalog: catalog,
		Logger:  log,
	}
}

// SetQrService wires the QR service after both are constructed; they
// reference each other through narrow interfaces.
func (s *Service) SetQrService(qr QrInvalidator) { s.Qr = qr }

// Create validates and persists a consumer's booking request in pending.
// No ledger hold is written until the partner approves.
func (s *Service) Create(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.Booking, error) {
	if !req.ProductType.Valid() {
		return nil, apperr.Validation("unknown product type %q", req.ProductType)
	}
	if req.ProductID == "" {
		return nil, apperr.Validation("product_id is required")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, apperr.Validation("end_time must be after start_time")
	}
	if req.TotalPrice < 0 {
		return nil, apperr.Validation("total_price must be non-negative")
	}
	if req.Currency == "" {
		return nil, apperr.Validation("currency is required")
	}

	product, err := s.Catalog.Lookup(ctx, req.ProductType, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Bookable {
		return nil, apperr.Validation("product %s is not bookable", req.ProductID)
	}
	if req.PartnerID != "" && req.PartnerID != product.PartnerID {
		return nil, apperr.Validation("partner_id does not match product owner")
	}
	if req.Currency != product.Currency {
		return nil, apperr.Validation("currency %s does not match product currency %s", req.Currency, product.Currency)
	}

	overlap, err := s.Ledger.HasOverlap(ctx, req.ProductID, req.ProductType, req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to check availability")
	}
	if overlap {
		return nil, apperr.Conflict("product is unavailable for the requested time range")
	}

	booking := &models.Booking{
		BookingID:       uuid.NewString(),
		ConsumerID:      actor.UserID,
		PartnerID:       product.PartnerID,
		ProductID:       req.ProductID,
		ProductType:     req.ProductType,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TotalPrice:      req.TotalPrice,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Status:          models.BookingPending,
		SpecialRequests: req.SpecialRequests,
		AdultsCount:     req.AdultsCount,
		ChildrenCount:   req.ChildrenCount,
		CreatedAt:       time.Now(),
	}

	if err := s.DB.CreateBooking(ctx, booking); err != nil {
		return nil, apperr.Unavailable(err, "failed to create booking")
	}

	s.Logger.LogBooking("CREATE", booking.BookingID, fmt.Sprintf("consumer=%s product=%s/%s", actor.UserID, req.ProductType, req.ProductID))
	s.publish(models.EventBookingCreated, booking)
	return booking, nil
}

// Get returns a booking to its consumer, its partner, or an admin.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.ConsumerID && actor.UserID != booking.PartnerID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the booking's consumer, partner, or an admin may view it")
	}
	return booking, nil
}

// Approve confirms a pending booking and commits its ledger hold. The
// overlap check and hold insert run under a per-product lock; the
// datastore's exclusion constraint backstops lock expiry.
func (s *Service) Approve(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.PartnerID {
		return nil, apperr.Forbidden("only the owning partner may approve a booking")
	}
	if booking.Status != models.BookingPending {
		return nil, apperr.InvalidState("cannot approve a booking in state %s", booking.Status)
	}

	locked, err := s.Lock.LockProduct(ctx, string(booking.ProductType), booking.ProductID, booking.BookingID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to acquire product lock")
	}
	if !locked {
		return nil, apperr.Conflict("another booking operation is in progress for this product")
	}
	defer func() {
		if err := s.Lock.UnlockProduct(ctx, string(booking.ProductType), booking.ProductID, booking.BookingID); err != nil {
			s.Logger.Error("REDIS", fmt.Sprintf("failed to unlock product %s: %v", booking.ProductID, err))
		}
	}()

	overlap, err := s.Ledger.HasOverlap(ctx, booking.ProductID, booking.ProductType, booking.StartTime, booking.EndTime)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to check availability")
	}
	if overlap {
		return nil, apperr.Conflict("product is no longer available for the booked time range")
	}

	won, err := s.DB.TransitionStatus(ctx, id, models.BookingPending, models.BookingConfirmed, "")
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to confirm booking")
	}
	if !won {
		return nil, apperr.InvalidState("booking %s was modified concurrently", id)
	}

	hold := &models.Unavailability{
		ProductID:   booking.ProductID,
		ProductType: booking.ProductType,
		Type:        models.UnavailabilityBooked,
		BookingID:   booking.BookingID,
		ConsumerID:  booking.ConsumerID,
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
	}
	if err := s.Ledger.RecordHold(ctx, hold); err != nil {
		// Roll the status flip back so no confirmed booking exists
		// without its hold.
		if _, rbErr := s.DB.TransitionStatus(ctx, id, models.BookingConfirmed, models.BookingPending, ""); rbErr != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("failed to roll back confirmation of %s: %v", id, rbErr))
		}
		if errors.Is(err, availability.ErrOverlap) {
			return nil, apperr.Conflict("product is no longer available for the booked time range")
		}
		return nil, apperr.Unavailable(err, "failed to record availability hold")
	}

	booking.Status = models.BookingConfirmed
	s.Logger.LogBooking("APPROVE", id, fmt.Sprintf("partner=%s", actor.UserID))
	s.publish(models.EventBookingConfirmed, booking)
	return booking, nil
}

// Reject cancels a pending booking with a mandatory reason.
func (s *Service) Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	if reason == "" {
		return nil, apperr.Validation("a cancellation reason is required to reject a booking")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.PartnerID {
		return nil, apperr.Forbidden("only the owning partner may reject a booking")
	}
	if booking.Status != models.BookingPending {
		return nil, apperr.InvalidState("cannot reject a booking in state %s", booking.Status)
	}

	won, err := s.DB.TransitionStatus(ctx, id, models.BookingPending, models.BookingCancelled, reason)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to reject booking")
	}
	if !won {
		return nil, apperr.InvalidState("booking %s was modified concurrently", id)
	}

	booking.Status = models.BookingCancelled
	booking.CancellationReason = reason
	s.Logger.LogBooking("REJECT", id, reason)
	s.publish(models.EventBookingCancelled, booking)
	return booking, nil
}

// Cancel is consumer-initiated on pending bookings, and open to either
// owner on confirmed ones. Confirmed cancellations release the ledger hold
// and invalidate any active QR.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	isConsumer := actor.UserID == booking.ConsumerID
	isPartner := actor.UserID == booking.PartnerID
	if !isConsumer && !isPartner {
		return nil, apperr.Forbidden("only the booking's consumer or partner may cancel it")
	}

	if booking.Terminal() {
		return nil, apperr.InvalidState("cannot cancel a booking in state %s", booking.Status)
	}
	if booking.Status == models.BookingPending && !isConsumer {
		return nil, apperr.Forbidden("only the consumer may cancel a pending booking")
	}

	from := booking.Status
	won, err := s.DB.TransitionStatus(ctx, id, from, models.BookingCancelled, reason)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to cancel booking")
	}
	if !won {
		return nil, apperr.InvalidState("booking %s was modified concurrently", id)
	}

	if from == models.BookingConfirmed {
		// The cancellation is already committed; the hold must go or the
		// window stays blocked, so retry once before leaving it to the
		// operator.
		if err := s.Ledger.Release(ctx, id); err != nil {
			s.Logger.Warn("LEDGER", fmt.Sprintf("failed to release holds for booking %s, retrying: %v", id, err))
			if err := s.Ledger.Release(ctx, id); err != nil {
				s.Logger.Error("LEDGER", fmt.Sprintf("failed to release holds for booking %s, hold is orphaned: %v", id, err))
			}
		}
		if s.Qr != nil {
			if err := s.Qr.ExpireActiveForBooking(ctx, id); err != nil {
				s.Logger.Error("QR", fmt.Sprintf("failed to expire QR for booking %s: %v", id, err))
			}
		}
	}

	booking.Status = models.BookingCancelled
	booking.CancellationReason = reason
	s.Logger.LogBooking("CANCEL", id, fmt.Sprintf("by=%s from=%s", actor.UserID, from))
	s.publish(models.EventBookingCancelled, booking)
	return booking, nil
}

// Complete marks a confirmed booking as fulfilled.
func (s *Service) Complete(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.PartnerID {
		return nil, apperr.Forbidden("only the owning partner may complete a booking")
	}
	if booking.Status != models.BookingConfirmed {
		return nil, apperr.InvalidState("cannot complete a booking in state %s", booking.Status)
	}

	won, err := s.DB.TransitionStatus(ctx, id, models.BookingConfirmed, models.BookingCompleted, "")
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to complete booking")
	}
	if !won {
		return nil, apperr.InvalidState("booking %s was modified concurrently", id)
	}

	booking.Status = models.BookingCompleted
	s.Logger.LogBooking("COMPLETE", id, fmt.Sprintf("partner=%s", actor.UserID))
	s.publish(models.EventBookingCompleted, booking)
	return booking, nil
}

// UpdatePaymentStatus moves the payment axis: pending → paid|failed,
// paid → refunded. A paid confirmed booking gets a QR issued; failed or
// refunded payments invalidate any active QR.
func (s *Service) UpdatePaymentStatus(ctx context.Context, actor models.Actor, id string, req models.PaymentStatusRequest) (*models.Booking, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != booking.ConsumerID && actor.UserID != booking.PartnerID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("only the booking's owners may update its payment status")
	}

	var from models.PaymentStatus
	switch req.PaymentStatus {
	case models.PaymentPaid, models.PaymentFailed:
		from = models.PaymentPending
	case models.PaymentRefunded:
		from = models.PaymentPaid
	default:
		return nil, apperr.Validation("unknown payment status %q", req.PaymentStatus)
	}
	if booking.PaymentStatus != from {
		return nil, apperr.InvalidState("cannot move payment from %s to %s", booking.PaymentStatus, req.PaymentStatus)
	}
	if req.PaymentStatus == models.PaymentPaid && req.TransactionID == "" {
		req.TransactionID = utils.GenerateTransactionID()
	}

	won, err := s.DB.UpdatePaymentStatus(ctx, id, from, req.PaymentStatus, req.TransactionID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to update payment status")
	}
	if !won {
		return nil, apperr.Conflict("payment status for booking %s changed concurrently", id)
	}

	booking.PaymentStatus = req.PaymentStatus
	booking.TransactionID = req.TransactionID
	s.Logger.LogBooking("PAYMENT", id, fmt.Sprintf("status=%s", req.PaymentStatus))

	if s.Qr != nil {
		switch req.PaymentStatus {
		case models.PaymentPaid:
			if booking.Status == models.BookingConfirmed {
				if _, err := s.Qr.Issue(ctx, booking.ConsumerID, id); err != nil && !apperr.Is(err, apperr.KindConflict) {
					s.Logger.Error("QR", fmt.Sprintf("failed to issue QR for paid booking %s: %v", id, err))
				}
			}
		case models.PaymentFailed, models.PaymentRefunded:
			if err := s.Qr.ExpireActiveForBooking(ctx, id); err != nil {
				s.Logger.Error("QR", fmt.Sprintf("failed to expire QR for booking %s: %v", id, err))
			}
		}
	}

	s.publish(models.EventPaymentUpdated, booking)
	return booking, nil
}

// ListForActor returns the caller's own bookings: the partner view when
// the actor carries the PARTNER role, otherwise the consumer view.
func (s *Service) ListForActor(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	var (
		bookings []models.Booking
		err      error
	)
	if actor.HasRole(models.RolePartner) {
		bookings, err = s.DB.ListByPartner(ctx, actor.UserID)
	} else {
		bookings, err = s.DB.ListByConsumer(ctx, actor.UserID)
	}
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to list bookings")
	}
	return bookings, nil
}

// BlockProduct records a partner's manual unavailability window.
func (s *Service) BlockProduct(ctx context.Context, actor models.Actor, req models.BlockRequest) (*models.Unavailability, error) {
	if !req.ProductType.Valid() {
		return nil, apperr.Validation("unknown product type %q", req.ProductType)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, apperr.Validation("end_time must be after start_time")
	}

	product, err := s.Catalog.Lookup(ctx, req.ProductType, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.PartnerID != actor.UserID {
		return nil, apperr.Forbidden("only the product's owner may block its availability")
	}

	blockID := uuid.NewString()
	locked, err := s.Lock.LockProduct(ctx, string(req.ProductType), req.ProductID, blockID)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to acquire product lock")
	}
	if !locked {
		return nil, apperr.Conflict("another booking operation is in progress for this product")
	}
	defer func() {
		if err := s.Lock.UnlockProduct(ctx, string(req.ProductType), req.ProductID, blockID); err != nil {
			s.Logger.Error("REDIS", fmt.Sprintf("failed to unlock product %s: %v", req.ProductID, err))
		}
	}()

	overlap, err := s.Ledger.HasOverlap(ctx, req.ProductID, req.ProductType, req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to check availability")
	}
	if overlap {
		return nil, apperr.Conflict("time range overlaps an existing hold")
	}

	entry := &models.Unavailability{
		ID:          blockID,
		ProductID:   req.ProductID,
		ProductType: req.ProductType,
		Type:        models.UnavailabilityPartnerBlocked,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := s.Ledger.RecordHold(ctx, entry); err != nil {
		if errors.Is(err, availability.ErrOverlap) {
			return nil, apperr.Conflict("time range overlaps an existing hold")
		}
		return nil, apperr.Unavailable(err, "failed to record block")
	}

	s.Logger.Info("LEDGER", fmt.Sprintf("partner %s blocked %s/%s", actor.UserID, req.ProductType, req.ProductID))
	return entry, nil
}

// ProductHolds lists the committed holds for a product.
func (s *Service) ProductHolds(ctx context.Context, productType models.ProductType, productID string) ([]models.Unavailability, error) {
	if !productType.Valid() {
		return nil, apperr.Validation("unknown product type %q", productType)
	}
	entries, err := s.Ledger.ListForProduct(ctx, productID, productType)
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to list holds")
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Booking, error) {
	if id == "" {
		return nil, apperr.Validation("booking id is required")
	}
	booking, err := s.DB.GetBookingByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, apperr.Unavailable(err, "failed to load booking %s", id)
	}
	return booking, nil
}

func (s *Service) publish(action string, booking *models.Booking) {
	if s.Kafka == nil {
		return
	}
	if err := s.Kafka.PublishBookingEvent(action, booking); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s for booking %s failed: %v", action, booking.BookingID, err))
	}
}

package qr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	bookingdb "github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr"
	qrdb "github.com/codescrafter/luxury-backend-sub000/internal/qr/db"
)

type MockQrDB struct{ mock.Mock }

func (m *MockQrDB) CreateQr(ctx context.Context, q *models.BookingQr) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockQrDB) GetByToken(ctx context.Context, token string) (*models.BookingQr, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingQr), args.Error(1)
}

func (m *MockQrDB) GetActiveByBooking(ctx context.Context, bookingID string) (*models.BookingQr, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BookingQr), args.Error(1)
}

func (m *MockQrDB) Redeem(ctx context.Context, token, redeemedBy string, now time.Time) (bool, error) {
	args := m.Called(ctx, token, redeemedBy, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockQrDB) MarkExpired(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockQrDB) ExpireActiveForBooking(ctx context.Context, bookingID string) error {
	return m.Called(ctx, bookingID).Error(0)
}

func (m *MockQrDB) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockQrDB) Statistics(ctx context.Context) (*models.QrStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QrStatistics), args.Error(1)
}

type MockBookings struct{ mock.Mock }

func (m *MockBookings) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type MockRenderer struct{ mock.Mock }

func (m *MockRenderer) RenderToken(token string) ([]byte, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockUploader struct{ mock.Mock }

func (m *MockUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	args := m.Called(ctx, filename, data)
	return args.String(0), args.Error(1)
}

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) Lookup(ctx context.Context, productType models.ProductType, productID string) (*models.Product, error) {
	args := m.Called(ctx, productType, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockKafka struct{ mock.Mock }

func (m *MockKafka) PublishQrEvent(action string, q *models.BookingQr) error {
	return m.Called(action, q).Error(0)
}

type qrMocks struct {
	db       *MockQrDB
	bookings *MockBookings
	renderer *MockRenderer
	media    *MockUploader
	catalog  *MockCatalog
	kafka    *MockKafka
}

var fixedNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService() (*qr.Service, *qrMocks) {
	m := &qrMocks{
		db:       new(MockQrDB),
		bookings: new(MockBookings),
		renderer: new(MockRenderer),
		media:    new(MockUploader),
		catalog:  new(MockCatalog),
		kafka:    new(MockKafka),
	}
	svc := qr.NewService(m.db, m.bookings, m.renderer, m.media, m.catalog, m.kafka, logger.NewLogger())
	svc.Now = func() time.Time { return fixedNow }
	return svc, m
}

func confirmedBooking() *models.Booking {
	return &models.Booking{
		BookingID:     "booking-1",
		ConsumerID:    "consumer-1",
		PartnerID:     "partner-1",
		ProductID:     "yacht-1",
		ProductType:   models.ProductYacht,
		StartTime:     fixedNow.Add(-time.Hour),
		EndTime:       fixedNow.Add(6 * time.Hour),
		Status:        models.BookingConfirmed,
		PaymentStatus: models.PaymentPaid,
	}
}

func activeQr() *models.BookingQr {
	return &models.BookingQr{
		ID:          "qr-1",
		BookingID:   "booking-1",
		UserID:      "consumer-1",
		ProductID:   "yacht-1",
		ProductType: models.ProductYacht,
		Token:       "tok-1",
		StartTime:   fixedNow.Add(-time.Hour),
		EndTime:     fixedNow.Add(6 * time.Hour),
		ExpiresAt:   fixedNow.Add(6 * time.Hour),
		Status:      models.QrActive,
	}
}

func TestIssueRequiresConfirmedBooking(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	pending := confirmedBooking()
	pending.Status = models.BookingPending
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(pending, nil)

	_, err := svc.Issue(ctx, "consumer-1", "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidState))
}

func TestIssueOwnersOnly(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)

	_, err := svc.Issue(ctx, "stranger", "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestIssueBookingNotFound(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "missing").Return(nil, bookingdb.ErrNotFound)

	_, err := svc.Issue(ctx, "consumer-1", "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestIssueConflictsOnActiveQr(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(activeQr(), nil)

	_, err := svc.Issue(ctx, "consumer-1", "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	m.db.AssertNotCalled(t, "CreateQr", mock.Anything, mock.Anything)
}

func TestIssueReplacesStaleActiveQr(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)

	stale := activeQr()
	stale.ExpiresAt = fixedNow.Add(-time.Minute)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(stale, nil)
	m.db.On("MarkExpired", ctx, "qr-1").Return(nil)
	m.renderer.On("RenderToken", mock.AnythingOfType("string")).Return([]byte("png"), nil)
	m.media.On("Upload", ctx, "qr-booking-1.png", []byte("png")).Return("https://cdn/qr-booking-1.png", nil)
	m.db.On("CreateQr", ctx, mock.AnythingOfType("*models.BookingQr")).Return(nil)
	m.kafka.On("PublishQrEvent", models.EventQrIssued, mock.Anything).Return(nil)

	got, err := svc.Issue(ctx, "consumer-1", "booking-1")
	require.NoError(t, err)
	assert.Equal(t, models.QrActive, got.Status)
	m.db.AssertExpectations(t)
}

func TestIssueExpiresAtTracksBookingEnd(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	booking := confirmedBooking()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(booking, nil)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(nil, qrdb.ErrNotFound)
	m.renderer.On("RenderToken", mock.AnythingOfType("string")).Return([]byte("png"), nil)
	m.media.On("Upload", ctx, "qr-booking-1.png", []byte("png")).Return("https://cdn/qr.png", nil)
	m.db.On("CreateQr", ctx, mock.AnythingOfType("*models.BookingQr")).Return(nil)
	m.kafka.On("PublishQrEvent", models.EventQrIssued, mock.Anything).Return(nil)

	got, err := svc.Issue(ctx, "consumer-1", "booking-1")
	require.NoError(t, err)
	assert.Equal(t, booking.EndTime, got.ExpiresAt)
	assert.Equal(t, "consumer-1", got.UserID)
	assert.NotEmpty(t, got.Token)
	assert.Equal(t, "https://cdn/qr.png", got.QrImageURL)
}

func TestIssueDuplicateRaceMapsToConflict(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(nil, qrdb.ErrNotFound)
	m.renderer.On("RenderToken", mock.AnythingOfType("string")).Return([]byte("png"), nil)
	m.media.On("Upload", ctx, "qr-booking-1.png", []byte("png")).Return("https://cdn/qr.png", nil)
	// the partial unique index catches what the pre-check missed
	m.db.On("CreateQr", ctx, mock.AnythingOfType("*models.BookingQr")).Return(qrdb.ErrDuplicate)

	_, err := svc.Issue(ctx, "consumer-1", "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestVerifyUnknownToken(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.db.On("GetByToken", ctx, "nope").Return(nil, qrdb.ErrNotFound)

	_, err := svc.Verify(ctx, "nope", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestVerifyAlreadyRedeemed(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	redeemed := activeQr()
	redeemed.Status = models.QrRedeemed
	redeemed.RedeemedAt = fixedNow.Add(-time.Hour)
	m.db.On("GetByToken", ctx, "tok-1").Return(redeemed, nil)

	_, err := svc.Verify(ctx, "tok-1", "gate-1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	m.db.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyExpiredTokenLazilyFlips(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	stale := activeQr()
	stale.ExpiresAt = fixedNow.Add(-time.Minute)
	m.db.On("GetByToken", ctx, "tok-1").Return(stale, nil)
	m.db.On("MarkExpired", ctx, "qr-1").Return(nil)

	_, err := svc.Verify(ctx, "tok-1", "gate-1")
	assert.True(t, apperr.Is(err, apperr.KindExpired))
	m.db.AssertExpectations(t)
}

func TestVerifyLostRaceReportsRedeemed(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.db.On("GetByToken", ctx, "tok-1").Return(activeQr(), nil).Once()
	m.db.On("Redeem", ctx, "tok-1", "gate-2", fixedNow).Return(false, nil)

	lost := activeQr()
	lost.Status = models.QrRedeemed
	lost.RedeemedAt = fixedNow
	m.db.On("GetByToken", ctx, "tok-1").Return(lost, nil).Once()

	_, err := svc.Verify(ctx, "tok-1", "gate-2")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestVerifyRedeemsOnce(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.db.On("GetByToken", ctx, "tok-1").Return(activeQr(), nil)
	m.db.On("Redeem", ctx, "tok-1", "gate-1", fixedNow).Return(true, nil)
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)
	m.catalog.On("Lookup", ctx, models.ProductYacht, "yacht-1").Return(&models.Product{
		ProductID: "yacht-1",
		Name:      "Azure Dream",
		PartnerID: "partner-1",
	}, nil)
	m.kafka.On("PublishQrEvent", models.EventQrRedeemed, mock.Anything).Return(nil)

	result, err := svc.Verify(ctx, "tok-1", "gate-1")
	require.NoError(t, err)
	assert.Equal(t, models.QrRedeemed, result.Qr.Status)
	assert.Equal(t, "gate-1", result.Qr.RedeemedBy)
	assert.Equal(t, fixedNow, result.RedeemedAt)
	assert.Equal(t, "booking-1", result.Booking.BookingID)
	assert.Equal(t, "Azure Dream", result.Product.Name)
	m.kafka.AssertExpectations(t)
}

func TestVerifySurvivesCatalogOutage(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()

	m.db.On("GetByToken", ctx, "tok-1").Return(activeQr(), nil)
	m.db.On("Redeem", ctx, "tok-1", "", fixedNow).Return(true, nil)
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)
	m.catalog.On("Lookup", ctx, models.ProductYacht, "yacht-1").Return(nil, apperr.Unavailable(nil, "catalog down"))
	m.kafka.On("PublishQrEvent", models.EventQrRedeemed, mock.Anything).Return(nil)

	result, err := svc.Verify(ctx, "tok-1", "")
	require.NoError(t, err, "a catalog hiccup must not unwind the redemption")
	assert.Nil(t, result.Product)
	assert.Equal(t, models.QrRedeemed, result.Qr.Status)
}

func TestGetForBookingOwnership(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(activeQr(), nil)

	consumer := models.Actor{UserID: "consumer-1", Roles: []string{models.RoleUser}}
	got, err := svc.GetForBooking(ctx, consumer, "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "qr-1", got.ID)

	stranger := models.Actor{UserID: "stranger", Roles: []string{models.RoleUser}}
	_, err = svc.GetForBooking(ctx, stranger, "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestGetForBookingExpiredReturnsNotFound(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.bookings.On("GetBookingByID", ctx, "booking-1").Return(confirmedBooking(), nil)

	stale := activeQr()
	stale.ExpiresAt = fixedNow.Add(-time.Minute)
	m.db.On("GetActiveByBooking", ctx, "booking-1").Return(stale, nil)
	m.db.On("MarkExpired", ctx, "qr-1").Return(nil)

	admin := models.Actor{UserID: "admin-1", Roles: []string{models.RoleAdmin}}
	_, err := svc.GetForBooking(ctx, admin, "booking-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	m.db.AssertExpectations(t)
}

func TestCleanupExpired(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.db.On("SweepExpired", ctx, fixedNow).Return(3, nil)

	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

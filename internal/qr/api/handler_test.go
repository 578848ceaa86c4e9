package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr/api"
	bookingdb "github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	qrdb "github.com/codescrafter/luxury-backend-sub000/internal/qr/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr/generator"
	"github.com/codescrafter/luxury-backend-sub000/internal/utils"
)

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	return "https://cdn.example.com/" + filename, nil
}

func setupVerifyRouter(t *testing.T) (*chi.Mux, *qr.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	_, err = bunDB.NewCreateTable().Model((*models.Booking)(nil)).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewCreateTable().Model((*models.BookingQr)(nil)).Exec(ctx)
	require.NoError(t, err)

	log := logger.NewLogger()
	svc := qr.NewService(
		&qrdb.DB{Bun: bunDB},
		&bookingdb.DB{Bun: bunDB},
		generator.New(),
		stubUploader{},
		nil,
		nil,
		log,
	)
	handler := api.NewHandler(svc, log)

	r := chi.NewRouter()
	handler.RegisterPublic(r)
	return r, svc, bunDB
}

func seedConfirmedBooking(t *testing.T, bunDB *bun.DB) *models.Booking {
	now := time.Now()
	b := &models.Booking{
		BookingID:     "b-1",
		ConsumerID:    "consumer-1",
		PartnerID:     "partner-1",
		ProductID:     "yacht-1",
		ProductType:   models.ProductYacht,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(6 * time.Hour),
		TotalPrice:    500,
		Currency:      "USD",
		PaymentStatus: models.PaymentPaid,
		Status:        models.BookingConfirmed,
		CreatedAt:     now,
	}
	_, err := bunDB.NewInsert().Model(b).Exec(context.Background())
	require.NoError(t, err)
	return b
}

func verifyRequest(token string) *http.Request {
	body, _ := json.Marshal(models.QrVerifyRequest{Token: token})
	return httptest.NewRequest(http.MethodPost, "/qr/verify", bytes.NewReader(body))
}

func TestVerifyEndpointRedeemsOnce(t *testing.T) {
	router, svc, bunDB := setupVerifyRouter(t)
	seedConfirmedBooking(t, bunDB)

	issued, err := svc.Issue(context.Background(), "consumer-1", "b-1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, verifyRequest(issued.Token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the same token is now worthless
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, verifyRequest(issued.Token))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CONFLICT", resp.ErrorKind)
}

func TestVerifyEndpointUnknownToken(t *testing.T) {
	router, _, _ := setupVerifyRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, verifyRequest("no-such-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyEndpointExpiredToken(t *testing.T) {
	router, svc, bunDB := setupVerifyRouter(t)
	seedConfirmedBooking(t, bunDB)

	issued, err := svc.Issue(context.Background(), "consumer-1", "b-1")
	require.NoError(t, err)

	// jump past the booking's end
	svc.Now = func() time.Time { return issued.ExpiresAt.Add(time.Minute) }

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, verifyRequest(issued.Token))
	assert.Equal(t, http.StatusGone, rec.Code)
}

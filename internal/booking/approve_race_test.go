package booking_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/availability"
	"github.com/codescrafter/luxury-backend-sub000/internal/booking"
	bookingdb "github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	bookingredis "github.com/codescrafter/luxury-backend-sub000/internal/booking/redis"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

// Approvals for overlapping windows on the same product race on the
// per-product lock and the ledger. Exactly one may confirm; every loser
// must see a Conflict, and exactly one hold may land in the ledger.
func TestApproveConcurrentOverlappingBookings(t *testing.T) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	defer bunDB.Close()

	ctx := context.Background()
	_, err = bunDB.NewCreateTable().Model((*models.Booking)(nil)).Exec(ctx)
	require.NoError(t, err)
	_, err = bunDB.NewCreateTable().Model((*models.Unavailability)(nil)).Exec(ctx)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	store := &bookingdb.DB{Bun: bunDB}
	ledger := availability.NewStore(bunDB)
	lock := bookingredis.NewRedis(redisClient, 30*time.Second)
	svc := booking.NewService(store, ledger, lock, nil, nil, logger.NewLogger())

	const attempts = 6
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	ids := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		id := fmt.Sprintf("race-%d", i)
		ids[i] = id
		pending := &models.Booking{
			BookingID:     id,
			ConsumerID:    fmt.Sprintf("consumer-%d", i),
			PartnerID:     "partner-1",
			ProductID:     "jetski-1",
			ProductType:   models.ProductJetski,
			StartTime:     base,
			EndTime:       base.Add(2 * time.Hour),
			TotalPrice:    150,
			Currency:      "USD",
			PaymentStatus: models.PaymentPending,
			Status:        models.BookingPending,
			CreatedAt:     time.Now(),
		}
		require.NoError(t, store.CreateBooking(ctx, pending))
	}

	owner := models.Actor{UserID: "partner-1", Roles: []string{models.RolePartner}}
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(bookingID string) {
			defer wg.Done()
			_, err := svc.Approve(ctx, owner, bookingID)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	wins, conflicts, other := 0, 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			other++
			t.Logf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one approval may win the window")
	assert.Equal(t, attempts-1, conflicts, "every loser must see a conflict")
	assert.Equal(t, 0, other)

	holds, err := ledger.ListForProduct(ctx, "jetski-1", models.ProductJetski)
	require.NoError(t, err)
	assert.Len(t, holds, 1, "exactly one hold may land in the ledger")

	confirmed := 0
	for _, id := range ids {
		got, err := store.GetBookingByID(ctx, id)
		require.NoError(t, err)
		if got.Status == models.BookingConfirmed {
			confirmed++
			assert.Equal(t, got.BookingID, holds[0].BookingID)
		}
	}
	assert.Equal(t, 1, confirmed)
}

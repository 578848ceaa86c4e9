package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/codescrafter/luxury-backend-sub000/internal/auth"
	"github.com/codescrafter/luxury-backend-sub000/internal/availability"
	"github.com/codescrafter/luxury-backend-sub000/internal/booking"
	bookingapi "github.com/codescrafter/luxury-backend-sub000/internal/booking/api"
	bookingdb "github.com/codescrafter/luxury-backend-sub000/internal/booking/db"
	bookingredis "github.com/codescrafter/luxury-backend-sub000/internal/booking/redis"
	"github.com/codescrafter/luxury-backend-sub000/internal/catalog"
	"github.com/codescrafter/luxury-backend-sub000/internal/config"
	"github.com/codescrafter/luxury-backend-sub000/internal/database/migrations"
	"github.com/codescrafter/luxury-backend-sub000/internal/kafka"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/media"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr"
	qrapi "github.com/codescrafter/luxury-backend-sub000/internal/qr/api"
	qrdb "github.com/codescrafter/luxury-backend-sub000/internal/qr/db"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr/generator"
)

func connectDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: 10,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}
	log.Info("REDIS", fmt.Sprintf("Connected to Redis at %s", cfg.Redis.Addr))
	return client
}

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()
	log.Info("APP", "Starting booking service")

	bunDB := connectDatabase(cfg, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient := connectRedis(cfg, log)
	defer redisClient.Close()

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.QrEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.QrEvents)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Producer ready, brokers=%v", cfg.Kafka.Brokers))
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	tokenSource := auth.NewM2MTokenSource(models.M2MConfig{
		KeycloakURL:   cfg.Auth.KeycloakURL,
		KeycloakRealm: cfg.Auth.KeycloakRealm,
		ClientID:      cfg.Auth.ClientID,
		ClientSecret:  cfg.Auth.ClientSecret,
	}, &http.Client{Timeout: 10 * time.Second}, redisClient)

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, cfg.Catalog.Retries, tokenSource.Token)
	mediaClient := media.NewClient(cfg.Media.BaseURL, cfg.Media.Timeout, cfg.Media.Retries)

	bookingStore := &bookingdb.DB{Bun: bunDB}
	ledger := availability.NewStore(bunDB)
	productLock := bookingredis.NewRedis(redisClient, cfg.Redis.ProductLockTTL)
	qrStore := &qrdb.DB{Bun: bunDB}

	var bookingKafka booking.KafkaPublisher
	var qrKafka qr.KafkaPublisher
	if producer != nil {
		bookingKafka = producer
		qrKafka = producer
	}

	bookingService := booking.NewService(bookingStore, ledger, productLock, bookingKafka, catalogClient, log)
	qrService := qr.NewService(qrStore, bookingStore, generator.New(), mediaClient, catalogClient, qrKafka, log)
	bookingService.SetQrService(qrService)

	bookingHandler := bookingapi.NewHandler(bookingService, log)
	qrHandler := qrapi.NewHandler(qrService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Verify is public: the redemption token is the credential.
	r.Route("/api", func(r chi.Router) {
		qrHandler.RegisterPublic(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
			bookingHandler.RegisterRoutes(r)
			qrHandler.RegisterProtected(r)
		})
	})
	log.Info("ROUTER", "Booking and QR routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking service shutdown complete")
	}
}

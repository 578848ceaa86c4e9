package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Media    MediaConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// ProductLockTTL bounds how long the per-product approval lock may be
	// held before Redis reclaims it.
	ProductLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingEvents string
	QrEvents      string
}

type AuthConfig struct {
	OIDCIssuer    string
	KeycloakURL   string
	KeycloakRealm string
	ClientID      string
	ClientSecret  string
}

type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

type MediaConfig struct {
	BaseURL string
	Timeout time.Duration
	Retries int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8086"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "booking_user"),
			Password:     getEnv("DB_PASSWORD", "booking_pass"),
			Database:     getEnv("DB_NAME", "marina_bookings"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			ProductLockTTL: time.Duration(getEnvInt("PRODUCT_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BookingEvents: getEnv("KAFKA_TOPIC_BOOKINGS", "marina.bookings.events"),
				QrEvents:      getEnv("KAFKA_TOPIC_QR", "marina.qr.events"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer:    getEnv("OIDC_ISSUER", ""),
			KeycloakURL:   getEnv("KEYCLOAK_URL", "http://localhost:8080"),
			KeycloakRealm: getEnv("KEYCLOAK_REALM", "marina"),
			ClientID:      getEnv("M2M_CLIENT_ID", "booking-service"),
			ClientSecret:  getEnv("M2M_CLIENT_SECRET", ""),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_SERVICE_URL", "http://catalog-service:8081"),
			Timeout: time.Duration(getEnvInt("CATALOG_TIMEOUT_SECONDS", 5)) * time.Second,
			Retries: getEnvInt("CATALOG_RETRIES", 2),
		},
		Media: MediaConfig{
			BaseURL: getEnv("MEDIA_SERVICE_URL", "http://media-service:8082"),
			Timeout: time.Duration(getEnvInt("MEDIA_TIMEOUT_SECONDS", 10)) * time.Second,
			Retries: getEnvInt("MEDIA_RETRIES", 2),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

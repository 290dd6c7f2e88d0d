package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brightsmile/dentalbook/libs/config"
	"github.com/brightsmile/dentalbook/libs/httpx"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/consumer"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/warmup"
)

const (
	sourceREST     = "rest"
	sourcePostgres = "postgres"
)

type settings struct {
	Service  string
	Port     string
	GRPCPort string

	Clinic availability.Config

	Source       string
	BackendURL   string
	BackendToken string
	DatabaseURL  string

	RedisAddr     string
	RedisDB       int
	RedisPassword string
	SnapshotTTL   time.Duration

	KafkaBrokers string
	KafkaGroupID string
	KafkaTopics  []string

	WarmupCron string
	WarmupDays int

	JWTSecret string
	JWKSURL   string
	JWKSTTL   time.Duration

	CORS             httpx.CORSPolicy
	RateLimitPerMin  int
	RequestBodyLimit int64
}

func loadSettings() (settings, error) {
	s := settings{
		Service:       config.String("SERVICE_NAME", "availability-service"),
		Source:        strings.ToLower(config.String("SOURCE", sourceREST)),
		BackendToken:  config.String("BACKEND_TOKEN", ""),
		DatabaseURL:   config.String("DATABASE_URL", ""),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		RedisDB:       config.Int("REDIS_DB", 0),
		RedisPassword: config.String("REDIS_PASSWORD", ""),
		SnapshotTTL:   config.Seconds("SNAPSHOT_TTL_SECONDS", 5*time.Minute),
		KafkaBrokers:  config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:  config.String("KAFKA_GROUP_ID", "availability-service"),
		KafkaTopics:   config.List("KAFKA_TOPICS", consumer.TopicBookingChanged+","+consumer.TopicOffHourChanged),
		WarmupCron:    config.String("WARMUP_CRON", warmup.DefaultSchedule),
		WarmupDays:    config.Int("WARMUP_DAYS", 7),
		JWTSecret:     config.String("JWT_SECRET", ""),
		JWKSURL:       config.String("JWKS_URL", ""),
		JWKSTTL:       config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute),
		CORS: httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		},
		RateLimitPerMin:  config.Int("RATE_LIMIT_PER_MINUTE", 120),
		RequestBodyLimit: 1 << 20,
	}

	var err error
	if s.Port, err = config.Port("PORT", "8090"); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return settings{}, err
	}

	open, err := config.ClockMinutes("CLINIC_OPEN", "09:00")
	if err != nil {
		return settings{}, err
	}
	closing, err := config.ClockMinutes("CLINIC_CLOSE", "17:00")
	if err != nil {
		return settings{}, err
	}
	if closing <= open {
		return settings{}, fmt.Errorf("CLINIC_CLOSE must be after CLINIC_OPEN")
	}
	loc, err := config.Location("CLINIC_TIMEZONE", "UTC")
	if err != nil {
		return settings{}, err
	}
	s.Clinic = availability.Config{
		Hours:           availability.OperatingHours{OpenMinute: open, CloseMinute: closing},
		SlotDuration:    config.Minutes("SLOT_MINUTES", time.Hour),
		BookingDuration: config.Minutes("BOOKING_MINUTES", time.Hour),
		Location:        loc,
	}

	switch s.Source {
	case sourceREST:
		if s.BackendURL, err = config.RequiredString("BACKEND_URL"); err != nil {
			return settings{}, fmt.Errorf("SOURCE=%s: %w", sourceREST, err)
		}
	case sourcePostgres:
		if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
			return settings{}, fmt.Errorf("SOURCE=%s: %w", sourcePostgres, err)
		}
	default:
		return settings{}, fmt.Errorf("SOURCE must be %q or %q (got %q)", sourceREST, sourcePostgres, s.Source)
	}
	if s.JWTSecret == "" && s.JWKSURL == "" {
		return settings{}, fmt.Errorf("JWT_SECRET or JWKS_URL is required")
	}
	return s, nil
}

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/brightsmile/dentalbook/libs/auth"
	"github.com/brightsmile/dentalbook/libs/db"
	"github.com/brightsmile/dentalbook/libs/grpcx"
	"github.com/brightsmile/dentalbook/libs/httpx"
	"github.com/brightsmile/dentalbook/libs/kafkax"
	otelx "github.com/brightsmile/dentalbook/libs/otel"
	"github.com/brightsmile/dentalbook/libs/runtime"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/backend"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/consumer"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/handlers"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/inbox"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/metrics"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/snapshot"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/storage"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/warmup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	resolver := availability.NewResolver(cfg.Clinic, logger, availability.WithObserver(m))

	var readyChecks []runtime.ReadyCheck

	var pool *db.Pool
	if cfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	var source snapshot.Source
	switch cfg.Source {
	case sourcePostgres:
		source = storage.NewRepository(pool, logger)
	default:
		client := backend.NewClient(cfg.BackendURL, cfg.BackendToken, logger,
			backend.WithRejectHandler(func(r backend.Reject) { m.RejectedRecord(r.Kind) }),
		)
		source = client
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "backend", Check: client.Ready})
	}

	loaderOpts := []snapshot.Option{snapshot.WithRecorder(m)}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		loaderOpts = append(loaderOpts, snapshot.WithCache(snapshot.NewCache(rdb, cfg.SnapshotTTL)))
	} else {
		logger.Warn("REDIS_ADDR not set; snapshots are fetched on every request")
	}
	loader := snapshot.NewLoader(source, cfg.Clinic.Location, logger, loaderOpts...)
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: loader.Ready})
	}

	if cfg.KafkaBrokers != "" {
		var eventInbox consumer.Inbox
		if pool != nil {
			inboxRepo := inbox.NewRepository(pool)
			if err := inboxRepo.EnsureSchema(ctx); err != nil {
				logger.Error("inbox schema setup failed; consuming without dedupe", "err", err)
			} else {
				eventInbox = inboxRepo
			}
		}
		eventConsumer := consumer.New(logger, consumer.Config{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.KafkaGroupID,
			Topics:          cfg.KafkaTopics,
			Location:        cfg.Clinic.Location,
			BookingDuration: cfg.Clinic.BookingDuration,
		}, loader, eventInbox, m)
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	if rdb != nil {
		job := warmup.NewJob(loader, cfg.Clinic.Location, cfg.WarmupDays, logger, m)
		scheduler, err := job.Schedule(ctx, cfg.WarmupCron)
		if err != nil {
			logger.Error("warmup schedule invalid; warmup disabled", "err", err, "spec", cfg.WarmupCron)
		} else {
			defer scheduler.Stop()
		}
	}

	grpcAddr := net.JoinHostPort("", cfg.GRPCPort)
	grpcServer := grpcx.NewServer([]string{cfg.Service})
	go func() {
		if err := grpcServer.Serve(ctx, grpcAddr, logger); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	grpcConn, err := grpcx.Dial(ctx, net.JoinHostPort("127.0.0.1", cfg.GRPCPort), grpcx.DialOptions{})
	if err != nil {
		logger.Error("grpc self-dial failed", "err", err)
	} else {
		defer grpcConn.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "grpc", Check: grpcx.HealthCheck(grpcConn, cfg.Service)})
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSTTL, &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}
	verifier := auth.Verifier{Secret: cfg.JWTSecret, JWKS: jwks}

	availabilityHandler := handlers.NewAvailabilityHandler(resolver, loader, logger, m)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/public/slots", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/public/availability/check", availabilityHandler.Check)
	mux.Handle("/api/v1/schedule", auth.RequireAuth(
		auth.RequireRole(http.HandlerFunc(availabilityHandler.Schedule), auth.RoleDentist, auth.RoleAdmin), verifier))
	mux.Handle("/api/v1/admin/slots", auth.RequireAuth(
		auth.RequireRole(http.HandlerFunc(availabilityHandler.AdminSlots), auth.RoleAdmin), verifier))
	mux.Handle("/api/v1/admin/snapshots/invalidate", auth.RequireAuth(
		auth.RequireRole(http.HandlerFunc(availabilityHandler.Invalidate), auth.RoleAdmin), verifier))

	var rateLimit httpx.Middleware
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, time.Minute, "avail:rl").Middleware(logger, true)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMin, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(cfg.CORS),
		rateLimit,
		httpx.WithBodyLimit(cfg.RequestBodyLimit),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/libs/redisx"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/blackout"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/reservation"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/sweeper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		if err := runHealthcheck(context.Background()); err != nil {
			fmt.Fprintln(os.Stderr, "unhealthy:", err)
			os.Exit(1)
		}
		return
	}

	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := config.Load(); err != nil {
		logger.Error("config load failed", "err", err)
		panic(err)
	}

	ctx, stop := runtime.ShutdownContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		panic(err)
	}
	defer be.close()
	readyChecks := be.ready

	rdb, err := redisx.Open(ctx, config.String("REDIS_ADDR", ""), config.String("REDIS_PASSWORD", ""), config.Int("REDIS_DB", 0))
	if err != nil {
		logger.Error("redis unavailable; continuing without it", "err", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	defaults := clinicconfig.DefaultsFromEnv()
	configs := clinicconfig.NewCachedProvider(
		clinicconfig.NewStoreProvider(be.store, defaults),
		rdb,
		config.Duration("CONFIG_CACHE_TTL", 5*time.Minute),
		logger,
	)

	generator := slots.NewGenerator(be.store, configs)
	bookings := reservation.New(be.store, configs, logger)
	blackouts := blackout.NewRegistry(be.store, configs, logger)
	cal := calendar.New(be.store, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	if be.pool != nil {
		publisher := outbox.NewPublisher(be.pool, be.outbox, logger, outbox.PublisherConfig{
			Brokers:   kafkax.SplitBrokers(brokers),
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			Retention: config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		})
		go publisher.Run(ctx)
	}

	if len(kafkax.SplitBrokers(brokers)) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(brokers))})
		groupID := config.String("KAFKA_GROUP_ID", service)
		updater := clinicconfig.NewUpdater(be.store, configs, defaults, logger)
		for topic, handler := range map[string]consumer.Handler{
			config.String("KAFKA_CONFIG_TOPIC", clinicconfig.ConfigUpdatedTopic):  updater.HandleMessage,
			config.String("KAFKA_PROFESSIONAL_TOPIC", consumer.ProfessionalTopic): consumer.ProfessionalHandler(be.store, logger),
		} {
			c := consumer.New(logger, be.inbox, consumer.Config{Brokers: brokers, GroupID: groupID, Topic: topic}, handler)
			go c.Run(ctx)
		}
	} else {
		logger.Warn("kafka consumers disabled (no kafka brokers configured)")
	}

	sw := sweeper.New(be.store, bookings, logger, sweeper.Config{BatchSize: config.Int("SWEEP_BATCH_SIZE", 100)})
	if _, err := sw.Start(ctx, config.String("SWEEP_SCHEDULE", sweeper.DefaultSchedule)); err != nil {
		logger.Error("sweeper init failed", "err", err)
		panic(err)
	}

	if err := startGrpcServer(ctx, logger); err != nil {
		logger.Error("grpc server init failed", "err", err)
		panic(err)
	}

	api := handlers.NewSchedulingHandler(generator, bookings, blackouts, cal, logger)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/", httpx.Chain(api.Routes(),
		auth.TenantMiddleware(config.String("JWT_SECRET", "")),
		rateLimit(rdb, logger),
	))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedHeaders: []string{"Authorization", "Content-Type", httpx.TenantIDHeader, httpx.RequestIDHeader, handlers.IdempotencyKeyHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader, "Idempotent-Replayed"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

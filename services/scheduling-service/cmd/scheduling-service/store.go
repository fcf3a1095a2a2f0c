package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/libs/runtime"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage/memstore"
)

// backend bundles the storage driver chosen by STORAGE_DRIVER.
type backend struct {
	store  storage.Store
	inbox  inbox.Store
	pool   *db.Pool
	outbox *outbox.Repository
	ready  []runtime.ReadyCheck
	close  func()
}

func openBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	switch driver := strings.ToLower(config.String("STORAGE_DRIVER", "postgres")); driver {
	case "postgres":
		return openPostgres(ctx, logger)
	case "memory":
		return openMemory(ctx, logger)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want postgres or memory)", driver)
	}
}

func openPostgres(ctx context.Context, logger *slog.Logger) (*backend, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		return nil, fmt.Errorf("db connection failed: %w", err)
	}
	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}

	outboxRepo := outbox.NewRepository(pool)
	return &backend{
		store:  storage.NewPostgresStore(pool, outboxRepo),
		inbox:  inbox.NewRepository(pool),
		pool:   pool,
		outbox: outboxRepo,
		ready:  []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		close:  pool.Close,
	}, nil
}

// openMemory keeps all state in process. Events are logged instead of published.
// MEMORY_PROFESSIONALS seeds professionals as "tenant:professional" pairs.
func openMemory(ctx context.Context, logger *slog.Logger) (*backend, error) {
	store := memstore.New(memstore.WithEventSink(func(evt outbox.Event) {
		logger.Debug("event recorded", "event_type", evt.EventType, "tenant_id", evt.TenantID, "aggregate_id", evt.AggregateID)
	}))
	for _, pair := range config.List("MEMORY_PROFESSIONALS") {
		tenantID, professionalID, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(tenantID) == "" || strings.TrimSpace(professionalID) == "" {
			return nil, fmt.Errorf("MEMORY_PROFESSIONALS entry %q must be tenant:professional", pair)
		}
		if err := store.UpsertProfessional(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(professionalID), ""); err != nil {
			return nil, err
		}
	}
	logger.Warn("using in-memory storage; state is lost on restart")
	return &backend{
		store: store,
		inbox: inbox.NewMemory(),
		close: func() {},
	}, nil
}

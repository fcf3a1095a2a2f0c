package clinicconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// ConfigUpdatedTopic carries configuration changes made by clinic management.
const ConfigUpdatedTopic = "clinic.config.updated.v1"

type Upserter interface {
	UpsertClinicConfig(ctx context.Context, cfg model.ClinicScheduleConfig) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Updater applies configuration change events to local storage and evicts the
// cached copy.
type Updater struct {
	store    Upserter
	cache    Invalidator
	defaults model.ClinicScheduleConfig
	logger   *slog.Logger
}

func NewUpdater(store Upserter, cache Invalidator, defaults model.ClinicScheduleConfig, logger *slog.Logger) *Updater {
	return &Updater{store: store, cache: cache, defaults: defaults, logger: logger}
}

type configUpdatedPayload struct {
	TenantID                  string `json:"tenant_id"`
	DefaultAppointmentMinutes int    `json:"default_appointment_minutes"`
	SlotIntervalMinutes       int    `json:"slot_interval_minutes"`
	CancellationHours         *int   `json:"cancellation_hours"`
	Timezone                  string `json:"timezone"`
}

// HandleMessage is a consumer.Handler. Malformed events are logged and dropped so
// they do not block the partition.
func (u *Updater) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var p configUpdatedPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		u.logger.Error("invalid clinic config payload", "err", err, "topic", msg.Topic)
		return nil
	}
	cfg := model.ClinicScheduleConfig{
		TenantID:                  p.TenantID,
		DefaultAppointmentMinutes: p.DefaultAppointmentMinutes,
		SlotIntervalMinutes:       p.SlotIntervalMinutes,
		CancellationHours:         -1,
		Timezone:                  p.Timezone,
	}
	if p.CancellationHours != nil {
		cfg.CancellationHours = *p.CancellationHours
	}
	cfg = cfg.Normalize(u.defaults)
	if err := cfg.Validate(); err != nil {
		u.logger.Error("rejected clinic config update", "err", err, "tenant_id", p.TenantID)
		return nil
	}
	return u.Apply(ctx, cfg)
}

func (u *Updater) Apply(ctx context.Context, cfg model.ClinicScheduleConfig) error {
	if err := u.store.UpsertClinicConfig(ctx, cfg); err != nil {
		return fmt.Errorf("upsert clinic config: %w", err)
	}
	if u.cache != nil {
		if err := u.cache.Invalidate(ctx, cfg.TenantID); err != nil {
			u.logger.Warn("clinic config cache invalidation failed", "err", err, "tenant_id", cfg.TenantID)
		}
	}
	u.logger.Info("clinic config updated",
		"tenant_id", cfg.TenantID,
		"slot_interval_minutes", cfg.SlotIntervalMinutes,
		"default_appointment_minutes", cfg.DefaultAppointmentMinutes,
		"timezone", cfg.Timezone,
	)
	return nil
}

// Package clinicconfig supplies the typed per-tenant scheduling configuration.
package clinicconfig

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

// Provider returns the effective configuration of a tenant. Implementations never
// return a zero config: missing values are filled from defaults.
type Provider interface {
	Get(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, error)
}

// Source reads the stored configuration of a tenant.
type Source interface {
	ClinicConfig(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, bool, error)
}

// DefaultsFromEnv reads the service-wide fallback configuration.
func DefaultsFromEnv() model.ClinicScheduleConfig {
	return model.ClinicScheduleConfig{
		DefaultAppointmentMinutes: config.Int("DEFAULT_APPOINTMENT_MINUTES", 30),
		SlotIntervalMinutes:       config.Int("DEFAULT_SLOT_INTERVAL_MINUTES", 30),
		CancellationHours:         config.Int("DEFAULT_CANCELLATION_HOURS", 24),
		Timezone:                  config.String("DEFAULT_TIMEZONE", "UTC"),
	}.Normalize(model.ClinicScheduleConfig{
		DefaultAppointmentMinutes: 30,
		SlotIntervalMinutes:       30,
		CancellationHours:         24,
		Timezone:                  "UTC",
	})
}

// Static serves the same configuration to every tenant.
type Static struct {
	Config model.ClinicScheduleConfig
}

func (s Static) Get(_ context.Context, tenantID string) (model.ClinicScheduleConfig, error) {
	cfg := s.Config
	cfg.TenantID = tenantID
	return cfg, nil
}

// StoreProvider reads the tenant row from a Source and normalizes it with defaults.
type StoreProvider struct {
	src      Source
	defaults model.ClinicScheduleConfig
}

func NewStoreProvider(src Source, defaults model.ClinicScheduleConfig) *StoreProvider {
	return &StoreProvider{src: src, defaults: defaults}
}

func (p *StoreProvider) Get(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, error) {
	cfg, ok, err := p.src.ClinicConfig(ctx, tenantID)
	if err != nil {
		return model.ClinicScheduleConfig{}, fmt.Errorf("load clinic config for %s: %w", tenantID, err)
	}
	if !ok {
		cfg = model.ClinicScheduleConfig{CancellationHours: -1}
	}
	cfg.TenantID = tenantID
	return cfg.Normalize(p.defaults), nil
}

package model

import (
	"fmt"
	"time"
)

// ClinicScheduleConfig holds the tenant-wide scheduling defaults.
type ClinicScheduleConfig struct {
	TenantID                  string    `json:"tenant_id"`
	DefaultAppointmentMinutes int       `json:"default_appointment_minutes"`
	SlotIntervalMinutes       int       `json:"slot_interval_minutes"`
	CancellationHours         int       `json:"cancellation_hours"`
	Timezone                  string    `json:"timezone"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Normalize replaces unset or invalid fields with the values from defaults.
func (c ClinicScheduleConfig) Normalize(defaults ClinicScheduleConfig) ClinicScheduleConfig {
	if c.DefaultAppointmentMinutes <= 0 {
		c.DefaultAppointmentMinutes = defaults.DefaultAppointmentMinutes
	}
	if c.SlotIntervalMinutes <= 0 {
		c.SlotIntervalMinutes = defaults.SlotIntervalMinutes
	}
	if c.CancellationHours < 0 {
		c.CancellationHours = defaults.CancellationHours
	}
	if c.Timezone == "" {
		c.Timezone = defaults.Timezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		c.Timezone = defaults.Timezone
	}
	return c
}

func (c ClinicScheduleConfig) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if c.DefaultAppointmentMinutes <= 0 || c.SlotIntervalMinutes <= 0 {
		return fmt.Errorf("appointment and slot interval minutes must be positive")
	}
	if c.CancellationHours < 0 {
		return fmt.Errorf("cancellation_hours must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", c.Timezone)
	}
	return nil
}

// Location returns the clinic timezone, falling back to UTC.
func (c ClinicScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c ClinicScheduleConfig) AppointmentDuration() time.Duration {
	return time.Duration(c.DefaultAppointmentMinutes) * time.Minute
}

func (c ClinicScheduleConfig) SlotInterval() time.Duration {
	return time.Duration(c.SlotIntervalMinutes) * time.Minute
}

func (c ClinicScheduleConfig) CancellationLeadTime() time.Duration {
	return time.Duration(c.CancellationHours) * time.Hour
}

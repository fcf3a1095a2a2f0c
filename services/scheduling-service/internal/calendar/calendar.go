// Package calendar resolves recurring weekly working windows into absolute open
// intervals for a calendar date, and manages the full replacement of a
// professional's windows.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

// WindowSource is the read dependency of OpenIntervals; storage.Reader and
// storage.Tx both satisfy it.
type WindowSource interface {
	WorkingWindows(ctx context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error)
}

// OpenIntervals returns the ordered open intervals of the professional on date,
// in loc. A weekday without windows yields an empty list, not an error.
func OpenIntervals(ctx context.Context, src WindowSource, tenantID, professionalID string, date model.Date, loc *time.Location) ([]interval.Interval, error) {
	windows, err := src.WorkingWindows(ctx, tenantID, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load working windows: %w", err)
	}
	return Resolve(windows, date, loc), nil
}

// Resolve turns the windows matching date's weekday into absolute intervals.
func Resolve(windows []model.WorkingWindow, date model.Date, loc *time.Location) []interval.Interval {
	weekday := date.Weekday()
	var out []interval.Interval
	for _, w := range windows {
		if w.Weekday != weekday {
			continue
		}
		out = append(out, interval.New(date.At(w.OpenMinute, loc), date.At(w.CloseMinute, loc)))
	}
	return interval.Merge(out)
}

// Validate checks every window and rejects overlapping windows on the same weekday.
// Touching windows (08:00-12:00, 12:00-13:00) are allowed.
func Validate(windows []model.WorkingWindow) error {
	sorted := append([]model.WorkingWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Weekday == sorted[j].Weekday {
			return sorted[i].OpenMinute < sorted[j].OpenMinute
		}
		return sorted[i].Weekday < sorted[j].Weekday
	})
	for i, w := range sorted {
		if err := w.Validate(); err != nil {
			return err
		}
		if i > 0 && sorted[i-1].Weekday == w.Weekday && w.OpenMinute < sorted[i-1].CloseMinute {
			return fmt.Errorf("windows %s-%s and %s-%s overlap on %s",
				model.FormatClock(sorted[i-1].OpenMinute), model.FormatClock(sorted[i-1].CloseMinute),
				model.FormatClock(w.OpenMinute), model.FormatClock(w.CloseMinute), w.Weekday)
		}
	}
	return nil
}

// Calendar manages working windows.
type Calendar struct {
	store  storage.Store
	logger *slog.Logger
}

func New(store storage.Store, logger *slog.Logger) *Calendar {
	return &Calendar{store: store, logger: logger}
}

// Windows returns the professional's weekly windows.
func (c *Calendar) Windows(ctx context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error) {
	if err := c.requireProfessional(ctx, tenantID, professionalID); err != nil {
		return nil, err
	}
	return c.store.WorkingWindows(ctx, tenantID, professionalID)
}

// Replace deletes every window of the professional and inserts windows, atomically.
func (c *Calendar) Replace(ctx context.Context, tenantID, professionalID string, windows []model.WorkingWindow) ([]model.WorkingWindow, error) {
	scope := apperror.Scope{TenantID: tenantID, ProfessionalID: professionalID}
	if err := Validate(windows); err != nil {
		return nil, apperror.Validation(scope, "windows", "%s", err.Error())
	}
	if err := c.requireProfessional(ctx, tenantID, professionalID); err != nil {
		return nil, err
	}

	normalized := make([]model.WorkingWindow, 0, len(windows))
	payload := make([]map[string]any, 0, len(windows))
	for _, w := range windows {
		w.TenantID, w.ProfessionalID = tenantID, professionalID
		normalized = append(normalized, w)
		payload = append(payload, map[string]any{
			"weekday": int(w.Weekday),
			"open":    model.FormatClock(w.OpenMinute),
			"close":   model.FormatClock(w.CloseMinute),
		})
	}

	evt, err := outbox.NewEvent(outbox.AggregateProfessional, professionalID, outbox.WorkingHoursReplaced, tenantID, map[string]any{
		"tenant_id":       tenantID,
		"professional_id": professionalID,
		"windows":         payload,
	})
	if err != nil {
		return nil, err
	}

	err = c.store.InTx(ctx, nil, func(tx storage.Tx) error {
		if err := tx.ReplaceWorkingWindows(ctx, tenantID, professionalID, normalized); err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return nil, fmt.Errorf("replace working windows: %w", err)
	}
	c.logger.Info("working hours replaced", "tenant_id", tenantID, "professional_id", professionalID, "windows", len(normalized))
	return c.store.WorkingWindows(ctx, tenantID, professionalID)
}

func (c *Calendar) requireProfessional(ctx context.Context, tenantID, professionalID string) error {
	scope := apperror.Scope{TenantID: tenantID, ProfessionalID: professionalID}
	if professionalID == "" {
		return apperror.Validation(scope, "professional_id", "is required")
	}
	ok, err := c.store.ProfessionalExists(ctx, tenantID, professionalID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Validation(scope, "professional_id", "professional %s does not exist", professionalID)
	}
	return nil
}

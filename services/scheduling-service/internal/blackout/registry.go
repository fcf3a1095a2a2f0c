// Package blackout manages ad-hoc exclusion intervals layered over working hours.
package blackout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

// Source is the read dependency of Overlapping.
type Source interface {
	BlackoutsOverlapping(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error)
}

// Overlapping returns every blackout of the professional sharing an instant with
// span. Rows are returned as stored; callers merge them when subtracting.
func Overlapping(ctx context.Context, src Source, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error) {
	rows, err := src.BlackoutsOverlapping(ctx, tenantID, professionalID, span)
	if err != nil {
		return nil, fmt.Errorf("load blackouts: %w", err)
	}
	return rows, nil
}

func Intervals(rows []model.BlackoutInterval) []interval.Interval {
	out := make([]interval.Interval, 0, len(rows))
	for _, b := range rows {
		out = append(out, interval.New(b.Start, b.End))
	}
	return out
}

type Registry struct {
	store   storage.Store
	configs clinicconfig.Provider
	logger  *slog.Logger
}

func NewRegistry(store storage.Store, configs clinicconfig.Provider, logger *slog.Logger) *Registry {
	return &Registry{store: store, configs: configs, logger: logger}
}

type CreateRequest struct {
	TenantID       string
	ProfessionalID string
	Start          time.Time
	End            time.Time
	Reason         string
}

// Create stores a blackout. It is serialized behind the tuple locks of every date
// it touches, so it cannot interleave with a reservation on those dates. Existing
// bookings inside the blackout are kept; their ids are reported in the event.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (model.BlackoutInterval, error) {
	scope := apperror.Scope{TenantID: req.TenantID, ProfessionalID: req.ProfessionalID}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return model.BlackoutInterval{}, apperror.Validation(scope, "professional_id", "is required")
	}
	iv := interval.New(req.Start, req.End)
	if iv.Empty() {
		return model.BlackoutInterval{}, apperror.Validation(scope, "end", "must be after start")
	}
	ok, err := r.store.ProfessionalExists(ctx, req.TenantID, req.ProfessionalID)
	if err != nil {
		return model.BlackoutInterval{}, err
	}
	if !ok {
		return model.BlackoutInterval{}, apperror.Validation(scope, "professional_id", "professional %s does not exist", req.ProfessionalID)
	}
	cfg, err := r.configs.Get(ctx, req.TenantID)
	if err != nil {
		return model.BlackoutInterval{}, err
	}

	b := model.BlackoutInterval{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		ProfessionalID: req.ProfessionalID,
		Start:          req.Start,
		End:            req.End,
		Reason:         strings.TrimSpace(req.Reason),
	}
	keys := model.TupleKeys(req.TenantID, req.ProfessionalID, iv, cfg.Location())
	err = r.store.InTx(ctx, keys, func(tx storage.Tx) error {
		if err := tx.InsertBlackout(ctx, &b); err != nil {
			return err
		}
		affected, err := tx.OccupyingBookings(ctx, req.TenantID, req.ProfessionalID, iv)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(affected))
		for _, bk := range affected {
			ids = append(ids, bk.ID)
		}
		evt, err := outbox.NewEvent(outbox.AggregateBlackout, b.ID, outbox.BlackoutCreated, b.TenantID, map[string]any{
			"blackout_id":          b.ID,
			"tenant_id":            b.TenantID,
			"professional_id":      b.ProfessionalID,
			"start_time":           b.Start.Format(time.RFC3339),
			"end_time":             b.End.Format(time.RFC3339),
			"reason":               b.Reason,
			"affected_booking_ids": ids,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return model.BlackoutInterval{}, fmt.Errorf("create blackout: %w", err)
	}
	r.logger.Info("blackout created", "tenant_id", b.TenantID, "professional_id", b.ProfessionalID, "blackout_id", b.ID)
	return b, nil
}

// Delete removes a blackout. Deleting an id that does not exist is not an error.
func (r *Registry) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	b, err := r.store.GetBlackout(ctx, tenantID, id)
	if storage.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg, err := r.configs.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	keys := model.TupleKeys(tenantID, b.ProfessionalID, interval.New(b.Start, b.End), cfg.Location())
	err = r.store.InTx(ctx, keys, func(tx storage.Tx) error {
		deleted, err := tx.DeleteBlackout(ctx, tenantID, id)
		if err != nil || !deleted {
			return err
		}
		evt, err := outbox.NewEvent(outbox.AggregateBlackout, id, outbox.BlackoutDeleted, tenantID, map[string]any{
			"blackout_id":     id,
			"tenant_id":       tenantID,
			"professional_id": b.ProfessionalID,
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, evt)
	})
	if err != nil {
		return fmt.Errorf("delete blackout: %w", err)
	}
	return nil
}

// List returns the professional's blackouts overlapping [from, to).
func (r *Registry) List(ctx context.Context, tenantID, professionalID string, from, to time.Time) ([]model.BlackoutInterval, error) {
	scope := apperror.Scope{TenantID: tenantID, ProfessionalID: professionalID}
	if professionalID == "" {
		return nil, apperror.Validation(scope, "professional_id", "is required")
	}
	span := interval.New(from, to)
	if span.Empty() {
		return nil, apperror.Validation(scope, "to", "must be after from")
	}
	return Overlapping(ctx, r.store, tenantID, professionalID, span)
}

// ForDate returns the blackouts overlapping date in the clinic's timezone.
func (r *Registry) ForDate(ctx context.Context, tenantID, professionalID string, date model.Date) ([]model.BlackoutInterval, error) {
	cfg, err := r.configs.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return Overlapping(ctx, r.store, tenantID, professionalID, date.Span(cfg.Location()))
}

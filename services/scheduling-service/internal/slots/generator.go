// Package slots computes the bookable slots of a professional on a date.
package slots

import (
	"context"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/blackout"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/occupancy"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Generator answers slot queries. It only reads, so any number of queries may run
// concurrently; results can be stale as soon as a reservation commits.
type Generator struct {
	store   storage.Reader
	configs clinicconfig.Provider
	now     func() time.Time
}

func NewGenerator(store storage.Reader, configs clinicconfig.Provider) *Generator {
	return &Generator{store: store, configs: configs, now: time.Now}
}

// WithClock replaces the generator's time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

type Query struct {
	TenantID       string
	ProfessionalID string
	Date           model.Date
	// DurationMinutes is the requested slot length; nil uses the clinic default.
	DurationMinutes *int
}

// AvailableSlots returns the free slots for q ordered by start time.
func (g *Generator) AvailableSlots(ctx context.Context, q Query) ([]model.Slot, error) {
	ctx, span := otelx.Tracer("scheduling").Start(ctx, "slots.AvailableSlots")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", q.TenantID),
		attribute.String("professional.id", q.ProfessionalID),
		attribute.String("date", q.Date.String()),
	)

	slots, err := g.availableSlots(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("slots.count", len(slots)))
	return slots, nil
}

func (g *Generator) availableSlots(ctx context.Context, q Query) ([]model.Slot, error) {
	scope := apperror.Scope{TenantID: q.TenantID, ProfessionalID: q.ProfessionalID, Date: q.Date.String()}
	if strings.TrimSpace(q.ProfessionalID) == "" {
		return nil, apperror.Validation(scope, "professional_id", "is required")
	}
	if q.Date.IsZero() {
		return nil, apperror.Validation(scope, "date", "is required")
	}
	if q.DurationMinutes != nil && *q.DurationMinutes <= 0 {
		return nil, apperror.Validation(scope, "duration_minutes", "must be positive (got %d)", *q.DurationMinutes)
	}

	cfg, err := g.configs.Get(ctx, q.TenantID)
	if err != nil {
		return nil, err
	}
	duration := cfg.AppointmentDuration()
	if q.DurationMinutes != nil {
		duration = time.Duration(*q.DurationMinutes) * time.Minute
	}

	ok, err := g.store.ProfessionalExists(ctx, q.TenantID, q.ProfessionalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Validation(scope, "professional_id", "professional %s does not exist", q.ProfessionalID)
	}

	loc := cfg.Location()
	day := q.Date.Span(loc)

	var (
		open      []interval.Interval
		blackouts []model.BlackoutInterval
		occupied  []interval.Interval
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		open, err = calendar.OpenIntervals(egCtx, g.store, q.TenantID, q.ProfessionalID, q.Date, loc)
		return err
	})
	eg.Go(func() error {
		var err error
		blackouts, err = blackout.Overlapping(egCtx, g.store, q.TenantID, q.ProfessionalID, day)
		return err
	})
	eg.Go(func() error {
		var err error
		occupied, err = occupancy.Intervals(egCtx, g.store, q.TenantID, q.ProfessionalID, day)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	free := interval.SubtractAll(open, blackout.Intervals(blackouts))
	free = interval.SubtractAll(free, occupied)
	return Generate(free, duration, cfg.SlotInterval(), g.now()), nil
}

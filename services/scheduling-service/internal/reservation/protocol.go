// Package reservation commits bookings and drives their lifecycle. Reserve is the
// only operation that needs mutual exclusion: its check and insert run under the
// (tenant, professional, date) locks of every date the booking touches.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicops/libs/otel"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/blackout"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/occupancy"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const minutesPerDay = 24 * 60

// ExpiredReason is the cancel reason recorded by Expire.
const ExpiredReason = "expired"

type Protocol struct {
	store   storage.Store
	configs clinicconfig.Provider
	logger  *slog.Logger
	now     func() time.Time
}

func New(store storage.Store, configs clinicconfig.Provider, logger *slog.Logger) *Protocol {
	return &Protocol{store: store, configs: configs, logger: logger, now: time.Now}
}

// WithClock replaces the protocol's time source.
func (p *Protocol) WithClock(now func() time.Time) *Protocol {
	p.now = now
	return p
}

type Request struct {
	TenantID       string
	ProfessionalID string
	Date           model.Date
	// StartMinute is the start as minutes after midnight of Date in the clinic timezone.
	StartMinute int
	// DurationMinutes nil uses the clinic default.
	DurationMinutes *int
	// Status is the initial state, pending or confirmed. Empty means pending.
	Status         model.Status
	IdempotencyKey string
}

type Result struct {
	Booking model.Booking
	// Replayed is true when the idempotency key matched an earlier reservation.
	Replayed bool
}

// Reserve commits a booking for the requested interval or fails with a
// ConflictError when the interval is no longer free. It never retries.
func (p *Protocol) Reserve(ctx context.Context, req Request) (Result, error) {
	ctx, span := otelx.Tracer("scheduling").Start(ctx, "reservation.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("professional.id", req.ProfessionalID),
		attribute.String("date", req.Date.String()),
	)

	res, err := p.reserve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.String("booking.id", res.Booking.ID), attribute.Bool("replayed", res.Replayed))
	return res, nil
}

func (p *Protocol) reserve(ctx context.Context, req Request) (Result, error) {
	scope := apperror.Scope{TenantID: req.TenantID, ProfessionalID: req.ProfessionalID, Date: req.Date.String()}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return Result{}, apperror.Validation(scope, "professional_id", "is required")
	}
	if req.Date.IsZero() {
		return Result{}, apperror.Validation(scope, "date", "is required")
	}
	if req.StartMinute < 0 || req.StartMinute >= minutesPerDay {
		return Result{}, apperror.Validation(scope, "start_time", "must be within the day")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return Result{}, apperror.Validation(scope, "duration_minutes", "must be positive (got %d)", *req.DurationMinutes)
	}
	status := req.Status
	if status == "" {
		status = model.StatusPending
	}
	if status != model.StatusPending && status != model.StatusConfirmed {
		return Result{}, apperror.Validation(scope, "status", "initial status must be pending or confirmed (got %s)", status)
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" {
		if existing, ok, err := p.replay(ctx, req.TenantID, key); err != nil || ok {
			return Result{Booking: existing, Replayed: ok}, err
		}
	}

	cfg, err := p.configs.Get(ctx, req.TenantID)
	if err != nil {
		return Result{}, err
	}
	minutes := cfg.DefaultAppointmentMinutes
	if req.DurationMinutes != nil {
		minutes = *req.DurationMinutes
	}
	loc := cfg.Location()
	start := req.Date.At(req.StartMinute, loc)
	iv := interval.New(start, start.Add(time.Duration(minutes)*time.Minute))
	if !start.After(p.now()) {
		return Result{}, apperror.Validation(scope, "start_time", "must be in the future")
	}

	ok, err := p.store.ProfessionalExists(ctx, req.TenantID, req.ProfessionalID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, apperror.Validation(scope, "professional_id", "professional %s does not exist", req.ProfessionalID)
	}

	b := model.Booking{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		ProfessionalID:  req.ProfessionalID,
		Date:            req.Date,
		StartTime:       start,
		DurationMinutes: minutes,
		Status:          status,
		IdempotencyKey:  key,
	}
	var replayed *model.Booking

	keys := model.TupleKeys(req.TenantID, req.ProfessionalID, iv, loc)
	err = p.store.InTx(ctx, keys, func(tx storage.Tx) error {
		if key != "" {
			existing, err := tx.BookingByIdempotencyKey(ctx, req.TenantID, key)
			if err == nil {
				replayed = &existing
				return nil
			}
			if !storage.IsNotFound(err) {
				return err
			}
		}

		var open []interval.Interval
		for _, k := range keys {
			day, err := calendar.OpenIntervals(ctx, tx, req.TenantID, req.ProfessionalID, k.Date, loc)
			if err != nil {
				return err
			}
			open = append(open, day...)
		}
		if !interval.ContainedInAny(iv, interval.Merge(open)) {
			return apperror.Validation(scope, "start_time", "%s is outside working hours", iv)
		}

		blocked, err := blackout.Overlapping(ctx, tx, req.TenantID, req.ProfessionalID, iv)
		if err != nil {
			return err
		}
		if len(blocked) > 0 {
			return apperror.Conflict(scope, iv, blocked[0].ID, "interval falls inside a blackout")
		}

		occupants, err := occupancy.Bookings(ctx, tx, req.TenantID, req.ProfessionalID, iv)
		if err != nil {
			return err
		}
		if clash, ok := occupancy.FirstConflict(occupants, iv); ok {
			return apperror.Conflict(scope, iv, clash.ID, "slot no longer available")
		}

		if err := tx.InsertBooking(ctx, &b); err != nil {
			if storage.IsConflict(err) {
				return apperror.Conflict(scope, iv, "", "slot no longer available")
			}
			return err
		}
		return enqueue(ctx, tx, outbox.BookingReserved, b)
	})
	if storage.IsDuplicate(err) && key != "" {
		existing, ok, lookupErr := p.replay(ctx, req.TenantID, key)
		if lookupErr != nil {
			return Result{}, lookupErr
		}
		if ok {
			return Result{Booking: existing, Replayed: true}, nil
		}
	}
	if err != nil {
		return Result{}, wrap("reserve", err)
	}
	if replayed != nil {
		return Result{Booking: *replayed, Replayed: true}, nil
	}

	p.logger.Info("booking reserved",
		"tenant_id", b.TenantID,
		"professional_id", b.ProfessionalID,
		"booking_id", b.ID,
		"date", b.Date.String(),
		"start", b.StartTime.Format(time.RFC3339),
		"status", string(b.Status),
	)
	return Result{Booking: b}, nil
}

func (p *Protocol) replay(ctx context.Context, tenantID, key string) (model.Booking, bool, error) {
	existing, err := p.store.BookingByIdempotencyKey(ctx, tenantID, key)
	if storage.IsNotFound(err) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return existing, true, nil
}

// Get returns one booking of the tenant.
func (p *Protocol) Get(ctx context.Context, tenantID, id string) (model.Booking, error) {
	scope := apperror.Scope{TenantID: tenantID}
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, apperror.NotFound(scope, "booking", id)
	}
	b, err := p.store.GetBooking(ctx, tenantID, id)
	if storage.IsNotFound(err) {
		return model.Booking{}, apperror.NotFound(scope, "booking", id)
	}
	return b, err
}

// ListForDate returns every booking of the professional on date, cancelled ones
// included, ordered by start.
func (p *Protocol) ListForDate(ctx context.Context, tenantID, professionalID string, date model.Date) ([]model.Booking, error) {
	scope := apperror.Scope{TenantID: tenantID, ProfessionalID: professionalID, Date: date.String()}
	if strings.TrimSpace(professionalID) == "" {
		return nil, apperror.Validation(scope, "professional_id", "is required")
	}
	if date.IsZero() {
		return nil, apperror.Validation(scope, "date", "is required")
	}
	return p.store.BookingsForDate(ctx, tenantID, professionalID, date)
}

func enqueue(ctx context.Context, tx storage.Tx, eventType string, b model.Booking) error {
	payload := map[string]any{
		"booking_id":       b.ID,
		"tenant_id":        b.TenantID,
		"professional_id":  b.ProfessionalID,
		"date":             b.Date.String(),
		"start_time":       b.StartTime.Format(time.RFC3339),
		"end_time":         b.EndTime().Format(time.RFC3339),
		"duration_minutes": b.DurationMinutes,
		"status":           string(b.Status),
	}
	if b.Status == model.StatusCancelled {
		payload["reason"] = b.CancelReason
		payload["late_cancellation"] = b.LateCancellation
	}
	evt, err := outbox.NewEvent(outbox.AggregateBooking, b.ID, eventType, b.TenantID, payload)
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, evt)
}

// wrap keeps domain errors unwrapped so their messages reach callers verbatim.
func wrap(op string, err error) error {
	var (
		v *apperror.ValidationError
		c *apperror.ConflictError
		n *apperror.NotFoundError
	)
	if errors.As(err, &v) || errors.As(err, &c) || errors.As(err, &n) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

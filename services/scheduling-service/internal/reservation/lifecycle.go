package reservation

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

// Freeing or finalizing an interval never creates an overlap, so transitions only
// re-read the booking under its tuple locks and check the state machine.

// Confirm moves a pending booking to confirmed.
func (p *Protocol) Confirm(ctx context.Context, tenantID, id string) (model.Booking, error) {
	return p.transition(ctx, tenantID, id, func(b *model.Booking, _ model.ClinicScheduleConfig, _ time.Time) (string, error) {
		if err := checkTransition(b, model.StatusConfirmed); err != nil {
			return "", err
		}
		b.Status = model.StatusConfirmed
		return outbox.BookingConfirmed, nil
	})
}

// Complete moves a confirmed booking to completed once it has started.
func (p *Protocol) Complete(ctx context.Context, tenantID, id string) (model.Booking, error) {
	return p.transition(ctx, tenantID, id, func(b *model.Booking, _ model.ClinicScheduleConfig, now time.Time) (string, error) {
		if err := checkTransition(b, model.StatusCompleted); err != nil {
			return "", err
		}
		if now.Before(b.StartTime) {
			return "", apperror.Conflict(scopeOf(*b), b.Interval(), b.ID, "booking has not started yet")
		}
		b.Status = model.StatusCompleted
		return outbox.BookingCompleted, nil
	})
}

// Cancel frees the booking's interval. Cancelling inside the clinic's
// cancellation window is allowed and flagged as late. Cancelling an already
// cancelled booking returns it unchanged.
func (p *Protocol) Cancel(ctx context.Context, tenantID, id, reason string) (model.Booking, error) {
	reason = strings.TrimSpace(reason)
	return p.transition(ctx, tenantID, id, func(b *model.Booking, cfg model.ClinicScheduleConfig, now time.Time) (string, error) {
		if b.Status == model.StatusCancelled {
			return "", nil
		}
		if err := checkTransition(b, model.StatusCancelled); err != nil {
			return "", err
		}
		cancel(b, reason, now, b.StartTime.Sub(now) < cfg.CancellationLeadTime())
		return outbox.BookingCancelled, nil
	})
}

// Expire cancels a pending booking whose start has passed without confirmation.
// Bookings in any other state are returned unchanged.
func (p *Protocol) Expire(ctx context.Context, tenantID, id string) (model.Booking, error) {
	return p.transition(ctx, tenantID, id, func(b *model.Booking, _ model.ClinicScheduleConfig, now time.Time) (string, error) {
		if b.Status != model.StatusPending || b.StartTime.After(now) {
			return "", nil
		}
		cancel(b, ExpiredReason, now, false)
		return outbox.BookingCancelled, nil
	})
}

// AutoComplete completes a confirmed booking whose end has passed. Bookings in any
// other state are returned unchanged.
func (p *Protocol) AutoComplete(ctx context.Context, tenantID, id string) (model.Booking, error) {
	return p.transition(ctx, tenantID, id, func(b *model.Booking, _ model.ClinicScheduleConfig, now time.Time) (string, error) {
		if b.Status != model.StatusConfirmed || b.EndTime().After(now) {
			return "", nil
		}
		b.Status = model.StatusCompleted
		return outbox.BookingCompleted, nil
	})
}

// mutateFunc changes b in place and returns the event to emit. An empty event
// type means nothing changed.
type mutateFunc func(b *model.Booking, cfg model.ClinicScheduleConfig, now time.Time) (string, error)

func (p *Protocol) transition(ctx context.Context, tenantID, id string, mutate mutateFunc) (model.Booking, error) {
	current, err := p.Get(ctx, tenantID, id)
	if err != nil {
		return model.Booking{}, err
	}
	cfg, err := p.configs.Get(ctx, tenantID)
	if err != nil {
		return model.Booking{}, err
	}

	var out model.Booking
	changed := ""
	// The clinic timezone may have changed since the booking was reserved, so
	// lock both the booking's own dates and the dates it touches today.
	keys := model.SortKeys(append(model.BookingKeys(current),
		model.TupleKeys(tenantID, current.ProfessionalID, current.Interval(), cfg.Location())...))
	err = p.store.InTx(ctx, keys, func(tx storage.Tx) error {
		b, err := tx.GetBooking(ctx, tenantID, id)
		if storage.IsNotFound(err) {
			return apperror.NotFound(apperror.Scope{TenantID: tenantID}, "booking", id)
		}
		if err != nil {
			return err
		}
		now := p.now()
		eventType, err := mutate(&b, cfg, now)
		if err != nil {
			return err
		}
		if eventType == "" {
			out = b
			return nil
		}
		b.UpdatedAt = now
		out = b
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		changed = eventType
		return enqueue(ctx, tx, eventType, b)
	})
	if err != nil {
		return model.Booking{}, wrap("transition booking", err)
	}
	if changed != "" {
		p.logger.Info("booking transitioned",
			"tenant_id", tenantID,
			"professional_id", out.ProfessionalID,
			"booking_id", id,
			"status", string(out.Status),
			"late_cancellation", out.LateCancellation,
		)
	}
	return out, nil
}

func checkTransition(b *model.Booking, next model.Status) error {
	if !b.Status.CanTransitionTo(next) {
		return apperror.Conflict(scopeOf(*b), b.Interval(), b.ID, "cannot move booking from %s to %s", b.Status, next)
	}
	return nil
}

func cancel(b *model.Booking, reason string, now time.Time, late bool) {
	at := now
	b.Status = model.StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &at
	b.LateCancellation = late
}

func scopeOf(b model.Booking) apperror.Scope {
	return apperror.Scope{TenantID: b.TenantID, ProfessionalID: b.ProfessionalID, Date: b.Date.String()}
}


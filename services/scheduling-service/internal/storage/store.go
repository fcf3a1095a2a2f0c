// Package storage defines the persistence contract of the scheduling engine and
// its PostgreSQL implementation. The in-process implementation lives in memstore.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned when an insert would make two occupying bookings of
	// one professional overlap.
	ErrOverlap = errors.New("booking overlaps an existing booking")
	// ErrDuplicate is returned when a unique key (idempotency key) already exists.
	ErrDuplicate = errors.New("duplicate key")
)

func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlap)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// Reader is the read side shared by the store and its transactions. Every query is
// scoped by tenant id.
type Reader interface {
	ProfessionalExists(ctx context.Context, tenantID, professionalID string) (bool, error)
	// WorkingWindows returns the professional's windows ordered by weekday and open time.
	WorkingWindows(ctx context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error)
	// BlackoutsOverlapping returns blackouts sharing an instant with span, ordered by start.
	BlackoutsOverlapping(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error)
	GetBlackout(ctx context.Context, tenantID, id string) (model.BlackoutInterval, error)
	// OccupyingBookings returns non-cancelled bookings sharing an instant with span, ordered by start.
	OccupyingBookings(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error)
	GetBooking(ctx context.Context, tenantID, id string) (model.Booking, error)
	BookingsForDate(ctx context.Context, tenantID, professionalID string, date model.Date) ([]model.Booking, error)
	BookingByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Booking, error)
}

// Tx is a unit of work opened by Store.InTx. Reads inside a Tx observe its own writes.
type Tx interface {
	Reader
	InsertBooking(ctx context.Context, b *model.Booking) error
	// UpdateBooking persists status, cancellation fields and updated_at.
	UpdateBooking(ctx context.Context, b model.Booking) error
	InsertBlackout(ctx context.Context, b *model.BlackoutInterval) error
	// DeleteBlackout reports whether a row was removed.
	DeleteBlackout(ctx context.Context, tenantID, id string) (bool, error)
	ReplaceWorkingWindows(ctx context.Context, tenantID, professionalID string, windows []model.WorkingWindow) error
	// Enqueue records evt in the outbox; it is published only if the Tx commits.
	Enqueue(ctx context.Context, evt outbox.Event) error
}

// Store is the persistence contract of the engine.
type Store interface {
	Reader

	// InTx runs fn in one transaction while holding an exclusive lock on every key.
	// Keys are locked in sorted order. The transaction commits when fn returns nil.
	InTx(ctx context.Context, keys []model.TupleKey, fn func(tx Tx) error) error

	// DueForSweep returns pending bookings whose start is at or before now and
	// confirmed bookings whose end is at or before now, across all tenants.
	DueForSweep(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)

	ClinicConfig(ctx context.Context, tenantID string) (model.ClinicScheduleConfig, bool, error)
	UpsertClinicConfig(ctx context.Context, cfg model.ClinicScheduleConfig) error

	// UpsertProfessional registers a professional announced by the clinic registry.
	UpsertProfessional(ctx context.Context, tenantID, professionalID, displayName string) error
}

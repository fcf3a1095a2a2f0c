// Package memstore is an in-process implementation of storage.Store. It keeps the
// same guarantees as the PostgreSQL store: tuple keys are locked exclusively for
// the life of a transaction, and inserting an occupying booking that overlaps
// another one for the same professional fails with storage.ErrOverlap.
//
// Writes are applied immediately and undone if the transaction fails, so readers
// outside the transaction may briefly observe uncommitted rows.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

type professionalKey struct {
	tenantID       string
	professionalID string
}

type Store struct {
	mu            sync.RWMutex
	professionals map[professionalKey]string
	windows       map[professionalKey][]model.WorkingWindow
	blackouts     map[string]model.BlackoutInterval
	bookings      map[string]model.Booking
	configs       map[string]model.ClinicScheduleConfig
	events        []outbox.Event

	locks *keyLocks
	sink  func(outbox.Event)
	now   func() time.Time
}

type Option func(*Store)

// WithEventSink registers fn to receive every event of a committed transaction.
func WithEventSink(fn func(outbox.Event)) Option {
	return func(s *Store) { s.sink = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		professionals: map[professionalKey]string{},
		windows:       map[professionalKey][]model.WorkingWindow{},
		blackouts:     map[string]model.BlackoutInterval{},
		bookings:      map[string]model.Booking{},
		configs:       map[string]model.ClinicScheduleConfig{},
		locks:         newKeyLocks(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// Events returns a copy of every event enqueued by committed transactions.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *Store) InTx(ctx context.Context, keys []model.TupleKey, fn func(tx storage.Tx) error) error {
	sorted := model.SortKeys(append([]model.TupleKey(nil), keys...))
	var held []string
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			s.locks.unlock(held[i])
		}
	}()
	for _, k := range sorted {
		if err := s.locks.lock(ctx, k.String()); err != nil {
			return err
		}
		held = append(held, k.String())
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	s.mu.Lock()
	s.events = append(s.events, tx.events...)
	s.mu.Unlock()
	if s.sink != nil {
		for _, evt := range tx.events {
			s.sink(evt)
		}
	}
	return nil
}

func (s *Store) DueForSweep(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Booking
	for _, b := range s.bookings {
		switch {
		case b.Status == model.StatusPending && !b.StartTime.After(now):
			out = append(out, b)
		case b.Status == model.StatusConfirmed && !b.EndTime().After(now):
			out = append(out, b)
		}
	}
	sortBookings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ClinicConfig(_ context.Context, tenantID string) (model.ClinicScheduleConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[tenantID]
	return cfg, ok, nil
}

func (s *Store) UpsertClinicConfig(_ context.Context, cfg model.ClinicScheduleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = s.now()
	s.configs[cfg.TenantID] = cfg
	return nil
}

func (s *Store) UpsertProfessional(_ context.Context, tenantID, professionalID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.professionals[professionalKey{tenantID, professionalID}] = displayName
	return nil
}

func (s *Store) ProfessionalExists(_ context.Context, tenantID, professionalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.professionals[professionalKey{tenantID, professionalID}]
	return ok, nil
}

func (s *Store) WorkingWindows(_ context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.WorkingWindow(nil), s.windows[professionalKey{tenantID, professionalID}]...), nil
}

func (s *Store) BlackoutsOverlapping(_ context.Context, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.BlackoutInterval
	for _, b := range s.blackouts {
		if b.TenantID == tenantID && b.ProfessionalID == professionalID && interval.Overlaps(interval.New(b.Start, b.End), span) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (s *Store) GetBlackout(_ context.Context, tenantID, id string) (model.BlackoutInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blackouts[id]
	if !ok || b.TenantID != tenantID {
		return model.BlackoutInterval{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) OccupyingBookings(_ context.Context, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occupyingLocked(tenantID, professionalID, span), nil
}

func (s *Store) occupyingLocked(tenantID, professionalID string, span interval.Interval) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID == tenantID && b.ProfessionalID == professionalID && b.Status.Occupies() && interval.Overlaps(b.Interval(), span) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func (s *Store) GetBooking(_ context.Context, tenantID, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok || b.TenantID != tenantID {
		return model.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) BookingsForDate(_ context.Context, tenantID, professionalID string, date model.Date) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Booking
	for _, b := range s.bookings {
		if b.TenantID == tenantID && b.ProfessionalID == professionalID && b.Date == date {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) BookingByIdempotencyKey(_ context.Context, tenantID, key string) (model.Booking, error) {
	if key == "" {
		return model.Booking{}, storage.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.TenantID == tenantID && b.IdempotencyKey == key {
			return b, nil
		}
	}
	return model.Booking{}, storage.ErrNotFound
}

func sortBookings(bs []model.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].StartTime.Equal(bs[j].StartTime) {
			return bs[i].ID < bs[j].ID
		}
		return bs[i].StartTime.Before(bs[j].StartTime)
	})
}

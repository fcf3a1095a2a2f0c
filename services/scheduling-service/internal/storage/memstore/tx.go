package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

type memTx struct {
	store  *Store
	undo   []func()
	events []outbox.Event
}

// Reads go straight to the store; the tuple locks held by the transaction keep
// the rows it cares about stable.
func (t *memTx) ProfessionalExists(ctx context.Context, tenantID, professionalID string) (bool, error) {
	return t.store.ProfessionalExists(ctx, tenantID, professionalID)
}

func (t *memTx) WorkingWindows(ctx context.Context, tenantID, professionalID string) ([]model.WorkingWindow, error) {
	return t.store.WorkingWindows(ctx, tenantID, professionalID)
}

func (t *memTx) BlackoutsOverlapping(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.BlackoutInterval, error) {
	return t.store.BlackoutsOverlapping(ctx, tenantID, professionalID, span)
}

func (t *memTx) GetBlackout(ctx context.Context, tenantID, id string) (model.BlackoutInterval, error) {
	return t.store.GetBlackout(ctx, tenantID, id)
}

func (t *memTx) OccupyingBookings(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error) {
	return t.store.OccupyingBookings(ctx, tenantID, professionalID, span)
}

func (t *memTx) GetBooking(ctx context.Context, tenantID, id string) (model.Booking, error) {
	return t.store.GetBooking(ctx, tenantID, id)
}

func (t *memTx) BookingsForDate(ctx context.Context, tenantID, professionalID string, date model.Date) ([]model.Booking, error) {
	return t.store.BookingsForDate(ctx, tenantID, professionalID, date)
}

func (t *memTx) BookingByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Booking, error) {
	return t.store.BookingByIdempotencyKey(ctx, tenantID, key)
}

func (t *memTx) InsertBooking(_ context.Context, b *model.Booking) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.professionals[professionalKey{b.TenantID, b.ProfessionalID}]; !ok {
		return fmt.Errorf("insert booking: unknown professional %s/%s", b.TenantID, b.ProfessionalID)
	}
	if _, ok := s.bookings[b.ID]; ok {
		return fmt.Errorf("%w: booking id %s", storage.ErrDuplicate, b.ID)
	}
	if b.IdempotencyKey != "" {
		for _, existing := range s.bookings {
			if existing.TenantID == b.TenantID && existing.IdempotencyKey == b.IdempotencyKey {
				return fmt.Errorf("%w: idempotency key", storage.ErrDuplicate)
			}
		}
	}
	if b.Status.Occupies() {
		if clash := s.occupyingLocked(b.TenantID, b.ProfessionalID, b.Interval()); len(clash) > 0 {
			return fmt.Errorf("%w: %s", storage.ErrOverlap, clash[0].ID)
		}
	}

	now := s.now()
	b.CreatedAt, b.UpdatedAt = now, now
	s.bookings[b.ID] = *b
	id := b.ID
	t.undo = append(t.undo, func() { delete(s.bookings, id) })
	return nil
}

func (t *memTx) UpdateBooking(_ context.Context, b model.Booking) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.bookings[b.ID]
	if !ok || prev.TenantID != b.TenantID {
		return storage.ErrNotFound
	}
	if b.Status.Occupies() && !prev.Status.Occupies() {
		for _, other := range s.occupyingLocked(b.TenantID, b.ProfessionalID, prev.Interval()) {
			if other.ID != b.ID {
				return fmt.Errorf("%w: %s", storage.ErrOverlap, other.ID)
			}
		}
	}
	prev.Status = b.Status
	prev.CancelReason = b.CancelReason
	prev.LateCancellation = b.LateCancellation
	prev.CancelledAt = b.CancelledAt
	prev.UpdatedAt = b.UpdatedAt
	old := s.bookings[b.ID]
	s.bookings[b.ID] = prev
	t.undo = append(t.undo, func() { s.bookings[old.ID] = old })
	return nil
}

func (t *memTx) InsertBlackout(_ context.Context, b *model.BlackoutInterval) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.professionals[professionalKey{b.TenantID, b.ProfessionalID}]; !ok {
		return fmt.Errorf("insert blackout: unknown professional %s/%s", b.TenantID, b.ProfessionalID)
	}
	if _, ok := s.blackouts[b.ID]; ok {
		return fmt.Errorf("%w: blackout id %s", storage.ErrDuplicate, b.ID)
	}
	b.CreatedAt = s.now()
	s.blackouts[b.ID] = *b
	id := b.ID
	t.undo = append(t.undo, func() { delete(s.blackouts, id) })
	return nil
}

func (t *memTx) DeleteBlackout(_ context.Context, tenantID, id string) (bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.blackouts[id]
	if !ok || prev.TenantID != tenantID {
		return false, nil
	}
	delete(s.blackouts, id)
	t.undo = append(t.undo, func() { s.blackouts[id] = prev })
	return true, nil
}

func (t *memTx) ReplaceWorkingWindows(_ context.Context, tenantID, professionalID string, windows []model.WorkingWindow) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := professionalKey{tenantID, professionalID}
	if _, ok := s.professionals[key]; !ok {
		return fmt.Errorf("replace windows: unknown professional %s/%s", tenantID, professionalID)
	}
	prev, had := s.windows[key]
	next := make([]model.WorkingWindow, 0, len(windows))
	for _, w := range windows {
		w.TenantID, w.ProfessionalID = tenantID, professionalID
		next = append(next, w)
	}
	sortWindows(next)
	s.windows[key] = next
	t.undo = append(t.undo, func() {
		if had {
			s.windows[key] = prev
		} else {
			delete(s.windows, key)
		}
	})
	return nil
}

func (t *memTx) Enqueue(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (t *memTx) rollback() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.events = nil
}

func sortWindows(ws []model.WorkingWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Weekday == ws[j].Weekday {
			return ws[i].OpenMinute < ws[j].OpenMinute
		}
		return ws[i].Weekday < ws[j].Weekday
	})
}

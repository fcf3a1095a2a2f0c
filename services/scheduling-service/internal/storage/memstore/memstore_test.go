package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

var day = model.Date{Year: 2026, Month: time.March, Day: 2}

func booking(id, tenant string, startMinute, minutes int, status model.Status) *model.Booking {
	return &model.Booking{
		ID:              id,
		TenantID:        tenant,
		ProfessionalID:  "p1",
		Date:            day,
		StartTime:       day.At(startMinute, time.UTC),
		DurationMinutes: minutes,
		Status:          status,
	}
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	ctx := context.Background()
	for _, tenant := range []string{"t1", "t2"} {
		if err := s.UpsertProfessional(ctx, tenant, "p1", "Dr. One"); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestInsertBookingOverlapBackstop(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := []model.TupleKey{{TenantID: "t1", ProfessionalID: "p1", Date: day}}

	insert := func(b *model.Booking) error {
		return s.InTx(ctx, key, func(tx storage.Tx) error { return tx.InsertBooking(ctx, b) })
	}
	if err := insert(booking("a", "t1", 540, 30, model.StatusConfirmed)); err != nil {
		t.Fatal(err)
	}
	if err := insert(booking("b", "t1", 555, 30, model.StatusPending)); !storage.IsConflict(err) {
		t.Fatalf("expected overlap, got %v", err)
	}
	if err := insert(booking("c", "t1", 570, 30, model.StatusPending)); err != nil {
		t.Fatalf("touching booking must be accepted: %v", err)
	}
	if err := s.InTx(ctx, []model.TupleKey{{TenantID: "t2", ProfessionalID: "p1", Date: day}}, func(tx storage.Tx) error {
		return tx.InsertBooking(ctx, booking("d", "t2", 540, 30, model.StatusConfirmed))
	}); err != nil {
		t.Fatalf("other tenant must not conflict: %v", err)
	}

	occ, _ := s.OccupyingBookings(ctx, "t1", "p1", day.Span(time.UTC))
	if len(occ) != 2 || occ[0].ID != "a" || occ[1].ID != "c" {
		t.Fatalf("unexpected occupancy: %+v", occ)
	}
	if _, err := s.GetBooking(ctx, "t2", "a"); !storage.IsNotFound(err) {
		t.Fatalf("cross-tenant read must miss, got %v", err)
	}
}

func TestRollbackUndoesWritesAndEvents(t *testing.T) {
	var sunk []outbox.Event
	s := New(WithEventSink(func(e outbox.Event) { sunk = append(sunk, e) }))
	ctx := context.Background()
	_ = s.UpsertProfessional(ctx, "t1", "p1", "")

	boom := errors.New("boom")
	err := s.InTx(ctx, nil, func(tx storage.Tx) error {
		if err := tx.InsertBooking(ctx, booking("a", "t1", 540, 30, model.StatusPending)); err != nil {
			return err
		}
		if err := tx.InsertBlackout(ctx, &model.BlackoutInterval{ID: "x", TenantID: "t1", ProfessionalID: "p1",
			Start: day.At(600, time.UTC), End: day.At(660, time.UTC)}); err != nil {
			return err
		}
		if err := tx.ReplaceWorkingWindows(ctx, "t1", "p1", []model.WorkingWindow{{Weekday: time.Monday, OpenMinute: 480, CloseMinute: 720}}); err != nil {
			return err
		}
		_ = tx.Enqueue(ctx, outbox.Event{EventType: outbox.BookingReserved})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetBooking(ctx, "t1", "a"); !storage.IsNotFound(err) {
		t.Fatal("booking should have been rolled back")
	}
	if _, err := s.GetBlackout(ctx, "t1", "x"); !storage.IsNotFound(err) {
		t.Fatal("blackout should have been rolled back")
	}
	if ws, _ := s.WorkingWindows(ctx, "t1", "p1"); len(ws) != 0 {
		t.Fatalf("windows should have been rolled back: %v", ws)
	}
	if len(s.Events()) != 0 || len(sunk) != 0 {
		t.Fatal("events of a failed transaction must not be published")
	}

	if err := s.InTx(ctx, nil, func(tx storage.Tx) error {
		return tx.Enqueue(ctx, outbox.Event{EventType: outbox.BookingReserved})
	}); err != nil {
		t.Fatal(err)
	}
	if len(s.Events()) != 1 || len(sunk) != 1 {
		t.Fatal("expected one committed event")
	}
}

func TestInTxSerializesSameKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := []model.TupleKey{{TenantID: "t1", ProfessionalID: "p1", Date: day}}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, key, func(storage.Tx) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxInside)
	}
	if len(s.locks.locks) != 0 {
		t.Fatalf("lock table should be empty after use, has %d", len(s.locks.locks))
	}
}

func TestInTxHonoursContextWhileWaiting(t *testing.T) {
	s := New()
	key := []model.TupleKey{{TenantID: "t1", ProfessionalID: "p1", Date: day}}
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = s.InTx(context.Background(), key, func(storage.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.InTx(ctx, key, func(storage.Tx) error { return nil })
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDueForSweep(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, b := range []*model.Booking{
		booking("pending-past", "t1", 540, 30, model.StatusPending),
		booking("confirmed-running", "t1", 600, 60, model.StatusConfirmed),
		booking("confirmed-done", "t1", 480, 30, model.StatusConfirmed),
		booking("pending-future", "t1", 720, 30, model.StatusPending),
	} {
		if err := s.InTx(ctx, nil, func(tx storage.Tx) error { return tx.InsertBooking(ctx, b) }); err != nil {
			t.Fatal(err)
		}
	}
	due, err := s.DueForSweep(ctx, day.At(630, time.UTC), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0].ID != "confirmed-done" || due[1].ID != "pending-past" {
		t.Fatalf("unexpected due bookings: %+v", due)
	}
}

func TestBlackoutsOverlappingUsesHalfOpenIntervals(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.InTx(ctx, nil, func(tx storage.Tx) error {
		return tx.InsertBlackout(ctx, &model.BlackoutInterval{ID: "x", TenantID: "t1", ProfessionalID: "p1",
			Start: day.At(12*60, time.UTC), End: day.At(13*60, time.UTC)})
	})
	got, _ := s.BlackoutsOverlapping(ctx, "t1", "p1", interval.New(day.At(13*60, time.UTC), day.At(14*60, time.UTC)))
	if len(got) != 0 {
		t.Fatalf("touching blackout must not be returned: %v", got)
	}
	got, _ = s.BlackoutsOverlapping(ctx, "t1", "p1", day.Span(time.UTC))
	if len(got) != 1 {
		t.Fatalf("expected one blackout, got %v", got)
	}
}

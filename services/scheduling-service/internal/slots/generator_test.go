package slots

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage/memstore"
)

// 2026-03-02 is a Monday.
var monday = model.Date{Year: 2026, Month: time.March, Day: 2}

var clinic = model.ClinicScheduleConfig{
	DefaultAppointmentMinutes: 30,
	SlotIntervalMinutes:       30,
	CancellationHours:         24,
	Timezone:                  "UTC",
}

type fixture struct {
	store *memstore.Store
	gen   *Generator
}

func newFixture(t *testing.T, open, close int) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	if err := store.UpsertProfessional(ctx, "t1", "p1", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.InTx(ctx, nil, func(tx storage.Tx) error {
		return tx.ReplaceWorkingWindows(ctx, "t1", "p1", []model.WorkingWindow{{Weekday: time.Monday, OpenMinute: open, CloseMinute: close}})
	}); err != nil {
		t.Fatal(err)
	}
	gen := NewGenerator(store, clinicconfig.Static{Config: clinic}).
		WithClock(func() time.Time { return monday.At(0, time.UTC).Add(-24 * time.Hour) })
	return fixture{store: store, gen: gen}
}

func (f fixture) book(t *testing.T, id string, startMinute, minutes int, status model.Status) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.InTx(ctx, nil, func(tx storage.Tx) error {
		return tx.InsertBooking(ctx, &model.Booking{
			ID: id, TenantID: "t1", ProfessionalID: "p1", Date: monday,
			StartTime: monday.At(startMinute, time.UTC), DurationMinutes: minutes, Status: status,
		})
	}); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) cancel(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.InTx(ctx, nil, func(tx storage.Tx) error {
		b, err := tx.GetBooking(ctx, "t1", id)
		if err != nil {
			return err
		}
		b.Status = model.StatusCancelled
		return tx.UpdateBooking(ctx, b)
	}); err != nil {
		t.Fatal(err)
	}
}

func starts(slots []model.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func assertStarts(t *testing.T, slots []model.Slot, want ...string) {
	t.Helper()
	got := starts(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAvailableSlots_ConfirmedBookingIsExcluded(t *testing.T) {
	f := newFixture(t, 8*60, 12*60)
	f.book(t, "b1", 9*60, 30, model.StatusConfirmed)

	slots, err := f.gen.AvailableSlots(context.Background(), Query{TenantID: "t1", ProfessionalID: "p1", Date: monday})
	if err != nil {
		t.Fatal(err)
	}
	assertStarts(t, slots, "08:00", "08:30", "09:30", "10:00", "10:30", "11:00", "11:30")

	f.cancel(t, "b1")
	slots, err = f.gen.AvailableSlots(context.Background(), Query{TenantID: "t1", ProfessionalID: "p1", Date: monday})
	if err != nil {
		t.Fatal(err)
	}
	assertStarts(t, slots, "08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "11:30")
}

func TestAvailableSlots_BlackoutsAndDuration(t *testing.T) {
	f := newFixture(t, 8*60, 12*60)
	ctx := context.Background()
	if err := f.store.InTx(ctx, nil, func(tx storage.Tx) error {
		return tx.InsertBlackout(ctx, &model.BlackoutInterval{
			ID: "x", TenantID: "t1", ProfessionalID: "p1",
			Start: monday.At(10*60, time.UTC), End: monday.At(11*60, time.UTC),
		})
	}); err != nil {
		t.Fatal(err)
	}

	sixty := 60
	slots, err := f.gen.AvailableSlots(ctx, Query{TenantID: "t1", ProfessionalID: "p1", Date: monday, DurationMinutes: &sixty})
	if err != nil {
		t.Fatal(err)
	}
	assertStarts(t, slots, "08:00", "08:30", "09:00", "11:00")
	if slots[3].End.Sub(slots[3].Start) != time.Hour {
		t.Fatalf("expected one hour slots, got %s", slots[3].End.Sub(slots[3].Start))
	}
}

func TestAvailableSlots_ClosedDayAndPastSlots(t *testing.T) {
	f := newFixture(t, 8*60, 12*60)
	ctx := context.Background()

	slots, err := f.gen.AvailableSlots(ctx, Query{TenantID: "t1", ProfessionalID: "p1", Date: monday.AddDays(1)})
	if err != nil || len(slots) != 0 {
		t.Fatalf("expected closed Tuesday, got %v %v", starts(slots), err)
	}

	f.gen.WithClock(func() time.Time { return monday.At(10*60, time.UTC) })
	slots, err = f.gen.AvailableSlots(ctx, Query{TenantID: "t1", ProfessionalID: "p1", Date: monday})
	if err != nil {
		t.Fatal(err)
	}
	assertStarts(t, slots, "10:30", "11:00", "11:30")

	f.gen.WithClock(func() time.Time { return monday.At(0, time.UTC).AddDate(0, 0, 7) })
	slots, err = f.gen.AvailableSlots(ctx, Query{TenantID: "t1", ProfessionalID: "p1", Date: monday})
	if err != nil || len(slots) != 0 {
		t.Fatalf("past date yields no slots, got %v %v", starts(slots), err)
	}
}

func TestAvailableSlots_Validation(t *testing.T) {
	f := newFixture(t, 8*60, 12*60)
	ctx := context.Background()
	zero, negative := 0, -15

	for name, q := range map[string]Query{
		"zero duration":        {TenantID: "t1", ProfessionalID: "p1", Date: monday, DurationMinutes: &zero},
		"negative duration":    {TenantID: "t1", ProfessionalID: "p1", Date: monday, DurationMinutes: &negative},
		"unknown professional": {TenantID: "t1", ProfessionalID: "ghost", Date: monday},
		"other tenant":         {TenantID: "t2", ProfessionalID: "p1", Date: monday},
		"missing date":         {TenantID: "t1", ProfessionalID: "p1"},
	} {
		if _, err := f.gen.AvailableSlots(ctx, q); !apperror.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

// Every slot lies inside working hours, outside every blackout and every
// occupied interval, and every long enough free gap gets a slot at its start.
func TestAvailableSlots_SoundAndComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		f := newFixture(t, 8*60, 18*60)
		var busy []interval.Interval
		for i := 0; i < 6; i++ {
			start := 7*60 + rng.Intn(11*60)
			minutes := 5 + rng.Intn(90)
			iv := interval.New(monday.At(start, time.UTC), monday.At(start+minutes, time.UTC))
			if rng.Intn(2) == 0 {
				_ = f.store.InTx(ctx, nil, func(tx storage.Tx) error {
					return tx.InsertBlackout(ctx, &model.BlackoutInterval{
						ID: string(rune('a'+i)) + "x", TenantID: "t1", ProfessionalID: "p1", Start: iv.Start, End: iv.End,
					})
				})
				busy = append(busy, iv)
				continue
			}
			err := f.store.InTx(ctx, nil, func(tx storage.Tx) error {
				return tx.InsertBooking(ctx, &model.Booking{
					ID: string(rune('a'+i)) + "b", TenantID: "t1", ProfessionalID: "p1", Date: monday,
					StartTime: iv.Start, DurationMinutes: minutes, Status: model.StatusConfirmed,
				})
			})
			if err == nil {
				busy = append(busy, iv)
			}
		}

		duration := 15 + rng.Intn(4)*15
		slots, err := f.gen.AvailableSlots(ctx, Query{TenantID: "t1", ProfessionalID: "p1", Date: monday, DurationMinutes: &duration})
		if err != nil {
			t.Fatal(err)
		}

		open := interval.New(monday.At(8*60, time.UTC), monday.At(18*60, time.UTC))
		for i, s := range slots {
			iv := interval.New(s.Start, s.End)
			if !open.Contains(iv) {
				t.Fatalf("round %d: slot %s outside working hours", round, iv)
			}
			if interval.OverlapsAny(iv, busy) >= 0 {
				t.Fatalf("round %d: slot %s overlaps a busy interval", round, iv)
			}
			if i > 0 && !slots[i-1].Start.Before(s.Start) {
				t.Fatalf("round %d: slots not ascending", round)
			}
		}

		for _, gap := range interval.Subtract(open, busy) {
			if gap.Duration() < time.Duration(duration)*time.Minute {
				continue
			}
			found := false
			for _, s := range slots {
				if s.Start.Equal(gap.Start) {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("round %d: free gap %s has no slot at its start", round, gap)
			}
		}
	}
}

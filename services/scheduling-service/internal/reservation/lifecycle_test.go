package reservation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/apperror"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage"
)

func TestBookingStateMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.mustReserve(t, 9*60, 30)

	if _, err := h.p.Complete(ctx, "t1", b.ID); !apperror.IsConflict(err) {
		t.Fatalf("pending -> completed must be rejected, got %v", err)
	}
	confirmed, err := h.p.Confirm(ctx, "t1", b.ID)
	if err != nil || confirmed.Status != model.StatusConfirmed {
		t.Fatalf("confirm: %+v %v", confirmed, err)
	}
	if _, err := h.p.Confirm(ctx, "t1", b.ID); !apperror.IsConflict(err) {
		t.Fatalf("confirming twice must be rejected, got %v", err)
	}
	if _, err := h.p.Complete(ctx, "t1", b.ID); !apperror.IsConflict(err) {
		t.Fatalf("completing before start must be rejected, got %v", err)
	}

	h.now = b.StartTime.Add(10 * time.Minute)
	completed, err := h.p.Complete(ctx, "t1", b.ID)
	if err != nil || completed.Status != model.StatusCompleted {
		t.Fatalf("complete: %+v %v", completed, err)
	}
	if _, err := h.p.Cancel(ctx, "t1", b.ID, "too late"); !apperror.IsConflict(err) {
		t.Fatalf("completed is terminal, got %v", err)
	}

	var types []string
	for _, evt := range h.store.Events() {
		types = append(types, evt.EventType)
	}
	want := []string{outbox.BookingReserved, outbox.BookingConfirmed, outbox.BookingCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestCancelFlagsLateCancellationAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	early := h.mustReserve(t, 9*60, 30)
	late := h.mustReserve(t, 10*60, 30)

	got, err := h.p.Cancel(ctx, "t1", early.ID, "patient request")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusCancelled || got.LateCancellation || got.CancelReason != "patient request" || got.CancelledAt == nil {
		t.Fatalf("unexpected cancelled booking %+v", got)
	}

	h.now = monday.At(8*60, time.UTC)
	got, err = h.p.Cancel(ctx, "t1", late.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if !got.LateCancellation {
		t.Fatal("cancelling two hours before a 24h window must be flagged late")
	}

	again, err := h.p.Cancel(ctx, "t1", late.ID, "second try")
	if err != nil {
		t.Fatal(err)
	}
	if again.CancelReason != "" || !again.CancelledAt.Equal(*got.CancelledAt) {
		t.Fatalf("repeated cancel must not change the booking, got %+v", again)
	}

	cancelled := 0
	for _, evt := range h.store.Events() {
		if evt.EventType == outbox.BookingCancelled {
			cancelled++
		}
	}
	if cancelled != 2 {
		t.Fatalf("expected two cancelled events, got %d", cancelled)
	}
}

func TestCancelFreesTheInterval(t *testing.T) {
	h := newHarness(t)
	b := h.mustReserve(t, 9*60, 30)
	if _, err := h.reserve(9*60, 30); !apperror.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := h.p.Cancel(context.Background(), "t1", b.ID, ""); err != nil {
		t.Fatal(err)
	}
	h.mustReserve(t, 9*60, 30)
}

func TestTransitionLocksReservedDateAfterTimezoneChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	// 10:00 UTC Monday is 00:00 Tuesday at UTC+14.
	b := h.mustReserve(t, 10*60, 30)
	moved := New(h.store, clinicconfig.Static{Config: model.ClinicScheduleConfig{
		DefaultAppointmentMinutes: 30,
		SlotIntervalMinutes:       30,
		CancellationHours:         24,
		Timezone:                  "Pacific/Kiritimati",
	}}, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(func() time.Time { return h.now })

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = h.store.InTx(ctx, []model.TupleKey{{TenantID: "t1", ProfessionalID: "p1", Date: monday}}, func(storage.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan error, 1)
	go func() {
		_, err := moved.Cancel(ctx, "t1", b.ID, "clinic moved")
		done <- err
	}()
	select {
	case err := <-done:
		close(release)
		t.Fatalf("cancel ran while the reserved date was locked (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestSweepTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pending := h.mustReserve(t, 9*60, 30)
	confirmed := h.mustReserve(t, 10*60, 30)
	if _, err := h.p.Confirm(ctx, "t1", confirmed.ID); err != nil {
		t.Fatal(err)
	}

	got, err := h.p.Expire(ctx, "t1", pending.ID)
	if err != nil || got.Status != model.StatusPending {
		t.Fatalf("future pending booking must not expire: %+v %v", got, err)
	}

	h.now = monday.At(10*60+30, time.UTC)
	got, err = h.p.Expire(ctx, "t1", pending.ID)
	if err != nil || got.Status != model.StatusCancelled || got.CancelReason != ExpiredReason || got.LateCancellation {
		t.Fatalf("expire: %+v %v", got, err)
	}
	got, err = h.p.Expire(ctx, "t1", confirmed.ID)
	if err != nil || got.Status != model.StatusConfirmed {
		t.Fatalf("expire must leave confirmed bookings alone: %+v %v", got, err)
	}
	got, err = h.p.AutoComplete(ctx, "t1", confirmed.ID)
	if err != nil || got.Status != model.StatusCompleted {
		t.Fatalf("auto complete: %+v %v", got, err)
	}
}

func TestLookupsAreTenantScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.mustReserve(t, 9*60, 30)

	if _, err := h.p.Get(ctx, "t1", b.ID); err != nil {
		t.Fatal(err)
	}
	for name, id := range map[string]string{"other tenant": b.ID, "unknown": uuid.NewString(), "malformed": "not-a-uuid"} {
		tenant := "t1"
		if name == "other tenant" {
			tenant = "t2"
		}
		if _, err := h.p.Get(ctx, tenant, id); !apperror.IsNotFound(err) {
			t.Fatalf("%s: expected not found, got %v", name, err)
		}
		if _, err := h.p.Cancel(ctx, tenant, id, ""); !apperror.IsNotFound(err) {
			t.Fatalf("%s: expected not found on cancel, got %v", name, err)
		}
	}
}

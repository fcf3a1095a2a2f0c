package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/blackout"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/clinicconfig"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/reservation"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/storage/memstore"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	if err := store.UpsertProfessional(context.Background(), "t1", "p1", ""); err != nil {
		t.Fatal(err)
	}
	configs := clinicconfig.Static{Config: model.ClinicScheduleConfig{
		DefaultAppointmentMinutes: 30, SlotIntervalMinutes: 30, CancellationHours: 24, Timezone: "UTC",
	}}
	// Sunday before the Monday used below.
	clock := func() time.Time { return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC) }

	h := NewSchedulingHandler(
		slots.NewGenerator(store, configs).WithClock(clock),
		reservation.New(store, configs, logger).WithClock(clock),
		blackout.NewRegistry(store, configs, logger),
		calendar.New(store, logger),
		logger,
	)
	return h.Routes()
}

func do(t *testing.T, srv http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(httpx.TenantIDHeader, "t1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func openMonday(t *testing.T, srv http.Handler) {
	t.Helper()
	rr := do(t, srv, http.MethodPut, "/api/v1/working-hours?professional_id=p1", workingHoursBody{
		Windows: []windowItem{{Weekday: "monday", Open: "08:00", Close: "12:00"}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("replace working hours: %d %s", rr.Code, rr.Body.String())
	}
}

func TestReserveAndSlotsFlow(t *testing.T) {
	srv := newServer(t)
	openMonday(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/v1/reservations", map[string]any{
		"professional_id": "p1", "date": "2026-03-02", "start_time": "09:00", "status": "confirmed",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("reserve: %d %s", rr.Code, rr.Body.String())
	}
	booked := decode[bookingResponse](t, rr)
	if booked.Status != "confirmed" || booked.EndTime != "2026-03-02T09:30:00Z" {
		t.Fatalf("unexpected booking %+v", booked)
	}

	rr = do(t, srv, http.MethodPost, "/api/v1/reservations", map[string]any{
		"professional_id": "p1", "date": "2026-03-02", "start_time": "09:00",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rr.Code, rr.Body.String())
	}
	conflict := decode[errorResponse](t, rr)
	if conflict.Details["conflicting_id"] != booked.BookingID {
		t.Fatalf("expected conflict details naming %s, got %v", booked.BookingID, conflict.Details)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("slots: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[[]slotItem](t, rr); len(got) != 7 {
		t.Fatalf("expected 7 slots, got %v", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/v1/bookings/"+booked.BookingID+"/cancel", map[string]string{"reason": "sick"})
	if rr.Code != http.StatusOK || decode[bookingResponse](t, rr).Status != "cancelled" {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, srv, http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02", nil)
	if got := decode[[]slotItem](t, rr); len(got) != 8 {
		t.Fatalf("expected 8 slots after cancel, got %v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/bookings?professional_id=p1&date=2026-03-02", nil)
	if got := decode[[]bookingResponse](t, rr); len(got) != 1 || got[0].CancelReason != "sick" {
		t.Fatalf("unexpected booking list %+v", got)
	}
}

func TestReserveIdempotencyHeader(t *testing.T) {
	srv := newServer(t)
	openMonday(t, srv)
	body := map[string]any{"professional_id": "p1", "date": "2026-03-02", "start_time": "10:00"}

	first := do(t, srv, http.MethodPost, "/api/v1/reservations", body, IdempotencyKeyHeader, "abc")
	second := do(t, srv, http.MethodPost, "/api/v1/reservations", body, IdempotencyKeyHeader, "abc")
	if first.Code != http.StatusCreated || second.Code != http.StatusOK {
		t.Fatalf("expected 201 then 200, got %d and %d", first.Code, second.Code)
	}
	if decode[bookingResponse](t, first).BookingID != decode[bookingResponse](t, second).BookingID {
		t.Fatal("replay must return the original booking")
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	openMonday(t, srv)

	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"bad date", http.MethodGet, "/api/v1/slots?professional_id=p1&date=03/02/2026", nil, http.StatusBadRequest},
		{"zero duration", http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02&duration_minutes=0", nil, http.StatusBadRequest},
		{"unknown professional", http.MethodGet, "/api/v1/slots?professional_id=ghost&date=2026-03-02", nil, http.StatusBadRequest},
		{"outside hours", http.MethodPost, "/api/v1/reservations", map[string]any{"professional_id": "p1", "date": "2026-03-02", "start_time": "12:00"}, http.StatusBadRequest},
		{"bad clock", http.MethodPost, "/api/v1/reservations", map[string]any{"professional_id": "p1", "date": "2026-03-02", "start_time": "9am"}, http.StatusBadRequest},
		{"missing booking", http.MethodGet, "/api/v1/bookings/6f1c1c35-3f34-4d5e-9d55-4a3b1f1b2c3d", nil, http.StatusNotFound},
		{"malformed booking id", http.MethodPost, "/api/v1/bookings/nope/confirm", nil, http.StatusNotFound},
		{"inverted blackout", http.MethodPost, "/api/v1/blackouts", map[string]any{"professional_id": "p1", "start_time": "2026-03-02T11:00:00Z", "end_time": "2026-03-02T10:00:00Z"}, http.StatusBadRequest},
		{"overlapping windows", http.MethodPut, "/api/v1/working-hours?professional_id=p1", workingHoursBody{Windows: []windowItem{
			{Weekday: "mon", Open: "08:00", Close: "12:00"}, {Weekday: "monday", Open: "11:00", Close: "13:00"},
		}}, http.StatusBadRequest},
		{"bad weekday", http.MethodPut, "/api/v1/working-hours?professional_id=p1", workingHoursBody{Windows: []windowItem{{Weekday: "funday", Open: "08:00", Close: "12:00"}}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rr := do(t, srv, tc.method, tc.target, tc.body)
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d %s", tc.name, tc.want, rr.Code, rr.Body.String())
		}
	}
}

func TestBlackoutEndpoints(t *testing.T) {
	srv := newServer(t)
	openMonday(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/v1/blackouts", map[string]any{
		"professional_id": "p1", "start_time": "2026-03-02T10:00:00Z", "end_time": "2026-03-02T11:00:00Z", "reason": "training",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create blackout: %d %s", rr.Code, rr.Body.String())
	}
	created := decode[blackoutResponse](t, rr)

	rr = do(t, srv, http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02", nil)
	if got := decode[[]slotItem](t, rr); len(got) != 6 {
		t.Fatalf("expected 6 slots around the blackout, got %v", got)
	}
	rr = do(t, srv, http.MethodGet, "/api/v1/blackouts?professional_id=p1&date=2026-03-02", nil)
	if got := decode[[]blackoutResponse](t, rr); len(got) != 1 || got[0].Reason != "training" {
		t.Fatalf("unexpected blackout list %+v", got)
	}

	for i := 0; i < 2; i++ {
		rr = do(t, srv, http.MethodDelete, "/api/v1/blackouts/"+created.BlackoutID, nil)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("delete #%d: expected 204, got %d", i+1, rr.Code)
		}
	}
	rr = do(t, srv, http.MethodDelete, "/api/v1/blackouts/not-a-uuid", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("deleting an unknown id must succeed, got %d", rr.Code)
	}
}

func TestWorkingHoursRoundTrip(t *testing.T) {
	srv := newServer(t)
	openMonday(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/v1/working-hours?professional_id=p1", nil)
	got := decode[workingHoursBody](t, rr)
	if len(got.Windows) != 1 || got.Windows[0] != (windowItem{Weekday: "monday", Open: "08:00", Close: "12:00"}) {
		t.Fatalf("unexpected working hours %+v", got)
	}
}

func TestWorkingHoursAcceptsNumericWeekday(t *testing.T) {
	srv := newServer(t)
	body := map[string]any{"windows": []map[string]any{
		{"weekday": 1, "open": "08:00", "close": "12:00"},
		{"weekday": "tue", "open": "13:00", "close": "17:00"},
	}}
	rr := do(t, srv, http.MethodPut, "/api/v1/working-hours?professional_id=p1", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	got := decode[workingHoursBody](t, rr)
	if len(got.Windows) != 2 || got.Windows[0].Weekday != "monday" || got.Windows[1].Weekday != "tuesday" {
		t.Fatalf("unexpected working hours %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02", nil)
	if got := decode[[]slotItem](t, rr); len(got) != 8 {
		t.Fatalf("expected 8 monday slots, got %d", len(got))
	}

	for _, day := range []any{7, -1, "someday", true, nil} {
		bad := map[string]any{"windows": []map[string]any{{"weekday": day, "open": "08:00", "close": "12:00"}}}
		rr := do(t, srv, http.MethodPut, "/api/v1/working-hours?professional_id=p1", bad)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("weekday %v: expected 400, got %d", day, rr.Code)
		}
	}
}

func TestRoutesRequireTenant(t *testing.T) {
	srv := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/slots?professional_id=p1&date=2026-03-02", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %d", rr.Code)
	}
}

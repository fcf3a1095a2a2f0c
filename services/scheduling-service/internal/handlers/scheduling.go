// Package handlers is the HTTP boundary of the scheduling engine. The tenant id
// comes from the X-Tenant-Id header set by the auth middleware and is passed to
// every engine call explicitly.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/blackout"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/reservation"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/slots"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type SchedulingHandler struct {
	slots     *slots.Generator
	bookings  *reservation.Protocol
	blackouts *blackout.Registry
	calendar  *calendar.Calendar
	logger    *slog.Logger
}

func NewSchedulingHandler(generator *slots.Generator, bookings *reservation.Protocol, blackouts *blackout.Registry, cal *calendar.Calendar, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{
		slots:     generator,
		bookings:  bookings,
		blackouts: blackouts,
		calendar:  cal,
		logger:    logger,
	}
}

// Routes returns the /api/v1 routes. Every route requires a tenant.
func (h *SchedulingHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/slots", h.Slots)
	mux.HandleFunc("POST /api/v1/reservations", h.Reserve)
	mux.HandleFunc("GET /api/v1/bookings", h.ListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", h.GetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/v1/blackouts", h.CreateBlackout)
	mux.HandleFunc("GET /api/v1/blackouts", h.ListBlackouts)
	mux.HandleFunc("DELETE /api/v1/blackouts/{id}", h.DeleteBlackout)
	mux.HandleFunc("GET /api/v1/working-hours", h.GetWorkingHours)
	mux.HandleFunc("PUT /api/v1/working-hours", h.ReplaceWorkingHours)
	return httpx.RequireTenant(mux)
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := model.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		badRequest(w, "invalid date (want YYYY-MM-DD)")
		return
	}
	query := slots.Query{
		TenantID:       httpx.TenantID(r),
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		Date:           date,
	}
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "invalid duration_minutes")
			return
		}
		query.DurationMinutes = &n
	}

	found, err := h.slots.AvailableSlots(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]slotItem, 0, len(found))
	for _, s := range found {
		resp = append(resp, slotItem{StartTime: s.Start.Format(time.RFC3339), EndTime: s.End.Format(time.RFC3339)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		badRequest(w, "invalid date (want YYYY-MM-DD)")
		return
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil || start >= 24*60 {
		badRequest(w, "invalid start_time (want HH:MM)")
		return
	}
	var status model.Status
	if raw := strings.TrimSpace(req.Status); raw != "" {
		if status, err = model.ParseStatus(raw); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	res, err := h.bookings.Reserve(r.Context(), reservation.Request{
		TenantID:        httpx.TenantID(r),
		ProfessionalID:  strings.TrimSpace(req.ProfessionalID),
		Date:            date,
		StartMinute:     start,
		DurationMinutes: req.DurationMinutes,
		Status:          status,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		code = http.StatusOK
	}
	writeJSON(w, code, toBookingResponse(res.Booking))
}

func (h *SchedulingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := model.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		badRequest(w, "invalid date (want YYYY-MM-DD)")
		return
	}
	found, err := h.bookings.ListForDate(r.Context(), httpx.TenantID(r), strings.TrimSpace(q.Get("professional_id")), date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]bookingResponse, 0, len(found))
	for _, b := range found {
		resp = append(resp, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Get(r.Context(), httpx.TenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *SchedulingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Confirm(r.Context(), httpx.TenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *SchedulingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Complete(r.Context(), httpx.TenantID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid json body")
		return
	}
	b, err := h.bookings.Cancel(r.Context(), httpx.TenantID(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *SchedulingHandler) CreateBlackout(w http.ResponseWriter, r *http.Request) {
	var req blackoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		badRequest(w, "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		badRequest(w, "invalid end_time")
		return
	}

	b, err := h.blackouts.Create(r.Context(), blackout.CreateRequest{
		TenantID:       httpx.TenantID(r),
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		Start:          start,
		End:            end,
		Reason:         req.Reason,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlackoutResponse(b))
}

// ListBlackouts accepts either a date or a from/to RFC3339 range.
func (h *SchedulingHandler) ListBlackouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := httpx.TenantID(r)
	professionalID := strings.TrimSpace(q.Get("professional_id"))

	var (
		found []model.BlackoutInterval
		err   error
	)
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, parseErr := model.ParseDate(raw)
		if parseErr != nil {
			badRequest(w, "invalid date (want YYYY-MM-DD)")
			return
		}
		found, err = h.blackouts.ForDate(r.Context(), tenantID, professionalID, date)
	} else {
		from, fromErr := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("from")))
		to, toErr := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("to")))
		if fromErr != nil || toErr != nil {
			badRequest(w, "date or from/to (RFC3339) required")
			return
		}
		found, err = h.blackouts.List(r.Context(), tenantID, professionalID, from, to)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := make([]blackoutResponse, 0, len(found))
	for _, b := range found {
		resp = append(resp, toBlackoutResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SchedulingHandler) DeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := h.blackouts.Delete(r.Context(), httpx.TenantID(r), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SchedulingHandler) GetWorkingHours(w http.ResponseWriter, r *http.Request) {
	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	windows, err := h.calendar.Windows(r.Context(), httpx.TenantID(r), professionalID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingHours(professionalID, windows))
}

func (h *SchedulingHandler) ReplaceWorkingHours(w http.ResponseWriter, r *http.Request) {
	var body workingHoursBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))
	if professionalID == "" {
		professionalID = strings.TrimSpace(body.ProfessionalID)
	}
	windows := make([]model.WorkingWindow, 0, len(body.Windows))
	for _, item := range body.Windows {
		win, err := item.toModel()
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		windows = append(windows, win)
	}

	saved, err := h.calendar.Replace(r.Context(), httpx.TenantID(r), professionalID, windows)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkingHours(professionalID, saved))
}

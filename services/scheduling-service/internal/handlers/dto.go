package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type reserveRequest struct {
	ProfessionalID  string `json:"professional_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes *int   `json:"duration_minutes"`
	Status          string `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type bookingResponse struct {
	BookingID        string `json:"booking_id"`
	ProfessionalID   string `json:"professional_id"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	DurationMinutes  int    `json:"duration_minutes"`
	Status           string `json:"status"`
	CancelReason     string `json:"cancel_reason,omitempty"`
	LateCancellation bool   `json:"late_cancellation"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toBookingResponse(b model.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:        b.ID,
		ProfessionalID:   b.ProfessionalID,
		Date:             b.Date.String(),
		StartTime:        b.StartTime.Format(time.RFC3339),
		EndTime:          b.EndTime().Format(time.RFC3339),
		DurationMinutes:  b.DurationMinutes,
		Status:           string(b.Status),
		CancelReason:     b.CancelReason,
		LateCancellation: b.LateCancellation,
		CreatedAt:        b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type blackoutRequest struct {
	ProfessionalID string `json:"professional_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Reason         string `json:"reason"`
}

type blackoutResponse struct {
	BlackoutID     string `json:"blackout_id"`
	ProfessionalID string `json:"professional_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Reason         string `json:"reason,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func toBlackoutResponse(b model.BlackoutInterval) blackoutResponse {
	return blackoutResponse{
		BlackoutID:     b.ID,
		ProfessionalID: b.ProfessionalID,
		StartTime:      b.Start.Format(time.RFC3339),
		EndTime:        b.End.Format(time.RFC3339),
		Reason:         b.Reason,
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// weekdayValue holds a weekday as sent by the client: a number 0..6 with
// Sunday = 0, or a day name. Responses always carry the lowercase name.
type weekdayValue string

func (w *weekdayValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return errors.New("weekday is required")
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*w = weekdayValue(strconv.Itoa(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("weekday must be a number 0..6 or a day name")
	}
	*w = weekdayValue(s)
	return nil
}

type windowItem struct {
	Weekday weekdayValue `json:"weekday"`
	Open    string       `json:"open"`
	Close   string       `json:"close"`
}

type workingHoursBody struct {
	ProfessionalID string       `json:"professional_id,omitempty"`
	Windows        []windowItem `json:"windows"`
}

func toWorkingHours(professionalID string, windows []model.WorkingWindow) workingHoursBody {
	items := make([]windowItem, 0, len(windows))
	for _, w := range windows {
		items = append(items, windowItem{
			Weekday: weekdayValue(strings.ToLower(w.Weekday.String())),
			Open:    model.FormatClock(w.OpenMinute),
			Close:   model.FormatClock(w.CloseMinute),
		})
	}
	return workingHoursBody{ProfessionalID: professionalID, Windows: items}
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(time.Sunday) || n > int(time.Saturday) {
			return 0, fmt.Errorf("invalid weekday %d (want 0..6)", n)
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func (item windowItem) toModel() (model.WorkingWindow, error) {
	day, err := parseWeekday(string(item.Weekday))
	if err != nil {
		return model.WorkingWindow{}, err
	}
	open, err := model.ParseClock(item.Open)
	if err != nil {
		return model.WorkingWindow{}, fmt.Errorf("open: %w", err)
	}
	closeAt, err := model.ParseClock(item.Close)
	if err != nil {
		return model.WorkingWindow{}, fmt.Errorf("close: %w", err)
	}
	return model.WorkingWindow{Weekday: day, OpenMinute: open, CloseMinute: closeAt}, nil
}

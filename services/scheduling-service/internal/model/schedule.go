package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// WorkingWindow is a recurring weekly open interval, in minutes after midnight of
// the weekday in the clinic's timezone. CloseMinute may be 1440 (24:00).
type WorkingWindow struct {
	TenantID       string
	ProfessionalID string
	Weekday        time.Weekday
	OpenMinute     int
	CloseMinute    int
}

func (w WorkingWindow) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("weekday must be 0..6 (got %d)", w.Weekday)
	}
	if w.OpenMinute < 0 || w.CloseMinute > minutesPerDay {
		return fmt.Errorf("window %s-%s is outside the day", FormatClock(w.OpenMinute), FormatClock(w.CloseMinute))
	}
	if w.OpenMinute >= w.CloseMinute {
		return fmt.Errorf("open time %s must be before close time %s", FormatClock(w.OpenMinute), FormatClock(w.CloseMinute))
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return h*60 + m, nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

type BlackoutInterval struct {
	ID             string
	TenantID       string
	ProfessionalID string
	Start          time.Time
	End            time.Time
	Reason         string
	CreatedAt      time.Time
}

// Slot is a derived bookable interval. It is never persisted.
type Slot struct {
	Start time.Time
	End   time.Time
}

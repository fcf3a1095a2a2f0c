package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
)

// Status is the closed set of booking states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown booking status %q", s)
	}
}

// Occupies reports whether a booking in this state holds its interval.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes pending -> confirmed -> completed and
// pending|confirmed -> cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

type Booking struct {
	ID               string
	TenantID         string
	ProfessionalID   string
	Date             Date
	StartTime        time.Time
	DurationMinutes  int
	Status           Status
	CancelReason     string
	LateCancellation bool
	IdempotencyKey   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CancelledAt      *time.Time
}

func (b Booking) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Interval is the occupied interval [start, start+duration).
func (b Booking) Interval() interval.Interval {
	return interval.New(b.StartTime, b.EndTime())
}

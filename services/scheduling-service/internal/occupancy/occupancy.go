// Package occupancy derives the intervals already consumed by bookings.
package occupancy

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

// Source is the read dependency of the index; storage.Reader and storage.Tx both
// satisfy it.
type Source interface {
	OccupyingBookings(ctx context.Context, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error)
}

// Bookings returns the bookings of the professional that occupy time within span.
// The status filter is applied again here so a Source that returns cancelled rows
// cannot leak them into occupancy.
func Bookings(ctx context.Context, src Source, tenantID, professionalID string, span interval.Interval) ([]model.Booking, error) {
	rows, err := src.OccupyingBookings(ctx, tenantID, professionalID, span)
	if err != nil {
		return nil, fmt.Errorf("load occupancy: %w", err)
	}
	out := rows[:0:0]
	for _, b := range rows {
		if b.Status.Occupies() {
			out = append(out, b)
		}
	}
	return out, nil
}

// Intervals returns the merged occupied intervals within span.
func Intervals(ctx context.Context, src Source, tenantID, professionalID string, span interval.Interval) ([]interval.Interval, error) {
	rows, err := Bookings(ctx, src, tenantID, professionalID, span)
	if err != nil {
		return nil, err
	}
	return Merge(rows), nil
}

// Merge returns the merged intervals of the occupying bookings in rows.
func Merge(rows []model.Booking) []interval.Interval {
	ivs := make([]interval.Interval, 0, len(rows))
	for _, b := range rows {
		if b.Status.Occupies() {
			ivs = append(ivs, b.Interval())
		}
	}
	return interval.Merge(ivs)
}

// FirstConflict returns the first occupying booking overlapping iv.
func FirstConflict(rows []model.Booking, iv interval.Interval) (model.Booking, bool) {
	for _, b := range rows {
		if b.Status.Occupies() && interval.Overlaps(b.Interval(), iv) {
			return b, true
		}
	}
	return model.Booking{}, false
}

package model

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
)

// TupleKey identifies the unit of mutual exclusion for reservations: one
// professional of one tenant on one calendar date.
type TupleKey struct {
	TenantID       string
	ProfessionalID string
	Date           Date
}

func (k TupleKey) String() string {
	return k.TenantID + "|" + k.ProfessionalID + "|" + k.Date.String()
}

// TupleKeys returns the sorted keys of every date iv touches in loc. Callers lock
// them in this order, which keeps multi-date lockers from deadlocking.
func TupleKeys(tenantID, professionalID string, iv interval.Interval, loc *time.Location) []TupleKey {
	var keys []TupleKey
	for _, d := range DatesTouched(iv, loc) {
		keys = append(keys, TupleKey{TenantID: tenantID, ProfessionalID: professionalID, Date: d})
	}
	return SortKeys(keys)
}

// BookingKeys returns the lock keys of a stored booking, derived from its own
// date rather than the clinic's current timezone. Starting at b.Date, the range
// covers every date a booking of that length can reach, so it includes the keys
// taken when the booking was reserved.
func BookingKeys(b Booking) []TupleKey {
	spill := b.DurationMinutes/minutesPerDay + 1
	keys := make([]TupleKey, 0, spill+1)
	for i := 0; i <= spill; i++ {
		keys = append(keys, TupleKey{TenantID: b.TenantID, ProfessionalID: b.ProfessionalID, Date: b.Date.AddDays(i)})
	}
	return SortKeys(keys)
}

// SortKeys orders keys by their string form and removes duplicates in place.
func SortKeys(keys []TupleKey) []TupleKey {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}

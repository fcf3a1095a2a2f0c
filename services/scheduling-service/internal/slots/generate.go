package slots

import (
	"time"

	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/interval"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/model"
)

// Generate steps a candidate start through each free interval from the interval's
// start in increments of step, accepting a candidate when start+duration fits in
// the interval. Candidates at or before now are skipped. free must be ascending
// and disjoint; the result is then ascending by start.
func Generate(free []interval.Interval, duration, step time.Duration, now time.Time) []model.Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var slots []model.Slot
	for _, f := range free {
		if f.Start.Add(duration).After(f.End) {
			continue
		}
		for t := f.Start; !t.Add(duration).After(f.End); t = t.Add(step) {
			if !t.After(now) {
				continue
			}
			slots = append(slots, model.Slot{Start: t, End: t.Add(duration)})
		}
	}
	return slots
}
